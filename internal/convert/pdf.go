package convert

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"github.com/go-pdf/fpdf"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultDPI is assumed for every image since pixel density metadata is not read
const DefaultDPI = 96

// ErrNoImages is returned when asked to convert an empty image list
var ErrNoImages = errors.New("no images to convert")

// Image is one source image for a PDF page
type Image struct {
	Name string
	Data io.Reader
}

// ImagesToPDF writes a PDF with one page per image, in order. Each page is sized to
// its image at DefaultDPI, so the image fills the page at its original dimensions.
func ImagesToPDF(images []Image, w io.Writer) error {
	if len(images) == 0 {
		return ErrNoImages
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{UnitStr: "pt"})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	for i, img := range images {
		page, err := preparePage(img.Data)
		if err != nil {
			return fmt.Errorf("failed to read image '%s': %w", img.Name, err)
		}

		wd := float64(page.width) * 72 / DefaultDPI
		ht := float64(page.height) * 72 / DefaultDPI
		pdf.AddPageFormat("P", fpdf.SizeType{Wd: wd, Ht: ht})

		name := fmt.Sprintf("page-%d", i)
		opts := fpdf.ImageOptions{ImageType: page.imageType}
		pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(page.data))
		pdf.ImageOptions(name, 0, 0, wd, ht, false, opts, 0, "")

		if err := pdf.Error(); err != nil {
			return fmt.Errorf("failed to add image '%s': %w", img.Name, err)
		}
	}

	return pdf.Output(w)
}

type preparedPage struct {
	data      []byte
	imageType string
	width     int
	height    int
}

// preparePage keeps JPEG data as is and re-encodes every other format as an
// opaque 8-bit PNG, the only other form the PDF writer embeds reliably.
func preparePage(r io.Reader) (*preparedPage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, errors.New("image has no pixels")
	}

	if format == "jpeg" {
		return &preparedPage{data: data, imageType: "JPG", width: cfg.Width, height: cfg.Height}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	bounds := src.Bounds()
	flat := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(flat, flat.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), src, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, flat); err != nil {
		return nil, err
	}
	return &preparedPage{data: buf.Bytes(), imageType: "PNG", width: bounds.Dx(), height: bounds.Dy()}, nil
}
