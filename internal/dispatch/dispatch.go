package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/FranLegon/drive-doc-relay/internal/api"
	"github.com/FranLegon/drive-doc-relay/internal/convert"
	"github.com/FranLegon/drive-doc-relay/internal/logger"
	"github.com/FranLegon/drive-doc-relay/internal/model"
)

// DefaultMergeSuffix is appended to the first file's base name to name the merged PDF
const DefaultMergeSuffix = "_merged"

// ErrEmptyBatch is returned for an upload without files
var ErrEmptyBatch = errors.New("no files uploaded")

var imageExtensions = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"bmp":  true,
	"gif":  true,
	"tiff": true,
	"webp": true,
}

// IsImage reports whether an entry is treated as an image, by content type or extension
func IsImage(entry model.UploadEntry) bool {
	if strings.HasPrefix(entry.ContentType, "image/") {
		return true
	}
	return imageExtensions[entry.Ext()]
}

// AllImages reports whether the batch is non-empty and made only of images
func AllImages(batch model.UploadBatch) bool {
	if len(batch) == 0 {
		return false
	}
	for _, entry := range batch {
		if !IsImage(entry) {
			return false
		}
	}
	return true
}

// Dispatcher uploads a batch either as one merged PDF or file by file
type Dispatcher struct {
	mergeSuffix string
}

// NewDispatcher creates a dispatcher. An empty suffix uses DefaultMergeSuffix.
func NewDispatcher(mergeSuffix string) *Dispatcher {
	if mergeSuffix == "" {
		mergeSuffix = DefaultMergeSuffix
	}
	return &Dispatcher{mergeSuffix: mergeSuffix}
}

// MergedName returns the name of the PDF built from batch
func (d *Dispatcher) MergedName(batch model.UploadBatch) string {
	return batch[0].BaseName() + d.mergeSuffix + ".pdf"
}

// Dispatch uploads batch under targetID and returns one summary per created item.
// Uploads run sequentially in input order; on failure earlier uploads are kept.
func (d *Dispatcher) Dispatch(ctx context.Context, svc api.DocumentService, batch model.UploadBatch, targetID string) ([]model.ItemSummary, error) {
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}

	tags := []string{string(svc.Provider())}

	if AllImages(batch) {
		name := d.MergedName(batch)
		logger.InfoTagged(tags, "Detected images (count: %d), converting to PDF '%s'", len(batch), name)

		images := make([]convert.Image, len(batch))
		for i, entry := range batch {
			images[i] = convert.Image{Name: entry.Filename, Data: entry.Content}
		}

		var pdf bytes.Buffer
		if err := convert.ImagesToPDF(images, &pdf); err != nil {
			return nil, fmt.Errorf("failed to convert images to PDF: %w", err)
		}

		created, err := svc.Create(ctx, api.NewItem{Name: name, ParentID: targetID, ContentType: "application/pdf"}, &pdf)
		if err != nil {
			return nil, err
		}
		summary := created.Summary()
		summary.Type = model.KindFile
		return []model.ItemSummary{summary}, nil
	}

	summaries := make([]model.ItemSummary, 0, len(batch))
	for _, entry := range batch {
		logger.DebugTagged(tags, "Uploading '%s' (%s)", entry.Filename, entry.ContentType)
		created, err := svc.Create(ctx, api.NewItem{
			Name:        entry.Filename,
			ParentID:    targetID,
			ContentType: entry.ContentType,
		}, entry.Content)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, created.Summary())
	}

	return summaries, nil
}
