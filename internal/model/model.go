package model

import (
	"io"
	"path"
	"strings"
)

// Provider identifies the remote document service behind the relay
type Provider string

const (
	ProviderGoogle    Provider = "google"
	ProviderMicrosoft Provider = "microsoft"
	ProviderMemory    Provider = "memory"
)

// DisplayName returns the human readable provider name
func (p Provider) DisplayName() string {
	switch p {
	case ProviderGoogle:
		return "Google Drive"
	case ProviderMicrosoft:
		return "OneDrive"
	case ProviderMemory:
		return "In-Memory"
	default:
		return string(p)
	}
}

// Kind distinguishes files from folders
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// FolderMimeType is the MIME type the remote service reports for folders
const FolderMimeType = "application/vnd.google-apps.folder"

// Item is a remote file or folder. The relay never stores one.
type Item struct {
	ID            string
	Name          string
	Kind          Kind
	MimeType      string
	WebViewLink   string
	ThumbnailLink string
	Parents       []string
}

// IsFolder reports whether the item is a folder
func (i *Item) IsFolder() bool {
	return i.Kind == KindFolder
}

// Summary shapes the item for clients
func (i *Item) Summary() ItemSummary {
	return ItemSummary{
		ID:            i.ID,
		Name:          i.Name,
		Type:          i.Kind,
		WebViewLink:   optional(i.WebViewLink),
		ThumbnailLink: optional(i.ThumbnailLink),
	}
}

// ItemSummary is the client-facing item shape. Links are null when the remote
// service did not return them.
type ItemSummary struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Type          Kind    `json:"type"`
	WebViewLink   *string `json:"webViewLink"`
	ThumbnailLink *string `json:"thumbnailLink"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// UploadEntry is one uploaded part of a request
type UploadEntry struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// Ext returns the lower-cased extension of the filename without the dot. Leading
// dots belong to the name, so ".png" has no extension.
func (e UploadEntry) Ext() string {
	return strings.TrimPrefix(strings.ToLower(splitExt(e.baseFilename())), ".")
}

// BaseName returns the filename without directories or extension
func (e UploadEntry) BaseName() string {
	name := e.baseFilename()
	return strings.TrimSuffix(name, splitExt(name))
}

func (e UploadEntry) baseFilename() string {
	name := path.Base(strings.ReplaceAll(e.Filename, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// splitExt returns the dotted extension of name, ignoring leading dots
func splitExt(name string) string {
	return path.Ext(strings.TrimLeft(name, "."))
}

// UploadBatch is the ordered set of entries of one upload request
type UploadBatch []UploadEntry
