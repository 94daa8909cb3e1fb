package api

import (
	"context"
	"errors"
	"io"

	"github.com/FranLegon/drive-doc-relay/internal/model"
)

var (
	// ErrUnauthenticated is returned when the remote service rejects the bearer token
	ErrUnauthenticated = errors.New("remote service rejected the credentials")
	// ErrNotFound is returned when the addressed item does not exist
	ErrNotFound = errors.New("item not found")
)

// Filter selects items in the remote service. Trashed items are never returned.
type Filter struct {
	// Name matches the item name exactly (case-sensitive) when non-empty
	Name string
	// ParentID restricts the search to direct children when non-empty
	ParentID string
	// FoldersOnly restricts the search to folders
	FoldersOnly bool
}

// NewItem describes an item to create
type NewItem struct {
	Name        string
	ParentID    string
	Folder      bool
	ContentType string
}

// ItemPatch holds the metadata fields an update may change
type ItemPatch struct {
	Name string
}

// DocumentService is the capability the relay needs from a remote document store.
// Implementations are built per request from the caller's bearer token.
type DocumentService interface {
	Provider() model.Provider

	// Search returns the items matching the filter, in the remote service's order
	Search(ctx context.Context, filter Filter) ([]model.Item, error)

	// Create creates an item. content is nil for folders.
	Create(ctx context.Context, item NewItem, content io.Reader) (*model.Item, error)

	// Update applies a metadata patch and returns the updated item
	Update(ctx context.Context, id string, patch ItemPatch) (*model.Item, error)

	Delete(ctx context.Context, id string) error
}

// Factory builds a DocumentService bound to one bearer token
type Factory func(ctx context.Context, token string) (DocumentService, error)
