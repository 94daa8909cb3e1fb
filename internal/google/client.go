package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/FranLegon/drive-doc-relay/internal/api"
	"github.com/FranLegon/drive-doc-relay/internal/auth"
	"github.com/FranLegon/drive-doc-relay/internal/crypto"
	"github.com/FranLegon/drive-doc-relay/internal/logger"
	"github.com/FranLegon/drive-doc-relay/internal/model"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	itemFields = "id, name, mimeType, webViewLink, thumbnailLink, parents"
	listFields = "nextPageToken, files(" + itemFields + ")"
	pageSize   = 1000
)

// Options tune how clients are built
type Options struct {
	// Endpoint overrides the Drive API base URL (used against fakes)
	Endpoint string
}

// Client is a Drive v3 client bound to one caller's access token
type Client struct {
	service *drive.Service
	tags    []string
}

// NewClient creates a new Google Drive client from a bearer access token
func NewClient(ctx context.Context, accessToken string, opts Options) (*Client, error) {
	clientOpts := []option.ClientOption{option.WithTokenSource(auth.TokenSource(accessToken))}
	if opts.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.Endpoint))
	}

	service, err := drive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &Client{
		service: service,
		tags:    []string{"Google", crypto.Fingerprint(accessToken)},
	}, nil
}

// NewFactory returns an api.Factory producing Drive clients
func NewFactory(opts Options) api.Factory {
	return func(ctx context.Context, token string) (api.DocumentService, error) {
		return NewClient(ctx, token, opts)
	}
}

func (c *Client) Provider() model.Provider {
	return model.ProviderGoogle
}

// Search lists every item matching the filter, following pagination
func (c *Client) Search(ctx context.Context, filter api.Filter) ([]model.Item, error) {
	query := BuildQuery(filter)
	logger.DebugTagged(c.tags, "Files.List q=%s", query)

	var items []model.Item
	pageToken := ""

	for {
		call := c.service.Files.List().Q(query).
			Fields(listFields).
			PageSize(pageSize).
			Context(ctx)

		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		fileList, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list files: %w", translateError(err))
		}

		for _, f := range fileList.Files {
			items = append(items, toItem(f))
		}

		if fileList.NextPageToken == "" {
			break
		}
		pageToken = fileList.NextPageToken
	}

	return items, nil
}

// Create creates a folder, or a file whose bytes are streamed from content
func (c *Client) Create(ctx context.Context, item api.NewItem, content io.Reader) (*model.Item, error) {
	file := &drive.File{Name: item.Name}
	if item.ParentID != "" {
		file.Parents = []string{item.ParentID}
	}
	if item.Folder {
		file.MimeType = model.FolderMimeType
	}

	call := c.service.Files.Create(file).Fields(itemFields).Context(ctx)

	if !item.Folder && content != nil {
		var mediaOpts []googleapi.MediaOption
		if item.ContentType != "" {
			mediaOpts = append(mediaOpts, googleapi.ContentType(item.ContentType))
		}
		call = call.Media(content, mediaOpts...)
	}

	created, err := call.Do()
	if err != nil {
		if item.Folder {
			return nil, fmt.Errorf("failed to create folder: %w", translateError(err))
		}
		return nil, fmt.Errorf("failed to upload file: %w", translateError(err))
	}

	logger.InfoTagged(c.tags, "Created %s '%s' (ID: %s)", kindOf(created.MimeType), created.Name, created.Id)
	result := toItem(created)
	return &result, nil
}

// Update changes item metadata
func (c *Client) Update(ctx context.Context, id string, patch api.ItemPatch) (*model.Item, error) {
	updated, err := c.service.Files.Update(id, &drive.File{Name: patch.Name}).
		Fields(itemFields).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to update file: %w", translateError(err))
	}

	result := toItem(updated)
	return &result, nil
}

// Delete permanently deletes an item
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.service.Files.Delete(id).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete file: %w", translateError(err))
	}
	logger.InfoTagged(c.tags, "Deleted %s", id)
	return nil
}

// BuildQuery renders a filter as a Drive query expression. Every literal is quoted
// through quote so names containing quotes or backslashes cannot alter the expression.
func BuildQuery(filter api.Filter) string {
	var clauses []string
	if filter.FoldersOnly {
		clauses = append(clauses, "mimeType = "+quote(model.FolderMimeType))
	}
	if filter.Name != "" {
		clauses = append(clauses, "name = "+quote(filter.Name))
	}
	if filter.ParentID != "" {
		clauses = append(clauses, quote(filter.ParentID)+" in parents")
	}
	clauses = append(clauses, "trashed = false")
	return strings.Join(clauses, " and ")
}

var queryEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func quote(s string) string {
	return "'" + queryEscaper.Replace(s) + "'"
}

func toItem(f *drive.File) model.Item {
	return model.Item{
		ID:            f.Id,
		Name:          f.Name,
		Kind:          kindOf(f.MimeType),
		MimeType:      f.MimeType,
		WebViewLink:   f.WebViewLink,
		ThumbnailLink: f.ThumbnailLink,
		Parents:       f.Parents,
	}
}

func kindOf(mimeType string) model.Kind {
	if mimeType == model.FolderMimeType {
		return model.KindFolder
	}
	return model.KindFile
}

func translateError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", api.ErrUnauthenticated, gErr.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", api.ErrNotFound, gErr.Message)
		}
	}
	return err
}
