package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/FranLegon/drive-doc-relay/internal/api"
	"github.com/FranLegon/drive-doc-relay/internal/dispatch"
	"github.com/FranLegon/drive-doc-relay/internal/folder"
	"github.com/FranLegon/drive-doc-relay/internal/logger"
	"github.com/FranLegon/drive-doc-relay/internal/model"
)

// ErrMissingField is returned when a required request input is empty
var ErrMissingField = errors.New("missing required field")

// UploadRequest is one /upload call
type UploadRequest struct {
	Files      model.UploadBatch
	FolderName string
	// FolderID, when set, is used as the target folder instead of resolving FolderName
	FolderID string
}

// UploadResult is what an upload returns to the caller
type UploadResult struct {
	Uploaded     []model.ItemSummary
	TargetFolder string
}

// Runner handles request orchestration. It holds no per-request state and is
// safe for concurrent use.
type Runner struct {
	resolver   *folder.Resolver
	dispatcher *dispatch.Dispatcher
}

// NewRunner creates a new task runner
func NewRunner(resolver *folder.Resolver, dispatcher *dispatch.Dispatcher) *Runner {
	return &Runner{
		resolver:   resolver,
		dispatcher: dispatcher,
	}
}

// RootName returns the configured root folder name
func (r *Runner) RootName() string {
	return r.resolver.RootName()
}

// EnsureFolders makes sure the root folder and its defaults exist and returns the root id
func (r *Runner) EnsureFolders(ctx context.Context, svc api.DocumentService) (string, error) {
	return r.resolver.EnsureRootAndDefaults(ctx, svc)
}

// CheckToken performs a read-only call to verify the remote service accepts the token
func (r *Runner) CheckToken(ctx context.Context, svc api.DocumentService) error {
	if _, err := svc.Search(ctx, api.Filter{Name: r.resolver.RootName(), FoldersOnly: true}); err != nil {
		return fmt.Errorf("token check failed: %w", err)
	}
	return nil
}

// Upload stores the request's files in the target folder
func (r *Runner) Upload(ctx context.Context, svc api.DocumentService, req UploadRequest) (*UploadResult, error) {
	if len(req.Files) == 0 {
		return nil, dispatch.ErrEmptyBatch
	}
	if req.FolderName == "" {
		return nil, fmt.Errorf("%w: folder_name", ErrMissingField)
	}

	rootID, err := r.resolver.EnsureRootAndDefaults(ctx, svc)
	if err != nil {
		return nil, err
	}

	targetID := req.FolderID
	if targetID == "" {
		targetID, err = r.resolver.Resolve(ctx, svc, req.FolderName, rootID)
		if err != nil {
			return nil, err
		}
	}

	uploaded, err := r.dispatcher.Dispatch(ctx, svc, req.Files, targetID)
	if err != nil {
		return nil, err
	}

	logger.InfoTagged([]string{string(svc.Provider())}, "Uploaded %d item(s) to '%s'", len(uploaded), req.FolderName)
	return &UploadResult{Uploaded: uploaded, TargetFolder: req.FolderName}, nil
}

// CreateFolder creates a new folder named name under parent. An empty parent means
// the root folder; a missing parent is created first. Existing folders with the
// same name are not reused.
func (r *Runner) CreateFolder(ctx context.Context, svc api.DocumentService, name, parent string) (*model.ItemSummary, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: folder_name", ErrMissingField)
	}
	if parent == "" {
		parent = r.resolver.RootName()
	}

	rootID, err := r.resolver.EnsureRootAndDefaults(ctx, svc)
	if err != nil {
		return nil, err
	}
	parentID, err := r.resolver.Resolve(ctx, svc, parent, rootID)
	if err != nil {
		return nil, err
	}

	created, err := svc.Create(ctx, api.NewItem{Name: name, ParentID: parentID, Folder: true}, nil)
	if err != nil {
		return nil, err
	}

	summary := created.Summary()
	summary.Type = model.KindFolder
	summary.ThumbnailLink = nil
	return &summary, nil
}

// ListFiles lists the direct children of the named folder. A folder that does not
// exist yields an empty list and is not created.
func (r *Runner) ListFiles(ctx context.Context, svc api.DocumentService, folderName string) ([]model.ItemSummary, error) {
	if folderName == "" {
		folderName = r.resolver.RootName()
	}

	rootID, err := r.resolver.EnsureRootAndDefaults(ctx, svc)
	if err != nil {
		return nil, err
	}

	targetID, ok, err := r.resolver.Lookup(ctx, svc, folderName, rootID)
	if err != nil {
		return nil, err
	}
	files := []model.ItemSummary{}
	if !ok {
		return files, nil
	}

	items, err := svc.Search(ctx, api.Filter{ParentID: targetID})
	if err != nil {
		return nil, err
	}
	for i := range items {
		files = append(files, items[i].Summary())
	}
	return files, nil
}

// Delete permanently removes an item
func (r *Runner) Delete(ctx context.Context, svc api.DocumentService, id string) error {
	if id == "" {
		return fmt.Errorf("%w: file_id", ErrMissingField)
	}
	return svc.Delete(ctx, id)
}

// Rename changes an item's name and returns the updated item
func (r *Runner) Rename(ctx context.Context, svc api.DocumentService, id, newName string) (*model.Item, error) {
	if newName == "" {
		return nil, fmt.Errorf("%w: new_name", ErrMissingField)
	}
	return svc.Update(ctx, id, api.ItemPatch{Name: newName})
}
