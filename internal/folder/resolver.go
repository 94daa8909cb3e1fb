package folder

import (
	"context"
	"fmt"

	"github.com/FranLegon/drive-doc-relay/internal/api"
	"github.com/FranLegon/drive-doc-relay/internal/logger"
)

// ResolutionError reports a remote failure while locating or creating a folder
type ResolutionError struct {
	Folder string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("folder resolution failed for '%s': %v", e.Folder, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Resolver locates the root folder and its named children, creating them on demand
type Resolver struct {
	rootName string
	defaults []string
}

// NewResolver creates a resolver for the given root folder and default subfolders
func NewResolver(rootName string, defaults []string) *Resolver {
	return &Resolver{
		rootName: rootName,
		defaults: append([]string(nil), defaults...),
	}
}

// RootName returns the configured root folder name
func (r *Resolver) RootName() string {
	return r.rootName
}

// EnsureRootAndDefaults returns the root folder id, creating the root and any missing
// default subfolders. Subfolders created before a failure are left in place.
func (r *Resolver) EnsureRootAndDefaults(ctx context.Context, svc api.DocumentService) (string, error) {
	tags := []string{string(svc.Provider())}

	rootID, created, err := getOrCreate(ctx, svc, r.rootName, "")
	if err != nil {
		return "", &ResolutionError{Folder: r.rootName, Err: err}
	}
	if created {
		logger.InfoTagged(tags, "Created root folder '%s' (ID: %s)", r.rootName, rootID)
	}

	for _, name := range r.defaults {
		id, created, err := getOrCreate(ctx, svc, name, rootID)
		if err != nil {
			return "", &ResolutionError{Folder: name, Err: err}
		}
		if created {
			logger.InfoTagged(tags, "Created default folder '%s' (ID: %s)", name, id)
		}
	}

	return rootID, nil
}

// Resolve returns the id of the folder called name. The root name maps to rootID;
// any other name is a direct child of the root, created when absent.
func (r *Resolver) Resolve(ctx context.Context, svc api.DocumentService, name, rootID string) (string, error) {
	if name == r.rootName {
		return rootID, nil
	}
	id, created, err := getOrCreate(ctx, svc, name, rootID)
	if err != nil {
		return "", &ResolutionError{Folder: name, Err: err}
	}
	if created {
		logger.InfoTagged([]string{string(svc.Provider())}, "Created folder '%s' (ID: %s)", name, id)
	}
	return id, nil
}

// Lookup is Resolve without the create step. ok is false when no such folder exists.
func (r *Resolver) Lookup(ctx context.Context, svc api.DocumentService, name, rootID string) (id string, ok bool, err error) {
	if name == r.rootName {
		return rootID, true, nil
	}
	id, err = find(ctx, svc, name, rootID)
	if err != nil {
		return "", false, &ResolutionError{Folder: name, Err: err}
	}
	return id, id != "", nil
}

// find returns the first folder matching name under parentID, or "" when none exists.
// With duplicates the remote service's first result wins.
func find(ctx context.Context, svc api.DocumentService, name, parentID string) (string, error) {
	items, err := svc.Search(ctx, api.Filter{Name: name, ParentID: parentID, FoldersOnly: true})
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", nil
	}
	return items[0].ID, nil
}

func getOrCreate(ctx context.Context, svc api.DocumentService, name, parentID string) (string, bool, error) {
	id, err := find(ctx, svc, name, parentID)
	if err != nil {
		return "", false, err
	}
	if id != "" {
		return id, false, nil
	}

	created, err := svc.Create(ctx, api.NewItem{Name: name, ParentID: parentID, Folder: true}, nil)
	if err != nil {
		return "", false, err
	}
	return created.ID, true, nil
}
