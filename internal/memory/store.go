package memory

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/FranLegon/drive-doc-relay/internal/api"
	"github.com/FranLegon/drive-doc-relay/internal/crypto"
	"github.com/FranLegon/drive-doc-relay/internal/logger"
	"github.com/FranLegon/drive-doc-relay/internal/model"
	"github.com/google/uuid"
)

// Op names a store operation for failure injection
type Op string

const (
	OpSearch Op = "search"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// FailFunc decides whether an operation should fail. name is the item name for
// create, the filter name for search and the item id otherwise.
type FailFunc func(op Op, name string) error

type entry struct {
	item    model.Item
	content []byte
	trashed bool
}

// Store is one account's drive held in memory
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	calls   []Op
	fail    FailFunc
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// SetFailure installs a failure hook; nil clears it
func (s *Store) SetFailure(fn FailFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fn
}

// Calls returns the operations performed so far, in order
func (s *Store) Calls() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Op(nil), s.calls...)
}

// Items returns every non-trashed item in creation order
func (s *Store) Items() []model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []model.Item
	for _, id := range s.order {
		if e := s.entries[id]; e != nil && !e.trashed {
			items = append(items, e.item)
		}
	}
	return items
}

// Content returns the bytes uploaded for a file
func (s *Store) Content(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.content, true
}

// Trash marks an item as trashed so searches no longer return it
func (s *Store) Trash(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return api.ErrNotFound
	}
	e.trashed = true
	return nil
}

func (s *Store) check(op Op, name string) error {
	s.calls = append(s.calls, op)
	if s.fail != nil {
		return s.fail(op, name)
	}
	return nil
}

func (s *Store) search(filter api.Filter) ([]model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(OpSearch, filter.Name); err != nil {
		return nil, err
	}

	var items []model.Item
	for _, id := range s.order {
		e := s.entries[id]
		if e == nil || e.trashed {
			continue
		}
		if filter.FoldersOnly && !e.item.IsFolder() {
			continue
		}
		if filter.Name != "" && e.item.Name != filter.Name {
			continue
		}
		if filter.ParentID != "" && !hasParent(e.item, filter.ParentID) {
			continue
		}
		items = append(items, cloneItem(e.item))
	}
	return items, nil
}

func (s *Store) create(item api.NewItem, content io.Reader) (*model.Item, error) {
	var data []byte
	if content != nil {
		var err error
		if data, err = io.ReadAll(content); err != nil {
			return nil, fmt.Errorf("failed to read upload: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(OpCreate, item.Name); err != nil {
		return nil, err
	}

	created := model.Item{
		ID:       uuid.NewString(),
		Name:     item.Name,
		Kind:     model.KindFile,
		MimeType: item.ContentType,
	}
	if item.Folder {
		created.Kind = model.KindFolder
		created.MimeType = model.FolderMimeType
	} else if created.MimeType == "" {
		created.MimeType = "application/octet-stream"
	}
	if item.ParentID != "" {
		created.Parents = []string{item.ParentID}
	}
	created.WebViewLink = "memory://" + created.ID

	s.entries[created.ID] = &entry{item: created, content: data}
	s.order = append(s.order, created.ID)

	result := cloneItem(created)
	return &result, nil
}

func (s *Store) update(id string, patch api.ItemPatch) (*model.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(OpUpdate, id); err != nil {
		return nil, err
	}
	e, ok := s.entries[id]
	if !ok || e.trashed {
		return nil, fmt.Errorf("%w: %s", api.ErrNotFound, id)
	}
	if patch.Name != "" {
		e.item.Name = patch.Name
	}
	result := cloneItem(e.item)
	return &result, nil
}

func (s *Store) delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(OpDelete, id); err != nil {
		return err
	}
	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("%w: %s", api.ErrNotFound, id)
	}
	delete(s.entries, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func hasParent(item model.Item, parentID string) bool {
	for _, p := range item.Parents {
		if p == parentID {
			return true
		}
	}
	return false
}

func cloneItem(item model.Item) model.Item {
	item.Parents = append([]string(nil), item.Parents...)
	return item
}

// Accounts maps bearer tokens to stores. Unknown tokens get a fresh store unless
// the accounts are strict, in which case they are rejected like an invalid token.
type Accounts struct {
	mu      sync.Mutex
	stores  map[string]*Store
	revoked map[string]bool
	strict  bool
}

// NewAccounts creates an account set that accepts any non-empty token
func NewAccounts() *Accounts {
	return &Accounts{
		stores:  make(map[string]*Store),
		revoked: make(map[string]bool),
	}
}

// NewStrictAccounts creates an account set that only accepts registered tokens
func NewStrictAccounts(tokens ...string) *Accounts {
	a := NewAccounts()
	a.strict = true
	for _, t := range tokens {
		a.stores[t] = NewStore()
	}
	return a
}

// Store returns the store for a token, creating it when needed
func (a *Accounts) Store(token string) *Store {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.stores[token]
	if !ok {
		s = NewStore()
		a.stores[token] = s
	}
	return s
}

// Revoke makes every later call made with token fail as unauthenticated
func (a *Accounts) Revoke(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revoked[token] = true
}

func (a *Accounts) authorized(token string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if token == "" || a.revoked[token] {
		return false
	}
	if a.strict {
		_, ok := a.stores[token]
		return ok
	}
	return true
}

// Factory returns an api.Factory bound to these accounts
func (a *Accounts) Factory() api.Factory {
	return func(ctx context.Context, token string) (api.DocumentService, error) {
		return &Client{
			accounts: a,
			token:    token,
			tags:     []string{"Memory", crypto.Fingerprint(token)},
		}, nil
	}
}

// Client implements api.DocumentService against an Accounts store
type Client struct {
	accounts *Accounts
	token    string
	tags     []string
}

func (c *Client) Provider() model.Provider {
	return model.ProviderMemory
}

func (c *Client) store() (*Store, error) {
	if !c.accounts.authorized(c.token) {
		return nil, fmt.Errorf("%w: token not recognised", api.ErrUnauthenticated)
	}
	return c.accounts.Store(c.token), nil
}

func (c *Client) Search(ctx context.Context, filter api.Filter) ([]model.Item, error) {
	s, err := c.store()
	if err != nil {
		return nil, err
	}
	return s.search(filter)
}

func (c *Client) Create(ctx context.Context, item api.NewItem, content io.Reader) (*model.Item, error) {
	s, err := c.store()
	if err != nil {
		return nil, err
	}
	created, err := s.create(item, content)
	if err != nil {
		return nil, err
	}
	logger.DebugTagged(c.tags, "Created %s '%s' (ID: %s)", created.Kind, created.Name, created.ID)
	return created, nil
}

func (c *Client) Update(ctx context.Context, id string, patch api.ItemPatch) (*model.Item, error) {
	s, err := c.store()
	if err != nil {
		return nil, err
	}
	return s.update(id, patch)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	s, err := c.store()
	if err != nil {
		return err
	}
	return s.delete(id)
}
