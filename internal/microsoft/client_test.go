package microsoft

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/FranLegon/drive-doc-relay/internal/api"
	"github.com/FranLegon/drive-doc-relay/internal/model"
	"github.com/microsoft/kiota-abstractions-go/authentication"
	msgraph "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
)

func strPtr(s string) *string { return &s }

func TestToItemFolder(t *testing.T) {
	driveItem := models.NewDriveItem()
	driveItem.SetId(strPtr("F1"))
	driveItem.SetName(strPtr("Bills"))
	driveItem.SetWebUrl(strPtr("https://onedrive.example/F1"))
	driveItem.SetFolder(models.NewFolder())
	ref := models.NewItemReference()
	ref.SetId(strPtr("ROOT"))
	driveItem.SetParentReference(ref)

	item := toItem(driveItem)
	if !item.IsFolder() || item.MimeType != model.FolderMimeType {
		t.Errorf("Expected folder, got %+v", item)
	}
	if item.ID != "F1" || item.Name != "Bills" || item.WebViewLink != "https://onedrive.example/F1" {
		t.Errorf("Unexpected mapping: %+v", item)
	}
	if len(item.Parents) != 1 || item.Parents[0] != "ROOT" {
		t.Errorf("Expected parent ROOT, got %v", item.Parents)
	}
}

func TestToItemFileWithThumbnail(t *testing.T) {
	driveItem := models.NewDriveItem()
	driveItem.SetId(strPtr("X9"))
	driveItem.SetName(strPtr("scan.pdf"))
	file := models.NewFile()
	file.SetMimeType(strPtr("application/pdf"))
	driveItem.SetFile(file)

	thumb := models.NewThumbnail()
	thumb.SetUrl(strPtr("https://thumb/X9"))
	set := models.NewThumbnailSet()
	set.SetMedium(thumb)
	driveItem.SetThumbnails([]models.ThumbnailSetable{set})

	item := toItem(driveItem)
	if item.Kind != model.KindFile || item.MimeType != "application/pdf" {
		t.Errorf("Expected pdf file, got %+v", item)
	}
	if item.ThumbnailLink != "https://thumb/X9" {
		t.Errorf("Thumbnail not mapped: %q", item.ThumbnailLink)
	}
	if item.WebViewLink != "" {
		t.Errorf("Expected empty web link, got %q", item.WebViewLink)
	}
}

func graphError(status int, code string) error {
	mainErr := odataerrors.NewMainError()
	mainErr.SetCode(strPtr(code))
	mainErr.SetMessage(strPtr("something went wrong"))
	odataErr := odataerrors.NewODataError()
	odataErr.SetErrorEscaped(mainErr)
	odataErr.ResponseStatusCode = status
	return odataErr
}

func TestHandleGraphError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"unauthenticated", graphError(http.StatusUnauthorized, "InvalidAuthenticationToken"), api.ErrUnauthenticated},
		{"not found", graphError(http.StatusNotFound, "itemNotFound"), api.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := handleGraphError(tt.err)
			if !errors.Is(got, tt.target) {
				t.Errorf("Expected %v, got %v", tt.target, got)
			}
		})
	}

	other := handleGraphError(graphError(http.StatusBadRequest, "invalidRequest"))
	if errors.Is(other, api.ErrUnauthenticated) || errors.Is(other, api.ErrNotFound) {
		t.Errorf("400 should not map to a sentinel: %v", other)
	}
	if !strings.Contains(other.Error(), "invalidRequest") {
		t.Errorf("Expected code in message, got %v", other)
	}

	plain := errors.New("dial tcp: refused")
	if handleGraphError(plain) != plain {
		t.Error("Non OData errors should pass through")
	}
	if handleGraphError(nil) != nil {
		t.Error("nil should stay nil")
	}
}

// fakeGraph answers the subset of Graph drive endpoints the client calls
type fakeGraph struct {
	mu   sync.Mutex
	base string

	status     int
	driveHits  int
	childPages [][]map[string]any
	listPaths  []string

	folders  []map[string]any
	puts     []*url.URL
	content  [][]byte
	sessions []string
	session  map[string]any

	sessionStatus int
	ranges   []string
	received int

	patched map[string]map[string]any
	deleted []string
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{patched: make(map[string]map[string]any)}
}

func (f *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	body := readBody(r)
	path := r.URL.Path

	if f.status != 0 && !strings.HasPrefix(path, "/upload/") {
		writeGraphError(w, f.status, "InvalidAuthenticationToken")
		return
	}

	switch {
	case r.Method == http.MethodGet && path == "/me/drive":
		f.driveHits++
		json.NewEncoder(w).Encode(map[string]any{"id": "d1"})

	case r.Method == http.MethodGet && strings.HasSuffix(path, "/children"):
		f.listPaths = append(f.listPaths, path)
		page := 0
		if r.URL.Query().Get("$skiptoken") == "2" {
			page = 1
		}
		resp := map[string]any{"value": f.childPages[page]}
		if page == 0 && len(f.childPages) > 1 {
			resp["@odata.nextLink"] = f.base + path + "?$skiptoken=2"
		}
		json.NewEncoder(w).Encode(resp)

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/children"):
		var meta map[string]any
		json.Unmarshal(body, &meta)
		f.folders = append(f.folders, meta)
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "new-" + meta["name"].(string),
			"name":   meta["name"],
			"folder": map[string]any{"childCount": 0},
		})

	case r.Method == http.MethodPut && strings.HasSuffix(path, "/content"):
		f.puts = append(f.puts, r.URL)
		f.content = append(f.content, body)
		segments := strings.Split(strings.TrimSuffix(path, "/content"), "/")
		name := segments[len(segments)-1]
		json.NewEncoder(w).Encode(map[string]any{
			"id":              "new-" + name,
			"name":            name,
			"file":            map[string]any{"mimeType": "text/plain"},
			"parentReference": map[string]any{"id": segments[len(segments)-3]},
		})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/createUploadSession"):
		f.sessions = append(f.sessions, path)
		if f.sessionStatus != 0 {
			writeGraphError(w, f.sessionStatus, "accessDenied")
			return
		}
		var req map[string]any
		json.Unmarshal(body, &req)
		f.session, _ = req["item"].(map[string]any)
		json.NewEncoder(w).Encode(map[string]any{"uploadUrl": f.base + "/upload/session-1"})

	case r.Method == http.MethodPut && path == "/upload/session-1":
		contentRange := r.Header.Get("Content-Range")
		f.ranges = append(f.ranges, contentRange)
		f.received += len(body)

		var start, end, total int
		fmt.Sscanf(contentRange, "bytes %d-%d/%d", &start, &end, &total)
		if end+1 < total {
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]any{"nextExpectedRanges": []string{fmt.Sprintf("%d-", end+1)}})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "big-1",
			"name":   f.session["name"],
			"webUrl": "https://onedrive.example/big-1",
			"file":   map[string]any{"mimeType": "application/octet-stream"},
		})

	case r.Method == http.MethodPatch && strings.HasPrefix(path, "/drives/d1/items/"):
		id := strings.TrimPrefix(path, "/drives/d1/items/")
		var meta map[string]any
		json.Unmarshal(body, &meta)
		f.patched[id] = meta
		json.NewEncoder(w).Encode(map[string]any{
			"id":   id,
			"name": meta["name"],
			"file": map[string]any{"mimeType": "application/pdf"},
		})

	case r.Method == http.MethodDelete && path == "/drives/d1/items/missing":
		writeGraphError(w, http.StatusNotFound, "itemNotFound")

	case r.Method == http.MethodDelete && strings.HasPrefix(path, "/drives/d1/items/"):
		f.deleted = append(f.deleted, strings.TrimPrefix(path, "/drives/d1/items/"))
		w.WriteHeader(http.StatusNoContent)

	default:
		writeGraphError(w, http.StatusNotFound, "unexpected "+r.Method+" "+path)
	}
}

func writeGraphError(w http.ResponseWriter, status int, code string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": "request failed"},
	})
}

// readBody reads a request body, undoing the gzip encoding the Graph adapter applies
func readBody(r *http.Request) []byte {
	var reader io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil
		}
		defer gz.Close()
		reader = gz
	}
	data, _ := io.ReadAll(reader)
	return data
}

func newTestClient(t *testing.T, fake *fakeGraph) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	fake.base = srv.URL

	adapter, err := msgraph.NewGraphRequestAdapter(&authentication.AnonymousAuthenticationProvider{})
	if err != nil {
		t.Fatalf("NewGraphRequestAdapter failed: %v", err)
	}
	adapter.SetBaseUrl(srv.URL)
	return newClient(adapter, []string{"Microsoft", "test"})
}

func TestSearchFollowsNextLinkAndFilters(t *testing.T) {
	fake := newFakeGraph()
	fake.childPages = [][]map[string]any{
		{
			{"id": "c1", "name": "Bills archive", "folder": map[string]any{}},
			{"id": "c2", "name": "Bills", "file": map[string]any{"mimeType": "text/plain"}},
		},
		{
			{"id": "c3", "name": "Bills", "folder": map[string]any{}},
			{"id": "c4", "name": "Notes", "folder": map[string]any{}},
		},
	}
	client := newTestClient(t, fake)

	items, err := client.Search(context.Background(), api.Filter{Name: "Bills", FoldersOnly: true})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != "c3" || !items[0].IsFolder() {
		t.Fatalf("Expected only folder c3, got %+v", items)
	}
	if len(fake.listPaths) != 2 {
		t.Fatalf("Expected 2 list requests, got %v", fake.listPaths)
	}
	if fake.listPaths[0] != "/drives/d1/items/root/children" {
		t.Errorf("Expected the drive root to be listed, got %s", fake.listPaths[0])
	}

	all, err := client.Search(context.Background(), api.Filter{ParentID: "p1"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(all) != 4 {
		t.Errorf("Expected 4 children, got %d", len(all))
	}
	if fake.listPaths[2] != "/drives/d1/items/p1/children" {
		t.Errorf("Expected p1 to be listed, got %s", fake.listPaths[2])
	}
	if fake.driveHits != 1 {
		t.Errorf("Expected the drive to be looked up once, got %d", fake.driveHits)
	}
}

func TestCreateFolderRenamesOnConflict(t *testing.T) {
	fake := newFakeGraph()
	client := newTestClient(t, fake)

	folder, err := client.Create(context.Background(), api.NewItem{Name: "Bills", ParentID: "p1", Folder: true}, nil)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if folder.ID != "new-Bills" || !folder.IsFolder() {
		t.Errorf("Unexpected folder: %+v", folder)
	}
	meta := fake.folders[0]
	if meta["@microsoft.graph.conflictBehavior"] != "rename" {
		t.Errorf("Expected rename conflict behavior, got %v", meta)
	}
	if _, ok := meta["folder"]; !ok {
		t.Errorf("Expected folder facet, got %v", meta)
	}
}

func TestCreateSmallFileRenamesOnConflict(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		wantPath string
	}{
		{"plain name", "a.txt", "/drives/d1/items/p1/children/a.txt/content"},
		{"name with spaces", "My Scan.pdf", "/drives/d1/items/p1/children/My Scan.pdf/content"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeGraph()
			client := newTestClient(t, fake)

			item, err := client.Create(context.Background(),
				api.NewItem{Name: tt.filename, ParentID: "p1"}, strings.NewReader("hi"))
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if item.ID != "new-"+tt.filename || item.Kind != model.KindFile {
				t.Errorf("Unexpected item: %+v", item)
			}

			if len(fake.puts) != 1 {
				t.Fatalf("Expected one PUT, got %d", len(fake.puts))
			}
			putURL := fake.puts[0]
			if putURL.Path != tt.wantPath {
				t.Errorf("PUT path = %s, want %s", putURL.Path, tt.wantPath)
			}
			if got := putURL.Query().Get("@microsoft.graph.conflictBehavior"); got != "rename" {
				t.Errorf("Expected rename conflict behavior, got %q", got)
			}
			if string(fake.content[0]) != "hi" {
				t.Errorf("Unexpected content %q", fake.content[0])
			}
			if len(fake.sessions) != 0 {
				t.Error("Small files should not open an upload session")
			}
		})
	}
}

func TestCreateLargeFileUsesUploadSession(t *testing.T) {
	fake := newFakeGraph()
	client := newTestClient(t, fake)

	size := simpleUploadLimit + 1
	data := bytes.Repeat([]byte("x"), size)

	item, err := client.Create(context.Background(), api.NewItem{Name: "big.bin", ParentID: "p1"}, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if len(fake.sessions) != 1 || fake.sessions[0] != "/drives/d1/items/p1:/big.bin:/createUploadSession" {
		t.Errorf("Unexpected upload session requests: %v", fake.sessions)
	}
	if fake.session["@microsoft.graph.conflictBehavior"] != "rename" || fake.session["name"] != "big.bin" {
		t.Errorf("Unexpected session item: %v", fake.session)
	}

	wantRanges := []string{
		fmt.Sprintf("bytes 0-%d/%d", chunkSize-1, size),
		fmt.Sprintf("bytes %d-%d/%d", chunkSize, size-1, size),
	}
	if len(fake.ranges) != len(wantRanges) {
		t.Fatalf("Expected %d chunks, got %v", len(wantRanges), fake.ranges)
	}
	for i, want := range wantRanges {
		if fake.ranges[i] != want {
			t.Errorf("chunk %d range = %s, want %s", i, fake.ranges[i], want)
		}
	}
	if fake.received != size {
		t.Errorf("Expected %d bytes received, got %d", size, fake.received)
	}

	if item.ID != "big-1" || item.Name != "big.bin" || item.Kind != model.KindFile {
		t.Errorf("Unexpected item: %+v", item)
	}
	if item.WebViewLink != "https://onedrive.example/big-1" {
		t.Errorf("Unexpected web link %q", item.WebViewLink)
	}
	if len(item.Parents) != 1 || item.Parents[0] != "p1" {
		t.Errorf("Expected parent p1, got %v", item.Parents)
	}
	if len(fake.puts) != 0 {
		t.Error("Large files should not use the single PUT")
	}
}

func TestUpdateAndDeleteItems(t *testing.T) {
	fake := newFakeGraph()
	client := newTestClient(t, fake)

	item, err := client.Update(context.Background(), "file-9", api.ItemPatch{Name: "renamed.pdf"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if item.ID != "file-9" || item.Name != "renamed.pdf" {
		t.Errorf("Unexpected update result: %+v", item)
	}
	if fake.patched["file-9"]["name"] != "renamed.pdf" {
		t.Errorf("Patch body not sent: %v", fake.patched)
	}

	if err := client.Delete(context.Background(), "file-9"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != "file-9" {
		t.Errorf("Expected file-9 deleted, got %v", fake.deleted)
	}

	err = client.Delete(context.Background(), "missing")
	if !errors.Is(err, api.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if fake.driveHits != 1 {
		t.Errorf("Expected the drive to be looked up once, got %d", fake.driveHits)
	}
}

func TestUnauthorizedMapsToErrUnauthenticated(t *testing.T) {
	fake := newFakeGraph()
	fake.status = http.StatusUnauthorized
	client := newTestClient(t, fake)

	_, err := client.Search(context.Background(), api.Filter{Name: "My Doc", FoldersOnly: true})
	if !errors.Is(err, api.ErrUnauthenticated) {
		t.Fatalf("Expected ErrUnauthenticated, got %v", err)
	}

	_, err = client.Create(context.Background(), api.NewItem{Name: "a.txt", ParentID: "p1"}, strings.NewReader("hi"))
	if !errors.Is(err, api.ErrUnauthenticated) {
		t.Errorf("Expected ErrUnauthenticated on create, got %v", err)
	}
}

func TestUploadSessionFailureKeepsContext(t *testing.T) {
	fake := newFakeGraph()
	fake.sessionStatus = http.StatusForbidden
	client := newTestClient(t, fake)

	data := bytes.Repeat([]byte("x"), simpleUploadLimit+1)
	_, err := client.Create(context.Background(), api.NewItem{Name: "big.bin", ParentID: "p1"}, bytes.NewReader(data))
	if err == nil {
		t.Fatal("Expected upload session failure")
	}
	if !strings.Contains(err.Error(), "failed to create upload session") || !strings.Contains(err.Error(), "accessDenied") {
		t.Errorf("Expected session context and graph code, got %v", err)
	}
	if len(fake.ranges) != 0 {
		t.Errorf("No chunk should be sent, got %v", fake.ranges)
	}
}
