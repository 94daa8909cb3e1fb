package microsoft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/FranLegon/drive-doc-relay/internal/api"
	"github.com/FranLegon/drive-doc-relay/internal/auth"
	"github.com/FranLegon/drive-doc-relay/internal/crypto"
	"github.com/FranLegon/drive-doc-relay/internal/logger"
	"github.com/FranLegon/drive-doc-relay/internal/model"
	abstractions "github.com/microsoft/kiota-abstractions-go"
	kiotaauthentication "github.com/microsoft/kiota-authentication-azure-go"
	msgraph "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/drives"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
)

const (
	// DefaultScope is requested when no scopes are configured
	DefaultScope = "https://graph.microsoft.com/.default"

	// rootAlias addresses the drive root in item paths
	rootAlias = "root"

	// simpleUploadLimit is the largest body Graph accepts on a single PUT
	simpleUploadLimit = 4 * 1024 * 1024
	chunkSize         = 320 * 1024 * 10

	conflictBehaviorKey = "@microsoft.graph.conflictBehavior"
)

var itemSelect = []string{"id", "name", "folder", "file", "webUrl", "parentReference"}

// Options tune how clients are built
type Options struct {
	Scopes []string
}

// Client implements api.DocumentService on top of OneDrive through Microsoft Graph
type Client struct {
	graphClient *msgraph.GraphServiceClient
	baseURL     string
	httpClient  *http.Client
	tags        []string

	driveOnce sync.Once
	driveID   string
	driveErr  error
}

// NewClient creates a Graph client authenticated with the caller's access token
func NewClient(ctx context.Context, accessToken string, opts Options) (*Client, error) {
	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []string{DefaultScope}
	}

	authProvider, err := kiotaauthentication.NewAzureIdentityAuthenticationProviderWithScopes(auth.NewStaticCredential(accessToken), scopes)
	if err != nil {
		return nil, fmt.Errorf("error creating graph auth provider: %w", err)
	}
	adapter, err := msgraph.NewGraphRequestAdapter(authProvider)
	if err != nil {
		return nil, fmt.Errorf("error creating graph request adapter: %w", err)
	}

	return newClient(adapter, []string{"Microsoft", crypto.Fingerprint(accessToken)}), nil
}

func newClient(adapter *msgraph.GraphRequestAdapter, tags []string) *Client {
	graphClient := msgraph.NewGraphServiceClient(adapter)
	return &Client{
		graphClient: graphClient,
		baseURL:     strings.TrimSuffix(adapter.GetBaseUrl(), "/"),
		httpClient:  http.DefaultClient,
		tags:        tags,
	}
}

// NewFactory returns an api.Factory producing Graph clients
func NewFactory(opts Options) api.Factory {
	return func(ctx context.Context, token string) (api.DocumentService, error) {
		return NewClient(ctx, token, opts)
	}
}

func (c *Client) Provider() model.Provider {
	return model.ProviderMicrosoft
}

func (c *Client) drive(ctx context.Context) (string, error) {
	c.driveOnce.Do(func() {
		d, err := c.graphClient.Me().Drive().Get(ctx, nil)
		if err != nil {
			c.driveErr = handleGraphError(err)
			return
		}
		if d.GetId() == nil {
			c.driveErr = errors.New("graph returned a drive without an id")
			return
		}
		c.driveID = *d.GetId()
	})
	return c.driveID, c.driveErr
}

func (c *Client) items(ctx context.Context) (*drives.ItemItemsRequestBuilder, error) {
	driveID, err := c.drive(ctx)
	if err != nil {
		return nil, err
	}
	return c.graphClient.Drives().ByDriveId(driveID).Items(), nil
}

// Search lists the children of the filter's parent (the drive root when unset) and
// applies the name and kind filters locally. Graph does not support exact name
// filters on children of personal drives.
func (c *Client) Search(ctx context.Context, filter api.Filter) ([]model.Item, error) {
	itemsBuilder, err := c.items(ctx)
	if err != nil {
		return nil, err
	}

	parentID := filter.ParentID
	if parentID == "" {
		parentID = rootAlias
	}

	children := itemsBuilder.ByDriveItemId(parentID).Children()
	reqConf := &drives.ItemItemsItemChildrenRequestBuilderGetRequestConfiguration{
		QueryParameters: &drives.ItemItemsItemChildrenRequestBuilderGetQueryParameters{
			Select: itemSelect,
			Expand: []string{"thumbnails"},
		},
	}

	page, err := children.Get(ctx, reqConf)
	if err != nil {
		return nil, handleGraphError(err)
	}

	var result []model.Item
	for {
		for _, driveItem := range page.GetValue() {
			item := toItem(driveItem)
			if filter.FoldersOnly && !item.IsFolder() {
				continue
			}
			if filter.Name != "" && item.Name != filter.Name {
				continue
			}
			result = append(result, item)
		}

		next := page.GetOdataNextLink()
		if next == nil || *next == "" {
			break
		}
		page, err = children.WithUrl(*next).Get(ctx, nil)
		if err != nil {
			return nil, handleGraphError(err)
		}
	}

	return result, nil
}

// Create creates a folder or uploads a file under item.ParentID
func (c *Client) Create(ctx context.Context, item api.NewItem, content io.Reader) (*model.Item, error) {
	driveID, err := c.drive(ctx)
	if err != nil {
		return nil, err
	}
	itemsBuilder := c.graphClient.Drives().ByDriveId(driveID).Items()

	parentID := item.ParentID
	if parentID == "" {
		parentID = rootAlias
	}

	if item.Folder {
		folder := models.NewDriveItem()
		name := item.Name
		folder.SetName(&name)
		folder.SetFolder(models.NewFolder())
		folder.SetAdditionalData(map[string]interface{}{conflictBehaviorKey: "rename"})

		created, err := itemsBuilder.ByDriveItemId(parentID).Children().Post(ctx, folder, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create folder: %w", handleGraphError(err))
		}
		logger.InfoTagged(c.tags, "Created folder '%s'", item.Name)
		result := toItem(created)
		return &result, nil
	}

	if content == nil {
		content = bytes.NewReader(nil)
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	var uploaded *model.Item
	if len(data) > simpleUploadLimit {
		uploaded, err = c.resumableUpload(ctx, itemsBuilder, driveID, parentID, item.Name, data)
	} else {
		uploaded, err = c.simpleUpload(ctx, itemsBuilder, parentID, item.Name, data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	logger.InfoTagged(c.tags, "Uploaded '%s' (%d bytes)", item.Name, len(data))
	return uploaded, nil
}

// uploadSessionItem is the subset of the final upload session response the relay maps
type uploadSessionItem struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	WebURL string          `json:"webUrl"`
	Folder json.RawMessage `json:"folder"`
	File   struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
}

// simpleUpload sends the whole file in one PUT to {parent}/children/{name}/content
func (c *Client) simpleUpload(ctx context.Context, itemsBuilder *drives.ItemItemsRequestBuilder, parentID, name string, data []byte) (*model.Item, error) {
	content := itemsBuilder.ByDriveItemId(parentID).Children().ByDriveItemId1(name).Content()

	reqInfo, err := content.ToPutRequestInformation(ctx, data, nil)
	if err != nil {
		return nil, err
	}
	rawURL, err := renameOnConflict(reqInfo)
	if err != nil {
		return nil, err
	}

	created, err := content.WithUrl(rawURL).Put(ctx, data, nil)
	if err != nil {
		return nil, handleGraphError(err)
	}
	result := toItem(created)
	return &result, nil
}

// renameOnConflict returns the request URL with the rename conflict behavior set.
// Without it a content PUT replaces an existing file of the same name.
func renameOnConflict(reqInfo *abstractions.RequestInformation) (string, error) {
	u, err := reqInfo.GetUri()
	if err != nil {
		return "", fmt.Errorf("failed to build request url: %w", err)
	}
	query := u.Query()
	query.Set(conflictBehaviorKey, "rename")
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (c *Client) resumableUpload(ctx context.Context, itemsBuilder *drives.ItemItemsRequestBuilder, driveID, parentID, name string, data []byte) (*model.Item, error) {
	sessionReq := drives.NewItemItemsItemCreateUploadSessionPostRequestBody()
	props := models.NewDriveItemUploadableProperties()
	props.SetName(&name)
	props.SetAdditionalData(map[string]interface{}{conflictBehaviorKey: "rename"})
	sessionReq.SetItem(props)

	// the session is opened on the new item's path, {parent-id}:/{name}:
	sessionURL := fmt.Sprintf("%s/drives/%s/items/%s:/%s:/createUploadSession",
		c.baseURL, url.PathEscape(driveID), url.PathEscape(parentID), url.PathEscape(name))

	session, err := itemsBuilder.ByDriveItemId(parentID).CreateUploadSession().WithUrl(sessionURL).Post(ctx, sessionReq, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload session: %w", handleGraphError(err))
	}
	if session.GetUploadUrl() == nil {
		return nil, errors.New("upload session has no upload url")
	}
	uploadURL := *session.GetUploadUrl()

	size := len(data)
	for offset := 0; offset < size; offset += chunkSize {
		end := offset + chunkSize
		if end > size {
			end = size
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data[offset:end]))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Length", strconv.Itoa(end-offset))
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, end-1, size))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusOK, http.StatusCreated:
			var final uploadSessionItem
			err := json.NewDecoder(resp.Body).Decode(&final)
			resp.Body.Close()
			if err != nil {
				return nil, fmt.Errorf("failed to decode upload result: %w", err)
			}
			kind := model.KindFile
			if len(final.Folder) > 0 && string(final.Folder) != "null" {
				kind = model.KindFolder
			}
			return &model.Item{
				ID:          final.ID,
				Name:        final.Name,
				Kind:        kind,
				MimeType:    final.File.MimeType,
				WebViewLink: final.WebURL,
				Parents:     []string{parentID},
			}, nil
		case http.StatusAccepted:
			resp.Body.Close()
		default:
			resp.Body.Close()
			return nil, fmt.Errorf("upload failed with status %s", resp.Status)
		}
	}

	return nil, errors.New("upload finished but did not receive a final 200/201 status")
}

// Update renames an item
func (c *Client) Update(ctx context.Context, id string, patch api.ItemPatch) (*model.Item, error) {
	itemsBuilder, err := c.items(ctx)
	if err != nil {
		return nil, err
	}

	req := models.NewDriveItem()
	name := patch.Name
	req.SetName(&name)

	updated, err := itemsBuilder.ByDriveItemId(id).Patch(ctx, req, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to update file: %w", handleGraphError(err))
	}
	result := toItem(updated)
	return &result, nil
}

// Delete deletes an item
func (c *Client) Delete(ctx context.Context, id string) error {
	itemsBuilder, err := c.items(ctx)
	if err != nil {
		return err
	}
	if err := itemsBuilder.ByDriveItemId(id).Delete(ctx, nil); err != nil {
		return fmt.Errorf("failed to delete file: %w", handleGraphError(err))
	}
	logger.InfoTagged(c.tags, "Deleted %s", id)
	return nil
}

// handleGraphError interprets OData errors from the Graph API
func handleGraphError(err error) error {
	if err == nil {
		return nil
	}
	var odataErr *odataerrors.ODataError
	if !errors.As(err, &odataErr) {
		return err
	}

	code, message := "unknown", "no message"
	if mainErr := odataErr.GetErrorEscaped(); mainErr != nil {
		if mainErr.GetCode() != nil {
			code = *mainErr.GetCode()
		}
		if mainErr.GetMessage() != nil {
			message = *mainErr.GetMessage()
		}
	}

	switch odataErr.ResponseStatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s - %s", api.ErrUnauthenticated, code, message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s - %s", api.ErrNotFound, code, message)
	}
	return fmt.Errorf("graph API error: %s - %s", code, message)
}

// toItem converts a Graph DriveItem to the relay's item model
func toItem(driveItem models.DriveItemable) model.Item {
	item := model.Item{
		ID:          deref(driveItem.GetId()),
		Name:        deref(driveItem.GetName()),
		Kind:        model.KindFile,
		WebViewLink: deref(driveItem.GetWebUrl()),
	}
	if driveItem.GetFolder() != nil {
		item.Kind = model.KindFolder
		item.MimeType = model.FolderMimeType
	} else if driveItem.GetFile() != nil {
		item.MimeType = deref(driveItem.GetFile().GetMimeType())
	}
	if ref := driveItem.GetParentReference(); ref != nil && ref.GetId() != nil {
		item.Parents = []string{*ref.GetId()}
	}
	for _, set := range driveItem.GetThumbnails() {
		if set.GetMedium() != nil && set.GetMedium().GetUrl() != nil {
			item.ThumbnailLink = *set.GetMedium().GetUrl()
			break
		}
	}
	return item
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
