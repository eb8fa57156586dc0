// Package girder is a minimal client for the Girder REST API covering the resource
// graph (users, collections, folders, items, files) and single-chunk transfers.
package girder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const tokenHeader = "Girder-Token"

// Config holds connection settings.
type Config struct {
	APIURL            string
	APIKey            string
	Token             string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	HTTPClient        *http.Client
}

// Client talks to one Girder server on behalf of one identity.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a client. When an API key is configured it is exchanged for a
// session token; otherwise the configured token (possibly empty) is used.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("girder: api url is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	c := &Client{
		baseURL: strings.TrimSuffix(cfg.APIURL, "/"),
		token:   cfg.Token,
		http:    httpClient,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	if cfg.APIKey != "" {
		if err := c.authenticate(ctx, cfg.APIKey); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Token returns the session token in use.
func (c *Client) Token() string {
	return c.token
}

func (c *Client) authenticate(ctx context.Context, apiKey string) error {
	var resp struct {
		AuthToken struct {
			Token string `json:"token"`
		} `json:"authToken"`
	}
	if err := c.call(ctx, http.MethodPost, "api_key/token", url.Values{"key": {apiKey}}, nil, &resp); err != nil {
		return fmt.Errorf("girder: authenticate with api key: %w", err)
	}
	if resp.AuthToken.Token == "" {
		return fmt.Errorf("girder: authenticate with api key: %w", ErrNotAuthenticated)
	}
	c.token = resp.AuthToken.Token
	return nil
}

// Me returns the authenticated user, or ErrNotAuthenticated for anonymous sessions.
func (c *Client) Me(ctx context.Context) (*Resource, error) {
	var me *Resource
	if err := c.call(ctx, http.MethodGet, "user/me", nil, nil, &me); err != nil {
		return nil, err
	}
	if me == nil {
		return nil, ErrNotAuthenticated
	}
	return me, nil
}

// Lookup resolves a Girder resource path such as "/user/jdoe/Private".
// It returns nil, nil when nothing lives at that path.
func (c *Client) Lookup(ctx context.Context, path string) (*Resource, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	var r *Resource
	q := url.Values{"path": {path}, "test": {"true"}}
	if err := c.call(ctx, http.MethodGet, "resource/lookup", q, nil, &r); err != nil {
		if IsNotFound(err) || StatusOf(err) == http.StatusBadRequest {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// GetFolder fetches a folder by id.
func (c *Client) GetFolder(ctx context.Context, id string) (*Resource, error) {
	var r Resource
	if err := c.call(ctx, http.MethodGet, "folder/"+id, nil, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetItem fetches an item by id.
func (c *Client) GetItem(ctx context.Context, id string) (*Resource, error) {
	var r Resource
	if err := c.call(ctx, http.MethodGet, "item/"+id, nil, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListFolders lists folders under a parent. An empty name lists all of them.
func (c *Client) ListFolders(ctx context.Context, parentID string, parentType Kind, name string) ([]Resource, error) {
	q := url.Values{
		"parentId":   {parentID},
		"parentType": {string(parentType)},
		"limit":      {"0"},
	}
	if name != "" {
		q.Set("name", name)
	}
	var out []Resource
	if err := c.call(ctx, http.MethodGet, "folder", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListItems lists items in a folder. An empty name lists all of them.
func (c *Client) ListItems(ctx context.Context, folderID, name string) ([]Resource, error) {
	q := url.Values{"folderId": {folderID}, "limit": {"0"}}
	if name != "" {
		q.Set("name", name)
	}
	var out []Resource
	if err := c.call(ctx, http.MethodGet, "item", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListFiles lists the files of an item.
func (c *Client) ListFiles(ctx context.Context, itemID string) ([]Resource, error) {
	var out []Resource
	if err := c.call(ctx, http.MethodGet, "item/"+itemID+"/files", url.Values{"limit": {"0"}}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateFolder creates a folder under a user, collection or folder.
func (c *Client) CreateFolder(ctx context.Context, parentID string, parentType Kind, name string) (*Resource, error) {
	q := url.Values{
		"parentId":      {parentID},
		"parentType":    {string(parentType)},
		"name":          {name},
		"reuseExisting": {"true"},
	}
	var r Resource
	if err := c.call(ctx, http.MethodPost, "folder", q, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateItem creates an item in a folder, returning the existing one if the name is taken.
func (c *Client) CreateItem(ctx context.Context, folderID, name string) (*Resource, error) {
	q := url.Values{
		"folderId":      {folderID},
		"name":          {name},
		"reuseExisting": {"true"},
	}
	var r Resource
	if err := c.call(ctx, http.MethodPost, "item", q, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// UploadFile creates a new file in an item from size bytes of content.
func (c *Client) UploadFile(ctx context.Context, itemID, name, mimeType string, content io.Reader, size int64) (*Resource, error) {
	q := url.Values{
		"parentType": {string(KindItem)},
		"parentId":   {itemID},
		"name":       {name},
		"size":       {strconv.FormatInt(size, 10)},
	}
	if mimeType != "" {
		q.Set("mimeType", mimeType)
	}
	var upload Resource
	if err := c.call(ctx, http.MethodPost, "file", q, nil, &upload); err != nil {
		return nil, fmt.Errorf("girder: init upload of %s: %w", name, err)
	}
	return c.finishUpload(ctx, &upload, content, size)
}

// UploadFileContents replaces the bytes of an existing file.
func (c *Client) UploadFileContents(ctx context.Context, fileID string, content io.Reader, size int64) (*Resource, error) {
	q := url.Values{"size": {strconv.FormatInt(size, 10)}}
	var upload Resource
	if err := c.call(ctx, http.MethodPut, "file/"+fileID+"/contents", q, nil, &upload); err != nil {
		return nil, fmt.Errorf("girder: init contents upload of %s: %w", fileID, err)
	}
	return c.finishUpload(ctx, &upload, content, size)
}

// finishUpload sends the whole payload as one chunk. Empty uploads are finalized by
// the server at init time and come back as the file itself.
func (c *Client) finishUpload(ctx context.Context, upload *Resource, content io.Reader, size int64) (*Resource, error) {
	if upload.Kind == KindFile {
		return upload, nil
	}
	if size == 0 {
		return nil, ErrUploadIncomplete
	}
	q := url.Values{"uploadId": {upload.ID}, "offset": {"0"}}
	var file Resource
	if err := c.call(ctx, http.MethodPost, "file/chunk", q, &body{r: content, contentType: "application/octet-stream"}, &file); err != nil {
		return nil, fmt.Errorf("girder: upload chunk: %w", err)
	}
	if file.Kind != KindFile {
		return nil, ErrUploadIncomplete
	}
	return &file, nil
}

// Download streams the bytes of a file. The caller must close the reader.
func (c *Client) Download(ctx context.Context, fileID string) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodGet, "file/"+fileID+"/download", nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Delete removes a folder, item or file.
func (c *Client) Delete(ctx context.Context, kind Kind, id string) error {
	return c.call(ctx, http.MethodDelete, string(kind)+"/"+id, nil, nil, nil)
}

// Rename changes the name of a folder, item or file.
func (c *Client) Rename(ctx context.Context, kind Kind, id, name string) (*Resource, error) {
	var r Resource
	if err := c.call(ctx, http.MethodPut, string(kind)+"/"+id, url.Values{"name": {name}}, nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

type body struct {
	r           io.Reader
	contentType string
}

// call performs a request and decodes a JSON response into out (if non-nil).
func (c *Client) call(ctx context.Context, method, path string, query url.Values, b *body, out any) error {
	resp, err := c.do(ctx, method, path, query, b)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("girder: decode %s %s: %w", method, path, err)
	}
	return nil
}

// do sends a request and returns the response when its status is 2xx.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, b *body) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("girder: rate limit: %w", err)
		}
	}

	u := c.baseURL + "/" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if b != nil {
		reqBody = b.r
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("girder: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if b != nil && b.contentType != "" {
		req.Header.Set("Content-Type", b.contentType)
	}
	if c.token != "" {
		req.Header.Set(tokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("girder: %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	herr := &HTTPError{Status: resp.StatusCode, Method: method, Path: path}
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Message != "" {
		herr.Message = payload.Message
	} else {
		herr.Message = string(bytes.TrimSpace(raw))
	}
	return nil, herr
}
