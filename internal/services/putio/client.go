package putio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/elsbrock/putioarr/internal/domain"
)

const (
	defaultBaseURL   = "https://api.put.io/v2"
	defaultUploadURL = "https://upload.put.io/v2"
	defaultTimeout   = 10 * time.Second
	maxErrorBody     = 512
)

// APIError is a non-2xx response from put.io. A 404 matches
// domain.ErrNotFound.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("putio: %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("putio: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	return target == domain.ErrNotFound && e.StatusCode == http.StatusNotFound
}

type Client struct {
	token     string
	baseURL   string
	uploadURL string
	http      *http.Client
	limiter   *rate.Limiter
}

type Config struct {
	Token     string
	BaseURL   string
	UploadURL string
	Client    *http.Client
	// Limiter throttles every request. Nil disables throttling.
	Limiter *rate.Limiter
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	uploadURL := strings.TrimSpace(cfg.UploadURL)
	if uploadURL == "" {
		uploadURL = defaultUploadURL
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		token:     strings.TrimSpace(cfg.Token),
		baseURL:   strings.TrimRight(baseURL, "/"),
		uploadURL: strings.TrimRight(uploadURL, "/"),
		http:      httpClient,
		limiter:   cfg.Limiter,
	}
}

func (c *Client) AccountInfo(ctx context.Context) (AccountInfo, error) {
	var resp accountInfoResponse
	if err := c.get(ctx, "account info", "/account/info", nil, &resp); err != nil {
		return AccountInfo{}, err
	}
	return resp.Info, nil
}

func (c *Client) ListTransfers(ctx context.Context) ([]domain.RemoteTransfer, error) {
	var resp listTransfersResponse
	if err := c.get(ctx, "list transfers", "/transfers/list", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.RemoteTransfer, 0, len(resp.Transfers))
	for _, t := range resp.Transfers {
		out = append(out, t.toDomain())
	}
	return out, nil
}

func (c *Client) GetTransfer(ctx context.Context, id domain.TransferID) (domain.RemoteTransfer, error) {
	var resp transferResponse
	path := "/transfers/" + strconv.FormatInt(int64(id), 10)
	if err := c.get(ctx, fmt.Sprintf("get transfer %d", id), path, nil, &resp); err != nil {
		return domain.RemoteTransfer{}, err
	}
	return resp.Transfer.toDomain(), nil
}

// AddTransfer starts a remote download of a magnet link or URL into parent.
func (c *Client) AddTransfer(ctx context.Context, link string, parent domain.FileID) (domain.RemoteTransfer, error) {
	form := url.Values{"url": {link}}
	if parent != 0 {
		form.Set("save_parent_id", strconv.FormatInt(int64(parent), 10))
	}
	var resp transferResponse
	if err := c.postForm(ctx, "add transfer", c.baseURL+"/transfers/add", form, &resp); err != nil {
		return domain.RemoteTransfer{}, err
	}
	return resp.Transfer.toDomain(), nil
}

// UploadTorrent uploads a metainfo file into parent. put.io turns it into a
// transfer.
func (c *Client) UploadTorrent(ctx context.Context, filename string, data []byte, parent domain.FileID) (domain.RemoteTransfer, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("filename", filename); err != nil {
		return domain.RemoteTransfer{}, err
	}
	if parent != 0 {
		if err := mw.WriteField("parent_id", strconv.FormatInt(int64(parent), 10)); err != nil {
			return domain.RemoteTransfer{}, err
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return domain.RemoteTransfer{}, err
	}
	if _, err := part.Write(data); err != nil {
		return domain.RemoteTransfer{}, err
	}
	if err := mw.Close(); err != nil {
		return domain.RemoteTransfer{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL+"/files/upload", &body)
	if err != nil {
		return domain.RemoteTransfer{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp uploadResponse
	if err := c.do(req, "upload torrent", &resp); err != nil {
		return domain.RemoteTransfer{}, err
	}
	if resp.Transfer == nil {
		return domain.RemoteTransfer{}, errors.New("putio: upload torrent: no transfer in response")
	}
	return resp.Transfer.toDomain(), nil
}

func (c *Client) RemoveTransfer(ctx context.Context, id domain.TransferID) error {
	form := url.Values{"transfer_ids": {strconv.FormatInt(int64(id), 10)}}
	return c.postForm(ctx, fmt.Sprintf("remove transfer %d", id), c.baseURL+"/transfers/remove", form, nil)
}

func (c *Client) ListFiles(ctx context.Context, parent domain.FileID) (domain.FileListing, error) {
	query := url.Values{"parent_id": {strconv.FormatInt(int64(parent), 10)}}
	var resp listFilesResponse
	if err := c.get(ctx, fmt.Sprintf("list files %d", parent), "/files/list", query, &resp); err != nil {
		return domain.FileListing{}, err
	}
	listing := domain.FileListing{
		Parent: resp.Parent.toDomain(),
		Files:  make([]domain.RemoteFile, 0, len(resp.Files)),
	}
	for _, f := range resp.Files {
		listing.Files = append(listing.Files, f.toDomain())
	}
	return listing, nil
}

func (c *Client) CreateFolder(ctx context.Context, name string, parent domain.FileID) (domain.RemoteFile, error) {
	form := url.Values{
		"name":      {name},
		"parent_id": {strconv.FormatInt(int64(parent), 10)},
	}
	var resp fileResponse
	if err := c.postForm(ctx, "create folder "+name, c.baseURL+"/files/create-folder", form, &resp); err != nil {
		return domain.RemoteFile{}, err
	}
	return resp.File.toDomain(), nil
}

// EnsureFolder returns the id of the folder called name directly under
// parent, creating it when absent.
func (c *Client) EnsureFolder(ctx context.Context, name string, parent domain.FileID) (domain.FileID, error) {
	listing, err := c.ListFiles(ctx, parent)
	if err != nil {
		return 0, err
	}
	for _, f := range listing.Files {
		if f.Type == domain.FileTypeFolder && f.Name == name {
			return f.ID, nil
		}
	}
	folder, err := c.CreateFolder(ctx, name, parent)
	if err != nil {
		return 0, err
	}
	return folder.ID, nil
}

func (c *Client) DeleteFile(ctx context.Context, id domain.FileID) error {
	form := url.Values{"file_ids": {strconv.FormatInt(int64(id), 10)}}
	return c.postForm(ctx, fmt.Sprintf("delete file %d", id), c.baseURL+"/files/delete", form, nil)
}

func (c *Client) DownloadURL(ctx context.Context, id domain.FileID) (string, error) {
	var resp urlResponse
	path := "/files/" + strconv.FormatInt(int64(id), 10) + "/url"
	if err := c.get(ctx, fmt.Sprintf("download url %d", id), path, nil, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	return c.do(req, op, out)
}

func (c *Client) postForm(ctx context.Context, op, reqURL string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return err
		}
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("putio: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("putio: %s: decode: %w", op, err)
	}
	return nil
}
