package arr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultTimeout  = 10 * time.Second
	historyPageSize = 1000

	eventFolderImported = "downloadFolderImported"
	droppedPathKey      = "droppedPath"
)

// HistoryPage is one page of a Sonarr/Radarr/Whisparr history listing.
type HistoryPage struct {
	Page         int             `json:"page"`
	PageSize     int             `json:"pageSize"`
	TotalRecords int             `json:"totalRecords"`
	Records      []HistoryRecord `json:"records"`
}

type HistoryRecord struct {
	EventType string             `json:"eventType"`
	Data      map[string]*string `json:"data"`
}

// DroppedPath returns the local path an import picked up, if the record is
// a folder import.
func (r HistoryRecord) DroppedPath() (string, bool) {
	if r.EventType != eventFolderImported {
		return "", false
	}
	p, ok := r.Data[droppedPathKey]
	if !ok || p == nil {
		return "", false
	}
	return *p, true
}

// Last reports whether no page follows this one.
func (p HistoryPage) Last() bool {
	if len(p.Records) == 0 {
		return true
	}
	size := p.PageSize
	if size <= 0 {
		size = len(p.Records)
	}
	return p.Page*size >= p.TotalRecords
}

type Client struct {
	name    string
	baseURL string
	apiKey  string
	http    *http.Client
}

type Config struct {
	// Name identifies the instance in logs and cache keys, e.g. "sonarr".
	Name    string
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		name:    strings.TrimSpace(cfg.Name),
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:  strings.TrimSpace(cfg.APIKey),
		http:    httpClient,
	}
}

func (c *Client) Name() string {
	return c.name
}

// VerifyAuth checks that the API key is accepted.
func (c *Client) VerifyAuth(ctx context.Context) error {
	resp, err := c.get(ctx, "/api", nil)
	if err != nil {
		return fmt.Errorf("%s: verify auth: %w", c.name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: invalid api key (status %d)", c.name, resp.StatusCode)
	}
	return nil
}

// History fetches one 1-based page of history, newest first.
func (c *Client) History(ctx context.Context, page int) (HistoryPage, error) {
	query := url.Values{
		"includeSeries":  {"false"},
		"includeEpisode": {"false"},
		"page":           {strconv.Itoa(page)},
		"pageSize":       {strconv.Itoa(historyPageSize)},
		"sortKey":        {"date"},
		"sortDirection":  {"descending"},
	}
	resp, err := c.get(ctx, "/api/v3/history", query)
	if err != nil {
		return HistoryPage{}, fmt.Errorf("%s: history page %d: %w", c.name, page, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return HistoryPage{}, fmt.Errorf("%s: history page %d: status %d", c.name, page, resp.StatusCode)
	}
	var out HistoryPage
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return HistoryPage{}, fmt.Errorf("%s: history page %d: decode: %w", c.name, page, err)
	}
	if out.Page == 0 {
		out.Page = page
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) (*http.Response, error) {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	return c.http.Do(req)
}
