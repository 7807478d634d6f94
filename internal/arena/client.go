package arena

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is the public Are.na v2 API.
const DefaultBaseURL = "https://api.are.na/v2"

// ErrChannelNotFound is returned when the API answers 404 for a channel.
var ErrChannelNotFound = errors.New("channel not found")

// PageParams selects one page of a channel's contents.
type PageParams struct {
	Page    int
	PerPage int
}

// Page is one page of channel contents.
type Page struct {
	// Contents is nil when the channel returned no content list at all
	// (empty or inaccessible channel).
	Contents   []Block
	TotalPages int
	Title      string
}

// ChannelInfo is channel metadata.
type ChannelInfo struct {
	Title string
}

// Client talks to the Are.na channel API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client authenticated with accessToken. An empty token
// is allowed for public channels.
func NewClient(accessToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		token:      accessToken,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// channelResponse is the subset of the channel payload the client reads.
type channelResponse struct {
	Title      string            `json:"title"`
	Length     int               `json:"length"`
	TotalPages int               `json:"total_pages"`
	Contents   []json.RawMessage `json:"contents"`
}

// GetPage fetches one page of a channel's contents.
//
// TotalPages comes from the payload's total_pages when present, otherwise it
// is derived from the channel length and the page size.
func (c *Client) GetPage(ctx context.Context, slug string, p PageParams) (*Page, error) {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PerPage > 0 {
		q.Set("per", strconv.Itoa(p.PerPage))
	}

	var resp channelResponse
	if err := c.getJSON(ctx, "/channels/"+url.PathEscape(slug), q, &resp); err != nil {
		return nil, err
	}

	page := &Page{Title: resp.Title, TotalPages: resp.TotalPages}
	if page.TotalPages == 0 && p.PerPage > 0 && resp.Length > 0 {
		page.TotalPages = (resp.Length + p.PerPage - 1) / p.PerPage
	}
	if page.TotalPages == 0 {
		page.TotalPages = 1
	}

	if resp.Contents != nil {
		page.Contents = make([]Block, 0, len(resp.Contents))
		for i, raw := range resp.Contents {
			var blk Block
			if err := json.Unmarshal(raw, &blk); err != nil {
				return nil, fmt.Errorf("failed to decode block %d of %s page %d: %w", i, slug, p.Page, err)
			}
			page.Contents = append(page.Contents, blk)
		}
	}

	return page, nil
}

// GetChannelInfo fetches channel metadata without its contents.
func (c *Client) GetChannelInfo(ctx context.Context, slug string) (*ChannelInfo, error) {
	var resp struct {
		Title string `json:"title"`
	}
	if err := c.getJSON(ctx, "/channels/"+url.PathEscape(slug)+"/thumb", nil, &resp); err != nil {
		return nil, err
	}
	return &ChannelInfo{Title: resp.Title}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", path, ErrChannelNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
