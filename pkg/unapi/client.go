// Package unapi is a client for the UN Population Division Data Portal API.
//
// The API answers in two shapes. Data endpoints return a pagination envelope
// ({"data": [...], "nextPage": "https://..."}) that must be followed until
// nextPage is null. Taxonomy endpoints return a flat array, or an object
// holding a named sub-array. Fetch and FetchList hide the difference and
// return the raw records in response order.
package unapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public Data Portal endpoint.
	DefaultBaseURL = "https://population.un.org/dataportalapi/api/v1"

	defaultUserAgent = "unpops-cli"
	defaultTimeout   = 30 * time.Second
	defaultMaxPages  = 1000

	// maxBodySize bounds a single page. Population pages are well under 1 MB.
	maxBodySize = 32 * 1024 * 1024
)

// Client performs GET requests against the Data Portal. Requests are issued
// one at a time; a Client holds no per-request state and may be reused.
type Client struct {
	baseURL   string
	http      *http.Client
	token     string
	userAgent string
	maxPages  int
	logger    *slog.Logger
	onPage    func(page int)
	now       func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sends the token as a Bearer Authorization header.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithMaxPages bounds the number of pages followed for one path.
// Zero or negative means no bound.
func WithMaxPages(n int) Option {
	return func(c *Client) { c.maxPages = n }
}

// WithLogger sets the logger used for per-page debug output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithProgress registers a callback invoked after each follow-up page, with
// the 1-based number of the page just fetched.
func WithProgress(fn func(page int)) Option {
	return func(c *Client) { c.onPage = fn }
}

// WithClock overrides the clock used for default query years.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient returns a Client rooted at baseURL (DefaultBaseURL when empty).
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
		maxPages:  defaultMaxPages,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client resolves paths against.
func (c *Client) BaseURL() string { return c.baseURL }

// Page is one page of a paginated response.
type Page struct {
	Data       []json.RawMessage
	NextPage   string
	PageNumber int
	TotalPages int
}

// Fetch GETs path and returns its records. Paginated responses are followed
// to the last page and concatenated in page order; a bare array is returned
// as is. Any other shape is a schema error.
func (c *Client) Fetch(ctx context.Context, path string) ([]json.RawMessage, error) {
	return c.fetch(ctx, path, "")
}

// FetchList is Fetch for taxonomy endpoints whose records sit under key:
// either {"key": [...]} or an array of objects that each carry a key array.
func (c *Client) FetchList(ctx context.Context, path, key string) ([]json.RawMessage, error) {
	if key == "" {
		return nil, fmt.Errorf("unapi: FetchList requires a key")
	}
	return c.fetch(ctx, path, key)
}

// FetchPage GETs a single page by absolute URL. It does not follow nextPage,
// so a traversal can be resumed from any page URL.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	body, err := c.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	env, err := parseEnvelope(pageURL, body, "")
	if err != nil {
		return nil, err
	}
	if env.page == nil {
		return nil, &SchemaError{URL: pageURL, Reason: "expected a paginated envelope"}
	}
	return env.page, nil
}

func (c *Client) fetch(ctx context.Context, path, key string) ([]json.RawMessage, error) {
	target := c.resolve(path)
	body, err := c.get(ctx, target)
	if err != nil {
		return nil, err
	}
	env, err := parseEnvelope(target, body, key)
	if err != nil {
		return nil, err
	}
	if env.page == nil {
		return env.records, nil
	}
	return c.follow(ctx, target, env.page)
}

// follow walks nextPage links starting after first.
func (c *Client) follow(ctx context.Context, start string, first *Page) ([]json.RawMessage, error) {
	records := append([]json.RawMessage(nil), first.Data...)
	seen := map[string]bool{start: true}
	count := 1

	c.logger.Debug("fetched page", "url", start, "page", count, "records", len(first.Data), "total_pages", first.TotalPages)

	current, next := start, first.NextPage
	for next != "" {
		nextURL, err := resolveAgainst(current, next)
		if err != nil {
			return nil, err
		}
		if seen[nextURL] {
			return nil, &SchemaError{URL: nextURL, Reason: "nextPage loops back to an already fetched page"}
		}
		if c.maxPages > 0 && count >= c.maxPages {
			return nil, &SchemaError{URL: nextURL, Reason: fmt.Sprintf("more than %d pages", c.maxPages)}
		}
		seen[nextURL] = true

		page, err := c.FetchPage(ctx, nextURL)
		if err != nil {
			return nil, err
		}
		count++
		current = nextURL
		records = append(records, page.Data...)
		c.logger.Debug("fetched page", "url", nextURL, "page", count, "records", len(page.Data))
		if c.onPage != nil {
			c.onPage(count)
		}
		next = page.NextPage
	}
	return records, nil
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &TransportError{URL: target, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &TransportError{URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, &TransportError{URL: target, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > maxBodySize {
		return nil, &TransportError{URL: target, Err: fmt.Errorf("body exceeds %d bytes", maxBodySize)}
	}
	return body, nil
}

func (c *Client) resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// resolveAgainst resolves a nextPage link, which the API sends as an
// absolute URL, relative to the page it came from.
func resolveAgainst(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", &SchemaError{URL: base, Reason: err.Error()}
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", &SchemaError{URL: base, Reason: fmt.Sprintf("bad nextPage %q: %v", ref, err)}
	}
	return b.ResolveReference(r).String(), nil
}

type envelope struct {
	page    *Page
	records []json.RawMessage
}

// parseEnvelope classifies a response body. A body that is not JSON is a
// transport failure (typically an HTML error page behind a 200).
func parseEnvelope(source string, body []byte, key string) (envelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return envelope{}, &TransportError{URL: source, Err: fmt.Errorf("empty response")}
	}
	if !json.Valid(trimmed) {
		return envelope{}, &TransportError{URL: source, Err: fmt.Errorf("response is not JSON")}
	}

	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return envelope{}, &SchemaError{URL: source, Reason: err.Error()}
		}
		if key == "" {
			return envelope{records: items}, nil
		}
		records, err := flattenByKey(source, items, key)
		return envelope{records: records}, err

	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return envelope{}, &SchemaError{URL: source, Reason: err.Error()}
		}
		if page, ok, err := pageFrom(source, obj); ok || err != nil {
			return envelope{page: page}, err
		}
		if key != "" {
			if raw, ok := obj[key]; ok {
				records, err := decodeArray(source, key, raw)
				return envelope{records: records}, err
			}
			return envelope{}, &SchemaError{URL: source, Reason: fmt.Sprintf("object has no %q array (keys: %s)", key, keysOf(obj))}
		}
		return envelope{}, &SchemaError{URL: source, Reason: fmt.Sprintf("object is neither paginated nor a list (keys: %s)", keysOf(obj))}

	default:
		return envelope{}, &SchemaError{URL: source, Reason: "expected a JSON array or object"}
	}
}

// pageFrom reports whether obj is a pagination envelope (has both data and
// nextPage) and decodes it.
func pageFrom(source string, obj map[string]json.RawMessage) (*Page, bool, error) {
	rawData, hasData := obj["data"]
	rawNext, hasNext := obj["nextPage"]
	if !hasData || !hasNext {
		return nil, false, nil
	}

	page := &Page{}
	if err := json.Unmarshal(rawNext, &page.NextPage); err != nil {
		return nil, true, &SchemaError{URL: source, Reason: fmt.Sprintf("nextPage: %v", err)}
	}
	data, err := decodeArray(source, "data", rawData)
	if err != nil {
		return nil, true, err
	}
	page.Data = data
	if raw, ok := obj["pageNumber"]; ok {
		_ = json.Unmarshal(raw, &page.PageNumber)
	}
	if raw, ok := obj["totalPages"]; ok {
		_ = json.Unmarshal(raw, &page.TotalPages)
	}
	return page, true, nil
}

func decodeArray(source, key string, raw json.RawMessage) ([]json.RawMessage, error) {
	if string(bytes.TrimSpace(raw)) == "null" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &SchemaError{URL: source, Reason: fmt.Sprintf("%q is not an array: %v", key, err)}
	}
	return items, nil
}

// flattenByKey concatenates the key sub-arrays of every element. When no
// element carries the key the elements themselves are the records; a mix of
// both is rejected.
func flattenByKey(source string, items []json.RawMessage, key string) ([]json.RawMessage, error) {
	var out []json.RawMessage
	with, without := 0, 0
	for i, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err != nil {
			return nil, &SchemaError{URL: source, Reason: fmt.Sprintf("element %d is not an object", i)}
		}
		raw, ok := obj[key]
		if !ok {
			without++
			continue
		}
		with++
		sub, err := decodeArray(source, key, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	switch {
	case with == 0:
		return items, nil
	case without > 0:
		return nil, &SchemaError{URL: source, Reason: fmt.Sprintf("%d of %d elements lack %q", without, len(items), key)}
	}
	return out, nil
}

func keysOf(obj map[string]json.RawMessage) string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
