package remoteregistry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

var (
	_ Fetcher = (*HTTPFetcher)(nil)
	_ Lister  = (*HTTPFetcher)(nil)
)

// maxBodySize limits HTTP response body size (1 MB); YAML manifests are small.
const maxBodySize = 1 << 20

// defaultUserAgent is the User-Agent header value for HTTP requests.
const defaultUserAgent = "promptchain-remote-registry/1.0"

// HTTPFetcher fetches YAML manifests from a static file server laid out like a prompts
// directory. Without an index every candidate of CandidatePaths is requested in turn and
// a 404 moves on to the next. With WithIndex the server publishes the list of manifest
// files it holds: Fetch requests only the first listed candidate and ListNames reports the
// listed templates.
type HTTPFetcher struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
	indexPath  string
}

// HTTPOption configures HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient sets the HTTP client. Default has 30s timeout. If c is nil, the default client is left unchanged.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTPFetcher) {
		if c != nil {
			h.httpClient = c
		}
	}
}

// WithAuthToken sets the Bearer token for Authorization header.
func WithAuthToken(token string) HTTPOption {
	return func(h *HTTPFetcher) {
		h.authToken = token
	}
}

// WithIndex names the index file under baseURL (e.g. "index.txt"). It lists one manifest
// file per line, such as "support.yaml" or "support.production.yaml"; blank lines and
// lines starting with '#' are ignored.
func WithIndex(path string) HTTPOption {
	return func(h *HTTPFetcher) {
		h.indexPath = path
	}
}

// NewHTTPFetcher creates an HTTPFetcher. baseURL must be a valid URL (e.g. https://api.example.com/prompts).
func NewHTTPFetcher(baseURL string, opts ...HTTPOption) (*HTTPFetcher, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("remoteregistry: base URL must not be empty")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" {
		return nil, fmt.Errorf("remoteregistry: invalid base URL %q", baseURL)
	}
	h := &HTTPFetcher{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Fetch returns the first manifest of CandidatePaths the server has: {name}.{env}.yaml,
// .yml, then {name}.yaml, .yml.
func (h *HTTPFetcher) Fetch(ctx context.Context, name, env string) ([]byte, error) {
	if err := ValidateName(name, env); err != nil {
		return nil, err
	}
	candidates, err := h.candidates(ctx, name, env)
	if err != nil {
		return nil, err
	}
	for _, path := range candidates {
		data, err := h.get(ctx, path)
		if errors.Is(err, errNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// errNotFound is a 404 on one candidate.
var errNotFound = errors.New("not found")

// candidates narrows CandidatePaths to the files the index lists. An unindexed server is
// asked for every candidate in order.
func (h *HTTPFetcher) candidates(ctx context.Context, name, env string) ([]string, error) {
	all := CandidatePaths(name, env)
	if h.indexPath == "" {
		return all, nil
	}
	files, err := h.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(p string) bool { return !slices.Contains(files, p) }), nil
}

// ListNames returns the sorted template names in the index, environment variants folded
// into their base name. Without an index it returns nil.
func (h *HTTPFetcher) ListNames(ctx context.Context) ([]string, error) {
	if h.indexPath == "" {
		return nil, nil
	}
	files, err := h.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	return BaseNames(files), nil
}

func (h *HTTPFetcher) readIndex(ctx context.Context) ([]string, error) {
	data, err := h.get(ctx, h.indexPath)
	if errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("%w: index %q missing", ErrFetchFailed, h.indexPath)
	}
	if err != nil {
		return nil, err
	}
	var files []string
	n := 0
	for line := range strings.Lines(string(data)) {
		n++
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, _, ok := ManifestName(line); !ok {
			return nil, fmt.Errorf("%w: %s line %d: %q is not a manifest file", ErrInvalidIndex, h.indexPath, n, line)
		}
		files = append(files, line)
	}
	return files, nil
}

func (h *HTTPFetcher) get(ctx context.Context, path string) ([]byte, error) {
	u := h.baseURL + "/" + url.PathEscape(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	if h.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.authToken)
	}
	resp, err := h.httpClient.Do(req) // #nosec G704 -- URL is from config and path-escaped name
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: u}
	}
	// One byte past the limit tells a full body from a truncated one.
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}
	if len(data) > maxBodySize {
		return nil, fmt.Errorf("%w: response body exceeds %d bytes", ErrFetchFailed, maxBodySize)
	}
	return data, nil
}
