package documentloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skosovsky/promptchain"
)

// DefaultMaxBodySize is the default download limit (10 MiB).
const DefaultMaxBodySize = 10 << 20

var (
	// ErrUnsafeScheme is returned when the URL scheme is not https (or http with WithAllowHTTP).
	ErrUnsafeScheme = errors.New("documentloader: unsupported URL scheme")
	// ErrBodyTooLarge is returned when the response exceeds the size limit.
	ErrBodyTooLarge = errors.New("documentloader: response body exceeds size limit")
	// ErrUnsupportedType is returned for non-text content (images, archives, ...).
	ErrUnsupportedType = errors.New("documentloader: unsupported content type")
	// ErrHTTPStatus is returned for non-2xx responses.
	ErrHTTPStatus = errors.New("documentloader: unexpected HTTP status")
)

// Metadata keys set on loaded documents.
const (
	MetaSource      = "source"
	MetaTitle       = "title"
	MetaContentType = "content_type"
)

const userAgent = "promptchain-documentloader/1.0"

// WebLoader fetches one URL per document. Safe for concurrent use.
type WebLoader struct {
	client    *http.Client
	maxBytes  int64
	allowHTTP bool
	logger    *slog.Logger
}

// Option configures a WebLoader.
type Option func(*WebLoader)

// WithHTTPClient sets the HTTP client. Nil keeps the default (30s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(l *WebLoader) {
		if c != nil {
			l.client = c
		}
	}
}

// WithMaxBodySize caps the downloaded body. Values <= 0 keep DefaultMaxBodySize.
func WithMaxBodySize(n int64) Option {
	return func(l *WebLoader) {
		if n > 0 {
			l.maxBytes = n
		}
	}
}

// WithAllowHTTP permits plain http URLs. Only https is accepted by default.
func WithAllowHTTP() Option {
	return func(l *WebLoader) { l.allowHTTP = true }
}

// WithLogger sets the logger for download diagnostics. Default is slog.Default().
func WithLogger(lg *slog.Logger) Option {
	return func(l *WebLoader) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// NewWebLoader creates a WebLoader.
func NewWebLoader(opts ...Option) *WebLoader {
	l := &WebLoader{
		client:   &http.Client{Timeout: 30 * time.Second},
		maxBytes: DefaultMaxBodySize,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load downloads each URL in order and returns one Document per URL. The first failure
// aborts the load.
func (l *WebLoader) Load(ctx context.Context, urls ...string) ([]promptchain.Document, error) {
	docs := make([]promptchain.Document, 0, len(urls))
	for _, u := range urls {
		doc, err := l.LoadOne(ctx, u)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// LoadOne downloads a single URL.
func (l *WebLoader) LoadOne(ctx context.Context, rawURL string) (promptchain.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return promptchain.Document{}, fmt.Errorf("documentloader: parse URL: %w", err)
	}
	if u.Scheme != "https" && (u.Scheme != "http" || !l.allowHTTP) {
		return promptchain.Document{}, fmt.Errorf("%w: %q", ErrUnsafeScheme, u.Scheme)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return promptchain.Document{}, fmt.Errorf("documentloader: new request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html, text/plain;q=0.9, */*;q=0.1")
	resp, err := l.client.Do(req) // #nosec G107 -- URL scheme is checked above
	if err != nil {
		return promptchain.Document{}, fmt.Errorf("documentloader: do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return promptchain.Document{}, fmt.Errorf("%w: %s %s", ErrHTTPStatus, resp.Status, rawURL)
	}
	contentType := "text/html"
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, perr := mime.ParseMediaType(ct); perr == nil {
			contentType = mt
		}
	}
	if !isText(contentType) {
		return promptchain.Document{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return promptchain.Document{}, fmt.Errorf("documentloader: read body: %w", err)
	}
	if int64(len(data)) > l.maxBytes {
		return promptchain.Document{}, ErrBodyTooLarge
	}
	meta := map[string]any{MetaSource: rawURL, MetaContentType: contentType}
	text := string(data)
	if contentType == "text/html" || contentType == "application/xhtml+xml" {
		page, err := ExtractText(strings.NewReader(text))
		if err != nil {
			return promptchain.Document{}, err
		}
		text = page.Text
		if page.Title != "" {
			meta[MetaTitle] = page.Title
		}
	}
	l.logger.DebugContext(ctx, "document loaded", "url", rawURL, "bytes", len(data), "chars", len(text))
	return promptchain.Document{PageContent: text, Metadata: meta}, nil
}

func isText(contentType string) bool {
	return strings.HasPrefix(contentType, "text/") ||
		contentType == "application/xhtml+xml" ||
		contentType == "application/json" ||
		contentType == "application/xml"
}
