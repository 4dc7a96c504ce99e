package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/store"
)

// Fetcher retrieves a document and reports its declared content type.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, token string) (data []byte, contentType string, err error)
}

// Loader pulls a tabular document from a URL and lands it in the primary
// store as a freshly named table. Outcomes are strings, success or failure,
// because the web layer and ctl render them directly.
type Loader struct {
	store   *store.Store
	http    Fetcher
	s3      Fetcher
	log     *slog.Logger
	nowFunc func() time.Time
}

func NewLoader(primary *store.Store, httpFetcher, s3Fetcher Fetcher, logger *slog.Logger) (*Loader, error) {
	if primary == nil {
		return nil, fmt.Errorf("primary store is required")
	}
	if httpFetcher == nil {
		return nil, fmt.Errorf("http fetcher is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Loader{
		store:   primary,
		http:    httpFetcher,
		s3:      s3Fetcher,
		log:     logger,
		nowFunc: time.Now,
	}, nil
}

// LoadFromURL fetches, sniffs, parses, and stores one document.
func (l *Loader) LoadFromURL(ctx context.Context, rawURL, token string) string {
	fetcher := l.http
	if strings.HasPrefix(rawURL, "s3://") {
		if l.s3 == nil {
			return "Error: s3:// URLs require a configured object store endpoint."
		}
		fetcher = l.s3
	}

	data, contentType, err := fetcher.Fetch(ctx, rawURL, token)
	if err != nil {
		return fmt.Sprintf("Error: Failed to fetch data: %v", err)
	}

	frame, err := parseDocument(data, contentType)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}

	tableName := generateTableName(frame, l.nowFunc())
	columns := InferColumns(frame)
	if err := l.store.CreateTableFrom(ctx, tableName, columns, frame.Rows); err != nil {
		return fmt.Sprintf("Error: Failed to store data: %v", err)
	}

	observability.IncrementTablesIngested()
	l.log.InfoContext(ctx, "table ingested",
		slog.String("table", tableName),
		slog.Int("columns", len(columns)),
		slog.Int("rows", len(frame.Rows)),
	)
	return fmt.Sprintf("Success: Data stored in table '%s'.", tableName)
}

// parseDocument trusts the content type first and falls back to trying each
// format in turn, since many endpoints mislabel what they serve.
func parseDocument(data []byte, contentType string) (Frame, error) {
	contentType = strings.ToLower(contentType)
	switch {
	case looksLikeParquet(data):
		return ParseParquet(data)
	case strings.Contains(contentType, "application/json"):
		return ParseJSON(data)
	case strings.Contains(contentType, "text/csv"):
		return ParseCSV(data)
	}

	if frame, err := ParseJSON(data); err == nil {
		return frame, nil
	}
	frame, err := ParseCSV(data)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to parse data (tried JSON and CSV): %w", err)
	}
	return frame, nil
}

// generateTableName builds a unique, timestamped name. Documents carrying a
// name or title column get the records_ prefix, everything else data_.
func generateTableName(frame Frame, now time.Time) string {
	prefix := "data"
	for _, column := range frame.Columns {
		lowered := strings.ToLower(column)
		if lowered == "name" || lowered == "title" {
			prefix = "records"
			break
		}
	}
	return fmt.Sprintf("%s_%s", prefix, now.Format("20060102_150405"))
}

// HTTPFetcher downloads documents over HTTP(S), attaching a bearer token when
// one is supplied.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL, token string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read response body: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
