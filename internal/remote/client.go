// Package remote downloads exported blocks from other projects.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/schaermu/marsx/internal/config"
	"github.com/schaermu/marsx/internal/legacy"
	"github.com/schaermu/marsx/internal/sfc"
)

const (
	// V4Path serves already structured blocks.
	V4Path = "/api/GetExportedAppBlocksV4"
	// V3Path serves legacy flat records.
	V3Path = "/api/GetExportedAppBlocks"

	maxResponseSize = 256 << 20
)

// Client fetches the blocks exported by a remote project.
type Client interface {
	Fetch(ctx context.Context, imp config.ImportSource) ([]sfc.Block, error)
}

// FetchError reports a failed request to a remote project.
type FetchError struct {
	Import     string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching blocks for import %q from %s: server returned %d", e.Import, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetching blocks for import %q from %s: %v", e.Import, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// HTTPClient talks to remote projects over HTTP. It tries the V4 endpoint
// first and falls back to the V3 endpoint once, converting its legacy
// records.
type HTTPClient struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient creates a client. A zero timeout means requests are only
// bounded by the caller's context.
func NewHTTPClient(timeout time.Duration, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Fetch downloads the blocks of one import.
func (c *HTTPClient) Fetch(ctx context.Context, imp config.ImportSource) ([]sfc.Block, error) {
	c.logger.Info("downloading blocks", "import", imp.Name, "url", imp.URL)

	blocks, err := c.FetchV4(ctx, imp)
	if err == nil {
		return blocks, nil
	}
	c.logger.Info("import does not support V4, falling back to V3",
		"import", imp.Name,
		"url", imp.URL,
		"error", err)

	records, err := c.FetchLegacy(ctx, imp)
	if err != nil {
		return nil, err
	}

	blocks = make([]sfc.Block, 0, len(records))
	for _, r := range records {
		b, err := legacy.ToStructured(r)
		if err != nil {
			return nil, fmt.Errorf("converting blocks of import %q: %w", imp.Name, err)
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// v4Response is the object shape of a V4 reply. Some servers reply with a
// bare block array instead.
type v4Response struct {
	Commit string       `json:"commit"`
	Hash   string       `json:"hash"`
	Blocks *[]sfc.Block `json:"blocks"`
}

var errNoBlocks = errors.New("response object has no blocks array")

// FetchV4 requests already structured blocks.
func (c *HTTPClient) FetchV4(ctx context.Context, imp config.ImportSource) ([]sfc.Block, error) {
	endpoint, body, err := c.get(ctx, imp, V4Path)
	if err != nil {
		return nil, err
	}

	var blocks []sfc.Block
	if isArray(body) {
		c.logger.Debug("V4 reply is a bare array", "import", imp.Name)
		err = json.Unmarshal(body, &blocks)
	} else {
		var resp v4Response
		err = json.Unmarshal(body, &resp)
		if err == nil && resp.Blocks == nil {
			err = errNoBlocks
		}
		if resp.Blocks != nil {
			blocks = *resp.Blocks
		}
		c.logger.Debug("V4 reply is an object", "import", imp.Name, "commit", resp.Commit, "hash", resp.Hash)
	}
	if err != nil {
		return nil, &FetchError{Import: imp.Name, URL: endpoint, Err: fmt.Errorf("decoding response: %w", err)}
	}

	for _, b := range blocks {
		if err := b.Validate(); err != nil {
			return nil, &FetchError{Import: imp.Name, URL: endpoint, Err: err}
		}
	}
	return blocks, nil
}

// FetchLegacy requests legacy flat records from the V3 endpoint.
func (c *HTTPClient) FetchLegacy(ctx context.Context, imp config.ImportSource) ([]legacy.Record, error) {
	endpoint, body, err := c.get(ctx, imp, V3Path)
	if err != nil {
		return nil, err
	}

	var records []legacy.Record
	if isArray(body) {
		err = json.Unmarshal(body, &records)
	} else {
		c.logger.Debug("V3 reply is an object", "import", imp.Name)
		var resp struct {
			Blocks *[]legacy.Record `json:"blocks"`
		}
		err = json.Unmarshal(body, &resp)
		if err == nil && resp.Blocks == nil {
			err = errNoBlocks
		}
		if resp.Blocks != nil {
			records = *resp.Blocks
		}
	}
	if err != nil {
		return nil, &FetchError{Import: imp.Name, URL: endpoint, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return records, nil
}

// get performs one GET and returns the endpoint (without credentials) and
// the response body.
func (c *HTTPClient) get(ctx context.Context, imp config.ImportSource, path string) (string, []byte, error) {
	endpoint := strings.TrimSuffix(imp.URL, "/") + path

	query := url.Values{}
	query.Set("api_key", imp.APIKey)
	query.Set("git_commit_ish", imp.Revision)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return endpoint, nil, &FetchError{Import: imp.Name, URL: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return endpoint, nil, &FetchError{Import: imp.Name, URL: endpoint, Err: redact(err, imp.APIKey)}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return endpoint, nil, &FetchError{Import: imp.Name, URL: endpoint, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return endpoint, nil, &FetchError{Import: imp.Name, URL: endpoint, Err: err}
	}
	return endpoint, body, nil
}

func isArray(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) > 0 && trimmed[0] == '['
}

// redact removes the api key from transport errors, which quote the
// request URL.
func redact(err error, apiKey string) error {
	secret := "api_key=" + url.QueryEscape(apiKey)
	if apiKey == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), secret, "api_key=REDACTED"), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }
