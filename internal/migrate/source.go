package migrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/schaermu/marsx/internal/config"
	"github.com/schaermu/marsx/internal/legacy"
)

// RecordSource provides legacy records to migrate.
type RecordSource interface {
	Records(ctx context.Context) ([]legacy.Record, error)
}

// FileSource reads records from a JSON export: either an array of records
// or an object with a "blocks" array.
type FileSource struct {
	Path string
}

// Records decodes the export file.
func (s FileSource) Records(_ context.Context) ([]legacy.Record, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export file: %w", err)
	}

	var records []legacy.Record
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &records)
	} else {
		var wrapped struct {
			Blocks []legacy.Record `json:"blocks"`
		}
		err = json.Unmarshal(trimmed, &wrapped)
		records = wrapped.Blocks
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse export file %s: %w", s.Path, err)
	}
	return records, nil
}

// LegacyFetcher downloads legacy records from a remote project.
type LegacyFetcher interface {
	FetchLegacy(ctx context.Context, imp config.ImportSource) ([]legacy.Record, error)
}

// ImportSource reads records from the legacy endpoint of a configured import.
type ImportSource struct {
	Fetcher LegacyFetcher
	Import  config.ImportSource
}

// Records fetches the import's records.
func (s ImportSource) Records(ctx context.Context) ([]legacy.Record, error) {
	return s.Fetcher.FetchLegacy(ctx, s.Import)
}
