// Package importcache memoizes the blocks fetched for each remote import on
// disk. Entries are keyed by a fingerprint of the import configuration and
// are never refreshed; deleting the directory is the only invalidation.
package importcache

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/schaermu/marsx/internal/blockfs"
	"github.com/schaermu/marsx/internal/config"
	"github.com/schaermu/marsx/internal/jsonvalue"
	"github.com/schaermu/marsx/internal/sfc"
)

// IOError wraps a failure to read, decode or write a cache entry.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("import cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Fingerprint returns the MD5 hex digest of the import's sorted-key JSON.
// Any change to the import configuration yields a new fingerprint.
func Fingerprint(imp config.ImportSource) string {
	fields := map[string]jsonvalue.Value{
		"name":    jsonvalue.StringValue(imp.Name),
		"url":     jsonvalue.StringValue(imp.URL),
		"api_key": jsonvalue.StringValue(imp.APIKey),
	}
	if imp.Revision != "" {
		fields["git_commit_ish"] = jsonvalue.StringValue(imp.Revision)
	}
	// Rendering strings and sorted keys cannot fail.
	data, _ := jsonvalue.ObjectValue(fields).MarshalJSON()

	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.]+`)

// FileName returns the cache file name for an import:
// {name}_{revision}_{fingerprint}.json with unsafe characters replaced.
func FileName(imp config.ImportSource) string {
	name := fmt.Sprintf("%s_%s_%s.json", imp.Name, imp.Revision, Fingerprint(imp))
	return unsafeChars.ReplaceAllString(name, "_")
}

// Cache stores import results below a directory.
type Cache struct {
	dir string
}

// New returns a cache rooted at dir (normally {cacheDir}/imports).
func New(dir string) *Cache {
	return &Cache{dir: dir}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the file an import's blocks are cached in.
func (c *Cache) Path(imp config.ImportSource) string {
	return filepath.Join(c.dir, FileName(imp))
}

// Load returns the cached blocks for imp. found is false when no entry
// exists; any other failure is an *IOError.
func (c *Cache) Load(imp config.ImportSource) (blocks []sfc.Block, found bool, err error) {
	path := c.Path(imp)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, &IOError{Op: "read", Path: path, Err: err}
	}

	if err := json.Unmarshal(data, &blocks); err != nil {
		return nil, false, &IOError{Op: "decode", Path: path, Err: err}
	}
	for _, b := range blocks {
		if err := b.Validate(); err != nil {
			return nil, false, &IOError{Op: "decode", Path: path, Err: err}
		}
	}
	return blocks, true, nil
}

// Store writes blocks as imp's cache entry.
func (c *Cache) Store(imp config.ImportSource, blocks []sfc.Block) error {
	path := c.Path(imp)
	if blocks == nil {
		blocks = []sfc.Block{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(blocks); err != nil {
		return &IOError{Op: "encode", Path: path, Err: err}
	}

	if err := blockfs.WriteFileAtomic(path, buf.Bytes(), 0644); err != nil {
		return &IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Clear removes every cache entry.
func (c *Cache) Clear() error {
	if err := os.RemoveAll(c.dir); err != nil {
		return &IOError{Op: "clear", Path: c.dir, Err: err}
	}
	return nil
}
