// Package compile turns a source section of a block into a runnable file
// under the cache directory, with a source map that points back to the
// original block file.
package compile

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/schaermu/marsx/internal/blockfs"
	"github.com/schaermu/marsx/internal/jsonvalue"
	"github.com/schaermu/marsx/internal/sfc"
)

// memoSize bounds the number of remembered compilations.
const memoSize = 256

var sourceMappingLine = regexp.MustCompile(`(?m)\n?^//# sourceMappingURL=.+$`)

// SourceNotFoundError reports a missing source section.
type SourceNotFoundError struct {
	Block    string
	SourceID string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("source code block %s not found in %s", e.SourceID, e.Block)
}

// Compiler compiles block sources into CompiledDir.
type Compiler struct {
	blocksDir   string
	compiledDir string
	transpiler  Transpiler
	memo        *lru.Cache[string, string]
	logger      *slog.Logger
}

// NewCompiler creates a compiler. blocksDir is used to name the original
// file in generated source maps.
func NewCompiler(blocksDir, compiledDir string, transpiler Transpiler, logger *slog.Logger) (*Compiler, error) {
	memo, err := lru.New[string, string](memoSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create compile memo: %w", err)
	}
	return &Compiler{
		blocksDir:   blocksDir,
		compiledDir: compiledDir,
		transpiler:  transpiler,
		memo:        memo,
		logger:      logger,
	}, nil
}

// CompileSource compiles the source section sourceID of b and returns the
// path of the written file. Unchanged sources are not recompiled while their
// output still exists.
func (c *Compiler) CompileSource(ctx context.Context, b sfc.Block, sourceID string) (string, error) {
	rel := b.Path.FilePath
	if rel == "" {
		rel = b.Path.String()
	}

	src, ok := b.Sources[sourceID]
	if !ok {
		return "", &SourceNotFoundError{Block: rel, SourceID: sourceID}
	}

	compiledPath := c.CompiledPath(b, sourceID)
	key := memoKey(rel, sourceID, src)
	if cached, ok := c.memo.Get(key); ok && cached == compiledPath {
		if _, err := os.Stat(compiledPath); err == nil {
			c.logger.Debug("reusing compiled source", "path", compiledPath)
			return compiledPath, nil
		}
	}

	original := rel
	if src.File != "" {
		original = src.File
	}
	originalPath := filepath.Join(c.blocksDir, filepath.FromSlash(original))

	// Leading newlines keep compiled positions aligned with the section's
	// place in the block file.
	text := strings.Repeat("\n", lineShift(src.LineOffset)) + src.Source

	res, err := c.transpiler.Transpile(ctx, text, src.Lang, originalPath)
	if err != nil {
		return "", fmt.Errorf("compiling %s of %s: %w", sourceID, rel, err)
	}

	sourceMap, err := rewriteSourceMap(res.SourceMap, compiledPath, originalPath)
	if err != nil {
		return "", fmt.Errorf("compiling %s of %s: %w", sourceID, rel, err)
	}

	code := sourceMappingLine.ReplaceAllString(res.Code, "")
	code += "\n" + inlineMapPrefix + base64.StdEncoding.EncodeToString(sourceMap)

	if err := blockfs.WriteFileAtomic(compiledPath, []byte(code), 0644); err != nil {
		return "", fmt.Errorf("failed to write compiled source: %w", err)
	}
	c.memo.Add(key, compiledPath)

	c.logger.Debug("compiled source",
		"block", rel,
		"source", sourceID,
		"path", compiledPath)
	return compiledPath, nil
}

// CompiledPath returns where the compiled form of sourceID is written.
func (c *Compiler) CompiledPath(b sfc.Block, sourceID string) string {
	rel := b.Path.FilePath
	if rel == "" {
		rel = b.Path.String()
	}
	return filepath.Join(c.compiledDir, filepath.FromSlash(rel)+"."+sourceID+".js")
}

func lineShift(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func memoKey(rel, sourceID string, src sfc.Source) string {
	parts := []string{rel, sourceID, src.File, src.Lang, strconv.Itoa(src.LineOffset), src.Source}
	return blockfs.ContentHash([]byte(strings.Join(parts, "\x00")))
}

// rewriteSourceMap points a transpiler source map at the compiled file and
// the original block file. A missing map yields an empty one.
func rewriteSourceMap(raw []byte, compiledPath, originalPath string) ([]byte, error) {
	m := jsonvalue.EmptyObject()
	if len(raw) > 0 {
		parsed, err := jsonvalue.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid source map: %w", err)
		}
		if !parsed.IsObject() {
			return nil, fmt.Errorf("invalid source map: expected object, got %s", parsed.Kind())
		}
		m = parsed
	} else {
		m.Set("version", jsonvalue.IntValue(3))
		m.Set("mappings", jsonvalue.StringValue(""))
	}

	m.Set("sourceRoot", jsonvalue.StringValue(""))
	m.Set("file", jsonvalue.StringValue(compiledPath))
	m.Set("sources", jsonvalue.ArrayValue(jsonvalue.StringValue(originalPath)))

	return m.MarshalJSON()
}
