// Package launcher boots a project: it loads every block, compiles the entry
// function of the booter block and hands it to the runtime.
package launcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/schaermu/marsx/internal/blockfs"
	"github.com/schaermu/marsx/internal/config"
	"github.com/schaermu/marsx/internal/loader"
	"github.com/schaermu/marsx/internal/sfc"
)

// EntrySource is the source section compiled as a block's entry point.
const EntrySource = "BlockFunction"

// ManifestName is the file the loaded block list is written to.
const ManifestName = "blocks.json"

// ErrBooterNotFound is returned when no loaded block carries the booter name.
var ErrBooterNotFound = errors.New("booter block not found")

// BlockSource provides the full ordered block list.
type BlockSource interface {
	LoadAll(ctx context.Context) ([]sfc.Block, error)
}

// SourceCompiler compiles one source section of a block.
type SourceCompiler interface {
	CompileSource(ctx context.Context, b sfc.Block, sourceID string) (string, error)
}

// Launcher wires loading, compiling and running together.
type Launcher struct {
	blocks    BlockSource
	compiler  SourceCompiler
	runner    Runner
	booter    string
	booterDir string
	logger    *slog.Logger
}

// New creates a launcher for cfg.
func New(cfg *config.Config, blocks BlockSource, compiler SourceCompiler, runner Runner, logger *slog.Logger) *Launcher {
	return &Launcher{
		blocks:    blocks,
		compiler:  compiler,
		runner:    runner,
		booter:    cfg.Booter,
		booterDir: cfg.BooterDir(),
		logger:    logger,
	}
}

// Entry describes a prepared launch.
type Entry struct {
	Booter   sfc.Block
	Code     string
	Manifest string
	Blocks   int
}

// Prepare loads all blocks, compiles the booter and writes the manifest
// without running anything.
func (l *Launcher) Prepare(ctx context.Context) (Entry, error) {
	blocks, err := l.blocks.LoadAll(ctx)
	if err != nil {
		return Entry{}, err
	}

	booter, ok := loader.Effective(blocks, l.booter)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s. Ensure you have it locally or it is imported", ErrBooterNotFound, l.booter)
	}
	l.logger.Info("booting", "block", booter.Path.String())

	code, err := l.compiler.CompileSource(ctx, booter, EntrySource)
	if err != nil {
		return Entry{}, err
	}

	manifest := filepath.Join(l.booterDir, ManifestName)
	if err := writeManifest(manifest, blocks); err != nil {
		return Entry{}, err
	}

	return Entry{Booter: booter, Code: code, Manifest: manifest, Blocks: len(blocks)}, nil
}

// Launch prepares the booter and runs it until it exits or ctx is done.
func (l *Launcher) Launch(ctx context.Context) error {
	entry, err := l.Prepare(ctx)
	if err != nil {
		return err
	}

	l.logger.Info("starting runtime",
		"entry", entry.Code,
		"manifest", entry.Manifest,
		"blocks", entry.Blocks)
	return l.runner.Run(ctx, entry.Code, entry.Manifest)
}

func writeManifest(path string, blocks []sfc.Block) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(blocks); err != nil {
		return fmt.Errorf("failed to encode block manifest: %w", err)
	}
	if err := blockfs.WriteFileAtomic(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write block manifest: %w", err)
	}
	return nil
}
