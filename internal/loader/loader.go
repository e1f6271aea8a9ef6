// Package loader assembles every block a project needs: the blocks of each
// remote import followed by the local blocks directory.
package loader

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/schaermu/marsx/internal/blockfs"
	"github.com/schaermu/marsx/internal/config"
	"github.com/schaermu/marsx/internal/importcache"
	"github.com/schaermu/marsx/internal/remote"
	"github.com/schaermu/marsx/internal/sfc"
)

// Loader loads blocks from remote imports and the local blocks directory.
type Loader struct {
	blocksDir string
	imports   []config.ImportSource
	remote    remote.Client
	cache     *importcache.Cache
	logger    *slog.Logger
}

// New creates a loader for the given configuration.
func New(cfg *config.Config, client remote.Client, cache *importcache.Cache, logger *slog.Logger) *Loader {
	return &Loader{
		blocksDir: cfg.BlocksDir,
		imports:   cfg.ImportProjects,
		remote:    client,
		cache:     cache,
		logger:    logger,
	}
}

// LoadAll resolves every import and scans the local directory concurrently.
// The result lists import blocks in import order, then local blocks in scan
// order, so later entries override earlier ones with the same name. Any
// failure fails the whole load.
func (l *Loader) LoadAll(ctx context.Context) ([]sfc.Block, error) {
	l.logger.Info("loading blocks",
		"blocks_dir", l.blocksDir,
		"imports", len(l.imports))

	// One slot per import plus one for the local scan.
	results := make([][]sfc.Block, len(l.imports)+1)
	eg, egCtx := errgroup.WithContext(ctx)

	for i, imp := range l.imports {
		eg.Go(func() error {
			blocks, err := l.ResolveImport(egCtx, imp)
			if err != nil {
				return fmt.Errorf("import %q: %w", imp.Name, err)
			}
			results[i] = blocks
			return nil
		})
	}
	eg.Go(func() error {
		blocks, err := l.LoadLocal(egCtx)
		if err != nil {
			return err
		}
		results[len(l.imports)] = blocks
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, r := range results {
		total += len(r)
	}
	all := make([]sfc.Block, 0, total)
	for _, r := range results {
		all = append(all, r...)
	}

	l.logger.Info("blocks loaded", "count", len(all))
	return all, nil
}

// ResolveImport returns the cached blocks of imp, or fetches and caches them
// on a miss.
func (l *Loader) ResolveImport(ctx context.Context, imp config.ImportSource) ([]sfc.Block, error) {
	blocks, found, err := l.cache.Load(imp)
	if err != nil {
		return nil, err
	}
	if found {
		l.logger.Info("loading cached blocks", "import", imp.Name, "url", imp.URL, "count", len(blocks))
		return blocks, nil
	}

	blocks, err = l.remote.Fetch(ctx, imp)
	if err != nil {
		return nil, err
	}
	l.logger.Info("downloaded blocks", "import", imp.Name, "url", imp.URL, "count", len(blocks))

	if err := l.cache.Store(imp, blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// LoadLocal parses every block below the blocks directory.
func (l *Loader) LoadLocal(ctx context.Context) ([]sfc.Block, error) {
	blocks, err := blockfs.ReadBlocks(ctx, l.blocksDir, sfc.DefaultOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load local blocks: %w", err)
	}
	l.logger.Debug("local blocks loaded", "count", len(blocks))
	return blocks, nil
}

// Effective returns the block that wins for name: the last one in blocks.
func Effective(blocks []sfc.Block, name string) (sfc.Block, bool) {
	for i := len(blocks) - 1; i >= 0; i-- {
		if blocks[i].Path.Name == name {
			return blocks[i], true
		}
	}
	return sfc.Block{}, false
}
