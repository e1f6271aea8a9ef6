// Package migrate writes blocks to the blocks directory: legacy records
// converted to the structured format, or existing blocks rewritten in
// canonical form. Every run first builds a plan of file writes, which is
// only logged in dry-run mode.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/schaermu/marsx/internal/blockfs"
	"github.com/schaermu/marsx/internal/config"
	"github.com/schaermu/marsx/internal/legacy"
	"github.com/schaermu/marsx/internal/sfc"
)

// SettingsType is the legacy record type that holds project settings rather
// than a block. Such records are not migrated.
const SettingsType = "settings"

// Engine orchestrates migration and formatting
type Engine struct {
	blocksDir   string
	projectName string
	layout      config.Layout
	opts        sfc.Options
	logger      *slog.Logger
	dryRun      bool
}

// NewEngine creates a new migration engine
func NewEngine(cfg *config.Config, logger *slog.Logger, dryRun bool) *Engine {
	return &Engine{
		blocksDir:   cfg.BlocksDir,
		projectName: cfg.ProjectName,
		layout:      cfg.Migrate.Layout,
		opts:        sfc.Options{SaveEmptySources: cfg.SaveEmptySources()},
		logger:      logger,
		dryRun:      dryRun,
	}
}

// Migrate converts every record of src and writes the result.
func (e *Engine) Migrate(ctx context.Context, src RecordSource) (*Plan, error) {
	e.logger.Info("starting migration",
		"blocks_dir", e.blocksDir,
		"layout", e.layout,
		"dry_run", e.dryRun)

	records, err := src.Records(ctx)
	if err != nil {
		return nil, err
	}
	e.logger.Info("loaded legacy blocks", "count", len(records))

	var files []renderedFile
	for _, r := range records {
		if r.Type == SettingsType {
			e.logger.Debug("skipping settings record", "name", r.Name)
			continue
		}
		b, err := legacy.ToStructured(r)
		if err != nil {
			return nil, err
		}
		rendered, err := e.renderRecord(b, r.App)
		if err != nil {
			return nil, err
		}
		files = append(files, rendered...)
	}

	return e.run(ctx, files)
}

// Format rewrites every structured block below the blocks directory in
// canonical form, keeping each block's current layout.
func (e *Engine) Format(ctx context.Context) (*Plan, error) {
	e.logger.Info("formatting blocks", "blocks_dir", e.blocksDir, "dry_run", e.dryRun)

	entries, err := blockfs.Discover(e.blocksDir)
	if err != nil {
		return nil, fmt.Errorf("failed to discover blocks: %w", err)
	}

	var files []renderedFile
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b, err := blockfs.ReadBlock(entry, e.opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.RelPath, err)
		}
		if !b.IsStructured() {
			continue
		}

		var out []sfc.File
		if entry.SectionDir {
			out, err = sfc.SerializeSections(b, e.opts)
		} else {
			var f sfc.File
			f, err = sfc.SerializeWithOptions(b, e.opts)
			out = []sfc.File{f}
		}
		if err != nil {
			return nil, err
		}
		files = append(files, tag(b, out)...)
	}

	return e.run(ctx, files)
}

// renderedFile is a serialized file and the block it came from.
type renderedFile struct {
	block string
	file  sfc.File
}

func tag(b sfc.Block, files []sfc.File) []renderedFile {
	out := make([]renderedFile, len(files))
	for i, f := range files {
		out[i] = renderedFile{block: b.Path.String(), file: f}
	}
	return out
}

// renderRecord serializes a converted record in the configured layout.
func (e *Engine) renderRecord(b sfc.Block, app *legacy.App) ([]renderedFile, error) {
	switch e.layout {
	case config.LayoutSections:
		name := b.Path.String()
		b.Path.Folder = AppFolder(b.Path.Folder, app, e.projectName)
		files, err := sfc.SerializeSections(b, e.opts)
		if err != nil {
			return nil, err
		}
		out := tag(b, files)
		for i := range out {
			out[i].block = name
		}
		return out, nil
	default:
		f, err := sfc.SerializeWithOptions(b, e.opts)
		if err != nil {
			return nil, err
		}
		return tag(b, []sfc.File{f}), nil
	}
}

// AppFolder returns the folder a block is written to in the sections
// layout: below "{app slug}.app" without the folder's first segment when
// the record names its app, otherwise below "{projectName}.app".
func AppFolder(folder string, app *legacy.App, projectName string) string {
	if app == nil {
		return path.Join(projectName+".app", folder)
	}
	var rest string
	if _, after, ok := strings.Cut(folder, "/"); ok {
		rest = after
	}
	return path.Join(app.Slug()+".app", rest)
}

// run plans the writes for files and applies them unless in dry-run mode.
func (e *Engine) run(ctx context.Context, files []renderedFile) (*Plan, error) {
	plan, err := e.buildPlan(files)
	if err != nil {
		return nil, fmt.Errorf("failed to build plan: %w", err)
	}

	e.logger.Info("migration plan",
		"add", len(plan.Add),
		"update", len(plan.Update),
		"unchanged", len(plan.Unchanged))

	if e.dryRun {
		e.logPlanDetails(plan)
		e.logger.Info("dry-run complete, no changes applied")
		return plan, nil
	}

	if err := e.applyPlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to apply plan: %w", err)
	}

	e.logger.Info("migration completed successfully", "written", plan.Changes())
	return plan, nil
}

// buildPlan compares rendered files with what is on disk
func (e *Engine) buildPlan(files []renderedFile) (*Plan, error) {
	plan := &Plan{
		Add:       make([]FileOp, 0),
		Update:    make([]FileOp, 0),
		Unchanged: make([]FileOp, 0),
	}

	owners := make(map[string]string, len(files))
	for _, rf := range files {
		destPath := filepath.Join(e.blocksDir, filepath.FromSlash(rf.file.Path))
		if owner, exists := owners[destPath]; exists {
			return nil, fmt.Errorf("blocks %s and %s both write %s", owner, rf.block, rf.file.Path)
		}
		owners[destPath] = rf.block

		op := FileOp{
			Block:    rf.block,
			DestPath: destPath,
			Hash:     blockfs.ContentHash(rf.file.Content),
			Content:  rf.file.Content,
		}

		current, err := blockfs.FileHash(destPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			plan.Add = append(plan.Add, op)
		case err != nil:
			return nil, fmt.Errorf("failed to compute hash for %s: %w", destPath, err)
		case current != op.Hash:
			plan.Update = append(plan.Update, op)
		default:
			plan.Unchanged = append(plan.Unchanged, op)
		}
	}

	return plan, nil
}

// applyPlan writes every added and updated file
func (e *Engine) applyPlan(ctx context.Context, plan *Plan) error {
	for _, op := range plan.Add {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.logger.Info("adding file", "dest", op.DestPath)
		if err := blockfs.WriteFileAtomic(op.DestPath, op.Content, 0644); err != nil {
			return fmt.Errorf("failed to add file %s: %w", op.DestPath, err)
		}
	}

	for _, op := range plan.Update {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.logger.Info("updating file", "dest", op.DestPath)
		if err := blockfs.WriteFileAtomic(op.DestPath, op.Content, 0644); err != nil {
			return fmt.Errorf("failed to update file %s: %w", op.DestPath, err)
		}
	}

	return nil
}

// logPlanDetails logs detailed plan information for dry-run
func (e *Engine) logPlanDetails(plan *Plan) {
	for _, op := range plan.Add {
		e.logger.Info("[dry-run] would add", "dest", op.DestPath, "block", op.Block)
	}
	for _, op := range plan.Update {
		e.logger.Info("[dry-run] would update", "dest", op.DestPath, "block", op.Block)
	}
}
