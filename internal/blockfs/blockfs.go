// Package blockfs discovers, reads and writes block files under a blocks
// directory.
package blockfs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/schaermu/marsx/internal/sfc"
)

// ReadLimit caps the number of files read concurrently.
const ReadLimit = 64

// Entry is a block found on disk: either a single file or a section
// directory holding one file per section.
type Entry struct {
	// RelPath is slash-separated and relative to the blocks directory.
	// For section directories it names the directory ("Blog/Post.page").
	RelPath    string
	AbsPath    string
	SectionDir bool
}

// IsHidden reports whether a file or directory name starts with ".".
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// Discover finds all blocks below dir in lexical order. Hidden files and
// directories (names starting with ".") are skipped. A directory named
// "{name}.{kind}" that contains metadata.json5 is reported as one section
// directory entry instead of being descended into.
func Discover(dir string) ([]Entry, error) {
	var entries []Entry

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}

		// Skip hidden files and directories (e.g. .git, .DS_Store)
		if IsHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if isSectionDir(path, d.Name()) {
				entries = append(entries, Entry{RelPath: rel, AbsPath: path, SectionDir: true})
				return filepath.SkipDir
			}
			return nil
		}

		entries = append(entries, Entry{RelPath: rel, AbsPath: path})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func isSectionDir(path, name string) bool {
	if _, err := sfc.ParsePath(name + "." + sfc.Ext); err != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(path, sfc.MetadataSectionID+".json5"))
	return err == nil && info.Mode().IsRegular()
}

// ReadBlock reads and parses one discovered entry.
func ReadBlock(e Entry, opts sfc.Options) (sfc.Block, error) {
	if e.SectionDir {
		return readSectionDir(e, opts)
	}

	content, err := os.ReadFile(e.AbsPath)
	if err != nil {
		return sfc.Block{}, fmt.Errorf("failed to read block file: %w", err)
	}
	return sfc.ParseWithOptions(e.RelPath, content, opts)
}

func readSectionDir(e Entry, opts sfc.Options) (sfc.Block, error) {
	dirEntries, err := os.ReadDir(e.AbsPath)
	if err != nil {
		return sfc.Block{}, fmt.Errorf("failed to read section directory: %w", err)
	}

	var files []sfc.File
	for _, de := range dirEntries {
		if de.IsDir() || IsHidden(de.Name()) {
			continue
		}
		content, err := os.ReadFile(filepath.Join(e.AbsPath, de.Name()))
		if err != nil {
			return sfc.Block{}, fmt.Errorf("failed to read section file: %w", err)
		}
		files = append(files, sfc.File{Path: de.Name(), Content: content})
	}
	return sfc.ParseSections(e.RelPath, files, opts)
}

// ReadBlocks discovers and parses every block below dir, reading up to
// ReadLimit files at once. The result keeps discovery order. The first
// failure cancels the remaining reads and is returned.
func ReadBlocks(ctx context.Context, dir string, opts sfc.Options) ([]sfc.Block, error) {
	entries, err := Discover(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to discover blocks in %s: %w", dir, err)
	}

	blocks := make([]sfc.Block, len(entries))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(ReadLimit)

	for i, e := range entries {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			b, err := ReadBlock(e, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", e.RelPath, err)
			}
			blocks[i] = b
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return blocks, nil
}

// Problem is a block that failed to read or parse.
type Problem struct {
	RelPath string
	Err     error
}

// Check reads every block below dir like ReadBlocks but does not stop at the
// first failure. It returns the number of blocks checked and one Problem per
// failing block, in discovery order.
func Check(ctx context.Context, dir string, opts sfc.Options) (int, []Problem, error) {
	entries, err := Discover(dir)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to discover blocks in %s: %w", dir, err)
	}

	errs := make([]error, len(entries))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(ReadLimit)

	for i, e := range entries {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			_, errs[i] = ReadBlock(e, opts)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, nil, err
	}

	var problems []Problem
	for i, err := range errs {
		if err != nil {
			problems = append(problems, Problem{RelPath: entries[i].RelPath, Err: err})
		}
	}
	return len(entries), problems, nil
}
