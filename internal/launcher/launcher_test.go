package launcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/marsx/internal/config"
	"github.com/schaermu/marsx/internal/sfc"
	"github.com/schaermu/marsx/internal/testutil"
)

type fakeSource struct {
	blocks []sfc.Block
	err    error
}

func (f *fakeSource) LoadAll(context.Context) ([]sfc.Block, error) {
	return f.blocks, f.err
}

type fakeCompiler struct {
	compiled []string
	err      error
}

func (f *fakeCompiler) CompileSource(_ context.Context, b sfc.Block, sourceID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.compiled = append(f.compiled, b.Path.String()+"#"+sourceID)
	return "/compiled/" + b.Path.String() + "." + sourceID + ".js", nil
}

type fakeRunner struct {
	entry, manifest string
	err             error
}

func (f *fakeRunner) Run(_ context.Context, entry, manifest string) error {
	f.entry, f.manifest = entry, manifest
	return f.err
}

func booterBlock(folder string) sfc.Block {
	b := sfc.NewStructured(sfc.Path{Folder: folder, Name: "Booter", Kind: "service", Ext: sfc.Ext})
	b.Sources[EntrySource] = sfc.Source{Name: EntrySource, Source: "export default 1;", Lang: "ts"}
	return b
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{Booter: "Booter", CacheDir: t.TempDir()}
}

func TestLaunchPicksLastBooter(t *testing.T) {
	cfg := testConfig(t)
	blocks := []sfc.Block{booterBlock("remote"), booterBlock("")}
	compiler := &fakeCompiler{}
	runner := &fakeRunner{}

	l := New(cfg, &fakeSource{blocks: blocks}, compiler, runner, testutil.Logger())
	require.NoError(t, l.Launch(context.Background()))

	assert.Equal(t, []string{"Booter.service.mars#BlockFunction"}, compiler.compiled)
	assert.Equal(t, "/compiled/Booter.service.mars.BlockFunction.js", runner.entry)
	assert.Equal(t, filepath.Join(cfg.BooterDir(), ManifestName), runner.manifest)

	data, err := os.ReadFile(runner.manifest)
	require.NoError(t, err)
	var manifest []sfc.Block
	require.NoError(t, json.Unmarshal(data, &manifest))
	require.Len(t, manifest, 2)
	assert.Equal(t, "remote", manifest[0].Path.Folder)
}

func TestLaunchCustomBooterName(t *testing.T) {
	cfg := testConfig(t)
	cfg.Booter = "Server"
	server := sfc.NewStructured(sfc.Path{Name: "Server", Kind: "service", Ext: sfc.Ext})
	server.Sources[EntrySource] = sfc.Source{Source: "x"}

	compiler := &fakeCompiler{}
	l := New(cfg, &fakeSource{blocks: []sfc.Block{booterBlock(""), server}}, compiler, &fakeRunner{}, testutil.Logger())

	entry, err := l.Prepare(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Server", entry.Booter.Path.Name)
	assert.Equal(t, 2, entry.Blocks)
}

func TestLaunchBooterNotFound(t *testing.T) {
	cfg := testConfig(t)
	runner := &fakeRunner{}
	l := New(cfg, &fakeSource{}, &fakeCompiler{}, runner, testutil.Logger())

	err := l.Launch(context.Background())
	require.ErrorIs(t, err, ErrBooterNotFound)
	assert.Contains(t, err.Error(), "Ensure you have it locally or it is imported")
	assert.Empty(t, runner.entry)
}

func TestLaunchPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name     string
		source   *fakeSource
		compiler *fakeCompiler
		runner   *fakeRunner
	}{
		{"load", &fakeSource{err: boom}, &fakeCompiler{}, &fakeRunner{}},
		{"compile", &fakeSource{blocks: []sfc.Block{booterBlock("")}}, &fakeCompiler{err: boom}, &fakeRunner{}},
		{"run", &fakeSource{blocks: []sfc.Block{booterBlock("")}}, &fakeCompiler{}, &fakeRunner{err: boom}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(testConfig(t), tt.source, tt.compiler, tt.runner, testutil.Logger())
			assert.ErrorIs(t, l.Launch(context.Background()), boom)
		})
	}
}

func TestCommandRunner(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	var out bytes.Buffer
	r := NewCommandRunner("sh", "-c", `echo "$0 $1 $MARSX_BLOCKS_MANIFEST"`)
	r.Stdout = &out

	require.NoError(t, r.Run(context.Background(), "entry.js", "blocks.json"))
	assert.Equal(t, "entry.js blocks.json blocks.json\n", out.String())
}

func TestCommandRunnerExitCode(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	r := NewCommandRunner("sh", "-c", "exit 3")
	r.Stdout, r.Stderr = &bytes.Buffer{}, &bytes.Buffer{}

	err := r.Run(context.Background(), "entry.js", "blocks.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with code 3")
}
