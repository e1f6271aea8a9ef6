package importcache

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/marsx/internal/config"
	"github.com/schaermu/marsx/internal/jsonvalue"
	"github.com/schaermu/marsx/internal/sfc"
)

var core = config.ImportSource{
	Name:     "core",
	URL:      "https://core.example.com/?a=1&b=2",
	APIKey:   "secret",
	Revision: "release/v1.2",
}

func TestFingerprintIsStable(t *testing.T) {
	a := Fingerprint(core)
	b := Fingerprint(core)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)

	for name, mutate := range map[string]func(*config.ImportSource){
		"name":     func(i *config.ImportSource) { i.Name = "other" },
		"url":      func(i *config.ImportSource) { i.URL = "https://other.example.com" },
		"api key":  func(i *config.ImportSource) { i.APIKey = "rotated" },
		"revision": func(i *config.ImportSource) { i.Revision = "" },
	} {
		t.Run(name, func(t *testing.T) {
			changed := core
			mutate(&changed)
			assert.NotEqual(t, a, Fingerprint(changed))
		})
	}
}

func TestFingerprintMatchesSortedJSON(t *testing.T) {
	imp := config.ImportSource{Name: "n", URL: "u", APIKey: "k"}
	sum := md5.Sum([]byte(`{"api_key":"k","name":"n","url":"u"}`))
	assert.Equal(t, hex.EncodeToString(sum[:]), Fingerprint(imp))
}

func TestFileName(t *testing.T) {
	name := FileName(core)
	assert.Equal(t, "core_release_v1.2_"+Fingerprint(core)+".json", name)

	noRevision := FileName(config.ImportSource{Name: "my project", URL: "u", APIKey: "k"})
	assert.Regexp(t, `^my_project__[0-9a-f]{32}\.json$`, noRevision)
}

func TestLoadMissingEntry(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "imports"))
	blocks, found, err := c.Load(core)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, blocks)
}

func TestStoreAndLoad(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "imports"))

	post := sfc.NewStructured(sfc.Path{Folder: "Blog", Name: "Post", Kind: "page", Ext: "mars", FilePath: "Blog/Post.page.mars"})
	post.Metadata.Set("title", jsonvalue.StringValue("<x & y>"))
	post.Sources["BlockFunction"] = sfc.Source{Name: "BlockFunction", Source: "export default 1;", Lang: "ts", LineOffset: 7}
	logo := sfc.NewOpaque(sfc.Path{Name: "logo", Kind: "image", Ext: "png", FilePath: "logo.image.png"}, []byte{1, 2, 3})

	require.NoError(t, c.Store(core, []sfc.Block{post, logo}))

	raw, err := os.ReadFile(c.Path(core))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"<x & y>"`)

	got, found, err := c.Load(core)
	require.NoError(t, err)
	require.True(t, found)
	if diff := cmp.Diff([]sfc.Block{post, logo}, got, cmp.Comparer(jsonvalue.Equal), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadCorruptEntry(t *testing.T) {
	c := New(t.TempDir())
	require.NoError(t, os.WriteFile(c.Path(core), []byte("{not json"), 0644))

	_, _, err := c.Load(core)
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "decode", ioErr.Op)
}

func TestLoadRejectsContractViolation(t *testing.T) {
	c := New(t.TempDir())
	doc := `[{"path":{"name":"A","blockTypeName":"page","ext":"mars"},"rawContent":{"type":"Buffer","data":[1]}}]`
	require.NoError(t, os.WriteFile(c.Path(core), []byte(doc), 0644))

	_, _, err := c.Load(core)
	var violation *sfc.ContractViolationError
	assert.True(t, errors.As(err, &violation))
}

func TestStoreFailsOnUnwritableDir(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	c := New(filepath.Join(blocker, "imports"))
	err := c.Store(core, nil)
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "write", ioErr.Op)
}

func TestClear(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "imports")
	c := New(dir)
	require.NoError(t, c.Store(core, nil))
	require.NoError(t, c.Clear())

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
