package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultimate-research/arcfs/internal/arctest"
	"github.com/ultimate-research/arcfs/internal/hash40"
	"github.com/ultimate-research/arcfs/internal/index"
	"github.com/ultimate-research/arcfs/internal/mmapview"
)

func buildModel(t *testing.T, b *arctest.Builder) (*Model, *mmapview.View) {
	t.Helper()
	archive, labelText, err := b.Build()
	require.NoError(t, err)

	v := mmapview.New(archive)
	tables, err := index.Parse(v)
	require.NoError(t, err)

	labels := hash40.NewLabelStore()
	require.NoError(t, labels.Load(strings.NewReader(labelText), nil))

	m, err := Build(tables, v, labels)
	require.NoError(t, err)
	return m, v
}

func TestBuildStreamFile(t *testing.T) {
	b := &arctest.Builder{
		Streams: []arctest.StreamFile{{Path: "fighter/mario/a.bin", Data: []byte("hello world")}},
	}
	m, _ := buildModel(t, b)

	h := hash40.New("fighter/mario/a.bin")
	entry, ok := m.Lookup(h)
	require.True(t, ok)
	require.Equal(t, KindRaw, entry.Kind)
	require.Equal(t, 11, entry.DataLen)

	name, ok := m.GetName(h)
	require.True(t, ok)
	require.Equal(t, "fighter/mario/a.bin", name)
}

func TestBuildCompressedFile(t *testing.T) {
	payload := []byte(strings.Repeat("compress-me ", 40))
	b := &arctest.Builder{
		Compressed: []arctest.CompressedFile{{Path: "sound/bank/se.nus3bank", Data: payload}},
	}
	m, _ := buildModel(t, b)

	h := hash40.New("sound/bank/se.nus3bank")
	entry, ok := m.Lookup(h)
	require.True(t, ok)
	require.Equal(t, KindCompressed, entry.Kind)
	require.Equal(t, int64(len(payload)), entry.DecompSize)
}

func TestAncestorDirectoriesCreated(t *testing.T) {
	b := &arctest.Builder{
		Streams: []arctest.StreamFile{
			{Path: "fighter/mario/a.bin", Data: []byte("1")},
			{Path: "fighter/mario/sub/b.bin", Data: []byte("2")},
		},
	}
	m, _ := buildModel(t, b)

	dirHash := hash40.New("fighter/mario")
	entry, ok := m.Lookup(dirHash)
	require.True(t, ok)
	require.Equal(t, KindDirectory, entry.Kind)

	listing, ok := m.GetDirListing(dirHash)
	require.True(t, ok)
	require.Len(t, listing, 2)

	stems := map[string]bool{}
	for _, e := range listing {
		stems[e.Stem] = true
	}
	require.True(t, stems["a.bin"])
	require.True(t, stems["sub"])
}

func TestRootDirectoryAlwaysPresent(t *testing.T) {
	b := &arctest.Builder{}
	m, _ := buildModel(t, b)

	entry, ok := m.Lookup(hash40.Root)
	require.True(t, ok)
	require.Equal(t, KindDirectory, entry.Kind)

	_, ok = m.GetDirListing(hash40.Root)
	require.True(t, ok)
}

func TestMissingLabelSkipsEntry(t *testing.T) {
	// Build an archive with a stream entry, but don't supply its label --
	// the entry should simply be absent from the model, not an error.
	b := &arctest.Builder{
		Streams: []arctest.StreamFile{{Path: "unlabeled/path.bin", Data: []byte("x")}},
	}
	archive, _, err := b.Build()
	require.NoError(t, err)

	v := mmapview.New(archive)
	tables, err := index.Parse(v)
	require.NoError(t, err)

	labels := hash40.NewLabelStore() // empty: no labels loaded
	m, err := Build(tables, v, labels)
	require.NoError(t, err)

	_, ok := m.Lookup(hash40.New("unlabeled/path.bin"))
	require.False(t, ok)
}

func TestDirListingNotADirectory(t *testing.T) {
	b := &arctest.Builder{
		Streams: []arctest.StreamFile{{Path: "a.bin", Data: []byte("1")}},
	}
	m, _ := buildModel(t, b)

	_, ok := m.GetDirListing(hash40.New("a.bin"))
	require.False(t, ok)
}

func TestTreeClosureInvariant(t *testing.T) {
	b := &arctest.Builder{
		Streams: []arctest.StreamFile{
			{Path: "fighter/mario/a.bin", Data: []byte("1")},
			{Path: "fighter/mario/sub/b.bin", Data: []byte("2")},
		},
		Compressed: []arctest.CompressedFile{
			{Path: "fighter/mario/c.bin", Data: []byte(strings.Repeat("z", 64))},
		},
	}
	m, _ := buildModel(t, b)

	// Every directory's children are present in files.
	for dir, children := range m.dirChildren {
		_, ok := m.files[dir]
		require.True(t, ok, "directory %v missing from files", dir)
		for c := range children {
			_, ok := m.files[c]
			require.True(t, ok, "child %v of %v missing from files", c, dir)
		}
	}

	// Every non-root file is a child of exactly one directory.
	counts := map[hash40.Hash40]int{}
	for _, children := range m.dirChildren {
		for c := range children {
			counts[c]++
		}
	}
	for h, entry := range m.files {
		if h == hash40.Root {
			continue
		}
		require.Equal(t, 1, counts[h], "entry %v (%v) has %d parents", h, entry.Kind, counts[h])
	}
}
