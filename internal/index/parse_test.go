package index

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultimate-research/arcfs/internal/arctest"
	"github.com/ultimate-research/arcfs/internal/binfmt"
	"github.com/ultimate-research/arcfs/internal/mmapview"
)

func buildTables(t *testing.T, b *arctest.Builder) (*Tables, *mmapview.View) {
	t.Helper()
	archive, _, err := b.Build()
	require.NoError(t, err)
	v := mmapview.New(archive)
	tables, err := Parse(v)
	require.NoError(t, err)
	return tables, v
}

func TestParseMinimalArchive(t *testing.T) {
	b := &arctest.Builder{
		Streams:    []arctest.StreamFile{{Path: "a.bin", Data: []byte("hello")}},
		Compressed: []arctest.CompressedFile{{Path: "b.bin", Data: []byte("world, decompressed")}},
	}
	tables, _ := buildTables(t, b)

	require.Equal(t, 1, tables.StreamEntries.Len())
	require.Len(t, tables.StreamOffsetEntries, 1)
	require.Len(t, tables.FileInfos, 1)
	require.Len(t, tables.FileInfoPaths, 1)
	require.Len(t, tables.SubFileInfo, 1)
	require.Equal(t, 1, tables.DirOffsets.Len())
}

func TestParseBadMagic(t *testing.T) {
	b := &arctest.Builder{}
	archive, _, err := b.Build()
	require.NoError(t, err)

	// Corrupt the magic in place.
	for i := 0; i < 8; i++ {
		archive[i] = 0xFF
	}
	v := mmapview.New(archive)
	_, err = Parse(v)
	require.Error(t, err)
	var ce *mmapview.CorruptError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "bad magic", ce.Detail)
}

func TestParseTruncatedArchive(t *testing.T) {
	b := &arctest.Builder{
		Streams: []arctest.StreamFile{{Path: "a.bin", Data: []byte("hello")}},
	}
	archive, _, err := b.Build()
	require.NoError(t, err)

	v := mmapview.New(archive[:40]) // shorter than the 48-byte ArcHeader
	_, err = Parse(v)
	require.Error(t, err)
}

func TestStreamEntryHash40(t *testing.T) {
	b := &arctest.Builder{
		Streams: []arctest.StreamFile{{Path: "fighter/mario/model.nutexb", Data: []byte("x")}},
	}
	tables, _ := buildTables(t, b)

	crc, nameLen, idx, _ := tables.StreamEntries.At(0)
	require.Equal(t, uint32(0), idx)
	require.Equal(t, uint8(len("fighter/mario/model.nutexb")), nameLen)
	require.Equal(t, crc32.ChecksumIEEE([]byte("fighter/mario/model.nutexb")), crc)
}

func TestFileInfoRedirectFlag(t *testing.T) {
	require.Equal(t, uint32(0x10), uint32(binfmt.Redirect))
}
