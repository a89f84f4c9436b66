package fetch

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/ultimate-research/arcfs/internal/hash40"
	"github.com/ultimate-research/arcfs/internal/mmapview"
	"github.com/ultimate-research/arcfs/internal/model"
)

func zstdCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestGetRawZeroCopy(t *testing.T) {
	archive := []byte("0123456789raw-payload-here")
	v := mmapview.New(archive)
	f := New(v, 0)

	entry := model.FileEntry{Kind: model.KindRaw, DataOffset: 10, DataLen: 16}
	h := hash40.New("raw")
	data, err := f.Get(h, entry)
	require.NoError(t, err)
	require.Equal(t, "raw-payload-here", string(data))
}

func TestGetCompressedDecompresses(t *testing.T) {
	payload := []byte(strings.Repeat("abcdefgh", 100))
	comp := zstdCompress(t, payload)

	archive := append([]byte("prefix--"), comp...)
	v := mmapview.New(archive)
	f := New(v, 0)

	entry := model.FileEntry{
		Kind:       model.KindCompressed,
		DataOffset: 8,
		DataLen:    len(comp),
		DecompSize: int64(len(payload)),
	}
	h := hash40.New("compressed")

	data, err := f.Get(h, entry)
	require.NoError(t, err)
	require.Equal(t, payload, data)

	// Second call hits the cache and returns byte-identical data (spec §8 property 6).
	data2, err := f.Get(h, entry)
	require.NoError(t, err)
	require.Equal(t, data, data2)
}

func TestGetStoredCompressedSkipsDecode(t *testing.T) {
	payload := []byte("short") // comp_size == decomp_size: served as-is.
	archive := append([]byte("prefix--"), payload...)
	v := mmapview.New(archive)
	f := New(v, 0)

	entry := model.FileEntry{
		Kind:       model.KindCompressed,
		DataOffset: 8,
		DataLen:    len(payload),
		DecompSize: int64(len(payload)),
		Stored:     true,
	}
	data, err := f.Get(hash40.New("stored"), entry)
	require.NoError(t, err)
	require.Equal(t, payload, data)
}

func TestDecompressFailureIsCorrupt(t *testing.T) {
	archive := []byte("not-zstd-data-at-all-xxxxxxxxxxx")
	v := mmapview.New(archive)
	f := New(v, 0)

	entry := model.FileEntry{Kind: model.KindCompressed, DataOffset: 0, DataLen: len(archive), DecompSize: 100}
	_, err := f.Get(hash40.New("bad"), entry)
	require.Error(t, err)
	var ce *CorruptError
	require.ErrorAs(t, err, &ce)
}

func TestReadRangeClamp(t *testing.T) {
	archive := make([]byte, 500)
	for i := range archive {
		archive[i] = byte(i)
	}
	v := mmapview.New(archive)
	f := New(v, 0)

	entry := model.FileEntry{Kind: model.KindRaw, DataOffset: 0, DataLen: 500}
	h := hash40.New("r")

	got, err := f.Read(h, entry, 10, 1_000_000)
	require.NoError(t, err)
	require.Len(t, got, 490)

	got, err = f.Read(h, entry, 600, 10)
	require.NoError(t, err)
	require.Len(t, got, 0)
}
