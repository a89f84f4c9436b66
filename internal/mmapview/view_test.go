package mmapview

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type pair struct {
	A uint32
	B uint32
}

func TestRecordRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	buf[0], buf[4] = 1, 2 // little-endian 1, 2
	v := New(buf)

	p, err := ArchiveRecord[pair](v, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(1), p.A)
	require.Equal(t, uint32(2), p.B)
}

func TestRecordOutOfBounds(t *testing.T) {
	v := New(make([]byte, 4))
	_, err := ArchiveRecord[pair](v, 0)
	require.Error(t, err)
	var ce *CorruptError
	require.ErrorAs(t, err, &ce)
}

func TestSliceBounds(t *testing.T) {
	v := New(make([]byte, 24))
	s, err := ArchiveSlice[pair](v, 0, 3)
	require.NoError(t, err)
	require.Len(t, s, 3)

	_, err = ArchiveSlice[pair](v, 0, 4)
	require.Error(t, err)
}

func TestSliceZeroLength(t *testing.T) {
	v := New(make([]byte, 4))
	s, err := ArchiveSlice[pair](v, 100, 0)
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestIndexBuffer(t *testing.T) {
	v := New(make([]byte, 4))
	v.SetIndex(make([]byte, 8))
	require.Equal(t, 4, v.ArchiveLen())
	require.Equal(t, 8, v.IndexLen())

	_, err := IndexRecord[pair](v, 0)
	require.NoError(t, err)
	_, err = IndexRecord[pair](v, 4)
	require.Error(t, err)
}

func TestArchiveBytesOverflow(t *testing.T) {
	v := New(make([]byte, 10))
	_, err := v.ArchiveBytes(8, 5)
	require.Error(t, err)

	b, err := v.ArchiveBytes(8, 2)
	require.NoError(t, err)
	require.Len(t, b, 2)
}
