package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virusdefender/duckdb-ui/internal/engine"
)

func TestEmptyFrame(t *testing.T) {
	assert.Equal(t, []byte{0xff, 0xff}, Empty())

	f, err := Decode(Empty())
	require.NoError(t, err)
	assert.Equal(t, FrameEmpty, f.Kind)
}

func TestErrorFrameBytes(t *testing.T) {
	want := []byte{
		0x64, 0x00, 0x00, // 100: success=false
		0x65, 0x00, 0x04, 'b', 'o', 'o', 'm', // 101: error
		0xff, 0xff,
	}
	assert.Equal(t, want, Error("boom"))

	f, err := Decode(want)
	require.NoError(t, err)
	assert.Equal(t, FrameError, f.Kind)
	assert.Equal(t, "boom", f.Error)
}

func TestSuccessFrameBytes(t *testing.T) {
	cols := []engine.Column{{Name: "n", Type: engine.TypeInteger}}
	chunk := engine.NewChunk(cols, 1)
	require.NoError(t, chunk.AppendRow([]any{int64(7)}))

	b := NewSuccess(cols)
	require.NoError(t, b.AddChunk(chunk))

	want := []byte{
		0x64, 0x00, 0x01, // 100: success=true
		0x65, 0x00, // 101: column names and types
		0x64, 0x00, 0x01, 0x01, 'n', // 100: names
		0x65, 0x00, 0x01, // 101: types
		0x64, 0x00, 0x0d, 0xff, 0xff, // INTEGER
		0xff, 0xff,
		0x66, 0x00, 0x01, // 102: chunks
		0x64, 0x00, 0x01, // 100: row_count
		0x65, 0x00, 0x01, // 101: vectors
		0x64, 0x00, 0x00, // 100: no validity mask
		0x66, 0x00, 0x04, 0x07, 0x00, 0x00, 0x00, // 102: data
		0xff, 0xff, // vector
		0xff, 0xff, // chunk
		0xff, 0xff, // result
	}
	assert.Equal(t, want, b.Bytes())
}

func TestSuccessFrameRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	cols := []engine.Column{
		{Name: "flag", Type: engine.TypeBoolean},
		{Name: "id", Type: engine.TypeBigInt},
		{Name: "score", Type: engine.TypeDouble},
		{Name: "at", Type: engine.TypeTimestamp},
		{Name: "name", Type: engine.TypeVarchar},
		{Name: "raw", Type: engine.TypeBlob},
	}

	b := NewSuccess(cols)
	first := engine.NewChunk(cols, 2)
	require.NoError(t, first.AppendRow([]any{true, int64(1), 1.5, ts, "a", []byte{1}}))
	require.NoError(t, first.AppendRow([]any{nil, nil, nil, nil, nil, nil}))
	require.NoError(t, b.AddChunk(first))

	// 70 rows so the validity mask spans two words.
	second := engine.NewChunk(cols, 70)
	for i := 0; i < 70; i++ {
		var name any = "row"
		if i == 65 {
			name = nil
		}
		require.NoError(t, second.AppendRow([]any{false, int64(i), float64(i), ts, name, []byte{}}))
	}
	require.NoError(t, b.AddChunk(second))
	assert.Equal(t, 2, b.Chunks())
	assert.Equal(t, 72, b.Rows())

	f, err := Decode(b.Bytes())
	require.NoError(t, err)
	require.Equal(t, FrameSuccess, f.Kind)
	assert.Equal(t, cols, f.Columns)
	require.Len(t, f.Chunks, 2)
	assert.Equal(t, 72, f.Rows())

	got := f.Chunks[0]
	assert.Equal(t, []any{true, nil}, got.Vectors[0].Values)
	assert.Equal(t, []any{int64(1), nil}, got.Vectors[1].Values)
	assert.Equal(t, []any{1.5, nil}, got.Vectors[2].Values)
	assert.True(t, ts.Equal(got.Vectors[3].Values[0].(time.Time)))
	assert.Equal(t, []any{"a", nil}, got.Vectors[4].Values)
	assert.Equal(t, []any{[]byte{1}, nil}, got.Vectors[5].Values)

	names := f.Chunks[1].Vectors[4].Values
	assert.Nil(t, names[65])
	assert.Equal(t, "row", names[64])
	assert.Equal(t, "row", names[69])
}

func TestAddChunkRejectsMismatch(t *testing.T) {
	cols := []engine.Column{{Name: "a", Type: engine.TypeBigInt}}
	b := NewSuccess(cols)

	chunk := engine.NewChunk([]engine.Column{{Name: "a", Type: engine.TypeBigInt}, {Name: "b", Type: engine.TypeBigInt}}, 0)
	assert.Error(t, b.AddChunk(chunk))

	bad := &engine.Chunk{Vectors: []engine.Vector{{Type: engine.TypeBigInt, Values: []any{"not a number"}}}}
	assert.Error(t, b.AddChunk(bad))
	assert.Equal(t, 0, b.Chunks())
}

func TestTokenizeFrame(t *testing.T) {
	p := Tokenize([]int{0, 7, 300}, []uint8{4, 0, 1})
	offsets, types, err := DecodeTokenize(p)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 7, 300}, offsets)
	assert.Equal(t, []uint8{4, 0, 1}, types)
}

func TestDecodeTruncated(t *testing.T) {
	frame := Error("boom")
	_, err := Decode(frame[:len(frame)-3])
	assert.Error(t, err)
}
