// Package wire encodes query results in the binary object format the UI
// client deserializes: little-endian uint16 field ids, LEB128 varints for
// integers and lengths, and a 0xFFFF terminator closing every object.
package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"time"

	"github.com/juju/errors"

	"github.com/virusdefender/duckdb-ui/internal/engine"
)

const endOfObject uint16 = 0xFFFF

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) field(id uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], id)
	e.buf.Write(b[:])
}

func (e *encoder) end() {
	e.field(endOfObject)
}

func (e *encoder) varint(v uint64) {
	var b [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(b[:], v)
	e.buf.Write(b[:n])
}

func (e *encoder) boolean(v bool) {
	if v {
		e.varint(1)
	} else {
		e.varint(0)
	}
}

func (e *encoder) str(s string) {
	e.varint(uint64(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) data(p []byte) {
	e.varint(uint64(len(p)))
	e.buf.Write(p)
}

// Empty is the frame for requests that succeed without a result.
func Empty() []byte {
	var e encoder
	e.end()
	return e.buf.Bytes()
}

// Error is the frame for any failed request.
func Error(message string) []byte {
	var e encoder
	e.field(100)
	e.boolean(false)
	e.field(101)
	e.str(message)
	e.end()
	return e.buf.Bytes()
}

// Tokenize is the frame for the tokenizer endpoint.
func Tokenize(offsets []int, types []uint8) []byte {
	var e encoder
	e.field(100)
	e.varint(uint64(len(offsets)))
	for _, o := range offsets {
		e.varint(uint64(o))
	}
	e.field(101)
	e.varint(uint64(len(types)))
	for _, t := range types {
		e.varint(uint64(t))
	}
	e.end()
	return e.buf.Bytes()
}

// SuccessBuilder assembles a success frame. Nothing is written to the
// client until Bytes is called, so a failure while draining the result can
// still be reported as an Error frame.
type SuccessBuilder struct {
	columns []engine.Column
	chunks  encoder
	count   int
	rows    int
}

func NewSuccess(columns []engine.Column) *SuccessBuilder {
	return &SuccessBuilder{columns: columns}
}

func (b *SuccessBuilder) AddChunk(c *engine.Chunk) error {
	if len(c.Vectors) != len(b.columns) {
		return errors.NotValidf("chunk with %d vectors for %d columns", len(c.Vectors), len(b.columns))
	}
	rows := c.Rows()
	if rows > math.MaxUint16 {
		return errors.NotValidf("chunk of %d rows", rows)
	}

	e := &encoder{}
	e.field(100)
	e.varint(uint64(rows))
	e.field(101)
	e.varint(uint64(len(c.Vectors)))
	for i := range c.Vectors {
		if err := encodeVector(e, &c.Vectors[i], rows); err != nil {
			return errors.Annotatef(err, "column %q", b.columns[i].Name)
		}
	}
	e.end()
	b.chunks.buf.Write(e.buf.Bytes())
	b.count++
	b.rows += rows
	return nil
}

func (b *SuccessBuilder) Chunks() int { return b.count }

func (b *SuccessBuilder) Rows() int { return b.rows }

func (b *SuccessBuilder) Bytes() []byte {
	var e encoder
	e.field(100)
	e.boolean(true)

	e.field(101)
	e.field(100)
	e.varint(uint64(len(b.columns)))
	for _, c := range b.columns {
		e.str(c.Name)
	}
	e.field(101)
	e.varint(uint64(len(b.columns)))
	for _, c := range b.columns {
		e.field(100)
		e.varint(uint64(c.Type))
		e.end()
	}
	e.end()

	e.field(102)
	e.varint(uint64(b.count))
	e.buf.Write(b.chunks.buf.Bytes())
	e.end()
	return e.buf.Bytes()
}

func encodeVector(e *encoder, v *engine.Vector, rows int) error {
	hasNulls := rows > 0 && v.HasNulls()
	e.field(100)
	e.boolean(hasNulls)
	if hasNulls {
		e.field(101)
		e.data(validityMask(v.Values))
	}

	e.field(102)
	if width := v.Type.FixedWidth(); width > 0 {
		data := make([]byte, width*rows)
		for i, x := range v.Values {
			if err := putFixed(data[i*width:(i+1)*width], v.Type, x); err != nil {
				return errors.Annotatef(err, "row %d", i)
			}
		}
		e.data(data)
		e.end()
		return nil
	}

	switch v.Type {
	case engine.TypeVarchar, engine.TypeBlob:
		e.varint(uint64(rows))
		for i, x := range v.Values {
			switch s := x.(type) {
			case nil:
				e.str("")
			case string:
				e.str(s)
			case []byte:
				e.data(s)
			default:
				return errors.NotValidf("%T in %s row %d", x, v.Type, i)
			}
		}
	default:
		return errors.NotSupportedf("column type %s", v.Type)
	}
	e.end()
	return nil
}

// validityMask packs one bit per row into little-endian 64-bit words, with
// a set bit marking a valid row.
func validityMask(values []any) []byte {
	words := (len(values) + 63) / 64
	mask := make([]uint64, words)
	for i, x := range values {
		if x != nil {
			mask[i/64] |= 1 << (uint(i) % 64)
		}
	}
	out := make([]byte, words*8)
	for i, w := range mask {
		binary.LittleEndian.PutUint64(out[i*8:], w)
	}
	return out
}

func putFixed(dst []byte, t engine.TypeID, x any) error {
	if x == nil {
		return nil
	}
	switch t {
	case engine.TypeBoolean:
		b, ok := x.(bool)
		if !ok {
			break
		}
		if b {
			dst[0] = 1
		}
		return nil
	case engine.TypeInteger:
		n, ok := x.(int32)
		if !ok {
			break
		}
		binary.LittleEndian.PutUint32(dst, uint32(n))
		return nil
	case engine.TypeBigInt:
		n, ok := x.(int64)
		if !ok {
			break
		}
		binary.LittleEndian.PutUint64(dst, uint64(n))
		return nil
	case engine.TypeDouble:
		f, ok := x.(float64)
		if !ok {
			break
		}
		binary.LittleEndian.PutUint64(dst, math.Float64bits(f))
		return nil
	case engine.TypeTimestamp:
		ts, ok := x.(time.Time)
		if !ok {
			break
		}
		binary.LittleEndian.PutUint64(dst, uint64(ts.UnixMicro()))
		return nil
	}
	return errors.NotValidf("%T value for %s", x, t)
}
