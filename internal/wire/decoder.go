package wire

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/juju/errors"

	"github.com/virusdefender/duckdb-ui/internal/engine"
)

type FrameKind int

const (
	FrameEmpty FrameKind = iota
	FrameSuccess
	FrameError
)

// Frame is a decoded result frame.
type Frame struct {
	Kind    FrameKind
	Error   string
	Columns []engine.Column
	Chunks  []*engine.Chunk
}

// Rows returns the total row count over all chunks.
func (f *Frame) Rows() int {
	n := 0
	for _, c := range f.Chunks {
		n += c.Rows()
	}
	return n
}

type decoder struct {
	p   []byte
	off int
}

func (d *decoder) need(n int) error {
	if d.off+n > len(d.p) {
		return errors.NotValidf("frame truncated at offset %d", d.off)
	}
	return nil
}

func (d *decoder) peekField() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(d.p[d.off:]), nil
}

func (d *decoder) field() (uint16, error) {
	id, err := d.peekField()
	if err != nil {
		return 0, err
	}
	d.off += 2
	return id, nil
}

func (d *decoder) expect(id uint16) error {
	got, err := d.field()
	if err != nil {
		return err
	}
	if got != id {
		return errors.NotValidf("field %d at offset %d (want %d)", got, d.off-2, id)
	}
	return nil
}

func (d *decoder) varint() (uint64, error) {
	v, n := binary.Uvarint(d.p[d.off:])
	if n <= 0 {
		return 0, errors.NotValidf("varint at offset %d", d.off)
	}
	d.off += n
	return v, nil
}

func (d *decoder) bytes() ([]byte, error) {
	n, err := d.varint()
	if err != nil {
		return nil, err
	}
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	b := d.p[d.off : d.off+int(n)]
	d.off += int(n)
	return b, nil
}

func (d *decoder) str() (string, error) {
	b, err := d.bytes()
	return string(b), err
}

// Decode parses a frame produced by Empty, Error or SuccessBuilder.
func Decode(p []byte) (*Frame, error) {
	d := &decoder{p: p}
	id, err := d.peekField()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if id == endOfObject {
		return &Frame{Kind: FrameEmpty}, nil
	}

	if err := d.expect(100); err != nil {
		return nil, errors.Trace(err)
	}
	ok, err := d.varint()
	if err != nil {
		return nil, errors.Trace(err)
	}
	if ok == 0 {
		if err := d.expect(101); err != nil {
			return nil, errors.Trace(err)
		}
		msg, err := d.str()
		if err != nil {
			return nil, errors.Trace(err)
		}
		return &Frame{Kind: FrameError, Error: msg}, d.expect(endOfObject)
	}

	f := &Frame{Kind: FrameSuccess}
	if f.Columns, err = d.columns(); err != nil {
		return nil, errors.Trace(err)
	}
	if err := d.expect(102); err != nil {
		return nil, errors.Trace(err)
	}
	count, err := d.varint()
	if err != nil {
		return nil, errors.Trace(err)
	}
	for i := uint64(0); i < count; i++ {
		chunk, err := d.chunk(f.Columns)
		if err != nil {
			return nil, errors.Annotatef(err, "chunk %d", i)
		}
		f.Chunks = append(f.Chunks, chunk)
	}
	return f, errors.Trace(d.expect(endOfObject))
}

func (d *decoder) columns() ([]engine.Column, error) {
	if err := d.expect(101); err != nil {
		return nil, err
	}
	if err := d.expect(100); err != nil {
		return nil, err
	}
	n, err := d.varint()
	if err != nil {
		return nil, err
	}
	cols := make([]engine.Column, n)
	for i := range cols {
		if cols[i].Name, err = d.str(); err != nil {
			return nil, err
		}
	}
	if err := d.expect(101); err != nil {
		return nil, err
	}
	m, err := d.varint()
	if err != nil {
		return nil, err
	}
	if m != n {
		return nil, errors.NotValidf("%d types for %d names", m, n)
	}
	for i := range cols {
		if err := d.expect(100); err != nil {
			return nil, err
		}
		id, err := d.varint()
		if err != nil {
			return nil, err
		}
		cols[i].Type = engine.TypeID(id)
		if err := d.expect(endOfObject); err != nil {
			return nil, err
		}
	}
	return cols, d.expect(endOfObject)
}

func (d *decoder) chunk(cols []engine.Column) (*engine.Chunk, error) {
	if err := d.expect(100); err != nil {
		return nil, err
	}
	rows, err := d.varint()
	if err != nil {
		return nil, err
	}
	if err := d.expect(101); err != nil {
		return nil, err
	}
	n, err := d.varint()
	if err != nil {
		return nil, err
	}
	if int(n) != len(cols) {
		return nil, errors.NotValidf("%d vectors for %d columns", n, len(cols))
	}
	chunk := engine.NewChunk(cols, int(rows))
	for i := range chunk.Vectors {
		if err := d.vector(&chunk.Vectors[i], int(rows)); err != nil {
			return nil, errors.Annotatef(err, "column %q", cols[i].Name)
		}
	}
	return chunk, d.expect(endOfObject)
}

func (d *decoder) vector(v *engine.Vector, rows int) error {
	if err := d.expect(100); err != nil {
		return err
	}
	hasValidity, err := d.varint()
	if err != nil {
		return err
	}
	valid := func(int) bool { return true }
	if hasValidity != 0 {
		if err := d.expect(101); err != nil {
			return err
		}
		mask, err := d.bytes()
		if err != nil {
			return err
		}
		if len(mask) < (rows+63)/64*8 {
			return errors.NotValidf("validity mask of %d bytes for %d rows", len(mask), rows)
		}
		valid = func(i int) bool {
			word := binary.LittleEndian.Uint64(mask[i/64*8:])
			return word&(1<<(uint(i)%64)) != 0
		}
	}

	if err := d.expect(102); err != nil {
		return err
	}
	if width := v.Type.FixedWidth(); width > 0 {
		data, err := d.bytes()
		if err != nil {
			return err
		}
		if len(data) != width*rows {
			return errors.NotValidf("%d data bytes for %d rows of %s", len(data), rows, v.Type)
		}
		for i := 0; i < rows; i++ {
			if !valid(i) {
				v.Values = append(v.Values, nil)
				continue
			}
			v.Values = append(v.Values, readFixed(data[i*width:(i+1)*width], v.Type))
		}
		return d.expect(endOfObject)
	}

	n, err := d.varint()
	if err != nil {
		return err
	}
	if int(n) != rows {
		return errors.NotValidf("%d values for %d rows", n, rows)
	}
	for i := 0; i < rows; i++ {
		b, err := d.bytes()
		if err != nil {
			return err
		}
		switch {
		case !valid(i):
			v.Values = append(v.Values, nil)
		case v.Type == engine.TypeBlob:
			v.Values = append(v.Values, append([]byte(nil), b...))
		default:
			v.Values = append(v.Values, string(b))
		}
	}
	return d.expect(endOfObject)
}

func readFixed(b []byte, t engine.TypeID) any {
	switch t {
	case engine.TypeBoolean:
		return b[0] != 0
	case engine.TypeInteger:
		return int32(binary.LittleEndian.Uint32(b))
	case engine.TypeBigInt:
		return int64(binary.LittleEndian.Uint64(b))
	case engine.TypeDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case engine.TypeTimestamp:
		return time.UnixMicro(int64(binary.LittleEndian.Uint64(b))).UTC()
	}
	return nil
}

// DecodeTokenize parses a frame produced by Tokenize.
func DecodeTokenize(p []byte) ([]int, []uint8, error) {
	d := &decoder{p: p}
	if err := d.expect(100); err != nil {
		return nil, nil, errors.Trace(err)
	}
	n, err := d.varint()
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	offsets := make([]int, n)
	for i := range offsets {
		v, err := d.varint()
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		offsets[i] = int(v)
	}
	if err := d.expect(101); err != nil {
		return nil, nil, errors.Trace(err)
	}
	m, err := d.varint()
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	types := make([]uint8, m)
	for i := range types {
		v, err := d.varint()
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		types[i] = uint8(v)
	}
	return offsets, types, errors.Trace(d.expect(endOfObject))
}
