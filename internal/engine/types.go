package engine

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/juju/errors"
)

// TypeID is a logical column type. The numeric values are the ones the UI
// client decodes.
type TypeID uint8

const (
	TypeSQLNull   TypeID = 1
	TypeBoolean   TypeID = 10
	TypeInteger   TypeID = 13
	TypeBigInt    TypeID = 14
	TypeTimestamp TypeID = 19
	TypeDouble    TypeID = 23
	TypeVarchar   TypeID = 25
	TypeBlob      TypeID = 26
)

func (t TypeID) String() string {
	switch t {
	case TypeSQLNull:
		return "NULL"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeInteger:
		return "INTEGER"
	case TypeBigInt:
		return "BIGINT"
	case TypeTimestamp:
		return "TIMESTAMP"
	case TypeDouble:
		return "DOUBLE"
	case TypeVarchar:
		return "VARCHAR"
	case TypeBlob:
		return "BLOB"
	}
	return fmt.Sprintf("TYPE(%d)", uint8(t))
}

// FixedWidth is the byte width of one value, or 0 for variable-size types.
func (t TypeID) FixedWidth() int {
	switch t {
	case TypeBoolean:
		return 1
	case TypeInteger:
		return 4
	case TypeBigInt, TypeDouble, TypeTimestamp:
		return 8
	}
	return 0
}

type Column struct {
	Name string
	Type TypeID
}

// Vector is one column of a chunk. Values holds bool, int32, int64,
// float64, time.Time, string or []byte according to Type; a nil entry is a
// SQL NULL.
type Vector struct {
	Type   TypeID
	Values []any
}

func (v *Vector) HasNulls() bool {
	for _, x := range v.Values {
		if x == nil {
			return true
		}
	}
	return false
}

// Chunk is a batch of rows in column-major form.
type Chunk struct {
	Vectors []Vector
}

func NewChunk(cols []Column, capacity int) *Chunk {
	c := &Chunk{Vectors: make([]Vector, len(cols))}
	for i, col := range cols {
		c.Vectors[i] = Vector{Type: col.Type, Values: make([]any, 0, capacity)}
	}
	return c
}

func (c *Chunk) Rows() int {
	if len(c.Vectors) == 0 {
		return 0
	}
	return len(c.Vectors[0].Values)
}

// AppendRow converts each value to its column type and appends the row.
func (c *Chunk) AppendRow(row []any) error {
	if len(row) != len(c.Vectors) {
		return errors.NotValidf("row of %d values for %d columns", len(row), len(c.Vectors))
	}
	converted := make([]any, len(row))
	for i, raw := range row {
		v, err := Coerce(c.Vectors[i].Type, raw)
		if err != nil {
			return errors.Annotatef(err, "column %d", i)
		}
		converted[i] = v
	}
	for i, v := range converted {
		c.Vectors[i].Values = append(c.Vectors[i].Values, v)
	}
	return nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// Coerce converts a driver value to the Go representation of t.
func Coerce(t TypeID, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch t {
	case TypeSQLNull:
		return nil, nil
	case TypeBoolean:
		switch x := raw.(type) {
		case bool:
			return x, nil
		case int64:
			return x != 0, nil
		}
	case TypeInteger:
		switch x := raw.(type) {
		case int32:
			return x, nil
		case int64:
			if x < math.MinInt32 || x > math.MaxInt32 {
				return nil, errors.NotValidf("INTEGER value %d", x)
			}
			return int32(x), nil
		case int:
			return int32(x), nil
		}
	case TypeBigInt:
		switch x := raw.(type) {
		case int64:
			return x, nil
		case int32:
			return int64(x), nil
		case int:
			return int64(x), nil
		case float64:
			if x == math.Trunc(x) {
				return int64(x), nil
			}
		}
	case TypeDouble:
		switch x := raw.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		}
	case TypeTimestamp:
		switch x := raw.(type) {
		case time.Time:
			return x, nil
		case string:
			for _, layout := range timestampLayouts {
				if ts, err := time.Parse(layout, x); err == nil {
					return ts, nil
				}
			}
			return nil, errors.NotValidf("TIMESTAMP value %q", x)
		}
	case TypeVarchar:
		switch x := raw.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		case int64:
			return strconv.FormatInt(x, 10), nil
		case float64:
			return strconv.FormatFloat(x, 'g', -1, 64), nil
		case bool:
			return strconv.FormatBool(x), nil
		case time.Time:
			return x.Format(time.RFC3339Nano), nil
		}
		return fmt.Sprint(raw), nil
	case TypeBlob:
		switch x := raw.(type) {
		case []byte:
			return append([]byte(nil), x...), nil
		case string:
			return []byte(x), nil
		}
	}
	return nil, errors.NotValidf("%T value for %s column", raw, t)
}
