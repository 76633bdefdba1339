package storage

// ValueType tags the variant held by a Value.
type ValueType int

const (
	TypeNull ValueType = iota
	TypeInt
	TypeReal
	TypeText
	TypeBlob
)

// Value is a tagged union over the four SQL-ish scalar kinds a cell can
// carry (spec.md §3.1). Integers and floats are held by value; text and
// blob hold a byte slice whose backing memory may be either owned by
// the Value's containing Cell or borrowed from a pinned page — see
// Cell.Ownership.
type Value struct {
	Type  ValueType
	Int   int64
	Real  float64
	Bytes []byte // text or blob payload; text bytes are UTF-8
}

func NullValue() Value             { return Value{Type: TypeNull} }
func IntValue(v int64) Value       { return Value{Type: TypeInt, Int: v} }
func RealValue(v float64) Value    { return Value{Type: TypeReal, Real: v} }
func TextValue(s string) Value     { return Value{Type: TypeText, Bytes: []byte(s)} }
func BlobValue(b []byte) Value     { return Value{Type: TypeBlob, Bytes: b} }

func (v Value) Text() string { return string(v.Bytes) }

// Equal compares two values by tag and by the bytes they carry — text
// and blob compare by content, not by backing-slice identity, so a
// borrowed Value and a deep copy of the same bytes are Equal.
func (v Value) Equal(other Value) bool {
	if v.Type != other.Type {
		return false
	}
	switch v.Type {
	case TypeNull:
		return true
	case TypeInt:
		return v.Int == other.Int
	case TypeReal:
		return v.Real == other.Real
	case TypeText, TypeBlob:
		if len(v.Bytes) != len(other.Bytes) {
			return false
		}
		for i := range v.Bytes {
			if v.Bytes[i] != other.Bytes[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ColumnType is one of the four declared SQL column types (spec.md
// §3.2). It constrains which Value tags validate against the column,
// not which tag a serialized cell must use on disk.
type ColumnType int

const (
	ColInteger ColumnType = iota
	ColText
	ColReal
	ColBlob
)

func (t ColumnType) String() string {
	switch t {
	case ColInteger:
		return "INTEGER"
	case ColText:
		return "TEXT"
	case ColReal:
		return "REAL"
	case ColBlob:
		return "BLOB"
	default:
		return "UNKNOWN"
	}
}

// Column describes one column of a table (spec.md §3.2).
type Column struct {
	Name     string
	Type     ColumnType
	NotNull  bool
	PK       bool
}

// MaxCols is the hard cap on columns per table (spec.md §3.2).
const MaxCols = 10

// ValidateColumns enforces spec.md §3.2's table invariants: at most one
// PK column, unique column names, and no more than MaxCols columns.
func ValidateColumns(cols []Column) error {
	if len(cols) == 0 {
		return newErr("validate_columns", KindInvalidBounds, 0, nil)
	}
	if len(cols) > MaxCols {
		return newErr("validate_columns", KindInvalidBounds, 0, nil)
	}
	seen := make(map[string]struct{}, len(cols))
	pkSeen := false
	for _, c := range cols {
		if _, dup := seen[c.Name]; dup {
			return newErr("validate_columns", KindInvalidBounds, 0, nil)
		}
		seen[c.Name] = struct{}{}
		if c.PK {
			if pkSeen {
				return newErr("validate_columns", KindInvalidBounds, 0, nil)
			}
			pkSeen = true
		}
	}
	return nil
}

// ValidateValues checks arity, NOT NULL constraints, and type
// compatibility between values and the columns they're destined for
// (spec.md §4.3's validate operation). TEXT and BLOB are mutually
// acceptable since both are stored as raw byte ranges; REAL accepts
// either an integer or a float literal.
func ValidateValues(values []Value, cols []Column) error {
	if len(values) != len(cols) {
		return newErr("validate", KindInvalidBounds, 0, nil)
	}
	for i, v := range values {
		c := cols[i]
		if v.Type == TypeNull {
			if c.NotNull {
				return newErr("validate", KindInvalidBounds, 0, nil)
			}
			continue
		}
		switch c.Type {
		case ColInteger:
			if v.Type != TypeInt {
				return newErr("validate", KindInvalidBounds, 0, nil)
			}
		case ColReal:
			if v.Type != TypeInt && v.Type != TypeReal {
				return newErr("validate", KindInvalidBounds, 0, nil)
			}
		case ColText, ColBlob:
			if v.Type != TypeText && v.Type != TypeBlob {
				return newErr("validate", KindInvalidBounds, 0, nil)
			}
		default:
			return newErr("validate", KindInvalidBounds, 0, nil)
		}
	}
	return nil
}
