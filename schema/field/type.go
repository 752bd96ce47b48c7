package field

import (
	"fmt"
	"strings"
)

// Type is the storage type of an attribute.
type Type uint8

// Attribute types.
const (
	TypeInvalid Type = iota
	TypeString       // VARCHAR, CHAR, TEXT, CLOB
	TypeInt          // INTEGER, SMALLINT, TINYINT
	TypeInt64        // BIGINT; also used for epoch-millisecond timestamps
	TypeFloat        // NUMERIC, DECIMAL, DOUBLE, REAL, FLOAT
	TypeBool         // BOOLEAN, BIT
	TypeDate         // DATE
	TypeTime         // TIMESTAMP, DATETIME
	TypeBytes        // BLOB, BINARY, VARBINARY
	endTypes
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeString:  "string",
	TypeInt:     "int",
	TypeInt64:   "int64",
	TypeFloat:   "float",
	TypeBool:    "bool",
	TypeDate:    "date",
	TypeTime:    "time",
	TypeBytes:   "bytes",
}

// sqlTypes maps SQL type names, as written in entity definitions, to types.
var sqlTypes = map[string]Type{
	"VARCHAR":   TypeString,
	"CHAR":      TypeString,
	"NVARCHAR":  TypeString,
	"NCHAR":     TypeString,
	"TEXT":      TypeString,
	"CLOB":      TypeString,
	"STRING":    TypeString,
	"INTEGER":   TypeInt,
	"INT":       TypeInt,
	"SMALLINT":  TypeInt,
	"TINYINT":   TypeInt,
	"BIGINT":    TypeInt64,
	"LONG":      TypeInt64,
	"INT64":     TypeInt64,
	"NUMERIC":   TypeFloat,
	"DECIMAL":   TypeFloat,
	"DOUBLE":    TypeFloat,
	"REAL":      TypeFloat,
	"FLOAT":     TypeFloat,
	"BOOLEAN":   TypeBool,
	"BOOL":      TypeBool,
	"BIT":       TypeBool,
	"DATE":      TypeDate,
	"TIMESTAMP": TypeTime,
	"DATETIME":  TypeTime,
	"TIME":      TypeTime,
	"BLOB":      TypeBytes,
	"BINARY":    TypeBytes,
	"VARBINARY": TypeBytes,
	"BYTES":     TypeBytes,
}

// ParseType parses an SQL type name. Size suffixes such as VARCHAR(255) are
// ignored. Lowercase Go-style names ("string", "int64", ...) are accepted too.
func ParseType(s string) (Type, error) {
	name := strings.TrimSpace(s)
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	if t, ok := sqlTypes[strings.ToUpper(name)]; ok {
		return t, nil
	}
	for t := TypeString; t < endTypes; t++ {
		if typeNames[t] == name {
			return t, nil
		}
	}
	return TypeInvalid, fmt.Errorf("field: unknown sql type %q", s)
}

// String returns the type name.
func (t Type) String() string {
	if t < endTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", t)
}

// Valid reports if the type is a known attribute type.
func (t Type) Valid() bool {
	return t > TypeInvalid && t < endTypes
}

// IsString reports if the type holds character data.
func (t Type) IsString() bool {
	return t == TypeString
}

// IsTemporal reports if the type is a date or a timestamp.
func (t Type) IsTemporal() bool {
	return t == TypeDate || t == TypeTime
}

// IsNumeric reports if the type is an integer or a decimal type.
func (t Type) IsNumeric() bool {
	return t == TypeInt || t == TypeInt64 || t == TypeFloat
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
