// Package value implements the tagged values of the script runtime.
//
// A Value is a (Type, payload) pair. The tag is stamped by the constructor
// and never changes; reading the payload under another tag fails with a
// TYPE_MISMATCH error instead of reinterpreting bits.
package value

import "strings"

// Type is the closed enumeration of script value kinds.
type Type uint8

const (
	TypeVoid Type = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeString
	// TypeObject is a reference to any host object. Function parameters
	// declared as TypeObject accept every handle kind.
	TypeObject
	TypeDroid
	TypeStructure
	TypeFeature
	TypeTemplate
	TypePlayer

	numTypes
)

var typeNames = [numTypes]string{
	TypeVoid:      "VOID",
	TypeInt:       "INTEGER",
	TypeFloat:     "FLOAT",
	TypeBool:      "BOOLEAN",
	TypeString:    "STRING",
	TypeObject:    "OBJECT",
	TypeDroid:     "DROID",
	TypeStructure: "STRUCTURE",
	TypeFeature:   "FEATURE",
	TypeTemplate:  "TEMPLATE",
	TypePlayer:    "PLAYER",
}

// String returns the symbolic tag name.
func (t Type) String() string {
	if !t.Valid() {
		return "INVALID"
	}
	return typeNames[t]
}

// Valid reports whether t is a member of the enumeration.
func (t Type) Valid() bool {
	return t < numTypes
}

// IsHandle reports whether values of t are non-owning references into the
// host object model.
func (t Type) IsHandle() bool {
	return t >= TypeObject && t < numTypes
}

// IsNumeric reports whether t is INTEGER or FLOAT.
func (t Type) IsNumeric() bool {
	return t == TypeInt || t == TypeFloat
}

// Accepts reports whether a parameter declared as t accepts a value tagged
// as other. Tags must match exactly, except that OBJECT accepts any handle.
func (t Type) Accepts(other Type) bool {
	if t == other {
		return true
	}
	return t == TypeObject && other.IsHandle()
}

// Types returns every member of the enumeration in numeric order.
func Types() []Type {
	ts := make([]Type, 0, numTypes)
	for t := Type(0); t < numTypes; t++ {
		ts = append(ts, t)
	}
	return ts
}

// ParseType looks a tag up by its symbolic name (case-insensitive).
// A few short aliases used in listings are accepted as well.
func ParseType(name string) (Type, bool) {
	upper := strings.ToUpper(name)
	switch upper {
	case "INT":
		return TypeInt, true
	case "BOOL":
		return TypeBool, true
	case "STR":
		return TypeString, true
	case "OBJ":
		return TypeObject, true
	}
	for t, n := range typeNames {
		if n == upper {
			return Type(t), true
		}
	}
	return 0, false
}
