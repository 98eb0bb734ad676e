package jast

import "strings"

// Type names a type by its source name: a primitive keyword, a declared
// type name, or either followed by "[]".
type Type string

const (
	Void    Type = "void"
	Boolean Type = "boolean"
	Byte    Type = "byte"
	Char    Type = "char"
	Short   Type = "short"
	Int     Type = "int"
	Long    Type = "long"
	Float   Type = "float"
	Double  Type = "double"
)

var primitiveDescriptors = map[Type]string{
	Void:    "V",
	Boolean: "Z",
	Byte:    "B",
	Char:    "C",
	Short:   "S",
	Int:     "I",
	Long:    "J",
	Float:   "F",
	Double:  "D",
}

// IsVoid reports whether the type carries no value.
func (t Type) IsVoid() bool { return t == Void || t == "" }

// IsPrimitive reports whether t is a primitive keyword.
func (t Type) IsPrimitive() bool {
	_, ok := primitiveDescriptors[t]
	return ok
}

// Elem returns the element type of an array type and false otherwise.
func (t Type) Elem() (Type, bool) {
	s, ok := strings.CutSuffix(string(t), "[]")
	return Type(s), ok
}

// Descriptor returns the JVM-style descriptor used in fragment member
// references, e.g. "I", "[Z", "Lcom/acme/Greeter;".
func (t Type) Descriptor() string {
	if elem, ok := t.Elem(); ok {
		return "[" + elem.Descriptor()
	}
	if d, ok := primitiveDescriptors[t]; ok {
		return d
	}
	if t == "" {
		return "V"
	}
	return "L" + strings.ReplaceAll(string(t), ".", "/") + ";"
}

func (t Type) String() string {
	if t == "" {
		return string(Void)
	}
	return string(t)
}
