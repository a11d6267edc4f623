package ber

import (
	"fmt"
	"strconv"
)

// TagClass represents the class of a BER tag
// The two high-order bits of the identifier octet are used to encode the class.
type TagClass byte

// Tag classes as defined in X.690
const (
	ClassUniversal       TagClass = 0x00 // 0b00000000 - Universal class (ASN.1 built-in types)
	ClassApplication     TagClass = 0x40 // 0b01000000 - Application class (defined by the application)
	ClassContextSpecific TagClass = 0x80 // 0b10000000 - Context-specific class
	ClassPrivate         TagClass = 0xC0 // 0b11000000 - Private class (defined in private specifications)
)

func (c TagClass) String() string {
	switch c {
	case ClassUniversal:
		return "universal"
	case ClassApplication:
		return "application"
	case ClassContextSpecific:
		return "context"
	case ClassPrivate:
		return "private"
	}
	return "class(" + strconv.Itoa(int(c)) + ")"
}

// TagForm represents the form of a BER tag
// The next bit (bit 5) indicates if the type is primitive or constructed.
type TagForm byte

// Tag forms as defined in X.690
const (
	FormPrimitive   TagForm = 0x00 // 0b00000000 - Primitive encoding
	FormConstructed TagForm = 0x20 // 0b00100000 - Constructed encoding (contains other types)
)

func (f TagForm) String() string {
	if f == FormConstructed {
		return "constructed"
	}
	return "primitive"
}

const (
	classMask  = 0xC0
	formMask   = 0x20
	numberMask = 0x1F
)

// Universal type numbers as defined in X.690 that can appear in a single identifier octet.
const (
	EndOfContent     byte = 0x00
	Boolean          byte = 0x01
	Integer          byte = 0x02
	BitString        byte = 0x03
	OctetString      byte = 0x04
	Null             byte = 0x05
	ObjectIdentifier byte = 0x06
	Real             byte = 0x09
	Enumerated       byte = 0x0A
	UTF8String       byte = 0x0C
	Sequence         byte = 0x10
	Set              byte = 0x11
	UTCTime          byte = 0x17
	GeneralizedTime  byte = 0x18
	VisibleString    byte = 0x1A
)

var universalNames = map[byte]string{
	EndOfContent:     "end-of-content",
	Boolean:          "boolean",
	Integer:          "integer",
	BitString:        "bit-string",
	OctetString:      "octet-string",
	Null:             "null",
	ObjectIdentifier: "object-identifier",
	Real:             "real",
	Enumerated:       "enumerated",
	UTF8String:       "utf8-string",
	Sequence:         "sequence",
	Set:              "set",
	UTCTime:          "utc-time",
	GeneralizedTime:  "generalized-time",
	VisibleString:    "visible-string",
}

// Identifier is a decomposed single-octet BER tag.
// Multi-octet tags (number 0x1F) are not used by GOOSE.
type Identifier struct {
	Class  TagClass
	Form   TagForm
	Number byte
}

// IdentifierFromByte splits an identifier octet into class, form and number.
func IdentifierFromByte(b byte) Identifier {
	return Identifier{
		Class:  TagClass(b & classMask),
		Form:   TagForm(b & formMask),
		Number: b & numberMask,
	}
}

// Byte returns the identifier octet.
func (id Identifier) Byte() byte {
	return byte(id.Class) | byte(id.Form) | id.Number
}

// Constructed reports whether the value holds nested triplets.
func (id Identifier) Constructed() bool {
	return id.Form == FormConstructed
}

func (id Identifier) String() string {
	name := strconv.Itoa(int(id.Number))
	if id.Class == ClassUniversal {
		if n, ok := universalNames[id.Number]; ok {
			name = n
		}
	}
	return fmt.Sprintf("0x%02X(%s %s %s)", id.Byte(), id.Class, id.Form, name)
}

// MakeContextSpecificTag creates a context-specific identifier octet
func MakeContextSpecificTag(tagNumber byte, constructed bool) byte {
	form := FormPrimitive
	if constructed {
		form = FormConstructed
	}
	return byte(ClassContextSpecific) | byte(form) | tagNumber&numberMask
}

// MakeApplicationTag creates an application identifier octet
func MakeApplicationTag(tagNumber byte, constructed bool) byte {
	form := FormPrimitive
	if constructed {
		form = FormConstructed
	}
	return byte(ClassApplication) | byte(form) | tagNumber&numberMask
}
