package varpack

import (
	"fmt"
	"math"
	"sync"
)

// Kind is the leading character of a type signature.
type Kind byte

const (
	KindBool      Kind = 'b'
	KindByte      Kind = 'y'
	KindInt16     Kind = 'n'
	KindUint16    Kind = 'q'
	KindInt32     Kind = 'i'
	KindUint32    Kind = 'u'
	KindInt64     Kind = 'x'
	KindUint64    Kind = 't'
	KindDouble    Kind = 'd'
	KindString    Kind = 's'
	KindVariant   Kind = 'v'
	KindArray     Kind = 'a'
	KindTuple     Kind = '('
	KindDictEntry Kind = '{'
)

func (k Kind) String() string {
	return string(rune(k))
}

// IsBasic returns true for kinds that can be used as dictionary keys.
func (k Kind) IsBasic() bool {
	switch k {
	case KindBool, KindByte, KindInt16, KindUint16, KindInt32, KindUint32, KindInt64, KindUint64, KindDouble, KindString:
		return true
	default:
		return false
	}
}

func (k Kind) isInteger() bool {
	switch k {
	case KindByte, KindInt16, KindUint16, KindInt32, KindUint32, KindInt64, KindUint64:
		return true
	default:
		return false
	}
}

func (k Kind) isSigned() bool {
	return k == KindInt16 || k == KindInt32 || k == KindInt64
}

// intBounds returns the inclusive range of an integer kind.
func (k Kind) intBounds() (lo int64, hi uint64) {
	switch k {
	case KindByte:
		return 0, math.MaxUint8
	case KindUint16:
		return 0, math.MaxUint16
	case KindUint32:
		return 0, math.MaxUint32
	case KindUint64:
		return 0, math.MaxUint64
	case KindInt16:
		return math.MinInt16, math.MaxInt16
	case KindInt32:
		return math.MinInt32, math.MaxInt32
	case KindInt64:
		return math.MinInt64, math.MaxInt64
	default:
		panic(fmt.Sprintf("not an integer kind: %v", k))
	}
}

// Type is a parsed type signature. Types are immutable and can be shared
// between goroutines.
//
// Signatures follow the GVariant notation:
//
//	b y n q i u x t d s v   basic types and variant
//	aT                      array of T
//	a{KV}                   dictionary (K must be basic)
//	(T1T2...)               tuple
type Type struct {
	sig    string
	kind   Kind
	elem   *Type
	fields []*Type
}

var (
	TypeBool        = MustType("b")
	TypeByte        = MustType("y")
	TypeInt16       = MustType("n")
	TypeUint16      = MustType("q")
	TypeInt32       = MustType("i")
	TypeUint32      = MustType("u")
	TypeInt64       = MustType("x")
	TypeUint64      = MustType("t")
	TypeDouble      = MustType("d")
	TypeString      = MustType("s")
	TypeVariant     = MustType("v")
	TypeUnit        = MustType("()")
	TypeByteArray   = MustType("ay")
	TypeStringArray = MustType("as")
	TypeVarDict     = MustType("a{sv}")
)

var typeCache sync.Map // string -> *Type

// ParseType parses a complete type signature.
func ParseType(sig string) (*Type, error) {
	if v, ok := typeCache.Load(sig); ok {
		return v.(*Type), nil
	}
	p := sigParser{sig: sig}
	typ, err := p.parse(false)
	if err != nil {
		return nil, err
	}
	if p.off != len(sig) {
		return nil, p.errf("trailing characters")
	}
	v, _ := typeCache.LoadOrStore(sig, typ)
	return v.(*Type), nil
}

// MustType is like ParseType, but panics on invalid signatures. Use it for
// signatures known at compile time.
func MustType(sig string) *Type {
	typ, err := ParseType(sig)
	if err != nil {
		panic(err)
	}
	return typ
}

// ArrayOf returns the type of an array of elem.
func ArrayOf(elem *Type) *Type {
	return MustType("a" + elem.sig)
}

// TupleOf returns the type of a tuple with the given fields.
func TupleOf(fields ...*Type) *Type {
	sig := "("
	for _, f := range fields {
		sig += f.sig
	}
	return MustType(sig + ")")
}

func (t *Type) String() string    { return t.sig }
func (t *Type) Kind() Kind        { return t.kind }
func (t *Type) Elem() *Type       { return t.elem }
func (t *Type) Fields() []*Type   { return t.fields }
func (t *Type) NumFields() int    { return len(t.fields) }
func (t *Type) Field(i int) *Type { return t.fields[i] }
func (t *Type) IsBasic() bool     { return t.kind.IsBasic() }

func (t *Type) Equal(o *Type) bool {
	return t == o || (t != nil && o != nil && t.sig == o.sig)
}

func (t *Type) IsContainer() bool {
	switch t.kind {
	case KindArray, KindTuple, KindDictEntry, KindVariant:
		return true
	default:
		return false
	}
}

// IsByteArray returns true for "ay".
func (t *Type) IsByteArray() bool {
	return t.kind == KindArray && t.elem.kind == KindByte
}

// IsDict returns true for arrays of dictionary entries.
func (t *Type) IsDict() bool {
	return t.kind == KindArray && t.elem.kind == KindDictEntry
}

// isStringKeyed returns true for record types whose first field is a string:
// "(s...)" tuples and "{s...}" dictionary entries.
func (t *Type) isStringKeyed() bool {
	return (t.kind == KindTuple || t.kind == KindDictEntry) && len(t.fields) > 0 && t.fields[0].kind == KindString
}

type sigParser struct {
	sig string
	off int
}

func (p *sigParser) errf(format string, args ...any) error {
	return fmt.Errorf("varpack: invalid type signature %q at %d: %s", p.sig, p.off, fmt.Sprintf(format, args...))
}

func (p *sigParser) parse(inArray bool) (*Type, error) {
	if p.off >= len(p.sig) {
		return nil, p.errf("unexpected end")
	}
	start := p.off
	c := Kind(p.sig[p.off])
	p.off++
	switch {
	case c.IsBasic() || c == KindVariant:
		return &Type{sig: p.sig[start:p.off], kind: c}, nil
	case c == KindArray:
		elem, err := p.parse(true)
		if err != nil {
			return nil, err
		}
		return &Type{sig: p.sig[start:p.off], kind: c, elem: elem}, nil
	case c == KindTuple:
		var fields []*Type
		for {
			if p.off >= len(p.sig) {
				return nil, p.errf("unterminated tuple")
			}
			if p.sig[p.off] == ')' {
				p.off++
				break
			}
			f, err := p.parse(false)
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		}
		return &Type{sig: p.sig[start:p.off], kind: c, fields: fields}, nil
	case c == KindDictEntry:
		if !inArray {
			p.off--
			return nil, p.errf("dictionary entry outside of an array")
		}
		key, err := p.parse(false)
		if err != nil {
			return nil, err
		}
		if !key.IsBasic() {
			p.off -= len(key.sig)
			return nil, p.errf("dictionary key must be a basic type, got %s", key.sig)
		}
		val, err := p.parse(false)
		if err != nil {
			return nil, err
		}
		if p.off >= len(p.sig) || p.sig[p.off] != '}' {
			return nil, p.errf("expected '}'")
		}
		p.off++
		return &Type{sig: p.sig[start:p.off], kind: c, fields: []*Type{key, val}}, nil
	default:
		p.off--
		return nil, p.errf("unexpected character %q", rune(c))
	}
}
