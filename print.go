package varpack

import (
	"strconv"
	"strings"
)

// Print returns a human-readable text form of v:
//
//	true  42  3.5  'it\'s'  b'ab\x00'  <'boxed'>
//	[1, 2]  {'a': <1>}  ('x',)  ()
//
// Dictionary entries on their own print as {k, v}.
func Print(v *Value) (string, error) {
	var sb strings.Builder
	if err := printValue(&sb, v); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func printValue(sb *strings.Builder, v *Value) error {
	switch k := v.typ.kind; {
	case k == KindBool:
		b, err := v.Bool()
		if err != nil {
			return err
		}
		sb.WriteString(strconv.FormatBool(b))
	case k == KindUint64, k == KindByte, k == KindUint16, k == KindUint32:
		u, err := v.Uint64()
		if err != nil {
			return err
		}
		sb.WriteString(strconv.FormatUint(u, 10))
	case k.isInteger():
		i, err := v.Int64()
		if err != nil {
			return err
		}
		sb.WriteString(strconv.FormatInt(i, 10))
	case k == KindDouble:
		f, err := v.Float64()
		if err != nil {
			return err
		}
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eIN") {
			s += ".0"
		}
		sb.WriteString(s)
	case k == KindString:
		s, err := v.StrBytes()
		if err != nil {
			return err
		}
		quote(sb, s, false)
	case v.typ.IsByteArray():
		sb.WriteByte('b')
		quote(sb, v.data, true)
	case k == KindVariant:
		inner, err := v.Variant()
		if err != nil {
			return err
		}
		defer inner.Release()
		sb.WriteByte('<')
		if err := printValue(sb, inner); err != nil {
			return err
		}
		sb.WriteByte('>')
	default:
		return printContainer(sb, v)
	}
	return nil
}

func printContainer(sb *strings.Builder, v *Value) error {
	children, err := v.Children()
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range children {
			c.Release()
		}
	}()

	lbr, rbr := "[", "]"
	switch {
	case v.typ.IsDict(), v.typ.kind == KindDictEntry:
		lbr, rbr = "{", "}"
	case v.typ.kind == KindTuple:
		lbr, rbr = "(", ")"
	}

	sb.WriteString(lbr)
	for i, c := range children {
		if i > 0 {
			sb.WriteString(", ")
		}
		if c.typ.kind == KindDictEntry {
			if err := printEntry(sb, c); err != nil {
				return err
			}
			continue
		}
		if err := printValue(sb, c); err != nil {
			return err
		}
	}
	if v.typ.kind == KindTuple && len(children) == 1 {
		sb.WriteByte(',')
	}
	sb.WriteString(rbr)
	return nil
}

// printEntry prints a dictionary entry as it appears inside a dictionary.
func printEntry(sb *strings.Builder, entry *Value) error {
	kv, err := entry.Children()
	if err != nil {
		return err
	}
	defer kv[0].Release()
	defer kv[1].Release()
	if err := printValue(sb, kv[0]); err != nil {
		return err
	}
	sb.WriteString(": ")
	return printValue(sb, kv[1])
}

const hexDigits = "0123456789abcdef"

func quote(sb *strings.Builder, s []byte, binary bool) {
	sb.WriteByte('\'')
	for _, c := range s {
		switch {
		case c == '\'' || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\t':
			sb.WriteString(`\t`)
		case c < 0x20 || c == 0x7f || (binary && c >= 0x80):
			sb.WriteString(`\x`)
			sb.WriteByte(hexDigits[c>>4])
			sb.WriteByte(hexDigits[c&0xf])
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('\'')
}
