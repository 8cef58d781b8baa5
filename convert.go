package varpack

import (
	"slices"
)

// EmptyVarDict returns an empty a{sv} dictionary.
func EmptyVarDict() *Value {
	return FromData(TypeVarDict, slices.Clone(emptyArrayData), true)
}

// NewByteArray returns an "ay" value holding a copy of data.
func NewByteArray(data []byte) *Value {
	return FromData(TypeByteArray, cloneBytes(data), true)
}

// NewByteArrayShared returns an "ay" value over b without copying. The value
// takes its own reference to b.
func NewByteArrayShared(b *Bytes) *Value {
	return FromBytes(TypeByteArray, b, true)
}

// ToMap converts a dictionary with string keys (a{sT}), or an array of
// string-keyed pairs (a(sT)), into a Go map. Later duplicates of a key
// replace earlier ones. The map values are the T values, sharing v's storage.
func ToMap(v *Value) (map[string]*Value, error) {
	if !isStringKeyedPairs(v.typ) {
		return nil, wrongTypef(v.typ, "not a string-keyed dictionary")
	}
	entries, err := v.Children()
	if err != nil {
		return nil, err
	}
	m := make(map[string]*Value, len(entries))
	for _, entry := range entries {
		key, val, err := splitEntry(entry)
		entry.Release()
		if err != nil {
			return nil, err
		}
		if old := m[key]; old != nil {
			old.Release()
		}
		m[key] = val
	}
	return m, nil
}

func isStringKeyedPairs(typ *Type) bool {
	return typ.kind == KindArray && typ.elem.isStringKeyed() && len(typ.elem.fields) == 2
}

func splitEntry(entry *Value) (string, *Value, error) {
	k, err := entry.Child(0)
	if err != nil {
		return "", nil, err
	}
	key, err := k.Str()
	k.Release()
	if err != nil {
		return "", nil, err
	}
	val, err := entry.Child(1)
	if err != nil {
		return "", nil, err
	}
	return key, val, nil
}

// FromMap builds an a{sv} dictionary out of m, with keys in sorted order.
// Values are boxed into variants unless they already are variants.
func FromMap(m map[string]*Value) (*Value, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	b := NewBuilder(TypeVarDict)
	for _, k := range keys {
		v := m[k]
		if v.typ.kind != KindVariant {
			v = NewVariant(v)
		}
		if err := b.AddEntry(NewString(k), v); err != nil {
			b.Discard()
			return nil, err
		}
	}
	return b.End()
}
