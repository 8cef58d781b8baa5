package varpack

import (
	"errors"
	"fmt"
	"testing"
)

func TestFrameWidth(t *testing.T) {
	tests := []struct {
		body, n, w int
	}{
		{0, 0, 0},
		{1, 1, 1},
		{254, 1, 1},
		{255, 1, 2},
		{230, 30, 2},
		{0xffff - 2, 1, 2},
		{0xffff - 1, 1, 4},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%d", tt.body, tt.n), func(t *testing.T) {
			w := frameWidth(tt.body, tt.n)
			eq(t, w, tt.w)
			eq(t, offsetSize(tt.body+tt.n*w), w)
		})
	}
}

func TestFrame_widths(t *testing.T) {
	for _, n := range []int{1, 3, 40, 3000, 7000} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			keys := make([]string, n)
			for i := range keys {
				keys[i] = fmt.Sprintf("k%05d", i)
			}
			arr := records(keys...)
			untrusted := FromData(arr.Type(), cloneBytes(arr.Data()), false)
			ensure(untrusted.Validate())
			eq(t, must(untrusted.NChildren()), n)
			for _, i := range []int{0, n / 2, n - 1} {
				el := must(untrusted.Child(i))
				eq(t, el.String(), fmt.Sprintf("('%s',)", keys[i]))
				el.Release()
			}
		})
	}
}

func TestFrame_nested(t *testing.T) {
	v := MustNew(MustType("(sasa{sv})"), []any{"x", []string{"p", "q"}, map[string]any{"k": int32(1)}})
	eq(t, v.String(), "('x', ['p', 'q'], {'k': <1>})")

	inner := must(v.Child(1))
	eq(t, must(inner.NChildren()), 2)
	eq(t, must(must(inner.Child(1)).Str()), "q")

	// A child array is a standalone value in its own right.
	copied := FromData(inner.Type(), cloneBytes(inner.Data()), false)
	eq(t, Equal(copied, inner), true)
	eq(t, copied.String(), "['p', 'q']")
}

func TestFrame_emptyEncodings(t *testing.T) {
	for _, sig := range []string{"as", "a(sv)", "a{sv}", "aas"} {
		v := must(NewBuilder(MustType(sig)).End())
		deepEqual(t, v.Data(), emptyArrayData)
		eq(t, must(v.NChildren()), 0)
	}
	eq(t, MustNew(MustType("aas"), []any{[]string{}}).String(), "[[]]")
}

func TestFrame_corrupt(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"offset past elements", "d501 01 05"},
		{"offsets out of order", "c70601 a161 a162 05 04"},
		{"offset inside element", "c70601 a161 a162 01 04"},
		{"not an ext", "92 a161 a162"},
		{"wrong ext type", "d502 01 01"},
		{"truncated", "c70901 a161 02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := FromData(TypeStringArray, x(tt.data), false)
			_, err := v.NChildren()
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("err = %T %v, wanted *ValidationError", err, err)
			}
		})
	}
}

func TestFrame_corruptTrusted(t *testing.T) {
	// Trusted data is not validated, but bad framing offsets must not panic.
	v := FromData(TypeStringArray, x("c70601 a161 a162 05 04"), true)
	eq(t, must(v.NChildren()), 2)
	if _, err := v.Child(1); err == nil {
		t.Fatalf("Child(1) succeeded with framing offsets out of order")
	}
}
