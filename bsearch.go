package varpack

import (
	"bytes"
	"fmt"
)

// BSearchStr performs a binary search over an array whose elements are
// records with a string first field: a(s...) tuples or a{s...} dictionary
// entries. The array must be sorted by that field in byte-wise order.
//
// If key is found, BSearchStr returns its index and true. Otherwise it
// returns the last index it examined, which is next to where key would be
// inserted but is not necessarily the insertion point itself: it can be one
// less. On an empty array it returns -1.
//
// Elements are located through the array's framing offsets, so a search
// takes O(log n) comparisons and touches only the elements it compares. An
// untrusted array is validated in full on first access, as any value is.
func BSearchStr(array *Value, key string) (pos int, found bool, err error) {
	typ := array.typ
	if typ.kind != KindArray || !typ.elem.isStringKeyed() {
		return -1, false, wrongTypef(typ, "not an array of string-keyed records")
	}
	n, err := array.NChildren()
	if err != nil {
		return -1, false, err
	}
	if n == 0 {
		return -1, false, nil
	}
	l, _ := array.computeLayout()
	isTuple := typ.elem.kind == KindTuple
	k := []byte(key)

	d := getDecoder(nil)
	defer putDecoder(d)

	imin, imax := 0, n-1
	imid := -1
	// imax may go negative, which ends the loop the same way reaching the
	// left edge would.
	for imin <= imax {
		imid = (imin + imax) / 2

		el, err := l.frame.elem(imid)
		if err != nil {
			return imid, false, fmt.Errorf("varpack: %s: %w", typ, err)
		}
		cur, err := firstField(d, el, isTuple)
		if err != nil {
			return imid, false, fmt.Errorf("varpack: %s: element %d: %w", typ, imid, err)
		}

		cmp := bytes.Compare(cur, k)
		if cmp < 0 {
			imin = imid + 1
		} else if cmp > 0 {
			imax = imid - 1
		} else {
			return imid, true, nil
		}
	}
	return imid, false, nil
}

// LookupStr returns the element of a sorted string-keyed array whose first
// field equals key.
func LookupStr(array *Value, key string) (*Value, bool, error) {
	pos, found, err := BSearchStr(array, key)
	if err != nil || !found {
		return nil, false, err
	}
	el, err := array.Child(pos)
	if err != nil {
		return nil, false, err
	}
	return el, true, nil
}

func firstField(d *decoder, data []byte, isTuple bool) ([]byte, error) {
	d.data = data
	d.r.Reset(data)
	if isTuple {
		if _, err := d.ArrayLen(); err != nil {
			return nil, err
		}
	}
	return d.Str()
}
