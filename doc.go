/*
Package varpack implements typed, self-describing binary values that can be
used straight out of files and shared byte buffers, without a deserialization
pass.

We implement:

1. Values, immutable typed views over serialized bytes. Children (array
elements, tuple fields, variant contents) are slices of the parent's storage.

2. Materializers that turn byte slices, shared buffers and file regions into
values. Large file regions are memory-mapped.

3. A binary search over sorted arrays of records keyed by a string first field,
and conversion of string-keyed dictionaries into Go maps.

# Technical Details

**Types.**
Types are GVariant-style signatures: b y n q i u x t d s for basic types,
v for variants, aT for arrays, a{KV} for dictionaries, (T...) for tuples.

**Encoding.**
Values are MessagePack. Variants are [signature, value] arrays, tuples are
fixed-size msgpack arrays, byte arrays inside containers are bin objects.
Integers use the shortest encoding and are range checked against the type on
validation. Strings are UTF-8 without NUL bytes.

Arrays and dictionaries are ext objects whose payload is the elements followed
by a table of framing offsets, one per element, as in GVariant. The offset
width (1, 2, 4 or 8 bytes) follows from the payload size. Dictionary elements
are a key immediately followed by its value.

A top-level byte array is stored as raw bytes with no header, so that files
and buffers can be wrapped as "ay" values without copying. A top-level
dictionary entry is its key immediately followed by its value. A top-level
array or dictionary of zero bytes is empty.

**Trust.**
Values created from data we produced are trusted. Everything else is validated
against its type on first typed access, once; failures are *ValidationError.

**Lifetime.**
Storage is reference counted (*Bytes). Every value holds one reference, which
Release drops. Mapped regions are unmapped when the last reference goes away,
so a child can outlive its parent.

**Offsets.**
Array elements are located through the framing offsets, so child lookup is
O(1) and BSearchStr does O(log n) comparisons without reading the elements it
skips. Tuples record their field offsets on first access.
*/
package varpack
