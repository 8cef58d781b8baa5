package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when there is no value with the given name.
var ErrNotFound = errors.New("not found")

// RecordError reports a stored record that cannot be decoded: a malformed
// header, an unknown signature, a failed decompression or a checksum
// mismatch.
type RecordError struct {
	Bucket string
	Name   string
	Data   []byte
	Off    int
	Msg    string
	Err    error
}

func recordErrf(data []byte, off int, err error, format string, args ...any) *RecordError {
	return &RecordError{Data: data, Off: off, Err: err, Msg: fmt.Sprintf(format, args...)}
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (e *RecordError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	var buf strings.Builder
	buf.WriteString("store: ")
	if e.Bucket != "" {
		buf.WriteString(e.Bucket)
		buf.WriteByte('/')
		buf.WriteString(e.Name)
		buf.WriteString(": ")
	}
	fmt.Fprintf(&buf, "%s at %d", e.Msg, e.Off)
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	n := len(e.Data)
	if n <= prefixLen+suffixLen {
		fmt.Fprintf(&buf, ": (%d) %x", n, e.Data)
	} else {
		fmt.Fprintf(&buf, ": (%d) %x...%x", n, e.Data[:prefixLen], e.Data[n-suffixLen:])
	}
	return buf.String()
}
