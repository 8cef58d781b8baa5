package varpack

import (
	"errors"
	"fmt"
	"strings"
)

// ErrWrongType is returned when an operation is applied to a value of a type
// it does not support.
var ErrWrongType = errors.New("wrong value type")

// ValidationError reports that serialized data does not conform to the type
// it was materialized with. It is only returned for untrusted values.
type ValidationError struct {
	Type *Type
	Data []byte
	Off  int
	Msg  string
	Err  error
}

func validationErrf(typ *Type, data []byte, off int, err error, format string, args ...any) error {
	return &ValidationError{typ, data, off, fmt.Sprintf(format, args...), err}
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Error() string {
	const prefixLen = 64
	const suffixLen = 32
	var buf strings.Builder
	buf.WriteString("invalid ")
	buf.WriteString(e.Type.String())
	fmt.Fprintf(&buf, " at %d: %s", e.Off, e.Msg)
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

// IOError is returned when reading, mapping or writing the backing storage
// of a value fails. Err is the underlying OS error.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func ioErrf(op, path string, err error) error {
	return &IOError{op, path, err}
}

func (e *IOError) Unwrap() error {
	return e.Err
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return "varpack: " + e.Op + ": " + e.Err.Error()
	}
	return "varpack: " + e.Op + " " + e.Path + ": " + e.Err.Error()
}

func wrongTypef(typ *Type, format string, args ...any) error {
	return fmt.Errorf("varpack: %s: %s: %w", typ, fmt.Sprintf(format, args...), ErrWrongType)
}
