package vm

import (
	"fmt"

	"github.com/josharian/intern"
)

// Value is the tagged union of golox's dynamic value domain: Nil, Boolean,
// Number, or a shared handle to a heap Object (today, only String).
type Value interface{ isValue() }

func NewValue() Value { return VNil{} }

type VBool bool

func (_ VBool) isValue()       {}
func (v VBool) String() string { return fmt.Sprintf("%t", v) }

type VNil struct{}

func (_ VNil) isValue()       {}
func (v VNil) String() string { return "nil" }

type VNum float64

func (_ VNum) isValue()       {}
func (v VNum) String() string { return fmt.Sprintf("%g", v) }

// VStr is golox's one Object variant: an immutable byte sequence, interned
// by content so that two strings built from equal bytes compare equal by
// `==` and share the same underlying storage. NewVStr is the only
// constructor: the compiler calls it for string literals and for identifier
// names used as global keys, and the VM calls it for Add-concatenation
// results.
type VStr string

func NewVStr(s string) VStr { return VStr(intern.String(s)) }

func (_ VStr) isValue()       {}
func (v VStr) String() string { return string(v) }

func VAdd(v, w Value) (res Value, ok bool) {
	res = NewValue()
	switch v := v.(type) {
	case VNum:
		switch w := w.(type) {
		case VNum:
			return v + w, true
		}
	case VStr:
		switch w := w.(type) {
		case VStr:
			return NewVStr(string(v) + string(w)), true
		}
	}
	return
}

func VSub(v, w Value) (res Value, ok bool) {
	res = NewValue()
	switch v := v.(type) {
	case VNum:
		switch w := w.(type) {
		case VNum:
			return v - w, true
		}
	}
	return
}

func VMul(v, w Value) (res Value, ok bool) {
	res = NewValue()
	switch v := v.(type) {
	case VNum:
		switch w := w.(type) {
		case VNum:
			return v * w, true
		}
	}
	return
}

func VDiv(v, w Value) (res Value, ok bool) {
	res = NewValue()
	switch v := v.(type) {
	case VNum:
		switch w := w.(type) {
		case VNum:
			return v / w, true
		}
	}
	return
}

func VGreater(v, w Value) (res Value, ok bool) {
	res = NewValue()
	switch v := v.(type) {
	case VNum:
		switch w := w.(type) {
		case VNum:
			return VBool(v > w), true
		}
	}
	return
}

func VLess(v, w Value) (res Value, ok bool) {
	res = NewValue()
	switch v := v.(type) {
	case VNum:
		switch w := w.(type) {
		case VNum:
			return VBool(v < w), true
		}
	}
	return
}

func VNeg(v Value) (res Value, ok bool) {
	res = NewValue()
	switch v := v.(type) {
	case VNum:
		return -v, true
	}
	return
}

// VTruthy implements Lox's falsy rule: Nil and Boolean(false) are falsy,
// everything else (including 0 and the empty string) is truthy.
func VTruthy(v Value) VBool {
	switch v := v.(type) {
	case VBool:
		return v
	case VNil:
		return false
	default:
		return true
	}
}

// VEq is structural equality: same tag and same payload. Number uses IEEE
// equality (so NaN != NaN); String equality is by interned content, which
// NewVStr makes equivalent to handle identity.
func VEq(v, w Value) VBool {
	switch v := v.(type) {
	case VBool:
		switch w := w.(type) {
		case VBool:
			return v == w
		}
	case VNum:
		switch w := w.(type) {
		case VNum:
			return v == w
		}
	case VStr:
		switch w := w.(type) {
		case VStr:
			return v == w
		}
	case VNil:
		_, ok := w.(VNil)
		return VBool(ok)
	}
	return false
}
