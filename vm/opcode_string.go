// Code generated by "stringer -type=OpCode"; adapted by hand here since
// this repo doesn't invoke `go generate` as part of its build. DO NOT EDIT
// the switch below without keeping it in lockstep with the OpCode consts in
// chunk.go.

package vm

import "strconv"

func (i OpCode) String() string {
	switch i {
	case OpReturn:
		return "OpReturn"
	case OpConst:
		return "OpConst"
	case OpNil:
		return "OpNil"
	case OpTrue:
		return "OpTrue"
	case OpFalse:
		return "OpFalse"
	case OpPop:
		return "OpPop"
	case OpGetLocal:
		return "OpGetLocal"
	case OpSetLocal:
		return "OpSetLocal"
	case OpGetGlobal:
		return "OpGetGlobal"
	case OpDefGlobal:
		return "OpDefGlobal"
	case OpSetGlobal:
		return "OpSetGlobal"
	case OpEqual:
		return "OpEqual"
	case OpGreater:
		return "OpGreater"
	case OpLess:
		return "OpLess"
	case OpNot:
		return "OpNot"
	case OpNeg:
		return "OpNeg"
	case OpAdd:
		return "OpAdd"
	case OpSub:
		return "OpSub"
	case OpMul:
		return "OpMul"
	case OpDiv:
		return "OpDiv"
	case OpPrint:
		return "OpPrint"
	case OpJumpIfFalse:
		return "OpJumpIfFalse"
	case OpJump:
		return "OpJump"
	default:
		return "OpCode(" + strconv.FormatInt(int64(i), 10) + ")"
	}
}
