package vm

import (
	"fmt"

	"github.com/rami3l/loxvm/debug"
	e "github.com/rami3l/loxvm/errors"
	"github.com/sirupsen/logrus"
)

// VM is a stack machine: it owns the value stack, the global variable table,
// and the Chunk currently executing. It is reused across successive
// Interpret calls (the REPL keeps one VM alive for the whole session), so
// globals persist but the stack is reset on every runtime error.
type VM struct {
	chunk *Chunk
	ip    int
	stack []Value

	globals map[string]Value
}

func NewVM() *VM {
	return &VM{globals: map[string]Value{}}
}

func (vm *VM) push(val Value) { vm.stack = append(vm.stack, val) }

func (vm *VM) pop() (last Value) {
	len_ := len(vm.stack)
	vm.stack, last = vm.stack[:len_-1], vm.stack[len_-1]
	return
}

func (vm *VM) peek(distance int) Value { return vm.stack[len(vm.stack)-1-distance] }

func (vm *VM) resetStack() { vm.stack = nil }

// newString interns s through the VM so that two equal literals compiled in
// the same run (or across REPL entries) share one VStr value.
func (vm *VM) newString(s string) Value { return NewVStr(s) }

// Interpret compiles src into a fresh Chunk and runs it on this VM. The
// globals table survives across calls; the stack does not.
func (vm *VM) Interpret(src string) error {
	parser := NewParser()
	chunk, err := parser.Compile(vm, src)
	if err != nil {
		return err
	}
	vm.chunk = chunk
	vm.ip = 0
	return vm.run()
}

func (vm *VM) runtimeError(format string, a ...any) error {
	line := vm.chunk.lines[vm.ip-1]
	vm.resetStack()
	return &e.RuntimeError{Line: line, Reason: fmt.Sprintf(format, a...)}
}

func (vm *VM) run() error {
	readByte := func() (res byte) {
		res = vm.chunk.code[vm.ip]
		vm.ip++
		return
	}
	readConst := func() Value { return vm.chunk.consts[readByte()] }
	readShort := func() (res int) {
		hi, lo := readByte(), readByte()
		return int(hi)<<8 | int(lo)
	}
	readStr := func() VStr { return readConst().(VStr) }

	binaryOp := func(op func(v, w Value) (Value, bool)) error {
		rhs, lhs := vm.pop(), vm.pop()
		res, ok := op(lhs, rhs)
		if !ok {
			return vm.runtimeError("Operands must be numbers.")
		}
		vm.push(res)
		return nil
	}

	for {
		if debug.DEBUG {
			logrus.Debugln(vm.stackTrace())
			instDump, _ := vm.chunk.DisassembleInst(vm.ip)
			logrus.Debugln(instDump)
		}

		switch inst := OpCode(readByte()); inst {
		case OpConst:
			vm.push(readConst())
		case OpNil:
			vm.push(VNil{})
		case OpTrue:
			vm.push(VBool(true))
		case OpFalse:
			vm.push(VBool(false))
		case OpPop:
			vm.pop()

		case OpGetLocal:
			vm.push(vm.stack[readByte()])
		case OpSetLocal:
			vm.stack[readByte()] = vm.peek(0)

		case OpGetGlobal:
			name := readStr()
			val, ok := vm.globals[string(name)]
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name)
			}
			vm.push(val)
		case OpDefGlobal:
			name := readStr()
			vm.globals[string(name)] = vm.peek(0)
			vm.pop()
		case OpSetGlobal:
			name := readStr()
			if _, ok := vm.globals[string(name)]; !ok {
				return vm.runtimeError("Undefined variable '%s'.", name)
			}
			vm.globals[string(name)] = vm.peek(0)

		case OpEqual:
			rhs, lhs := vm.pop(), vm.pop()
			vm.push(VEq(lhs, rhs))
		case OpGreater:
			if err := binaryOp(VGreater); err != nil {
				return err
			}
		case OpLess:
			if err := binaryOp(VLess); err != nil {
				return err
			}

		case OpNot:
			vm.push(!VTruthy(vm.pop()))
		case OpNeg:
			val, ok := VNeg(vm.pop())
			if !ok {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(val)

		case OpAdd:
			rhs, lhs := vm.pop(), vm.pop()
			res, ok := VAdd(lhs, rhs)
			if !ok {
				return vm.runtimeError("Operands must be two numbers or two strings.")
			}
			vm.push(res)
		case OpSub:
			if err := binaryOp(VSub); err != nil {
				return err
			}
		case OpMul:
			if err := binaryOp(VMul); err != nil {
				return err
			}
		case OpDiv:
			if err := binaryOp(VDiv); err != nil {
				return err
			}

		case OpPrint:
			fmt.Printf("%s\n", vm.pop())

		case OpJumpIfFalse:
			offset := readShort()
			if !bool(VTruthy(vm.peek(0))) {
				vm.ip += offset
			}
		case OpJump:
			vm.ip += readShort()

		case OpReturn:
			return nil

		default:
			return vm.runtimeError("unknown instruction '%d'", inst)
		}
	}
}

func (vm *VM) stackTrace() string {
	res := "          "
	for _, slot := range vm.stack {
		res += fmt.Sprintf("[ %s ]", slot)
	}
	return res
}
