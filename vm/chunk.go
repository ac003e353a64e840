package vm

import (
	"fmt"

	"github.com/rami3l/loxvm/debug"
)

//go:generate stringer -type=OpCode
type OpCode byte

const (
	OpReturn OpCode = iota
	OpConst
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpGetLocal
	OpSetLocal
	OpGetGlobal
	OpDefGlobal
	OpSetGlobal
	OpEqual
	OpGreater
	OpLess
	OpNot
	OpNeg
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpPrint
	// OpJumpIfFalse and OpJump take a 16-bit big-endian forward offset,
	// patched in place once the jump target is known. See emitJump/patchJump.
	OpJumpIfFalse
	OpJump
)

// Chunk is the compiled artifact handed from the Compiler to the VM: an
// ordered opcode stream, one source line per opcode for diagnostics, and a
// constant pool indexed by a single byte.
type Chunk struct {
	code []byte
	// Contract: len(lines) == len(code)
	lines  []int
	consts []Value
}

func NewChunk() *Chunk { return &Chunk{} }

func (c *Chunk) Write(b byte, line int) {
	c.code = append(c.code, b)
	c.lines = append(c.lines, line)
	debug.Assertf(len(c.code) == len(c.lines), "chunk code/lines length mismatch")
}

// AddConst appends a value to the constant pool and returns its index. The
// caller must check that the index still fits in a byte (see mkConst);
// Chunk itself doesn't enforce the limit.
func (c *Chunk) AddConst(const_ Value) (idx int) {
	idx = len(c.consts)
	c.consts = append(c.consts, const_)
	return
}

// DisassembleInst renders one instruction at offset as a human-readable
// line, returning it alongside the offset of the next instruction.
func (c *Chunk) DisassembleInst(offset int) (res string, newOffset int) {
	sprintf := func(format string, a ...any) { res += fmt.Sprintf(format, a...) }

	sprintf("%04d ", offset)
	if offset > 0 && c.lines[offset] == c.lines[offset-1] {
		sprintf("   | ")
	} else {
		sprintf("%4d ", c.lines[offset])
	}

	switch inst := OpCode(c.code[offset]); inst {
	// Jump operators: a 2-byte big-endian offset, shown resolved to its target.
	case OpJumpIfFalse, OpJump:
		hi, lo := c.code[offset+1], c.code[offset+2]
		jump := int(hi)<<8 | int(lo)
		target := offset + 3 + jump
		sprintf("%-16s %4d -> %d", inst, offset, target)
		return res, offset + 3
	// Unary operators: a 1-byte constant index, shown with its value.
	case OpConst, OpGetGlobal, OpDefGlobal, OpSetGlobal:
		const_ := c.code[offset+1]
		sprintf("%-16s %4d '%s'", inst, const_, c.consts[const_])
		return res, offset + 2
	// Unary operators: a 1-byte stack slot.
	case OpGetLocal, OpSetLocal:
		slot := c.code[offset+1]
		sprintf("%-16s %4d", inst, slot)
		return res, offset + 2
	// Nullary operators.
	default:
		sprintf("%s", inst)
		return res, offset + 1
	}
}

func (c *Chunk) Disassemble(name string) (res string) {
	res = fmt.Sprintf("== %s ==\n", name)
	for i := 0; i < len(c.code); {
		var delta string
		delta, i = c.DisassembleInst(i)
		res += delta + "\n"
	}
	return res
}
