package vm

import (
	"math"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/rami3l/loxvm/debug"
	e "github.com/rami3l/loxvm/errors"
	"github.com/sirupsen/logrus"
)

// Parser fuses lexical scanning, Pratt parsing, and bytecode emission into a
// single pass: it owns the Scanner, the Chunk being assembled, and the
// compile-time scope state (locals + depth) all at once, so that no AST is
// ever materialized. It borrows the VM only for the duration of one Compile
// call, for string interning.
type Parser struct {
	*Scanner
	vm         *VM
	chunk      *Chunk
	prev, curr Token

	locals []Local
	depth  int

	errors *multierror.Error
	// Whether the parser is trying to sync, i.e. in the error recovery process.
	panicMode bool
}

func NewParser() *Parser { return &Parser{} }

// Uninit marks a Local as "declared but not yet initialized": its
// initializer expression is still being compiled, so referencing the name
// in that expression would read the slot before it holds a value.
const Uninit = -1

// Local is a compile-time record of a block-scoped variable: its borrowed
// identifier lexeme and the scope depth it was declared at.
type Local struct {
	name  Token
	depth int
}

func (p *Parser) addLocal(name Token) {
	if len(p.locals) >= math.MaxUint8+1 {
		p.Error("Too many locals in one scope.")
		return
	}
	p.locals = append(p.locals, Local{name, Uninit})
}

/* Single-pass compilation */

func (p *Parser) emitConst(val Value) { p.emitBytes(byte(OpConst), p.mkConst(val)) }

func (p *Parser) mkConst(val Value) byte {
	const_ := p.chunk.AddConst(val)
	if const_ > math.MaxUint8 {
		p.Error("Too many constants in one chunk.")
		return 0
	}
	return byte(const_)
}

func (p *Parser) num(_canAssign bool) {
	val, err := strconv.ParseFloat(p.prev.String(), 64)
	p.errors = multierror.Append(p.errors, err)
	p.emitConst(VNum(val))
}

func (p *Parser) grouping(_canAssign bool) {
	p.expr()
	p.consume(TRParen, "Expect ')' after expression.")
}

func (p *Parser) lit(_canAssign bool) {
	switch p.prev.Type {
	case TFalse:
		p.emitBytes(byte(OpFalse))
	case TNil:
		p.emitBytes(byte(OpNil))
	case TTrue:
		p.emitBytes(byte(OpTrue))
	default:
		panic(e.Unreachable)
	}
}

func (p *Parser) str(_canAssign bool) {
	runes := p.prev.Runes
	// COPY the lexeme inside the quotes as a string.
	unquoted := string(runes[1 : len(runes)-1])
	p.emitConst(p.vm.newString(unquoted))
}

func (p *Parser) var_(canAssign bool) { p.namedVar(p.prev, canAssign) }

// namedVar is the only place reads and writes diverge: canAssign (threaded
// down from parsePrec) and a lookahead `=` are both required before this
// will emit a Set instead of a Get. resolveLocal decides whether the name
// is a stack slot or a global key.
func (p *Parser) namedVar(name Token, canAssign bool) {
	slot := p.resolveLocal(name)

	var (
		arg      byte
		get, set OpCode
	)
	if slot == Uninit {
		arg, get, set = p.identConst(&name), OpGetGlobal, OpSetGlobal
	} else {
		arg, get, set = byte(slot), OpGetLocal, OpSetLocal
	}

	switch {
	case canAssign && p.match(TEqual):
		p.expr()
		p.emitBytes(byte(set), arg)
	default:
		p.emitBytes(byte(get), arg)
	}
}

func (p *Parser) unary(_canAssign bool) {
	op := p.prev.Type

	// Compile the operand.
	p.parsePrec(PrecUnary)

	// Emit the operator instruction.
	switch op {
	case TBang:
		p.emitBytes(byte(OpNot))
	case TMinus:
		p.emitBytes(byte(OpNeg))
	default:
		panic(e.Unreachable)
	}
}

func (p *Parser) binary(_canAssign bool) {
	op := p.prev.Type
	rule := parseRules[op]

	// Compile the RHS, one precedence level higher so that e.g. `+` is
	// left-associative.
	p.parsePrec(rule.Prec + 1)

	// Emit the operator instruction.
	switch op {
	case TBangEqual:
		p.emitBytes(byte(OpEqual), byte(OpNot))
	case TEqualEqual:
		p.emitBytes(byte(OpEqual))
	case TGreater:
		p.emitBytes(byte(OpGreater))
	case TGreaterEqual:
		p.emitBytes(byte(OpLess), byte(OpNot))
	case TLess:
		p.emitBytes(byte(OpLess))
	case TLessEqual:
		p.emitBytes(byte(OpGreater), byte(OpNot))
	case TPlus:
		p.emitBytes(byte(OpAdd))
	case TMinus:
		p.emitBytes(byte(OpSub))
	case TStar:
		p.emitBytes(byte(OpMul))
	case TSlash:
		p.emitBytes(byte(OpDiv))
	default:
		panic(e.Unreachable)
	}
}

func (p *Parser) expr() { p.parsePrec(PrecAssign) }

func (p *Parser) exprStmt() {
	p.expr()
	p.consume(TSemi, "Expect ';' after expression.")
	p.emitBytes(byte(OpPop))
}

func (p *Parser) printStmt() {
	p.expr()
	p.consume(TSemi, "Expect ';' after value.")
	p.emitBytes(byte(OpPrint))
}

func (p *Parser) block() {
	for !p.check(TRBrace) && !p.check(TEOF) {
		p.decl()
	}
	p.consume(TRBrace, "Expect '}' after block.")
}

// ifStmt compiles `if (cond) stmt`. There is no `else` clause (Non-goal),
// but the condition still has to be popped off on both the taken and the
// not-taken path, so the not-taken path gets an explicit Pop behind an
// unconditional Jump over the then-branch's own Pop. See SPEC_FULL.md §1.1.
func (p *Parser) ifStmt() {
	p.consume(TLParen, "Expect '(' after 'if'.")
	p.expr()
	p.consume(TRParen, "Expect ')' after condition.")

	thenJump := p.emitJump(OpJumpIfFalse) // --> after the then-branch, if falsy.
	p.emitBytes(byte(OpPop))              // Drop the condition before the then-branch.
	p.stmt()

	elseJump := p.emitJump(OpJump) // --> past the trailing Pop, if the then-branch ran.
	p.patchJump(thenJump)

	p.emitBytes(byte(OpPop)) // Drop the condition when the then-branch didn't run.
	p.patchJump(elseJump)
}

func (p *Parser) stmt() {
	switch {
	case p.match(TPrint):
		p.printStmt()
	case p.match(TIf):
		p.ifStmt()
	case p.match(TLBrace):
		p.beginScope()
		p.block()
		p.endScope()
	default:
		p.exprStmt()
	}
}

func (p *Parser) identConst(name *Token) byte { return p.mkConst(p.vm.newString(name.String())) }

func (p *Parser) varDecl() {
	target := p.consume(TIdent, "Expect variable name.")
	if target == nil {
		return
	}
	name := *target

	isGlobal := p.depth == 0
	var global byte
	if isGlobal {
		global = p.identConst(&name)
	} else {
		p.declareLocal(name)
	}

	switch {
	case p.match(TEqual):
		p.expr()
	default:
		p.emitBytes(byte(OpNil))
	}
	p.consume(TSemi, "Expect ';' after variable declaration.")

	if isGlobal {
		p.emitBytes(byte(OpDefGlobal), global)
	} else {
		p.markInitialized()
	}
}

func (p *Parser) decl() {
	switch {
	case p.match(TVar):
		p.varDecl()
	default:
		p.stmt()
	}
	if p.panicMode {
		p.sync()
	}
}

type ParseFn = func(p *Parser, canAssign bool)

type ParseRule struct {
	Prefix, Infix ParseFn
	Prec
}

var parseRules []ParseRule

func init() {
	parseRules = []ParseRule{
		TLParen:       {(*Parser).grouping, nil, PrecNone},
		TMinus:        {(*Parser).unary, (*Parser).binary, PrecTerm},
		TPlus:         {nil, (*Parser).binary, PrecTerm},
		TSlash:        {nil, (*Parser).binary, PrecFactor},
		TStar:         {nil, (*Parser).binary, PrecFactor},
		TBang:         {(*Parser).unary, nil, PrecNone},
		TBangEqual:    {nil, (*Parser).binary, PrecEqual},
		TEqualEqual:   {nil, (*Parser).binary, PrecEqual},
		TGreater:      {nil, (*Parser).binary, PrecComp},
		TGreaterEqual: {nil, (*Parser).binary, PrecComp},
		TLess:         {nil, (*Parser).binary, PrecComp},
		TLessEqual:    {nil, (*Parser).binary, PrecComp},
		TIdent:        {(*Parser).var_, nil, PrecNone},
		TStr:          {(*Parser).str, nil, PrecNone},
		TNum:          {(*Parser).num, nil, PrecNone},
		TFalse:        {(*Parser).lit, nil, PrecNone},
		TNil:          {(*Parser).lit, nil, PrecNone},
		TTrue:         {(*Parser).lit, nil, PrecNone},
		TEOF:          {},
	}
}

// parsePrec is the Pratt engine's core loop: parse a prefix expression, then
// keep folding in infix operators whose precedence is at least prec. Whether
// `=` may bind here (canAssign) is computed once, from prec alone, and
// threaded down into every prefix/infix handler it calls — it's the only
// signal that tells `namedVar` to emit a Set instead of a Get.
func (p *Parser) parsePrec(prec Prec) {
	p.advance()

	// Parse LHS.
	prefix := parseRules[p.prev.Type].Prefix
	if prefix == nil {
		p.Error("Expect expression.")
		return
	}
	canAssign := prec <= PrecAssign
	prefix(p, canAssign)

	// Parse RHS if there's one, maintaining rule.Prec >= prec.
	for {
		rule := parseRules[p.curr.Type]
		if rule.Prec < prec {
			break
		}
		p.advance()
		if rule.Infix == nil {
			panic(e.Unreachable)
		}
		rule.Infix(p, canAssign)
	}

	if canAssign && p.match(TEqual) {
		p.Error("Invalid assignment target.")
	}
}

/* Parsing helpers */

func (p *Parser) check(ty TokenType) bool     { return p.curr.Type == ty }
func (p *Parser) checkPrev(ty TokenType) bool { return p.prev.Type == ty }

func (p *Parser) advance() {
	p.prev = p.curr
	for {
		// Skip until the first non-TErr token.
		if p.curr = p.ScanToken(); !p.check(TErr) {
			break
		}
		p.ErrorAtCurr(p.curr.String())
	}
}

func (p *Parser) match(ty TokenType) (matched bool) {
	if !p.check(ty) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) consume(ty TokenType, errorMsg string) *Token {
	if !p.check(ty) {
		p.ErrorAtCurr(errorMsg)
		return nil
	}
	p.advance()
	return &p.prev
}

/* Compiling helpers */

// Compile drives the Scanner and Pratt engine to fill a fresh Chunk. vm is
// only needed for string interning and is not retained past this call: the
// Parser is transient (one per Interpret), so threading the VM in as a
// parameter instead of a long-lived field avoids a lingering cyclic
// reference between VM and Compiler. See DESIGN.md.
func (p *Parser) Compile(vm *VM, src string) (*Chunk, error) {
	res := NewChunk()
	p.chunk = res
	p.vm = vm
	defer func() { p.chunk, p.vm = nil, nil }()

	p.Scanner = NewScanner(src)
	p.advance()

	for !p.match(TEOF) {
		p.decl()
	}

	p.endCompiler()
	return res, p.errors.ErrorOrNil()
}

func (p *Parser) emitBytes(bs ...byte) {
	for _, b := range bs {
		p.chunk.Write(b, p.prev.Line)
	}
}

func (p *Parser) endCompiler() {
	p.emitBytes(byte(OpReturn))
	if debug.DEBUG {
		logrus.Debugln(p.chunk.Disassemble("endCompiler"))
	}
}

//go:generate stringer -type=Prec
type Prec int

const (
	PrecNone   Prec = iota
	PrecAssign      // =
	PrecOr          // or
	PrecAnd         // and
	PrecEqual       // == !=
	PrecComp        // < > <= >=
	PrecTerm        // + -
	PrecFactor      // * /
	PrecUnary       // ! -
	PrecCall        // . ()
	PrecPrimary
)

/* Scope resolution */

func (p *Parser) beginScope() { p.depth++ }

func (p *Parser) endScope() {
	p.depth--
	for len(p.locals) > 0 && p.locals[len(p.locals)-1].depth > p.depth {
		p.emitBytes(byte(OpPop)) // Pop off the local on the stack.
		p.locals = p.locals[0 : len(p.locals)-1]
	}
}

// declareLocal adds name to the current scope, erroring if another local at
// the same depth already has that name (shadowing a shallower scope is
// fine). The new Local starts at depth Uninit until its initializer has
// finished compiling, so self-reference in the initializer can be caught.
func (p *Parser) declareLocal(name Token) {
	for i := len(p.locals) - 1; i >= 0; i-- {
		local := p.locals[i]
		if local.depth != Uninit && local.depth < p.depth {
			break // Shadowing a shallower scope is allowed.
		}
		if name.Eq(local.name) {
			p.Error("Already a variable with this name in this scope.")
		}
	}
	p.addLocal(name)
}

func (p *Parser) markInitialized() { p.locals[len(p.locals)-1].depth = p.depth }

// resolveLocal searches locals from the top (most recently declared) down,
// returning Uninit if name isn't a local at all (the caller then falls back
// to a global). A match still at depth Uninit means its own initializer is
// still compiling — reading it now would be a self-reference.
func (p *Parser) resolveLocal(name Token) (slot int) {
	for i := len(p.locals) - 1; i >= 0; i-- {
		local := p.locals[i]
		if name.Eq(local.name) {
			if local.depth == Uninit {
				p.Error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return Uninit // Global variable.
}

/* Jump patching */

func (p *Parser) emitJump(inst OpCode) (offset int) {
	p.emitBytes(byte(inst), 0xff, 0xff)
	return len(p.chunk.code) - 2
}

func (p *Parser) patchJump(offset int) {
	code := p.chunk.code
	// A jump uses 2 bytes to encode the offset, so
	// -2 to adjust for the bytecode for the jump offset itself:
	// [OpJump] [0xff@offset] [0xff@(offset+1)] [GOAL@(offset+2)] ... [CURR@(len-1)]
	jump := len(code) - (offset + 2) // The bytes to jump over.
	if jump > math.MaxUint16 {
		p.Error("Too much code to jump over.")
		return
	}
	code[offset], code[offset+1] = byte(jump>>8&0xff), byte(jump&0xff)
}

/* Error handling */

func (p *Parser) sync() {
	p.panicMode = false
	for !p.check(TEOF) {
		if p.checkPrev(TSemi) {
			return
		}
		switch p.curr.Type {
		case TClass, TFun, TVar, TFor, TIf, TWhile, TPrint, TReturn:
			return
		}
		p.advance()
	}
}

func (p *Parser) ErrorAt(tk Token, reason string) {
	// Don't collect cascading errors while already recovering.
	if p.panicMode {
		return
	}
	p.panicMode = true

	var where string
	switch tk.Type {
	case TEOF:
		where = "end"
	case TErr:
		where = ""
	default:
		where = tk.String()
	}
	err := &e.CompileError{Line: tk.Line, Where: where, Reason: reason}

	if debug.DEBUG {
		logrus.Debugln(p.chunk.Disassemble("ErrorAt"))
		logrus.Debugln(err)
	}

	p.errors = multierror.Append(p.errors, err)
}

func (p *Parser) Error(reason string)       { p.ErrorAt(p.prev, reason) }
func (p *Parser) ErrorAtCurr(reason string) { p.ErrorAt(p.curr, reason) }
func (p *Parser) HadError() bool            { return p.errors.ErrorOrNil() != nil }
