package vm_test

import (
	"bytes"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/rami3l/loxvm/vm"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func init() { logrus.SetLevel(logrus.DebugLevel) }

// captureStdout runs fn with os.Stdout swapped for a pipe and returns
// whatever fn wrote through fmt.Print* in the meantime. stdoutMu serializes
// the swap, since the tests calling it run in parallel.
var stdoutMu sync.Mutex

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	stdoutMu.Lock()
	defer stdoutMu.Unlock()
	saved := os.Stdout
	r, w, err := os.Pipe()
	assert.NoError(t, err)
	os.Stdout = w

	fn()

	assert.NoError(t, w.Close())
	os.Stdout = saved

	out, err := io.ReadAll(r)
	assert.NoError(t, err)
	return string(out)
}

// assertPrints runs src on a fresh VM and checks that the concatenation of
// every `print` statement's output (one line each) matches want.
func assertPrints(t *testing.T, src, want string) {
	t.Helper()
	var err error
	out := captureStdout(t, func() { err = vm.NewVM().Interpret(src) })
	assert.NoError(t, err)
	assert.Equal(t, want, out)
}

// assertError runs src on a fresh VM and checks that it fails with an error
// whose message contains errSubstr.
func assertError(t *testing.T, src, errSubstr string) {
	t.Helper()
	err := vm.NewVM().Interpret(src)
	if assert.Error(t, err) {
		assert.ErrorContains(t, err, errSubstr)
	}
}

func TestCalculator(t *testing.T) {
	t.Parallel()
	assertPrints(t, `print 2 + 2;`, "4\n")
	assertPrints(t, `print 11.4 + 5.14 / 19198.10;`, "11.400267734827926\n")
	assertPrints(t, `print -6 * (-4 + -3) == 6*4 + 2 * ((((9))));`, "true\n")
	assertPrints(t, heredoc.Doc(`
		print 4/1 - 4/3 + 4/5 - 4/7 + 4/9 - 4/11
			+ 4/13 - 4/15 + 4/17 - 4/19 + 4/21 - 4/23;
	`), "3.058402765927333\n")
}

func TestBooleansAndNil(t *testing.T) {
	t.Parallel()
	assertPrints(t, `print true; print false; print nil;`, "true\nfalse\nnil\n")
	assertPrints(t, `print !true; print !nil; print !0;`, "false\ntrue\nfalse\n")
	assertPrints(t, `print 1 == 1; print 1 == "1"; print nil == false;`, "true\nfalse\nfalse\n")
}

func TestStrings(t *testing.T) {
	t.Parallel()
	assertPrints(t, `print "foo" + "bar";`, "foobar\n")
	assertPrints(t, `print "foo" == "foo"; print "foo" == "bar";`, "true\nfalse\n")
	assertError(t, `print "foo" + 1;`, "Operands must be two numbers or two strings.")
	assertError(t, `print "foo" - "bar";`, "Operands must be numbers.")
}

func TestVarsGlobal(t *testing.T) {
	t.Parallel()
	assertPrints(t, heredoc.Doc(`
		var foo = 2;
		print foo;
		print foo + 3 == 1 + foo * foo;
		var bar;
		print bar;
		bar = foo = 5;
		print foo;
		print bar;
	`), "2\ntrue\nnil\n5\n5\n")
}

func TestVarsBlocks(t *testing.T) {
	t.Parallel()
	assertPrints(t, heredoc.Doc(`
		var foo = 2;
		{
			foo = foo + 1;
			var bar = 10;
			var foo1 = foo;
			foo1 = foo1 + 1;
			print foo1;
			print bar;
		}
		print foo;
	`), "4\n10\n3\n")
}

func TestVarOwnInit(t *testing.T) {
	t.Parallel()
	assertError(t, `{ var foo = foo; }`, "Can't read local variable in its own initializer")
}

func TestVarRedeclareSameScope(t *testing.T) {
	t.Parallel()
	assertError(t, `{ var foo = 1; var foo = 2; }`, "Already a variable with this name in this scope")
}

func TestVarShadowOuterScope(t *testing.T) {
	t.Parallel()
	assertPrints(t, heredoc.Doc(`
		var foo = 1;
		{
			var foo = 2;
			print foo;
		}
		print foo;
	`), "2\n1\n")
}

func TestUndefinedGlobalGet(t *testing.T) {
	t.Parallel()
	assertError(t, `print foo;`, "Undefined variable 'foo'")
}

func TestUndefinedGlobalSet(t *testing.T) {
	t.Parallel()
	assertError(t, `foo = 1;`, "Undefined variable 'foo'")
}

func TestInvalidAssignmentTarget(t *testing.T) {
	t.Parallel()
	assertError(t, `1 + 2 = 3;`, "Invalid assignment target")
}

// TestIf exercises the bare `if (cond) stmt;` form (there is no `else`):
// both the taken and the not-taken branch must leave the stack balanced.
func TestIf(t *testing.T) {
	t.Parallel()
	assertPrints(t, `if (true) print "yes";`, "yes\n")
	assertPrints(t, `if (false) print "yes"; print "after";`, "after\n")
	assertPrints(t, heredoc.Doc(`
		var x = 1;
		if (x == 1) { print "one"; x = 2; }
		if (x == 1) { print "still one"; }
		print x;
	`), "one\n2\n")
	// A condition left behind on either path would occupy the local's slot.
	assertPrints(t, heredoc.Doc(`
		{
			if (true) print "yes";
			if (false) print "no";
			var a = "a";
			print a;
		}
	`), "yes\na\n")
}

func TestUnterminatedString(t *testing.T) {
	t.Parallel()
	assertError(t, "print \"foo;", "Unterminated string")
}

func TestUnterminatedStringAcrossLines(t *testing.T) {
	t.Parallel()
	// Regression test: the scanner must advance past embedded newlines
	// while scanning a string literal, or it spins forever.
	assertError(t, "print \"foo\nbar;", "Unterminated string")
}

func TestMultilineString(t *testing.T) {
	t.Parallel()
	assertPrints(t, "print \"foo\nbar\";", "foo\nbar\n")
}

func TestUnexpectedCharacter(t *testing.T) {
	t.Parallel()
	assertError(t, `print @;`, "Unexpected character")
}

func TestNegateTypeError(t *testing.T) {
	t.Parallel()
	assertError(t, `print -"foo";`, "Operand must be a number")
}

func TestCompileErrorAccumulates(t *testing.T) {
	t.Parallel()
	// Two separate syntax errors in one source should both surface, not
	// just the first (see the CompileError accumulation via go-multierror).
	err := vm.NewVM().Interpret("var;\nvar;\n")
	if assert.Error(t, err) {
		assert.ErrorContains(t, err, "[line 1] Error at ;: Expect variable name")
		assert.ErrorContains(t, err, "[line 2] Error at ;: Expect variable name")
	}
}

func TestManyConstantsOverflow(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	for i := 0; i < 257; i++ {
		buf.WriteString("print 1;\n")
	}
	assertError(t, buf.String(), "Too many constants in one chunk")
}
