package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"
	"github.com/rami3l/loxvm/debug"
	e "github.com/rami3l/loxvm/errors"
	"github.com/rami3l/loxvm/vm"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	easy "github.com/t-tomalak/logrus-easy-formatter"
)

// Exit codes follow the clox/lox convention: a generic usage error, a
// compile-time failure, and a runtime failure are distinguished so scripts
// driving the interpreter can tell them apart.
const (
	exitUsage   = 64
	exitCompile = 65
	exitRuntime = 70
)

func App() (app *cobra.Command) {
	app = &cobra.Command{
		Use:   "loxvm [script]",
		Short: "Launch the loxvm bytecode interpreter",
	}

	app.Flags().SortFlags = true
	defaultVerbosityStr := "INFO"
	verbosity := app.Flags().StringP("verbosity", "v", defaultVerbosityStr, "Logging verbosity")

	app.Run = func(_ *cobra.Command, args []string) {
		verbosityLvl, err := logrus.ParseLevel(*verbosity)
		if err != nil {
			verbosityLvl, _ = logrus.ParseLevel(defaultVerbosityStr)
		}
		logrus.SetLevel(verbosityLvl)
		logrus.SetFormatter(&easy.Formatter{LogFormat: "//DBG// %msg%\n"})
		debug.DEBUG = verbosityLvl >= logrus.DebugLevel

		if err := appMain(args); err != nil {
			logrus.Errorln(err)
			os.Exit(exitCodeFor(err))
		}
	}
	return
}

// exitCodeFor maps an interpreter error to the clox exit-code convention;
// anything else (I/O failure, bad CLI usage) falls back to exitUsage.
func exitCodeFor(err error) int {
	var compileErr *e.CompileError
	if errors.As(err, &compileErr) {
		return exitCompile
	}
	var runtimeErr *e.RuntimeError
	if errors.As(err, &runtimeErr) {
		return exitRuntime
	}
	return exitUsage
}

func appMain(args []string) error {
	switch len(args) {
	case 0:
		return runREPL()
	case 1:
		return runFile(args[0])
	default:
		fmt.Fprintln(os.Stderr, "Usage: loxvm [path]")
		return fmt.Errorf("usage: loxvm [path]")
	}
}

func runFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return vm.NewVM().Interpret(string(src))
}

// runREPL reads one line at a time with history/line-editing courtesy of
// readline, feeding each line to the same long-lived VM so that globals
// defined on one line are visible to the next. A line that merely fails to
// compile or run is reported and the prompt continues; only EOF (Ctrl-D) or
// an empty line ends the session.
func runREPL() error {
	rl, err := readline.New(">> ")
	if err != nil {
		return err
	}
	defer rl.Close()

	vm_ := vm.NewVM()
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF on Ctrl-D, readline.ErrInterrupt on Ctrl-C.
			if err == io.EOF {
				return nil
			}
			if err == readline.ErrInterrupt {
				continue
			}
			return err
		}
		if line == "" { // An empty line, like EOF, ends the session.
			return nil
		}
		if err := vm_.Interpret(line); err != nil {
			logrus.Errorln(err)
		}
	}
}
