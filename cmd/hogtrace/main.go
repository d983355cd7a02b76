// Command hogtrace is a small CLI around the hogtrace package: parse a
// probe script and print its IR, validate a script (printing "ok", or
// its syntax errors to stderr with exit status 1), or evaluate a single
// expression against synthetic argument values.
//
// Usage:
//
//	hogtrace parse probes.ht
//	hogtrace validate probes.ht
//	hogtrace eval 'arg0 + arg1' --arg 3 --arg 4
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/PostHog/hogtrace"
	"github.com/PostHog/hogtrace/internal/eval"
	"github.com/PostHog/hogtrace/internal/frame"
	"github.com/PostHog/hogtrace/internal/lang/parser"
	"github.com/PostHog/hogtrace/internal/limits"
	"github.com/PostHog/hogtrace/internal/store"
)

var version = "0.1.0"

func main() {
	app := kingpin.New("hogtrace", "Compile, validate, and evaluate HogTrace probe scripts.")
	app.Version(version)
	app.HelpFlag.Short('h')

	verbose := app.Flag("verbose", "Log dropped/absorbed probe events to stderr.").Bool()

	parseCmd := app.Command("parse", "Parse a probe script and print its serialized IR.")
	parseFile := parseCmd.Arg("file", "Path to a probe script.").Required().String()

	validateCmd := app.Command("validate", "Parse a probe script and report syntax errors, if any.")
	validateFile := validateCmd.Arg("file", "Path to a probe script.").Required().String()

	evalCmd := app.Command("eval", "Evaluate a single expression against synthetic positional arguments.")
	evalExpr := evalCmd.Arg("expression", "Expression source, e.g. 'arg0 + arg1'.").Required().String()
	evalArgs := evalCmd.Flag("arg", "A positional argument value, repeatable (arg0, arg1, ...).").Strings()

	cmd, err := app.Parse(os.Args[1:])
	if err != nil {
		kingpin.Fatalf("%v", err)
	}

	if *verbose {
		logger, _ := zap.NewDevelopment()
		defer logger.Sync() //nolint:errcheck
		hogtrace.SetLogger(logger)
	}

	switch cmd {
	case parseCmd.FullCommand():
		runParse(*parseFile)
	case validateCmd.FullCommand():
		runValidate(*validateFile)
	case evalCmd.FullCommand():
		runEval(*evalExpr, *evalArgs)
	}
}

func runParse(path string) {
	src := readFile(path)
	prog, err := hogtrace.Compile(src)
	if err != nil {
		fmt.Fprintf(os.Stderr, "parse error:\n%v\n", err)
		os.Exit(1)
	}
	out, err := prog.Serialize()
	if err != nil {
		fmt.Fprintf(os.Stderr, "serialize error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func runValidate(path string) {
	src := readFile(path)
	if _, err := hogtrace.Compile(src); err != nil {
		fmt.Fprintf(os.Stderr, "invalid:\n%v\n", err)
		os.Exit(1)
	}
	fmt.Println("ok")
}

func runEval(expr string, rawArgs []string) {
	astProg, errs := parser.Parse("app:cli.eval:entry /" + expr + "/ {\n}\n")
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e)
		}
		os.Exit(1)
	}

	args := make([]any, len(rawArgs))
	for i, a := range rawArgs {
		args[i] = parseArgValue(a)
	}
	fr := &frame.Context{Args: args}

	lim := limits.Default()
	s := store.New()
	_, view := s.Begin(context.Background())

	predicate := astProg.Probes[0].Predicate
	v, err := eval.Eval(predicate, fr, view, &lim)
	if err != nil {
		fmt.Fprintf(os.Stderr, "eval error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%v\n", v)
}

func parseArgValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func readFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
		os.Exit(1)
	}
	return string(data)
}
