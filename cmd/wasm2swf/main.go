package main

import (
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"nikand.dev/go/cli"
	"nikand.dev/go/cli/flag"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/ext/tlflag"
	"tlog.app/go/tlog/tlio"

	wasm "github.com/brion/wasm2swf"
	"github.com/brion/wasm2swf/internal/abc"
	"github.com/brion/wasm2swf/internal/config"
	"github.com/brion/wasm2swf/internal/ir"
	"github.com/brion/wasm2swf/internal/lower"
	"github.com/brion/wasm2swf/internal/swf"
	"github.com/brion/wasm2swf/internal/wat"
)

func main() {
	app := &cli.Command{
		Name:        "wasm2swf",
		Description: "compile a Wasm module to AVM2 bytecode embedded in a SWF (or a raw ABC blob)",
		Before:      before,
		Action:      run,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("output,o", "", "output .swf or .abc path (extension-dispatched)"),
			cli.NewFlag("sprite", "", "wrap the class in a Wrapper extends Sprite and register it as the SymbolClass"),
			cli.NewFlag("debug", "", "accepted and stored in the config; no debugfile/debugline instructions are emitted"),
			cli.NewFlag("trace", "", "trace every lowered expression"),
			cli.NewFlag("trace-funcs", "", "enable tracing; same per-expression trace lines as --trace"),
			cli.NewFlag("trace-only", "", "comma-separated function names to restrict tracing to"),
			cli.NewFlag("trace-exclude", "", "comma-separated function names to exclude from tracing"),
			cli.NewFlag("save-wat", "", "dump the post-pass Wasm text to this path alongside the output"),
			cli.NewFlag("log", "stderr?dm", "log output file (or stderr)"),
			cli.NewFlag("verbosity,v", "", "logger verbosity topics"),
			cli.NewFlag("listen", "", "debug address", flag.Hidden),
			cli.FlagfileFlag,
			cli.HelpFlag,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func before(c *cli.Command) error {
	w, err := tlflag.OpenWriter(c.String("log"))
	if err != nil {
		return errors.Wrap(err, "open log file")
	}

	err = tlio.WalkWriter(w, func(w io.Writer) error {
		cw, ok := w.(*tlog.ConsoleWriter)
		if !ok {
			return nil
		}
		cw.StringOnNewLineMinLen = 16
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "walk writer")
	}

	tlog.DefaultLogger = tlog.New(w)
	tlog.SetVerbosity(c.String("verbosity"))

	if q := c.String("listen"); q != "" {
		l, err := net.Listen("tcp", q)
		if err != nil {
			return errors.Wrap(err, "listen debug")
		}

		tlog.Printw("start debug interface", "addr", l.Addr())

		go func() {
			err := http.Serve(l, nil)
			if err != nil {
				tlog.Printw("debug", "addr", q, "err", err, "", tlog.Fatal)
				panic(err)
			}
		}()
	}

	return nil
}

func run(c *cli.Command) error {
	if len(c.Args) != 1 {
		return errors.New("expected exactly one input .wasm path")
	}
	input := c.Args[0]

	output := c.String("output")
	if output == "" {
		output = strings.TrimSuffix(input, filepath.Ext(input)) + ".swf"
	}

	cfg := config.FromFlags(input, output,
		c.Bool("sprite"), c.Bool("debug"), c.Bool("trace"), c.Bool("trace-funcs"),
		c.String("trace-only"), c.String("trace-exclude"), c.String("save-wat"))

	data, err := os.ReadFile(cfg.Input)
	if err != nil {
		return errors.Wrap(err, "read input")
	}

	var d wasm.Decoder
	src := &wasm.Module{}
	if err := d.Module(data, src); err != nil {
		return errors.Wrap(err, "decode wasm")
	}

	mod, err := ir.Build(src)
	if err != nil {
		return errors.Wrap(err, "build ir")
	}

	if err := ir.Normalize(mod); err != nil {
		return errors.Wrap(err, "normalize")
	}

	if cfg.SaveWAT != "" {
		if err := os.WriteFile(cfg.SaveWAT, []byte(wat.Dump(mod)), 0644); err != nil {
			return errors.Wrap(err, "save wat")
		}
	}

	className := "Instance"
	asm, err := lower.LowerModule(mod, className, cfg)
	if err != nil {
		return errors.Wrap(err, "lower module")
	}

	abcBytes, err := abc.Assemble(asm, cfg.Sprite)
	if err != nil {
		return errors.Wrap(err, "assemble abc")
	}

	if cfg.OutputIsABC() {
		if err := os.WriteFile(cfg.Output, abcBytes, 0644); err != nil {
			return errors.Wrap(err, "write output")
		}
		tlog.Printw("wrote abc", "path", cfg.Output, "bytes", len(abcBytes))
		return nil
	}

	docClass := className
	if cfg.Sprite {
		docClass = "Wrapper"
	}

	swfBytes, err := swf.Wrap(abcBytes, []swf.ClassBinding{{ClassName: docClass}})
	if err != nil {
		return errors.Wrap(err, "wrap swf")
	}

	if err := os.WriteFile(cfg.Output, swfBytes, 0644); err != nil {
		return errors.Wrap(err, "write output")
	}

	tlog.Printw("wrote swf", "path", cfg.Output, "bytes", len(swfBytes))
	return nil
}
