// Command dicomdoc converts DICOM files to and from JSON, YAML and CBOR
// documents.
//
//	dicomdoc [global flags] dump [flags] <input> [output]
//	dicomdoc [global flags] load [flags] <document> <output.dcm>
//	dicomdoc [global flags] info [--detailed] <file|dir>...
//
// Global flags:
//
//	--config path     configuration file (default $DICOMDOC_CONFIG)
//	--log-level lvl   debug, info, warn or error
//	--no-color        plain output from info
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/macadamian/dicomdoc/config"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globals are the flags accepted before the command name.
type globals struct {
	cfg     *config.Config
	noColor bool
	stdout  io.Writer
}

type command struct {
	name    string
	summary string
	run     func(g *globals, args []string) error
}

var commands = []command{
	{"dump", "convert DICOM files to documents", runDump},
	{"load", "convert a document back to a DICOM file", runLoad},
	{"info", "summarize DICOM files or documents", runInfo},
}

func run(args []string, stdout io.Writer) error {
	var configPath, logLevel string
	var noColor bool
	flags := pflag.NewFlagSet("dicomdoc", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.StringVar(&configPath, "config", "", "configuration file (default $"+config.EnvVar+")")
	flags.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")
	flags.BoolVar(&noColor, "no-color", false, "disable styled output")
	flags.Usage = func() { usage(flags) }
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	level, err := cfg.Level()
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	slog.SetDefault(newLogger(level))

	rest := flags.Args()
	if len(rest) == 0 {
		usage(flags)
		return errors.New("command required")
	}
	g := &globals{cfg: cfg, noColor: noColor, stdout: stdout}
	for _, c := range commands {
		if c.name == rest[0] {
			return c.run(g, rest[1:])
		}
	}
	return fmt.Errorf("unknown command %q", rest[0])
}

func usage(flags *pflag.FlagSet) {
	var b strings.Builder
	b.WriteString("Usage: dicomdoc [global flags] <command> [flags] [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(&b, "  %-6s %s\n", c.name, c.summary)
	}
	b.WriteString("\nGlobal flags:\n")
	b.WriteString(flags.FlagUsages())
	fmt.Fprint(os.Stderr, b.String())
}

// newLogger logs text to a terminal and JSON otherwise.
func newLogger(level slog.Level) *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

// parseCommandFlags parses a command's flags, returning errHelpShown when
// the user asked for help.
func parseCommandFlags(flags *pflag.FlagSet, args []string) error {
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errHelpShown
		}
		return fmt.Errorf("%s: %w", flags.Name(), err)
	}
	return nil
}

var errHelpShown = errors.New("help shown")

// ignoreHelp turns errHelpShown into success.
func ignoreHelp(err error) error {
	if errors.Is(err, errHelpShown) {
		return nil
	}
	return err
}
