package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/macadamian/dicomdoc"
	"github.com/macadamian/dicomdoc/bulk"
	"github.com/macadamian/dicomdoc/dcmfile"
)

func runLoad(g *globals, args []string) error {
	var codec codecFlags
	flags := pflag.NewFlagSet("load", pflag.ContinueOnError)
	codec.register(flags, g.cfg)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dicomdoc load [flags] <document> <output.dcm>\n\n%s", flags.FlagUsages())
	}
	if err := parseCommandFlags(flags, args); err != nil {
		return ignoreHelp(err)
	}
	if flags.NArg() != 2 {
		flags.Usage()
		return errors.New("load: expected a document and an output path")
	}
	input, output := flags.Arg(0), flags.Arg(1)

	f, err := codec.resolveFormat(flags, input)
	if err != nil {
		return err
	}
	r, err := dicomdoc.Read(input, f, codec.policy)
	if err != nil {
		return err
	}
	store, err := codec.store()
	if err != nil {
		return err
	}
	if store != nil {
		n, err := bulk.Internalize(r.Data, store)
		if err != nil {
			return fmt.Errorf("%s: %w", input, err)
		}
		slog.Debug("resolved bulk references", "path", input, "values", n)
	}
	if err := dcmfile.Write(output, r); err != nil {
		return err
	}
	slog.Info("loaded", "input", input, "output", output)
	return nil
}
