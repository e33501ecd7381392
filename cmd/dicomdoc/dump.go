package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/spf13/pflag"

	"github.com/macadamian/dicomdoc"
	"github.com/macadamian/dicomdoc/bulk"
	"github.com/macadamian/dicomdoc/config"
	"github.com/macadamian/dicomdoc/dcmfile"
)

// codecFlags are the flags shared by dump and load. Flags the user sets
// override the configuration file.
type codecFlags struct {
	format      string
	policy      dicomdoc.Policy
	bulkDir     string
	compression string
	minBulk     int
}

func (c *codecFlags) register(flags *pflag.FlagSet, cfg *config.Config) {
	flags.StringVarP(&c.format, "format", "f", cfg.Format, "document format: json, yaml or cbor")
	c.policy = cfg.Policy()
	flags.BoolVar(&c.policy.SkipBinary, "skip-binary", c.policy.SkipBinary, "omit binary values from documents")
	flags.BoolVar(&c.policy.SkipNonStandard, "skip-nonstandard", c.policy.SkipNonStandard, "omit elements without a dictionary keyword")
	flags.StringVar(&c.bulkDir, "bulk-dir", cfg.Bulk.Dir, "store binary values in this directory and reference them by URI")
	flags.StringVar(&c.compression, "compression", cfg.Bulk.Compression, "bulk store compression: none, lz4 or zstd")
	flags.IntVar(&c.minBulk, "min-bulk", cfg.Bulk.MinSize, "smallest binary value, in bytes, moved to the bulk store")
}

// store opens the bulk store, or returns nil when none is configured.
func (c *codecFlags) store() (*bulk.Store, error) {
	if c.bulkDir == "" {
		return nil, nil
	}
	compression, err := bulk.ParseCompression(c.compression)
	if err != nil {
		return nil, fmt.Errorf("--compression: %w", err)
	}
	return bulk.NewStore(c.bulkDir, compression)
}

// resolveFormat returns the --format value when it was given explicitly,
// else the format named by path's extension, else the --format default.
func (c *codecFlags) resolveFormat(flags *pflag.FlagSet, path string) (dicomdoc.Format, error) {
	if !flags.Changed("format") && path != "" {
		if f, err := dicomdoc.FormatForPath(path); err == nil {
			return f, nil
		}
	}
	f, err := dicomdoc.ParseFormat(c.format)
	if err != nil {
		return 0, fmt.Errorf("--format: %w", err)
	}
	return f, nil
}

type dumper struct {
	format  dicomdoc.Format
	policy  dicomdoc.Policy
	store   *bulk.Store
	minBulk int
	read    dcmfile.Options
}

func runDump(g *globals, args []string) error {
	var codec codecFlags
	var pattern string
	var dropPixelData bool
	flags := pflag.NewFlagSet("dump", pflag.ContinueOnError)
	codec.register(flags, g.cfg)
	flags.StringVar(&pattern, "glob", g.cfg.Glob, "files to convert when the input is a directory")
	flags.BoolVar(&dropPixelData, "drop-pixel-data", g.cfg.DropPixelData, "skip pixel data while parsing")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dicomdoc dump [flags] <input> [output]\n\n%s", flags.FlagUsages())
	}
	if err := parseCommandFlags(flags, args); err != nil {
		return ignoreHelp(err)
	}
	if flags.NArg() < 1 || flags.NArg() > 2 {
		flags.Usage()
		return errors.New("dump: expected an input and an optional output")
	}
	input, output := flags.Arg(0), flags.Arg(1)

	f, err := codec.resolveFormat(flags, output)
	if err != nil {
		return err
	}
	if codec.minBulk < 0 {
		return fmt.Errorf("--min-bulk must not be negative, got %d", codec.minBulk)
	}
	store, err := codec.store()
	if err != nil {
		return err
	}
	d := &dumper{
		format:  f,
		policy:  codec.policy,
		store:   store,
		minBulk: codec.minBulk,
		read:    dcmfile.Options{DropPixelData: dropPixelData},
	}

	st, err := os.Stat(input)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		if output == "" {
			output = replaceExt(input, f.Ext())
		}
		return d.dumpFile(input, output)
	}
	if output == "" {
		return errors.New("dump: an output directory is required when the input is a directory")
	}
	matcher, err := glob.Compile(pattern, '/')
	if err != nil {
		return fmt.Errorf("--glob %q: %w", pattern, err)
	}
	return d.dumpTree(input, output, matcher)
}

func (d *dumper) dumpFile(input, output string) error {
	r, err := dcmfile.Read(input, d.read)
	if err != nil {
		return err
	}
	if d.store != nil {
		n, err := bulk.Externalize(r.Data, d.store, d.minBulk)
		if err != nil {
			return fmt.Errorf("%s: %w", input, err)
		}
		slog.Debug("externalized bulk data", "path", input, "values", n)
	}
	if err := dicomdoc.Write(output, r, d.format, d.policy); err != nil {
		return fmt.Errorf("%s: %w", input, err)
	}
	slog.Info("dumped", "input", input, "output", output)
	return nil
}

// dumpTree converts every file under root matching the glob, mirroring the
// directory layout under out. A failed file is logged and the walk
// continues.
func (d *dumper) dumpTree(root, out string, matcher glob.Glob) error {
	var converted, failed int
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if !matcher.Match(filepath.ToSlash(rel)) {
			return nil
		}
		target := filepath.Join(out, replaceExt(rel, d.format.Ext()))
		if err := d.dumpFile(path, target); err != nil {
			slog.Error("dump failed", "path", path, "error", err)
			failed++
			return nil
		}
		converted++
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info("dump finished", "converted", converted, "failed", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, converted+failed)
	}
	return nil
}

func replaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
