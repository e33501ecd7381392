package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/gobwas/glob"
	"github.com/muesli/termenv"
	"github.com/spf13/pflag"

	"github.com/macadamian/dicomdoc"
	"github.com/macadamian/dicomdoc/dcmfile"
	"github.com/macadamian/dicomdoc/tagdict"
)

// maxShownValue bounds the rendering of one value in the detailed listing.
const maxShownValue = 64

type infoStyles struct {
	title lipgloss.Style
	label lipgloss.Style
	tag   lipgloss.Style
	vr    lipgloss.Style
	note  lipgloss.Style
}

func newInfoStyles(w io.Writer, noColor bool) infoStyles {
	var renderer *lipgloss.Renderer
	if noColor {
		renderer = lipgloss.NewRenderer(w, termenv.WithProfile(termenv.Ascii))
	} else {
		renderer = lipgloss.NewRenderer(w)
	}
	return infoStyles{
		title: renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		label: renderer.NewStyle().Bold(true).Width(20),
		tag:   renderer.NewStyle().Foreground(lipgloss.Color("8")),
		vr:    renderer.NewStyle().Foreground(lipgloss.Color("10")),
		note:  renderer.NewStyle().Foreground(lipgloss.Color("11")).Italic(true),
	}
}

func runInfo(g *globals, args []string) error {
	var detailed bool
	flags := pflag.NewFlagSet("info", pflag.ContinueOnError)
	flags.BoolVarP(&detailed, "detailed", "d", false, "list every data element")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: dicomdoc info [--detailed] <file|dir>...\n\n%s", flags.FlagUsages())
	}
	if err := parseCommandFlags(flags, args); err != nil {
		return ignoreHelp(err)
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return errors.New("info: expected at least one file")
	}

	paths, err := expandInputs(flags.Args(), g.cfg.Glob)
	if err != nil {
		return err
	}
	styles := newInfoStyles(g.stdout, g.noColor)
	for i, path := range paths {
		r, err := readAny(path)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(g.stdout)
		}
		writeSummary(g.stdout, styles, path, r)
		if detailed {
			fmt.Fprintln(g.stdout)
			writeElements(g.stdout, styles, r.Data, 0)
		}
	}
	return nil
}

// expandInputs replaces each directory argument with the files under it
// that match pattern.
func expandInputs(args []string, pattern string) ([]string, error) {
	matcher, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	var paths []string
	for _, arg := range args {
		st, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !st.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, entry fs.DirEntry, err error) error {
			if err != nil || entry.IsDir() {
				return err
			}
			rel, err := filepath.Rel(arg, path)
			if err != nil {
				return err
			}
			if matcher.Match(filepath.ToSlash(rel)) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}

// readAny reads a document when path carries a document suffix, and a
// DICOM file otherwise.
func readAny(path string) (*dicomdoc.Record, error) {
	if f, err := dicomdoc.FormatForPath(path); err == nil {
		return dicomdoc.Read(path, f, dicomdoc.Policy{})
	}
	return dcmfile.Read(path, dcmfile.Options{DropPixelData: true})
}

func writeSummary(w io.Writer, s infoStyles, path string, r *dicomdoc.Record) {
	fmt.Fprintln(w, s.title.Render(path))

	field := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(w, "%s %s\n", s.label.Render(label), value)
	}
	str := func(ds *dicomdoc.Dataset, t tagdict.Tag) string {
		v, _ := ds.String(t)
		return v
	}

	sopClass := str(r.FileMeta, tagdict.MediaStorageSOPClassUID)
	if sopClass == "" {
		sopClass = str(r.Data, tagdict.SOPClassUID)
	}
	field("Storage class", sopClass)
	field("Transfer syntax", str(r.FileMeta, tagdict.TransferSyntaxUID))
	field("Implementation", str(r.FileMeta, tagdict.ImplementationClassUID))
	field("Patient", strings.TrimSpace(str(r.Data, tagdict.PatientName)+" "+bracketed(str(r.Data, tagdict.PatientID))))
	field("Modality", str(r.Data, tagdict.Modality))
	field("Study date", str(r.Data, tagdict.StudyDate))
	if rows, cols := str(r.Data, tagdict.Rows), str(r.Data, tagdict.Columns); rows != "" && cols != "" {
		field("Image size", cols+" x "+rows)
	}
	field("Pixel spacing", strings.ReplaceAll(str(r.Data, tagdict.PixelSpacing), `\`, " x "))
	if rows := str(r.Data, tagdict.Rows); rows != "" {
		frames := str(r.Data, tagdict.NumberOfFrames)
		if frames == "" {
			frames = "1"
		}
		field("Frames", frames)
	}
	field("Slice location", str(r.Data, tagdict.SliceLocation))
	field("Series", str(r.Data, tagdict.SeriesDescription))
	field("Elements", fmt.Sprintf("%d data, %d file meta", r.Data.Len(), r.FileMeta.Len()))
}

func bracketed(s string) string {
	if s == "" {
		return ""
	}
	return "[" + s + "]"
}

// writeElements lists a data set, one element per line, indenting sequence
// items.
func writeElements(w io.Writer, s infoStyles, ds *dicomdoc.Dataset, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, e := range ds.Elements() {
		name, ok := tagdict.KeywordFor(e.Tag)
		if !ok {
			name = "?"
		}
		var notes []string
		switch {
		case e.Tag.IsPrivate():
			notes = append(notes, "private")
		case tagdict.Default().IsRetired(e.Tag):
			notes = append(notes, "retired")
		case !tagdict.IsStandard(e.Tag):
			notes = append(notes, "non-standard")
		}
		line := fmt.Sprintf("%s%s %s %s %s", indent,
			s.tag.Render(e.Tag.String()), s.vr.Render(string(e.VR)), name, describe(e.Value))
		if len(notes) > 0 {
			line += " " + s.note.Render("("+strings.Join(notes, ", ")+")")
		}
		fmt.Fprintln(w, line)

		if seq, ok := e.Value.(dicomdoc.Sequence); ok {
			for i, item := range seq {
				fmt.Fprintf(w, "%s  item %d\n", indent, i)
				writeElements(w, s, item, depth+2)
			}
		}
	}
}

func describe(v dicomdoc.Value) string {
	switch v := v.(type) {
	case nil:
		return "<empty>"
	case dicomdoc.Sequence:
		return fmt.Sprintf("<%d items>", len(v))
	case dicomdoc.Blob:
		return fmt.Sprintf("<%d bytes>", len(v))
	case dicomdoc.URI:
		return string(v)
	case dicomdoc.Text:
		return truncate(strings.ReplaceAll(string(v), "\n", `\n`))
	case dicomdoc.List:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprint(item)
		}
		return truncate(strings.Join(parts, `\`))
	}
	return fmt.Sprint(v)
}

func truncate(s string) string {
	if r := []rune(s); len(r) > maxShownValue {
		return string(r[:maxShownValue-3]) + "..."
	}
	return s
}
