package dicomdoc

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/macadamian/dicomdoc/internal/atomicfile"
)

// Encode renders a record in format f under policy p.
func Encode(r *Record, f Format, p Policy) ([]byte, error) {
	doc, err := ToDocument(r, p)
	if err != nil {
		return nil, err
	}
	return f.Marshal(doc)
}

// Decode parses a document in format f into a record under policy p.
func Decode(data []byte, f Format, p Policy) (*Record, error) {
	doc, err := f.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc, p)
}

// Write encodes r and stores it at path. The path suffix must match f;
// otherwise nothing is written and a *FormatMismatchError is returned.
// Missing parent directories are created, and the file is replaced
// atomically.
func Write(path string, r *Record, f Format, p Policy) error {
	if !suffixMatches(path, f) {
		return &FormatMismatchError{Path: path, Format: f}
	}
	data, err := Encode(r, f, p)
	if err != nil {
		return err
	}
	if err := atomicfile.WriteFile(path, data); err != nil {
		return err
	}
	slog.Debug("wrote document", "path", path, "format", f, "elements", r.Data.Len())
	return nil
}

// Read loads the document at path, parsing it as f whatever its suffix. A
// missing file is reported with an error matching fs.ErrNotExist.
func Read(path string, f Format, p Policy) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	r, err := Decode(data, f, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	slog.Debug("read document", "path", path, "format", f, "elements", r.Data.Len())
	return r, nil
}

func suffixMatches(path string, f Format) bool {
	return strings.ToLower(filepath.Ext(path)) == f.Ext()
}
