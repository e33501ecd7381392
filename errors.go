package dicomdoc

import (
	"errors"
	"fmt"

	"github.com/macadamian/dicomdoc/tagdict"
)

// ErrCodec matches every error the codec reports about malformed input,
// through errors.Is.
var ErrCodec = errors.New("dicomdoc: codec error")

// UnknownTagError is returned when a document key is neither a dictionary
// keyword nor a hex tag.
type UnknownTagError = tagdict.UnknownTagError

// CodecError reports malformed input at a document path such as
// "data.ReferencedImageSequence[0].ReferencedSOPInstanceUID".
type CodecError struct {
	Path string
	Err  error
}

func (e *CodecError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return e.Path + ": " + e.Err.Error()
}

func (e *CodecError) Unwrap() error { return e.Err }

func (e *CodecError) Is(target error) bool { return target == ErrCodec }

// MissingVRError is returned when a document element has no "vr" field.
type MissingVRError struct {
	Path string
}

func (e *MissingVRError) Error() string {
	return fmt.Sprintf("%s: element has no vr", e.Path)
}

func (e *MissingVRError) Is(target error) bool { return target == ErrCodec }

// FormatMismatchError is returned by Write when the path extension does
// not match the requested format. Nothing is written.
type FormatMismatchError struct {
	Path   string
	Format Format
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("no file is written: path should have %s suffix: %s", e.Format.Ext(), e.Path)
}

func codecErrorf(path, format string, args ...any) error {
	return &CodecError{Path: path, Err: fmt.Errorf(format, args...)}
}
