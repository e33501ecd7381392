package dicomdoc

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/macadamian/dicomdoc/tagdict"
)

// Policy selects which parts of a record the codec leaves out. Omissions
// under a policy are deliberate and never reported as errors.
type Policy struct {
	// SkipBinary omits inline bulk data: Blob values are encoded without a
	// binary field, and binary fields are ignored on decode.
	SkipBinary bool
	// SkipNonStandard drops elements whose tag has no dictionary keyword,
	// on encode and on decode. Names that do not resolve at all are
	// dropped too instead of failing.
	SkipNonStandard bool
}

// Collapse renders a value list the way it appears in a document: a list
// holding exactly one value becomes that bare value. Any other length
// stays a list, including the empty list.
func Collapse(values List) DocValue {
	if len(values) == 1 {
		return DocScalar{V: values[0]}
	}
	out := make(DocList, len(values))
	copy(out, values)
	return out
}

// Expand reverses Collapse for an element of the given VR. A bare value
// becomes a one element List when the VR allows multiplicity and stays a
// single Text otherwise. The original multiplicity is not recoverable: a
// List that held one value and a value that was always single look the
// same in a document, and both come back in the form the VR dictates.
func Expand(vr VR, v DocValue) (Value, error) {
	kind := vr.Kind()
	switch kind {
	case SequenceKind:
		return nil, fmt.Errorf("VR SQ takes a list of items")
	case BulkKind:
		return nil, fmt.Errorf("VR %s takes binary or uri, not value", vr)
	}

	var raw []any
	switch x := v.(type) {
	case DocScalar:
		raw = []any{x.V}
	case DocList:
		raw = x
	case DocItems:
		return nil, fmt.Errorf("VR %s cannot hold sequence items", vr)
	default:
		return nil, fmt.Errorf("unsupported document value %T", v)
	}

	if !vr.Multiple() {
		if len(raw) != 1 {
			return nil, fmt.Errorf("VR %s holds exactly one value, got %d", vr, len(raw))
		}
		s, err := coerce(kind, raw[0])
		if err != nil {
			return nil, err
		}
		return Text(s.(string)), nil
	}

	out := make(List, len(raw))
	for i, item := range raw {
		c, err := coerce(kind, item)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

// coerce converts a document scalar to the Go type the VR kind holds.
func coerce(kind VRKind, v any) (any, error) {
	switch kind {
	case StringKind, TextKind:
		switch x := v.(type) {
		case string:
			return x, nil
		case int64:
			return strconv.FormatInt(x, 10), nil
		case float64:
			return strconv.FormatFloat(x, 'g', -1, 64), nil
		}
	case PersonNameKind:
		switch x := v.(type) {
		case PersonName:
			return x, nil
		case string:
			return ParsePersonName(x), nil
		}
	case IntKind:
		switch x := v.(type) {
		case int64:
			return x, nil
		case float64:
			if x == math.Trunc(x) && x >= math.MinInt64 && x < math.MaxInt64 {
				return int64(x), nil
			}
			return nil, fmt.Errorf("%v is not an integer", x)
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not an integer", x)
			}
			return n, nil
		}
	case FloatKind:
		switch x := v.(type) {
		case float64:
			return x, nil
		case int64:
			return float64(x), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not a number", x)
			}
			return f, nil
		}
	}
	return nil, fmt.Errorf("%T value does not fit a %s VR", v, kind)
}

// EncodeElement converts one element to its document form.
func EncodeElement(e *Element, p Policy) (*DocElement, error) {
	name, ok := tagdict.KeywordFor(e.Tag)
	if !ok {
		name = e.Tag.String()
	}
	return encodeElement(e, p, name, 0)
}

func encodeElement(e *Element, p Policy, path string, depth int) (*DocElement, error) {
	if err := e.check(); err != nil {
		return nil, &CodecError{Path: path, Err: err}
	}
	de := &DocElement{VR: string(e.VR)}
	switch v := e.Value.(type) {
	case Text:
		de.Value = DocScalar{V: string(v)}
	case List:
		de.Value = Collapse(v)
	case Sequence:
		items := make(DocItems, len(v))
		for i, item := range v {
			var err error
			items[i], err = encodeDataset(item, p, path+"["+strconv.Itoa(i)+"]", depth+1)
			if err != nil {
				return nil, err
			}
		}
		de.Value = items
	case Blob:
		if !p.SkipBinary {
			s := base64.StdEncoding.EncodeToString(v)
			de.Binary = &s
		}
	case URI:
		s := string(v)
		de.URI = &s
	}
	return de, nil
}

// EncodeDataset converts a dataset to its document form.
func EncodeDataset(ds *Dataset, p Policy) (*DocDataset, error) {
	return encodeDataset(ds, p, "", 0)
}

func encodeDataset(ds *Dataset, p Policy, path string, depth int) (*DocDataset, error) {
	if depth > MaxDepth {
		return nil, codecErrorf(path, "sequence nesting exceeds %d levels", MaxDepth)
	}
	out := NewDocDataset()
	for _, e := range ds.Elements() {
		name, ok := tagdict.KeywordFor(e.Tag)
		if !ok {
			if p.SkipNonStandard {
				continue
			}
			name = e.Tag.String()
		}
		de, err := encodeElement(e, p, joinPath(path, name), depth)
		if err != nil {
			return nil, err
		}
		if err := out.Add(name, de); err != nil {
			return nil, &CodecError{Path: path, Err: err}
		}
	}
	return out, nil
}

// DecodeElement converts one document element back into an element. It
// returns nil and no error when the policy drops the element.
func DecodeElement(name string, de *DocElement, p Policy) (*Element, error) {
	return decodeElement(name, de, p, name, 0)
}

func decodeElement(name string, de *DocElement, p Policy, path string, depth int) (*Element, error) {
	tag, err := tagdict.TagFor(name)
	if p.SkipNonStandard {
		if err != nil {
			return nil, nil
		}
		if _, ok := tagdict.KeywordFor(tag); !ok {
			return nil, nil
		}
	} else if err != nil {
		return nil, &CodecError{Path: path, Err: err}
	}

	if de.VR == "" {
		return nil, &MissingVRError{Path: path}
	}
	vr, err := ParseVR(de.VR)
	if err != nil {
		return nil, &CodecError{Path: path + ".vr", Err: err}
	}

	binary := de.Binary
	if p.SkipBinary {
		binary = nil
	}
	present := 0
	for _, set := range []bool{de.Value != nil, binary != nil, de.URI != nil} {
		if set {
			present++
		}
	}
	if present > 1 {
		return nil, codecErrorf(path, "only one of value, binary and uri may be set")
	}

	e := &Element{Tag: tag, VR: vr}
	switch {
	case binary != nil:
		b, err := base64.StdEncoding.DecodeString(stripSpace(*binary))
		if err != nil {
			return nil, &CodecError{Path: path + ".binary", Err: err}
		}
		e.Value = Blob(b)
	case de.URI != nil:
		e.Value = URI(*de.URI)
	case de.Value != nil:
		if items, ok := de.Value.(DocItems); ok && vr == SQ {
			seq := make(Sequence, len(items))
			for i, item := range items {
				seq[i], err = decodeDataset(item, p, path+"["+strconv.Itoa(i)+"]", depth+1)
				if err != nil {
					return nil, err
				}
			}
			e.Value = seq
			break
		}
		e.Value, err = Expand(vr, de.Value)
		if err != nil {
			return nil, &CodecError{Path: path + ".value", Err: err}
		}
	}
	if err := e.check(); err != nil {
		return nil, &CodecError{Path: path, Err: err}
	}
	return e, nil
}

// DecodeDataset converts a document dataset back into a dataset.
func DecodeDataset(d *DocDataset, p Policy) (*Dataset, error) {
	return decodeDataset(d, p, "", 0)
}

func decodeDataset(d *DocDataset, p Policy, path string, depth int) (*Dataset, error) {
	if depth > MaxDepth {
		return nil, codecErrorf(path, "sequence nesting exceeds %d levels", MaxDepth)
	}
	ds := &Dataset{}
	for _, name := range d.Names() {
		de, _ := d.Get(name)
		elementPath := joinPath(path, name)
		e, err := decodeElement(name, de, p, elementPath, depth)
		if err != nil {
			return nil, err
		}
		if e == nil {
			continue
		}
		if err := ds.Add(e); err != nil {
			return nil, &CodecError{Path: elementPath, Err: err}
		}
	}
	return ds, nil
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, s)
}
