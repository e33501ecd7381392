// Package dcmfile moves records between binary DICOM files and the
// dicomdoc data model, using the github.com/gradienthealth/dicom parser.
//
// Values are converted per VR into the types dicomdoc expects. Pixel data
// frames are not carried across: the parser delivers them as frame
// structures rather than element bytes, so PixelData is dropped with a
// warning in both directions.
package dcmfile

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/gradienthealth/dicom"
	"github.com/gradienthealth/dicom/dicomtag"

	"github.com/macadamian/dicomdoc"
	"github.com/macadamian/dicomdoc/tagdict"
)

// Options controls how a file is read.
type Options struct {
	// DropPixelData skips the pixel data element while parsing.
	DropPixelData bool
}

// Read parses the DICOM file at path. Group 0002 elements go to the
// record's file meta section, everything else to its data section.
func Read(path string, opts Options) (*dicomdoc.Record, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading DICOM file: %w", err)
	}
	in, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading DICOM file: %w", err)
	}
	defer in.Close()

	p, err := dicom.NewParser(in, st.Size(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ds, err := p.Parse(dicom.ParseOptions{DropPixelData: opts.DropPixelData})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r, err := FromDataSet(ds)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	slog.Debug("read DICOM file", "path", path, "meta", r.FileMeta.Len(), "elements", r.Data.Len())
	return r, nil
}

// FromDataSet converts a parsed data set into a record.
func FromDataSet(ds *dicom.DataSet) (*dicomdoc.Record, error) {
	r := dicomdoc.NewRecord()
	for _, e := range ds.Elements {
		el, err := fromElement(e, 0)
		if err != nil {
			return nil, err
		}
		if el == nil {
			continue
		}
		target := r.Data
		if el.Tag.IsMeta() {
			target = r.FileMeta
		}
		if err := target.Add(el); err != nil {
			slog.Warn("skipping repeated element", "tag", el.Tag.String())
		}
	}
	return r, nil
}

func fromDataSetItem(item *dicom.Element, depth int) (*dicomdoc.Dataset, error) {
	ds := &dicomdoc.Dataset{}
	for _, v := range item.Value {
		child, ok := v.(*dicom.Element)
		if !ok {
			return nil, fmt.Errorf("sequence item holds %T, want elements", v)
		}
		el, err := fromElement(child, depth)
		if err != nil {
			return nil, err
		}
		if el == nil {
			continue
		}
		if err := ds.Add(el); err != nil {
			slog.Warn("skipping repeated element", "tag", el.Tag.String())
		}
	}
	return ds, nil
}

// fromElement converts one parsed element. It returns nil for elements the
// data model cannot hold; those are logged and skipped.
func fromElement(e *dicom.Element, depth int) (*dicomdoc.Element, error) {
	if depth > dicomdoc.MaxDepth {
		return nil, fmt.Errorf("sequence nesting exceeds %d levels", dicomdoc.MaxDepth)
	}
	tag := tagdict.FromDicomTag(e.Tag)
	if e.Tag == dicomtag.PixelData {
		slog.Warn("pixel data frames are not carried", "tag", tag.String())
		return nil, nil
	}
	vr, ok := resolveVR(e)
	if !ok {
		slog.Warn("skipping element with unsupported VR", "tag", tag.String(), "vr", e.VR)
		return nil, nil
	}
	out := &dicomdoc.Element{Tag: tag, VR: vr}
	if len(e.Value) == 0 {
		return out, nil
	}

	var err error
	switch vr.Kind() {
	case dicomdoc.SequenceKind:
		seq := make(dicomdoc.Sequence, 0, len(e.Value))
		for _, v := range e.Value {
			item, ok := v.(*dicom.Element)
			if !ok {
				return nil, fmt.Errorf("%v: sequence holds %T, want items", tag, v)
			}
			ds, err := fromDataSetItem(item, depth+1)
			if err != nil {
				return nil, fmt.Errorf("%v: %w", tag, err)
			}
			seq = append(seq, ds)
		}
		out.Value = seq
	case dicomdoc.BulkKind:
		var b []byte
		if b, err = bulkBytes(e.Value); err == nil {
			out.Value = dicomdoc.Blob(b)
		}
	case dicomdoc.TextKind:
		var parts []string
		if parts, err = stringValues(e.Value); err == nil {
			out.Value = dicomdoc.Text(strings.Join(parts, `\`))
		}
	default:
		var list dicomdoc.List
		if list, err = listValues(vr, e.Value); err == nil && len(list) > 0 {
			out.Value = list
		}
	}
	if err != nil {
		slog.Warn("skipping element value", "tag", tag.String(), "vr", string(vr), "error", err)
		return nil, nil
	}
	return out, nil
}

// resolveVR picks the element's VR, falling back to the dictionary and then
// to the Go type of its values for implicit or ambiguous encodings.
func resolveVR(e *dicom.Element) (dicomdoc.VR, bool) {
	if vr, err := dicomdoc.ParseVR(e.VR); err == nil {
		return vr, true
	}
	if info, err := dicomtag.Find(e.Tag); err == nil {
		if vr, err := dicomdoc.ParseVR(info.VR); err == nil {
			return vr, true
		}
	}
	if len(e.Value) == 0 {
		return dicomdoc.UN, true
	}
	switch e.Value[0].(type) {
	case uint16:
		return dicomdoc.US, true
	case int16:
		return dicomdoc.SS, true
	case uint32:
		return dicomdoc.UL, true
	case int32:
		return dicomdoc.SL, true
	case float32:
		return dicomdoc.FL, true
	case float64:
		return dicomdoc.FD, true
	case []byte:
		return dicomdoc.OB, true
	case *dicom.Element:
		return dicomdoc.SQ, true
	}
	return "", false
}

func stringValues(values []interface{}) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("value %d is %T, want string", i, v)
		}
		out[i] = s
	}
	return out, nil
}

func listValues(vr dicomdoc.VR, values []interface{}) (dicomdoc.List, error) {
	list := make(dicomdoc.List, 0, len(values))
	for i, v := range values {
		var item any
		var err error
		switch vr.Kind() {
		case dicomdoc.IntKind:
			item, err = toInt64(v)
		case dicomdoc.FloatKind:
			item, err = toFloat64(v)
		case dicomdoc.PersonNameKind:
			s, ok := v.(string)
			if !ok {
				err = fmt.Errorf("%T is not a person name", v)
			}
			item = dicomdoc.ParsePersonName(s)
		default:
			switch x := v.(type) {
			case string:
				item = x
			case dicomtag.Tag:
				item = tagdict.FromDicomTag(x).String()
			default:
				err = fmt.Errorf("%T is not a string", v)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		if item == nil {
			continue
		}
		list = append(list, item)
	}
	return list, nil
}

// toInt64 returns nil for an empty IS value.
func toInt64(v interface{}) (any, error) {
	switch x := v.(type) {
	case uint16:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("%d overflows int64", x)
		}
		return int64(x), nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer string", x)
		}
		return n, nil
	}
	return nil, fmt.Errorf("%T is not an integer", v)
}

// toFloat64 returns nil for an empty DS value.
func toFloat64(v interface{}) (any, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a decimal string", x)
		}
		return f, nil
	}
	return nil, fmt.Errorf("%T is not a number", v)
}

// bulkBytes flattens the values of an OB/OW/OF/OD/OL/OV/UN element into
// little-endian bytes.
func bulkBytes(values []interface{}) ([]byte, error) {
	if len(values) == 1 {
		if b, ok := values[0].([]byte); ok {
			return b, nil
		}
	}
	var out []byte
	for i, v := range values {
		switch x := v.(type) {
		case []byte:
			out = append(out, x...)
		case string:
			if i > 0 {
				out = append(out, '\\')
			}
			out = append(out, x...)
		case uint16:
			out = binary.LittleEndian.AppendUint16(out, x)
		case uint32:
			out = binary.LittleEndian.AppendUint32(out, x)
		case float32:
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(x))
		case float64:
			out = binary.LittleEndian.AppendUint64(out, math.Float64bits(x))
		default:
			return nil, fmt.Errorf("%T cannot be held as bytes", v)
		}
	}
	return out, nil
}
