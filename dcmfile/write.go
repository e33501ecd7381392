package dcmfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"

	"github.com/gradienthealth/dicom"
	"github.com/gradienthealth/dicom/dicomtag"
	"golang.org/x/text/encoding"

	"github.com/macadamian/dicomdoc"
	"github.com/macadamian/dicomdoc/internal/atomicfile"
	"github.com/macadamian/dicomdoc/tagdict"
)

// Write stores r as a DICOM file at path. The record must carry the file
// meta elements a writer needs, and bulk URIs must already be resolved.
func Write(path string, r *dicomdoc.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	ds, err := ToDataSet(r)
	if err != nil {
		return err
	}
	err = atomicfile.Write(path, func(w io.Writer) error {
		return dicom.WriteDataSet(w, ds)
	})
	if err != nil {
		return err
	}
	slog.Debug("wrote DICOM file", "path", path, "elements", len(ds.Elements))
	return nil
}

// ToDataSet converts a record into the parser library's data set, file
// meta first and each section in ascending tag order. Text values are
// encoded into the record's SpecificCharacterSet.
func ToDataSet(r *dicomdoc.Record) (*dicom.DataSet, error) {
	enc, err := textEncoder(r.Data)
	if err != nil {
		return nil, err
	}
	ds := &dicom.DataSet{}
	for _, section := range []*dicomdoc.Dataset{r.FileMeta, r.Data} {
		elements, err := toElements(section, enc, 0)
		if err != nil {
			return nil, err
		}
		ds.Elements = append(ds.Elements, elements...)
	}
	return ds, nil
}

func toElements(ds *dicomdoc.Dataset, enc *encoding.Encoder, depth int) ([]*dicom.Element, error) {
	if depth > dicomdoc.MaxDepth {
		return nil, fmt.Errorf("sequence nesting exceeds %d levels", dicomdoc.MaxDepth)
	}
	sorted := append([]*dicomdoc.Element(nil), ds.Elements()...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Tag.Less(sorted[j].Tag) })

	out := make([]*dicom.Element, 0, len(sorted))
	for _, e := range sorted {
		if e.Tag.Element == 0x0000 {
			// Group lengths are recomputed by the writer.
			continue
		}
		if e.Tag == tagdict.PixelData {
			slog.Warn("pixel data frames are not carried", "tag", e.Tag.String())
			continue
		}
		el, err := toElement(e, enc, depth)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", e.Tag, err)
		}
		out = append(out, el)
	}
	return out, nil
}

func toElement(e *dicomdoc.Element, enc *encoding.Encoder, depth int) (*dicom.Element, error) {
	dt := e.Tag.DicomTag()
	out := &dicom.Element{Tag: dt, VR: string(e.VR), Value: []interface{}{}}
	kind := dicomtag.GetVRKind(dt, string(e.VR))

	switch v := e.Value.(type) {
	case nil:
	case dicomdoc.URI:
		return nil, fmt.Errorf("unresolved bulk reference %q", string(v))
	case dicomdoc.Sequence:
		out.UndefinedLength = true
		for _, item := range v {
			children, err := toElements(item, enc, depth+1)
			if err != nil {
				return nil, err
			}
			values := make([]interface{}, len(children))
			for i, c := range children {
				values[i] = c
			}
			out.Value = append(out.Value, &dicom.Element{
				Tag:             dicomtag.Item,
				VR:              "NA",
				UndefinedLength: true,
				Value:           values,
			})
		}
	case dicomdoc.Blob:
		values, err := bulkValues(kind, v)
		if err != nil {
			return nil, err
		}
		out.Value = values
	case dicomdoc.Text:
		s, err := encodeText(enc, e.VR, string(v))
		if err != nil {
			return nil, err
		}
		out.Value = []interface{}{s}
	case dicomdoc.List:
		for _, item := range v {
			w, err := wireValue(kind, e.VR, item, enc)
			if err != nil {
				return nil, err
			}
			out.Value = append(out.Value, w)
		}
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
	return out, nil
}

// wireValue converts one list item to the Go type the library writes for
// the VR kind.
func wireValue(kind dicomtag.VRKind, vr dicomdoc.VR, item any, enc *encoding.Encoder) (interface{}, error) {
	switch kind {
	case dicomtag.VRUInt16List:
		n, err := intItem(item, 0, math.MaxUint16)
		return uint16(n), err
	case dicomtag.VRInt16List:
		n, err := intItem(item, math.MinInt16, math.MaxInt16)
		return int16(n), err
	case dicomtag.VRUInt32List:
		n, err := intItem(item, 0, math.MaxUint32)
		return uint32(n), err
	case dicomtag.VRInt32List:
		n, err := intItem(item, math.MinInt32, math.MaxInt32)
		return int32(n), err
	case dicomtag.VRFloat32List:
		f, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("%T is not a float", item)
		}
		return float32(f), nil
	case dicomtag.VRFloat64List:
		f, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("%T is not a float", item)
		}
		return f, nil
	case dicomtag.VRTagList:
		s, _ := item.(string)
		t, err := tagdict.Parse(s)
		if err != nil {
			return nil, err
		}
		return t.DicomTag(), nil
	}

	var s string
	switch x := item.(type) {
	case string:
		s = x
	case dicomdoc.PersonName:
		s = x.String()
	case int64:
		s = strconv.FormatInt(x, 10)
	case float64:
		s = formatDS(x)
	default:
		return nil, fmt.Errorf("%T cannot be written as text", item)
	}
	return encodeText(enc, vr, s)
}

func intItem(item any, lo, hi int64) (int64, error) {
	n, ok := item.(int64)
	if !ok {
		return 0, fmt.Errorf("%T is not an integer", item)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

// formatDS renders f in at most 16 characters, the DS length limit.
func formatDS(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	for prec := 15; len(s) > 16 && prec > 0; prec-- {
		s = strconv.FormatFloat(f, 'g', prec, 64)
	}
	return s
}

// bulkValues splits a blob into the value list the library writes for the
// VR kind.
func bulkValues(kind dicomtag.VRKind, b []byte) ([]interface{}, error) {
	switch kind {
	case dicomtag.VRBytes:
		return []interface{}{b}, nil
	case dicomtag.VRFloat32List:
		if len(b)%4 != 0 {
			return nil, fmt.Errorf("%d bytes is not a whole number of float32 values", len(b))
		}
		out := make([]interface{}, 0, len(b)/4)
		for i := 0; i < len(b); i += 4 {
			out = append(out, math.Float32frombits(binary.LittleEndian.Uint32(b[i:])))
		}
		return out, nil
	case dicomtag.VRFloat64List:
		if len(b)%8 != 0 {
			return nil, fmt.Errorf("%d bytes is not a whole number of float64 values", len(b))
		}
		out := make([]interface{}, 0, len(b)/8)
		for i := 0; i < len(b); i += 8 {
			out = append(out, math.Float64frombits(binary.LittleEndian.Uint64(b[i:])))
		}
		return out, nil
	case dicomtag.VRUInt32List:
		if len(b)%4 != 0 {
			return nil, fmt.Errorf("%d bytes is not a whole number of uint32 values", len(b))
		}
		out := make([]interface{}, 0, len(b)/4)
		for i := 0; i < len(b); i += 4 {
			out = append(out, binary.LittleEndian.Uint32(b[i:]))
		}
		return out, nil
	}
	return []interface{}{string(b)}, nil
}
