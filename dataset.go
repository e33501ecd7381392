package dicomdoc

import (
	"bytes"
	"fmt"
	"math"
	"strings"

	"github.com/macadamian/dicomdoc/tagdict"
)

// Tag identifies a data element.
type Tag = tagdict.Tag

// Value is the payload of an element. The concrete types are List, Text,
// Sequence, Blob and URI; a nil Value means the element has no value.
type Value interface {
	isValue()
}

// List holds the values of a multi-valued VR. Items are string, int64,
// float64 or PersonName depending on the VR kind.
type List []any

// Text is the single value of LT, ST, UT and UR elements.
type Text string

// Sequence holds the items of an SQ element.
type Sequence []*Dataset

// Blob is bulk binary data carried inline.
type Blob []byte

// URI references bulk data held outside the record.
type URI string

func (List) isValue()     {}
func (Text) isValue()     {}
func (Sequence) isValue() {}
func (Blob) isValue()     {}
func (URI) isValue()      {}

// PersonName is a PN value split into its component groups.
type PersonName struct {
	Alphabetic  string
	Ideographic string
	Phonetic    string
}

// ParsePersonName splits the "=" separated component groups of a PN value.
func ParsePersonName(s string) PersonName {
	parts := strings.SplitN(s, "=", 3)
	var pn PersonName
	pn.Alphabetic = parts[0]
	if len(parts) > 1 {
		pn.Ideographic = parts[1]
	}
	if len(parts) > 2 {
		pn.Phonetic = parts[2]
	}
	return pn
}

// String joins the component groups, dropping trailing empty groups.
func (pn PersonName) String() string {
	s := pn.Alphabetic + "=" + pn.Ideographic + "=" + pn.Phonetic
	return strings.TrimRight(s, "=")
}

// Element is one tagged data element.
type Element struct {
	Tag   Tag
	VR    VR
	Value Value
}

// NewElement builds an element, validating that value fits vr.
func NewElement(tag Tag, vr VR, value Value) (*Element, error) {
	e := &Element{Tag: tag, VR: vr, Value: value}
	if err := e.check(); err != nil {
		return nil, err
	}
	return e, nil
}

// MustNewElement is NewElement that panics on error, for literals in tests
// and tables.
func MustNewElement(tag Tag, vr VR, value Value) *Element {
	e, err := NewElement(tag, vr, value)
	if err != nil {
		panic(err)
	}
	return e
}

// check verifies that the value variant and its items agree with the VR.
func (e *Element) check() error {
	if _, err := ParseVR(string(e.VR)); err != nil {
		return err
	}
	kind := e.VR.Kind()
	switch v := e.Value.(type) {
	case nil:
		return nil
	case URI:
		return nil
	case Blob:
		if kind != BulkKind {
			return fmt.Errorf("%v: binary value not allowed for VR %s", e.Tag, e.VR)
		}
	case Text:
		if kind != TextKind {
			return fmt.Errorf("%v: text value not allowed for VR %s", e.Tag, e.VR)
		}
	case Sequence:
		if kind != SequenceKind {
			return fmt.Errorf("%v: sequence value not allowed for VR %s", e.Tag, e.VR)
		}
		for i, item := range v {
			if item == nil {
				return fmt.Errorf("%v: sequence item %d is nil", e.Tag, i)
			}
		}
	case List:
		if !e.VR.Multiple() {
			return fmt.Errorf("%v: value list not allowed for VR %s", e.Tag, e.VR)
		}
		for i, item := range v {
			if !itemFits(kind, item) {
				return fmt.Errorf("%v: value %d (%T) does not fit VR %s", e.Tag, i, item, e.VR)
			}
		}
	default:
		return fmt.Errorf("%v: unsupported value type %T", e.Tag, v)
	}
	return nil
}

func itemFits(kind VRKind, item any) bool {
	switch item.(type) {
	case string:
		return kind == StringKind
	case PersonName:
		return kind == PersonNameKind
	case int64:
		return kind == IntKind
	case float64:
		return kind == FloatKind
	}
	return false
}

// Equal compares tag, VR and value; nested datasets compare with Dataset.Equal.
func (e *Element) Equal(other *Element) bool {
	if e == nil || other == nil {
		return e == other
	}
	if e.Tag != other.Tag || e.VR != other.VR {
		return false
	}
	return valuesEqual(e.Value, other.Value)
}

func valuesEqual(a, b Value) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case Text:
		y, ok := b.(Text)
		return ok && x == y
	case URI:
		y, ok := b.(URI)
		return ok && x == y
	case Blob:
		y, ok := b.(Blob)
		return ok && bytes.Equal(x, y)
	case List:
		y, ok := b.(List)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if x[i] != y[i] && !bothNaN(x[i], y[i]) {
				return false
			}
		}
		return true
	case Sequence:
		y, ok := b.(Sequence)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !x[i].Equal(y[i]) {
				return false
			}
		}
		return true
	}
	return false
}

func bothNaN(a, b any) bool {
	x, ok1 := a.(float64)
	y, ok2 := b.(float64)
	return ok1 && ok2 && math.IsNaN(x) && math.IsNaN(y)
}

// Dataset is an ordered collection of elements, unique by tag.
type Dataset struct {
	elements []*Element
	index    map[Tag]int
}

// NewDataset builds a dataset from elements, failing on duplicate tags.
func NewDataset(elements ...*Element) (*Dataset, error) {
	ds := &Dataset{}
	for _, e := range elements {
		if err := ds.Add(e); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// MustNewDataset is NewDataset that panics on error.
func MustNewDataset(elements ...*Element) *Dataset {
	ds, err := NewDataset(elements...)
	if err != nil {
		panic(err)
	}
	return ds
}

// Add appends e. It fails if the tag is already present.
func (ds *Dataset) Add(e *Element) error {
	if e == nil {
		return fmt.Errorf("nil element")
	}
	if ds.index == nil {
		ds.index = map[Tag]int{}
	}
	if _, ok := ds.index[e.Tag]; ok {
		return fmt.Errorf("duplicate tag %v", e.Tag)
	}
	ds.index[e.Tag] = len(ds.elements)
	ds.elements = append(ds.elements, e)
	return nil
}

// Set replaces the element with the same tag, or appends e.
func (ds *Dataset) Set(e *Element) {
	if i, ok := ds.index[e.Tag]; ok {
		ds.elements[i] = e
		return
	}
	_ = ds.Add(e)
}

// Get returns the element with tag t.
func (ds *Dataset) Get(t Tag) (*Element, bool) {
	if ds == nil {
		return nil, false
	}
	i, ok := ds.index[t]
	if !ok {
		return nil, false
	}
	return ds.elements[i], true
}

// Contains reports whether an element with tag t is present.
func (ds *Dataset) Contains(t Tag) bool {
	_, ok := ds.Get(t)
	return ok
}

// Elements returns the elements in insertion order. The slice must not be
// modified.
func (ds *Dataset) Elements() []*Element {
	if ds == nil {
		return nil
	}
	return ds.elements
}

// Len returns the number of elements.
func (ds *Dataset) Len() int {
	if ds == nil {
		return 0
	}
	return len(ds.elements)
}

// Equal compares two datasets element by element. Order is not significant.
func (ds *Dataset) Equal(other *Dataset) bool {
	if ds.Len() != other.Len() {
		return false
	}
	for _, e := range ds.Elements() {
		o, ok := other.Get(e.Tag)
		if !ok || !e.Equal(o) {
			return false
		}
	}
	return true
}

// String returns the value of a string-valued element, joining multiple
// values with a backslash as the binary format does.
func (ds *Dataset) String(t Tag) (string, bool) {
	e, ok := ds.Get(t)
	if !ok {
		return "", false
	}
	switch v := e.Value.(type) {
	case Text:
		return string(v), true
	case URI:
		return string(v), true
	case List:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, `\`), true
	}
	return "", false
}

// Record is a data set together with its file meta information.
type Record struct {
	FileMeta *Dataset
	Data     *Dataset
}

// NewRecord returns a record with empty sections.
func NewRecord() *Record {
	return &Record{FileMeta: &Dataset{}, Data: &Dataset{}}
}

// Equal compares both sections.
func (r *Record) Equal(other *Record) bool {
	return r.FileMeta.Equal(other.FileMeta) && r.Data.Equal(other.Data)
}

// Validate checks the file meta elements a binary writer requires.
func (r *Record) Validate() error {
	for _, t := range []Tag{tagdict.MediaStorageSOPClassUID, tagdict.MediaStorageSOPInstanceUID, tagdict.TransferSyntaxUID} {
		if s, ok := r.FileMeta.String(t); !ok || s == "" {
			name, _ := tagdict.KeywordFor(t)
			return fmt.Errorf("file meta is missing %s %v", name, t)
		}
	}
	return nil
}
