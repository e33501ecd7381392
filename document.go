package dicomdoc

import (
	"fmt"
	"strconv"
)

// Info is the provenance string written at the top of every document.
const Info = "This file was created by dicomdoc. It can be read back as a DICOM " +
	"record with dicomdoc.Read or `dicomdoc load`. An element can be addressed " +
	"using its keyword string or hexadecimal representation. Example: the " +
	"element (0008,0060) can be addressed by Modality or 0x00080060. The only " +
	"required element field is 'vr' (value representation). Other relevant " +
	"fields are 'value', 'binary' or 'uri', but they are optional. If none is " +
	"provided, the element has no value."

// MaxDepth bounds sequence nesting in both directions.
const MaxDepth = 64

// Each sequence level adds an element map, a value list and an item map.
const maxTreeDepth = 3*MaxDepth + 8

// Document is the readable form of a Record.
type Document struct {
	Info     string
	FileMeta *DocDataset
	Data     *DocDataset
}

// DocDataset maps element names (keyword, else hex tag) to document
// elements, keeping insertion order.
type DocDataset struct {
	names    []string
	elements map[string]*DocElement
}

// NewDocDataset returns an empty DocDataset.
func NewDocDataset() *DocDataset {
	return &DocDataset{elements: map[string]*DocElement{}}
}

// Add appends an element under name, failing on a repeated name.
func (d *DocDataset) Add(name string, e *DocElement) error {
	if _, ok := d.elements[name]; ok {
		return fmt.Errorf("duplicate element name %q", name)
	}
	d.names = append(d.names, name)
	d.elements[name] = e
	return nil
}

// Get returns the element stored under name.
func (d *DocDataset) Get(name string) (*DocElement, bool) {
	if d == nil {
		return nil, false
	}
	e, ok := d.elements[name]
	return e, ok
}

// Names returns element names in order.
func (d *DocDataset) Names() []string {
	if d == nil {
		return nil
	}
	return d.names
}

// Len returns the number of elements.
func (d *DocDataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.names)
}

// DocElement is the {vr, value?, binary?, uri?} object of one element.
// Binary holds base64 text as it appears in the document.
type DocElement struct {
	VR     string
	Value  DocValue
	Binary *string
	URI    *string
}

// DocValue is the "value" field of a document element: DocScalar,
// DocList or DocItems.
type DocValue interface {
	isDocValue()
}

// DocScalar is a bare value: a collapsed one-element list, or the value of
// a single-valued VR. V is string, int64, float64 or PersonName.
type DocScalar struct {
	V any
}

// DocList is a list of scalar values.
type DocList []any

// DocItems holds the nested documents of a sequence.
type DocItems []*DocDataset

func (DocScalar) isDocValue() {}
func (DocList) isDocValue()   {}
func (DocItems) isDocValue()  {}

// Tree converts the document into a generic ordered tree.
func (d *Document) Tree() *Map {
	m := NewMap()
	m.Set("info", d.Info)
	m.Set("file_meta", d.FileMeta.tree())
	m.Set("data", d.Data.tree())
	return m
}

func (d *DocDataset) tree() *Map {
	m := NewMap()
	for _, name := range d.Names() {
		m.Set(name, d.elements[name].tree())
	}
	return m
}

func (e *DocElement) tree() *Map {
	m := NewMap()
	m.Set("vr", e.VR)
	switch v := e.Value.(type) {
	case DocScalar:
		m.Set("value", scalarTree(v.V))
	case DocList:
		list := make([]any, len(v))
		for i, item := range v {
			list[i] = scalarTree(item)
		}
		m.Set("value", list)
	case DocItems:
		list := make([]any, len(v))
		for i, item := range v {
			list[i] = item.tree()
		}
		m.Set("value", list)
	}
	if e.Binary != nil {
		m.Set("binary", *e.Binary)
	}
	if e.URI != nil {
		m.Set("uri", *e.URI)
	}
	return m
}

func scalarTree(v any) any {
	pn, ok := v.(PersonName)
	if !ok {
		return v
	}
	m := NewMap()
	if pn.Alphabetic != "" {
		m.Set("Alphabetic", pn.Alphabetic)
	}
	if pn.Ideographic != "" {
		m.Set("Ideographic", pn.Ideographic)
	}
	if pn.Phonetic != "" {
		m.Set("Phonetic", pn.Phonetic)
	}
	return m
}

// DocumentFromTree reads a document from a generic tree. Missing file_meta
// or data sections become empty; info is optional.
func DocumentFromTree(node any) (*Document, error) {
	root, ok := node.(*Map)
	if !ok {
		return nil, codecErrorf("", "document root is %s, want a mapping", treeKind(node))
	}
	doc := &Document{FileMeta: NewDocDataset(), Data: NewDocDataset()}
	if v, ok := root.Get("info"); ok && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, codecErrorf("info", "is %s, want a string", treeKind(v))
		}
		doc.Info = s
	}
	var err error
	if v, ok := root.Get("file_meta"); ok && v != nil {
		if doc.FileMeta, err = docDatasetFromTree("file_meta", v, 0); err != nil {
			return nil, err
		}
	}
	if v, ok := root.Get("data"); ok && v != nil {
		if doc.Data, err = docDatasetFromTree("data", v, 0); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func docDatasetFromTree(path string, node any, depth int) (*DocDataset, error) {
	if depth > MaxDepth {
		return nil, codecErrorf(path, "sequence nesting exceeds %d levels", MaxDepth)
	}
	m, ok := node.(*Map)
	if !ok {
		return nil, codecErrorf(path, "is %s, want a mapping of elements", treeKind(node))
	}
	ds := NewDocDataset()
	for _, name := range m.Keys() {
		v, _ := m.Get(name)
		e, err := docElementFromTree(path+"."+name, v, depth)
		if err != nil {
			return nil, err
		}
		if err := ds.Add(name, e); err != nil {
			return nil, &CodecError{Path: path, Err: err}
		}
	}
	return ds, nil
}

func docElementFromTree(path string, node any, depth int) (*DocElement, error) {
	m, ok := node.(*Map)
	if !ok {
		return nil, codecErrorf(path, "is %s, want a mapping with a vr field", treeKind(node))
	}
	e := &DocElement{}
	vr, ok := m.Get("vr")
	if !ok || vr == nil {
		return nil, &MissingVRError{Path: path}
	}
	if e.VR, ok = vr.(string); !ok {
		return nil, codecErrorf(path+".vr", "is %s, want a string", treeKind(vr))
	}
	for _, field := range []string{"binary", "uri"} {
		v, ok := m.Get(field)
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, codecErrorf(path+"."+field, "is %s, want a string", treeKind(v))
		}
		if field == "binary" {
			e.Binary = &s
		} else {
			e.URI = &s
		}
	}
	v, ok := m.Get("value")
	if !ok || v == nil {
		return e, nil
	}
	if e.VR == string(SQ) {
		list, ok := v.([]any)
		if !ok {
			return nil, codecErrorf(path+".value", "is %s, want a list of mappings", treeKind(v))
		}
		items := make(DocItems, len(list))
		for i, item := range list {
			var err error
			items[i], err = docDatasetFromTree(path+"["+strconv.Itoa(i)+"]", item, depth+1)
			if err != nil {
				return nil, err
			}
		}
		e.Value = items
		return e, nil
	}
	if list, ok := v.([]any); ok {
		out := make(DocList, len(list))
		for i, item := range list {
			s, err := scalarFromTree(path+".value["+strconv.Itoa(i)+"]", item)
			if err != nil {
				return nil, err
			}
			out[i] = s
		}
		e.Value = out
		return e, nil
	}
	s, err := scalarFromTree(path+".value", v)
	if err != nil {
		return nil, err
	}
	e.Value = DocScalar{V: s}
	return e, nil
}

func scalarFromTree(path string, node any) (any, error) {
	switch n := node.(type) {
	case string, int64, float64, bool:
		return n, nil
	case *Map:
		var pn PersonName
		for _, k := range n.Keys() {
			v, _ := n.Get(k)
			s, ok := v.(string)
			if !ok {
				return nil, codecErrorf(path+"."+k, "is %s, want a string", treeKind(v))
			}
			switch k {
			case "Alphabetic":
				pn.Alphabetic = s
			case "Ideographic":
				pn.Ideographic = s
			case "Phonetic":
				pn.Phonetic = s
			default:
				return nil, codecErrorf(path, "unexpected person name component %q", k)
			}
		}
		return pn, nil
	default:
		return nil, codecErrorf(path, "is %s, want a scalar", treeKind(node))
	}
}

func treeKind(node any) string {
	switch node.(type) {
	case *Map:
		return "a mapping"
	case []any:
		return "a list"
	case string:
		return "a string"
	case int64, float64:
		return "a number"
	case bool:
		return "a boolean"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", node)
	}
}
