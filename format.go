package dicomdoc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Format is a concrete encoding of the document tree. The choice of
// format never changes the document's shape.
type Format int

const (
	JSON Format = iota
	YAML
	CBOR
)

type formatCodec struct {
	name   string
	ext    string
	encode func(*Map) ([]byte, error)
	decode func([]byte) (any, error)
}

var formats = map[Format]formatCodec{
	JSON: {"json", ".json", encodeJSON, decodeJSON},
	YAML: {"yaml", ".yaml", encodeYAML, decodeYAML},
	CBOR: {"cbor", ".cbor", encodeCBOR, decodeCBOR},
}

func (f Format) String() string {
	if c, ok := formats[f]; ok {
		return c.name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Ext returns the file suffix the format requires, with the leading dot.
func (f Format) Ext() string {
	return formats[f].ext
}

// ParseFormat resolves a format name: json, yaml or cbor.
func ParseFormat(name string) (Format, error) {
	for f, c := range formats {
		if strings.EqualFold(name, c.name) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown document format %q", name)
}

// FormatForPath picks the format whose suffix path carries.
func FormatForPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for f, c := range formats {
		if c.ext == ext {
			return f, nil
		}
	}
	return 0, fmt.Errorf("no document format for suffix %q: %s", ext, path)
}

// Marshal serializes a document.
func (f Format) Marshal(doc *Document) ([]byte, error) {
	c, ok := formats[f]
	if !ok {
		return nil, fmt.Errorf("unknown document format %v", f)
	}
	return c.encode(doc.Tree())
}

// Unmarshal parses a document.
func (f Format) Unmarshal(data []byte) (*Document, error) {
	c, ok := formats[f]
	if !ok {
		return nil, fmt.Errorf("unknown document format %v", f)
	}
	tree, err := c.decode(data)
	if err != nil {
		return nil, &CodecError{Err: fmt.Errorf("parsing %s: %w", c.name, err)}
	}
	return DocumentFromTree(tree)
}

// JSON

func encodeJSON(tree *Map) ([]byte, error) {
	raw, err := json.Marshal(tree)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "    "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// decodeJSON accepts comments and trailing commas, since documents are
// meant to be edited by hand.
func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()
	v, err := decodeJSONValue(dec, 0)
	if err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after the document")
	}
	return v, nil
}

func decodeJSONValue(dec *json.Decoder, depth int) (any, error) {
	if depth > maxTreeDepth {
		return nil, fmt.Errorf("document nesting exceeds %d levels", maxTreeDepth)
	}
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			m := NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key := keyTok.(string)
				if _, dup := m.Get(key); dup {
					return nil, fmt.Errorf("duplicate key %q", key)
				}
				v, err := decodeJSONValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				m.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return m, nil
		case '[':
			list := []any{}
			for dec.More() {
				v, err := decodeJSONValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				list = append(list, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		return t.Float64()
	default:
		return t, nil
	}
}

// YAML

func encodeYAML(tree *Map) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(yamlNode(tree)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func yamlNode(node any) *yaml.Node {
	switch n := node.(type) {
	case *Map:
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range n.Keys() {
			v, _ := n.Get(k)
			out.Content = append(out.Content, yamlScalar("!!str", k), yamlNode(v))
		}
		return out
	case []any:
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, v := range n {
			out.Content = append(out.Content, yamlNode(v))
		}
		return out
	case string:
		return yamlScalar("!!str", n)
	case int64:
		return yamlScalar("!!int", strconv.FormatInt(n, 10))
	case float64:
		return yamlScalar("!!float", yamlFloat(n))
	case bool:
		return yamlScalar("!!bool", strconv.FormatBool(n))
	default:
		return yamlScalar("!!null", "null")
	}
}

func yamlScalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

// yamlFloat formats f so that it reads back as a float, not an int.
func yamlFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func decodeYAML(data []byte) (any, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	return fromYAML(&root, 0)
}

func fromYAML(n *yaml.Node, depth int) (any, error) {
	if depth > maxTreeDepth {
		return nil, fmt.Errorf("document nesting exceeds %d levels", maxTreeDepth)
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return fromYAML(n.Content[0], depth)
	case yaml.AliasNode:
		return fromYAML(n.Alias, depth+1)
	case yaml.MappingNode:
		m := NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if _, dup := m.Get(key); dup {
				return nil, fmt.Errorf("line %d: duplicate key %q", n.Content[i].Line, key)
			}
			v, err := fromYAML(n.Content[i+1], depth+1)
			if err != nil {
				return nil, err
			}
			m.Set(key, v)
		}
		return m, nil
	case yaml.SequenceNode:
		list := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := fromYAML(c, depth+1)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!null":
			return nil, nil
		case "!!bool":
			var b bool
			err := n.Decode(&b)
			return b, err
		case "!!int":
			var i int64
			if err := n.Decode(&i); err != nil {
				return nil, fmt.Errorf("line %d: %w", n.Line, err)
			}
			return i, nil
		case "!!float":
			var f float64
			if err := n.Decode(&f); err != nil {
				return nil, fmt.Errorf("line %d: %w", n.Line, err)
			}
			return f, nil
		default:
			return n.Value, nil
		}
	}
	return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
}

// CBOR

var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error
	cborEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("dicomdoc: CBOR encoder initialization failed: " + err.Error())
	}
	cborDecMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("dicomdoc: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeCBOR(tree *Map) ([]byte, error) {
	return cborEncMode.Marshal(plain(tree))
}

func decodeCBOR(data []byte) (any, error) {
	var v any
	if err := cborDecMode.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return fromPlain(v, 0)
}
