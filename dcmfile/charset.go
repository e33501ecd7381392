package dcmfile

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/macadamian/dicomdoc"
	"github.com/macadamian/dicomdoc/tagdict"
)

// labelByTerm maps SpecificCharacterSet defined terms (PS3.3 C.12.1.1.2)
// to WHATWG encoding labels.
var labelByTerm = map[string]string{
	"ISO_IR 6":   "us-ascii",
	"ISO_IR 100": "iso-ir-100",
	"ISO_IR 101": "iso-ir-101",
	"ISO_IR 109": "iso-ir-109",
	"ISO_IR 110": "iso-ir-110",
	"ISO_IR 144": "iso-ir-144",
	"ISO_IR 127": "iso-ir-127",
	"ISO_IR 126": "iso-ir-126",
	"ISO_IR 138": "iso-ir-138",
	"ISO_IR 148": "iso-ir-148",
	"ISO_IR 13":  "shift-jis",
	"ISO_IR 166": "tis-620",
	"ISO_IR 192": "utf-8",
	"GB18030":    "gb18030",
	"GBK":        "gbk",

	"ISO 2022 IR 6":   "us-ascii",
	"ISO 2022 IR 100": "iso-ir-100",
	"ISO 2022 IR 101": "iso-ir-101",
	"ISO 2022 IR 109": "iso-ir-109",
	"ISO 2022 IR 110": "iso-ir-110",
	"ISO 2022 IR 144": "iso-ir-144",
	"ISO 2022 IR 127": "iso-ir-127",
	"ISO 2022 IR 126": "iso-ir-126",
	"ISO 2022 IR 138": "iso-ir-138",
	"ISO 2022 IR 148": "iso-ir-148",
	"ISO 2022 IR 13":  "shift-jis",
	"ISO 2022 IR 166": "tis-620",
	"ISO 2022 IR 87":  "iso-2022-jp",
	"ISO 2022 IR 159": "iso-2022-jp",
	"ISO 2022 IR 149": "iso-ir-149",
}

// LookupCharset returns the encoding for a SpecificCharacterSet defined
// term. The empty term is the default repertoire and yields nil.
func LookupCharset(term string) (encoding.Encoding, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, nil
	}
	label, ok := labelByTerm[term]
	if !ok {
		return nil, fmt.Errorf("unsupported specific character set %q", term)
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("specific character set %q: %w", term, err)
	}
	return enc, nil
}

// textEncoder returns the encoder for the record's declared character set,
// or nil when text is written as is. Code extensions are not switched: only
// the first declared term is honored.
func textEncoder(ds *dicomdoc.Dataset) (*encoding.Encoder, error) {
	e, ok := ds.Get(tagdict.SpecificCharacterSet)
	if !ok {
		return nil, nil
	}
	list, ok := e.Value.(dicomdoc.List)
	if !ok || len(list) == 0 {
		return nil, nil
	}
	terms := make([]string, len(list))
	for i, v := range list {
		terms[i], _ = v.(string)
	}
	if len(terms) > 1 {
		// The first term is empty when code extensions start from the
		// default repertoire.
		for _, t := range terms {
			if strings.TrimSpace(t) != "" {
				terms[0] = t
				break
			}
		}
	}
	enc, err := LookupCharset(terms[0])
	if err != nil || enc == nil {
		return nil, err
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return nil, nil
	}
	return enc.NewEncoder(), nil
}

// encodedVRs are the VRs whose values use the declared character set.
var encodedVRs = map[dicomdoc.VR]bool{
	dicomdoc.LO: true,
	dicomdoc.LT: true,
	dicomdoc.PN: true,
	dicomdoc.SH: true,
	dicomdoc.ST: true,
	dicomdoc.UC: true,
	dicomdoc.UT: true,
}

func encodeText(enc *encoding.Encoder, vr dicomdoc.VR, s string) (string, error) {
	if enc == nil || !encodedVRs[vr] {
		return s, nil
	}
	return enc.String(s)
}
