// Package tagdict maps DICOM tags to dictionary keywords and back, and
// classifies tags as standard data elements or not.
//
// Keywords come from the dictionary compiled into
// github.com/gradienthealth/dicom/dicomtag. That dictionary also answers
// for generic entries (group lengths, private creators) and for the first
// group of repeating ranges; a keyword is only reported for a tag when the
// keyword resolves back to that same tag, so every name a Resolver hands out
// is unambiguous.
//
// Which entries count as general data elements is decided by an embedded,
// versioned classification table (classification.yaml) regenerated by the
// crawl tool, together with the retired markers of the dictionary itself.
package tagdict

import (
	"fmt"
	"strings"

	"github.com/gradienthealth/dicom/dicomtag"
)

// UnknownTagError is returned when a name is neither a dictionary keyword
// nor a hex tag.
type UnknownTagError struct {
	Name string
}

func (e *UnknownTagError) Error() string {
	return fmt.Sprintf("unknown tag %q: neither a dictionary keyword nor a hex tag", e.Name)
}

// Resolver answers tag and keyword lookups. It holds no mutable state after
// construction and is safe for concurrent use.
type Resolver struct {
	version  string
	excluded []groupSpan
	retired  map[Tag]string
}

var defaultResolver *Resolver

func init() {
	c, err := ParseClassification(classificationYAML)
	if err != nil {
		panic("tagdict: embedded classification: " + err.Error())
	}
	defaultResolver, err = NewResolver(c)
	if err != nil {
		panic("tagdict: embedded classification: " + err.Error())
	}
}

// Default returns the resolver built from the embedded classification table.
func Default() *Resolver {
	return defaultResolver
}

// NewResolver builds a resolver from a classification table.
func NewResolver(c *Classification) (*Resolver, error) {
	r := &Resolver{
		version: c.Version,
		retired: make(map[Tag]string, len(c.Retired)),
	}
	for _, g := range c.Excluded {
		span, err := g.span()
		if err != nil {
			return nil, err
		}
		r.excluded = append(r.excluded, span)
	}
	for _, def := range c.Retired {
		t, err := Parse(def.Tag)
		if err != nil {
			return nil, fmt.Errorf("retired entry %s: %w", def.Keyword, err)
		}
		r.retired[t] = def.Keyword
	}
	return r, nil
}

// Version reports the DICOM standard version of the classification table.
func (r *Resolver) Version() string {
	return r.version
}

// KeywordFor returns the dictionary keyword of t. The second result is false
// when t has no unambiguous keyword; that is not an error. Retired entries
// are reported under their standard keyword, without the RETIRED_ marker
// the parser's dictionary puts on them.
func (r *Resolver) KeywordFor(t Tag) (string, bool) {
	name, ok := dictionaryName(t)
	if !ok {
		return "", false
	}
	return strings.TrimPrefix(name, retiredPrefix), true
}

// Name prefixes the parser's dictionary uses for entries no longer in the
// standard.
const (
	retiredPrefix = "RETIRED_"
	acrNemaPrefix = "ACR_NEMA_"
)

// dictionaryName returns the parser's name for t when that name leads back
// to t.
func dictionaryName(t Tag) (string, bool) {
	if t.IsPrivate() {
		return "", false
	}
	info, err := dicomtag.Find(t.DicomTag())
	if err != nil || info.Name == "" {
		return "", false
	}
	back, err := dicomtag.FindByName(info.Name)
	if err != nil || FromDicomTag(back.Tag) != t {
		return "", false
	}
	return info.Name, true
}

// TagFor resolves a keyword or a hex tag string.
func (r *Resolver) TagFor(name string) (Tag, error) {
	name = strings.TrimSpace(name)
	if looksLikeHex(name) {
		t, err := Parse(name)
		if err != nil {
			return Tag{}, &UnknownTagError{Name: name}
		}
		return t, nil
	}
	info, err := dicomtag.FindByName(name)
	if err != nil {
		info, err = dicomtag.FindByName(retiredPrefix + name)
	}
	if err != nil {
		return Tag{}, &UnknownTagError{Name: name}
	}
	return FromDicomTag(info.Tag), nil
}

// IsStandard is true when t has a dictionary keyword and is a general data
// element: not private, not retired, not a group length and not in one of
// the excluded group ranges (command, meta, directory, delimiters).
func (r *Resolver) IsStandard(t Tag) bool {
	if t.IsPrivate() || t.Element == 0x0000 {
		return false
	}
	for _, span := range r.excluded {
		if t.Group >= span.first && t.Group <= span.last {
			return false
		}
	}
	if r.IsRetired(t) {
		return false
	}
	_, ok := r.KeywordFor(t)
	return ok
}

// IsRetired reports whether t is listed as retired in the classification
// table or marked retired in the parser's dictionary.
func (r *Resolver) IsRetired(t Tag) bool {
	if _, ok := r.retired[t]; ok {
		return true
	}
	if t.IsPrivate() {
		return false
	}
	info, err := dicomtag.Find(t.DicomTag())
	if err != nil {
		return false
	}
	return strings.HasPrefix(info.Name, retiredPrefix) || strings.HasPrefix(info.Name, acrNemaPrefix)
}

func looksLikeHex(name string) bool {
	if strings.HasPrefix(name, "(") || strings.HasPrefix(name, "0x") || strings.HasPrefix(name, "0X") {
		return true
	}
	if len(name) != 8 {
		return false
	}
	for _, c := range name {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}

// KeywordFor looks up t in the default resolver.
func KeywordFor(t Tag) (string, bool) { return defaultResolver.KeywordFor(t) }

// TagFor looks up name in the default resolver.
func TagFor(name string) (Tag, error) { return defaultResolver.TagFor(name) }

// IsStandard classifies t with the default resolver.
func IsStandard(t Tag) bool { return defaultResolver.IsStandard(t) }
