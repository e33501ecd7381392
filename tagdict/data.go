package tagdict

import (
	_ "embed"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../crawl --version 2019b --out classification.yaml

//go:embed classification.yaml
var classificationYAML []byte

// Classification is the versioned table that decides which dictionary
// entries count as general data elements. The dictionary itself (keywords,
// VRs) comes from the parser library; this table only narrows it.
type Classification struct {
	// Version of the DICOM standard the table was extracted from (e.g. "2019b").
	Version string `yaml:"version"`
	// Source describes where the table came from.
	Source string `yaml:"source"`
	// Excluded lists whole group ranges that never hold general data elements:
	// command, file meta, directory, delimiters and long-retired curve groups.
	Excluded []GroupRange `yaml:"excluded"`
	// Retired lists individual data elements marked RET in PS3.6.
	Retired []TagDef `yaml:"retired"`
}

// A GroupRange is an inclusive range of group numbers, written in hex.
type GroupRange struct {
	First  string `yaml:"first"`
	Last   string `yaml:"last"`
	Reason string `yaml:"reason,omitempty"`
}

// A tag definition as extracted from PS3.6 table 6-1.
type TagDef struct {
	// Tag in (gggg,eeee) form.
	Tag string `yaml:"tag"`
	// The keyword is a plain text keyword for this tag that is guaranteed to be unique
	Keyword string `yaml:"keyword"`
	// The VR (Value Representation) defines one or more types for this tag. The vast majority only have one type.
	VR []string `yaml:"vr,flow"`
	// The VM (Value Multiplicity) defines the range of the number of values for this tag.
	VM string `yaml:"vm"`
}

// ParseClassification decodes a classification table.
func ParseClassification(data []byte) (*Classification, error) {
	var c Classification
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing classification: %w", err)
	}
	if c.Version == "" {
		return nil, fmt.Errorf("parsing classification: missing version")
	}
	return &c, nil
}

type groupSpan struct {
	first, last uint16
}

func (r GroupRange) span() (groupSpan, error) {
	first, err := strconv.ParseUint(r.First, 16, 16)
	if err != nil {
		return groupSpan{}, fmt.Errorf("group range first %q: %w", r.First, err)
	}
	last := first
	if r.Last != "" {
		last, err = strconv.ParseUint(r.Last, 16, 16)
		if err != nil {
			return groupSpan{}, fmt.Errorf("group range last %q: %w", r.Last, err)
		}
	}
	if last < first {
		return groupSpan{}, fmt.Errorf("group range %s-%s is inverted", r.First, r.Last)
	}
	return groupSpan{uint16(first), uint16(last)}, nil
}
