// Command crawl regenerates tagdict/classification.yaml from the docbook
// source of DICOM PS3.6.
//
//	go run ./crawl --version 2019b --out tagdict/classification.yaml
package main

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/macadamian/dicomdoc/tagdict"
)

const docbookNS = "http://docbook.org/ns/docbook"

// Group ranges that never hold general data elements. PS3.6 does not list
// them as rows, so they are fixed here.
var excludedGroups = []tagdict.GroupRange{
	{First: "0000", Last: "0000", Reason: "command elements"},
	{First: "0002", Last: "0002", Reason: "file meta information"},
	{First: "0004", Last: "0004", Reason: "directory structuring elements"},
	{First: "1000", Last: "1000", Reason: "retired escape triplets"},
	{First: "1010", Last: "1010", Reason: "retired zonal maps"},
	{First: "5000", Last: "50FF", Reason: "retired curve groups"},
	{First: "7F00", Last: "7FDF", Reason: "retired variable pixel data groups"},
	{First: "FFFE", Last: "FFFE", Reason: "item and sequence delimiters"},
}

//// XML Parsing

type Node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",innerxml"`
	Nodes   []Node     `xml:",any"`
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsGraphic(r) {
			return r
		}
		return -1
	}, s)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var version, out, source string
	flags := pflag.NewFlagSet("crawl", pflag.ContinueOnError)
	flags.StringVar(&version, "version", "2019b", "DICOM standard edition to extract")
	flags.StringVar(&out, "out", "classification.yaml", "output file")
	flags.StringVar(&source, "source", "", "read PS3.6 docbook XML from this file instead of fetching it")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var root Node
	var err error
	if source != "" {
		root, err = readPart(source)
	} else {
		root, err = fetchPart(ctx, version, 6)
	}
	if err != nil {
		return err
	}

	c, err := classify(root, version)
	if err != nil {
		return err
	}
	if err := writeClassification(out, c); err != nil {
		return err
	}
	slog.Info("wrote classification", "path", out, "version", version, "retired", len(c.Retired))
	return nil
}

func partURL(version string, part int) string {
	if version == "2013" {
		return fmt.Sprintf("http://dicom.nema.org/dicom/%s/source/docbook/part%02d/part%02d.xml", version, part, part)
	}
	return fmt.Sprintf("http://dicom.nema.org/medical/dicom/%s/source/docbook/part%02d/part%02d.xml", version, part, part)
}

func fetchPart(ctx context.Context, version string, part int) (Node, error) {
	url := partURL(version, part)
	slog.Info("fetching", "url", url)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Node{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Node{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Node{}, fmt.Errorf("fetching %s: %s", url, resp.Status)
	}
	return decodeNode(resp.Body)
}

func readPart(path string) (Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return Node{}, err
	}
	defer f.Close()
	return decodeNode(f)
}

func decodeNode(r io.Reader) (Node, error) {
	var n Node
	if err := xml.NewDecoder(r).Decode(&n); err != nil {
		return Node{}, fmt.Errorf("decoding docbook: %w", err)
	}
	return n, nil
}

// nodeID returns the xml:id attribute, if any.
func nodeID(n Node) string {
	for _, a := range n.Attrs {
		if a.Name.Space == "http://www.w3.org/XML/1998/namespace" && a.Name.Local == "id" {
			return a.Value
		}
	}
	return ""
}

func findNodeByID(root Node, id string) *Node {
	var match *Node
	walkNode([]Node{root}, func(n Node) bool {
		if match != nil {
			return false
		}
		if nodeID(n) == id {
			match = &n
			return false
		}
		return true
	})
	return match
}

// leafText returns the content of the last leaf under n.
func leafText(n Node) string {
	v := ""
	walkNode([]Node{n}, func(n Node) bool {
		if len(n.Nodes) == 0 {
			v = n.Content
		}
		return true
	})
	return v
}

// classify extracts the retired rows of the data element registry (table
// 6-1) and pairs them with the fixed excluded group ranges.
func classify(root Node, version string) (*tagdict.Classification, error) {
	table := findNodeByID(root, "table_6-1")
	if table == nil {
		return nil, errors.New("table_6-1 not found in PS3.6")
	}
	if body := findNodeByType(table, docbookNS, "tbody"); body != nil {
		table = body
	}

	retired := map[tagdict.Tag]tagdict.TagDef{}
	walkNode([]Node{*table}, func(n Node) bool {
		if n.XMLName.Space != docbookNS || n.XMLName.Local != "tr" {
			return true
		}
		if len(n.Nodes) != 6 {
			return true
		}
		tag, keyword, vr, vm, note := n.Nodes[0], n.Nodes[2], n.Nodes[3], n.Nodes[4], n.Nodes[5]
		if tag.XMLName.Space != docbookNS || tag.XMLName.Local != "td" {
			return true
		}
		if !strings.Contains(leafText(note), "RET") {
			return true
		}

		def := tagdict.TagDef{
			Keyword: sanitize(leafText(keyword)),
			VM:      strings.TrimSpace(leafText(vm)),
		}
		for _, r := range strings.Split(leafText(vr), " or ") {
			if r = strings.TrimSpace(r); r != "" {
				def.VR = append(def.VR, r)
			}
		}
		for _, t := range parseTagPattern(leafText(tag)) {
			def.Tag = fmt.Sprintf("(%04X,%04X)", t.Group, t.Element)
			retired[t] = def
		}
		return false
	})

	tags := make([]tagdict.Tag, 0, len(retired))
	for t := range retired {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].Less(tags[j]) })

	c := &tagdict.Classification{
		Version:  version,
		Source:   "DICOM PS3.6 table 6-1 (entries marked RET), plus non-data group ranges",
		Excluded: excludedGroups,
	}
	for _, t := range tags {
		c.Retired = append(c.Retired, retired[t])
	}
	return c, nil
}

func writeClassification(path string, c *tagdict.Classification) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	fmt.Fprintln(f, "# Generated by crawl from DICOM PS3.6, edit by hand only to fix extraction errors.")
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func walkNode(nodes []Node, f func(Node) bool) {
	for _, n := range nodes {
		if f(n) {
			walkNode(n.Nodes, f)
		}
	}
}

func findNodeByType(node *Node, space, local string) *Node {
	var match *Node

	walkNode([]Node{*node}, func(n Node) bool {
		if match == nil && n.XMLName.Space == space && n.XMLName.Local == local {
			match = &n
		}

		return true
	})

	return match
}

// parseTagPattern expands a PS3.6 tag cell such as "(0010,0010)" or
// "(60xx,0010)". Repeating groups other than the overlay groups are
// reported and skipped.
func parseTagPattern(pattern string) []tagdict.Tag {
	pattern = sanitize(strings.TrimSpace(pattern))

	pieces := strings.Split(pattern, ",")
	if len(pieces) != 2 {
		slog.Warn("BAD TAG", "pattern", pattern)
		return nil
	}

	g := strings.TrimSpace(strings.TrimPrefix(pieces[0], "("))
	el := strings.TrimSpace(strings.TrimSuffix(pieces[1], ")"))

	if strings.EqualFold(g, "50xx") {
		// Curve groups are covered by an excluded range.
		return nil
	}

	gs := []string{g}

	// Overlay groups repeat over the even groups 6000-601E.
	if strings.EqualFold(g, "60xx") {
		gs = gs[:0]
		for i := 0; i <= 0x1E; i += 2 {
			gs = append(gs, fmt.Sprintf("60%02X", i))
		}
	}

	var tags []tagdict.Tag
	for _, gr := range gs {
		group, err := strconv.ParseUint(gr, 16, 16)
		if err != nil {
			slog.Warn("BAD TAG", "pattern", pattern)
			return nil
		}
		element, err := strconv.ParseUint(el, 16, 16)
		if err != nil {
			slog.Warn("BAD TAG", "pattern", pattern)
			return nil
		}
		tags = append(tags, tagdict.New(uint16(group), uint16(element)))
	}

	return tags
}
