package dicomdoc

import (
	"bytes"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/macadamian/dicomdoc/tagdict"
)

func sampleRecord() *Record {
	return &Record{
		FileMeta: MustNewDataset(
			MustNewElement(tagdict.MediaStorageSOPClassUID, UI, List{"1.2.840.10008.5.1.4.1.1.4"}),
			MustNewElement(tagdict.MediaStorageSOPInstanceUID, UI, List{"1.2.3.4"}),
			MustNewElement(tagdict.TransferSyntaxUID, UI, List{"1.2.840.10008.1.2.1"}),
		),
		Data: MustNewDataset(
			MustNewElement(tagdict.Modality, CS, List{"MR"}),
			MustNewElement(tagdict.PixelSpacing, DS, List{0.5, 0.25}),
			MustNewElement(tagdict.PatientName, PN, List{PersonName{Alphabetic: "Doe^Jane", Ideographic: "ド^ジェーン"}}),
			MustNewElement(tagdict.Rows, US, List{int64(256)}),
			MustNewElement(tagdict.SliceLocation, DS, List{-12.5}),
			MustNewElement(tagdict.StudyDate, DA, List{"20190102"}),
			MustNewElement(tagdict.SeriesDescription, LO, nil),
			MustNewElement(imageComments, LT, Text("line one\nline two")),
			twoLevelSequence(),
		),
	}
}

func TestToDocument(t *testing.T) {
	r := &Record{
		FileMeta: MustNewDataset(MustNewElement(tagdict.TransferSyntaxUID, UI, List{"1.2.840.10008.1.2.1"})),
		Data: MustNewDataset(
			MustNewElement(tagdict.Modality, CS, List{"MR"}),
			MustNewElement(tagdict.PixelSpacing, DS, List{1.0, 1.0}),
		),
	}
	doc, err := ToDocument(r, Policy{})
	if err != nil {
		t.Fatal(err)
	}
	if doc.Info != Info {
		t.Errorf("info = %q, want the provenance string", doc.Info)
	}
	ts, ok := doc.FileMeta.Get("TransferSyntaxUID")
	if !ok || !reflect.DeepEqual(ts.Value, DocScalar{V: "1.2.840.10008.1.2.1"}) {
		t.Errorf("file_meta.TransferSyntaxUID = %+v", ts)
	}
	spacing, _ := doc.Data.Get("PixelSpacing")
	if !reflect.DeepEqual(spacing.Value, DocList{1.0, 1.0}) {
		t.Errorf("data.PixelSpacing.value = %#v, want [1.0, 1.0]", spacing.Value)
	}
	modality, _ := doc.Data.Get("Modality")
	if !reflect.DeepEqual(modality.Value, DocScalar{V: "MR"}) {
		t.Errorf("data.Modality.value = %#v, want \"MR\"", modality.Value)
	}
}

func TestFileMetaPolicy(t *testing.T) {
	r := NewRecord()
	r.FileMeta = MustNewDataset(
		MustNewElement(tagdict.TransferSyntaxUID, UI, List{"1.2.840.10008.1.2"}),
		MustNewElement(tagdict.FileMetaInformationVersion, OB, Blob{0, 1}),
		MustNewElement(tagdict.New(0x0003, 0x0010), LO, List{"private"}),
	)
	doc, err := ToDocument(r, Policy{SkipBinary: true})
	if err != nil {
		t.Fatal(err)
	}
	version, ok := doc.FileMeta.Get("FileMetaInformationVersion")
	if !ok || version.Binary == nil {
		t.Fatalf("file meta binary was dropped: %+v", version)
	}
	if got := doc.FileMeta.Len(); got != 2 {
		t.Fatalf("file meta has %d elements, want 2: %v", got, doc.FileMeta.Names())
	}
}

func TestRoundTrip(t *testing.T) {
	want := sampleRecord()
	doc, err := ToDocument(want, Policy{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := FromDocument(doc, Policy{})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(want) {
		t.Fatal("record changed across a document round trip")
	}
}

func TestRoundTripFormats(t *testing.T) {
	want := sampleRecord()
	want.Data.Add(MustNewElement(tagdict.PixelData, OW, Blob{0, 1, 2, 3, 254, 255}))
	want.Data.Add(MustNewElement(privateTag, LO, List{"vendor"}))

	for _, f := range []Format{JSON, YAML, CBOR} {
		t.Run(f.String(), func(t *testing.T) {
			data, err := Encode(want, f, Policy{})
			if err != nil {
				t.Fatal(err)
			}
			got, err := Decode(data, f, Policy{})
			if err != nil {
				t.Fatalf("Decode: %v\n%s", err, data)
			}
			if !got.Equal(want) {
				t.Fatalf("record changed across a %s round trip:\n%s", f, data)
			}
		})
	}
}

func TestNonFiniteFloats(t *testing.T) {
	want := sampleRecord()
	want.Data.Add(MustNewElement(tagdict.New(0x0018, 0x9087), FD, List{math.Inf(1), math.Inf(-1), 1.5}))
	want.Data.Add(MustNewElement(tagdict.New(0x0009, 0x1010), FD, List{math.NaN()}))

	for _, f := range []Format{JSON, YAML, CBOR} {
		t.Run(f.String(), func(t *testing.T) {
			data, err := Encode(want, f, Policy{})
			if err != nil {
				t.Fatal(err)
			}
			got, err := Decode(data, f, Policy{})
			if err != nil {
				t.Fatalf("Decode: %v\n%s", err, data)
			}
			if !got.Equal(want) {
				t.Fatalf("record changed across a %s round trip:\n%s", f, data)
			}
		})
	}

	data, err := Encode(want, JSON, Policy{})
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{`"NaN"`, `"Infinity"`, `"-Infinity"`} {
		if !bytes.Contains(data, []byte(s)) {
			t.Errorf("JSON lacks %s:\n%s", s, data)
		}
	}
}

func TestBinaryPolicy(t *testing.T) {
	r := NewRecord()
	r.Data = MustNewDataset(
		MustNewElement(tagdict.Modality, CS, List{"CT"}),
		MustNewElement(tagdict.PixelData, OW, Blob{9, 8, 7, 6}),
	)

	data, err := Encode(r, JSON, Policy{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(data, JSON, Policy{})
	if err != nil {
		t.Fatal(err)
	}
	e, _ := got.Data.Get(tagdict.PixelData)
	if blob, ok := e.Value.(Blob); !ok || !bytes.Equal(blob, []byte{9, 8, 7, 6}) {
		t.Fatalf("pixel data = %#v, want the original bytes", e.Value)
	}

	data, err = Encode(r, JSON, Policy{SkipBinary: true})
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte(`"binary"`)) {
		t.Fatalf("SkipBinary output carries binary:\n%s", data)
	}
	got, err = Decode(data, JSON, Policy{})
	if err != nil {
		t.Fatal(err)
	}
	e, ok := got.Data.Get(tagdict.PixelData)
	if !ok || e.Value != nil {
		t.Fatalf("pixel data = %+v, want an element without a payload", e)
	}
	if !got.Data.Contains(tagdict.Modality) {
		t.Fatal("Modality lost")
	}
}

func TestNonStandardFiltering(t *testing.T) {
	r := NewRecord()
	r.Data = MustNewDataset(
		MustNewElement(tagdict.Modality, CS, List{"CT"}),
		MustNewElement(privateTag, LO, List{"vendor"}),
	)
	data, err := Encode(r, YAML, Policy{})
	if err != nil {
		t.Fatal(err)
	}

	kept, err := Decode(data, YAML, Policy{})
	if err != nil {
		t.Fatal(err)
	}
	if !kept.Equal(r) {
		t.Fatal("private element did not survive the round trip")
	}

	filtered, err := Decode(data, YAML, Policy{SkipNonStandard: true})
	if err != nil {
		t.Fatal(err)
	}
	if filtered.Data.Contains(privateTag) {
		t.Fatal("private element survived a SkipNonStandard decode")
	}
	if !filtered.Data.Contains(tagdict.Modality) {
		t.Fatal("Modality was filtered")
	}
}

func TestFromDocumentMissingSections(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty object", `{}`},
		{"info only", `{"info": "x"}`},
		{"null sections", `{"file_meta": null, "data": null}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r, err := Decode([]byte(tc.in), JSON, Policy{})
			if err != nil {
				t.Fatal(err)
			}
			if r.FileMeta.Len() != 0 || r.Data.Len() != 0 {
				t.Fatalf("got %d/%d elements, want empty sections", r.FileMeta.Len(), r.Data.Len())
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"root list", `[]`},
		{"data list", `{"data": []}`},
		{"element scalar", `{"data": {"Modality": "MR"}}`},
		{"sequence value not a list", `{"data": {"ReferencedImageSequence": {"vr": "SQ", "value": "x"}}}`},
		{"sequence item not a mapping", `{"data": {"ReferencedImageSequence": {"vr": "SQ", "value": ["x"]}}}`},
		{"vr not a string", `{"data": {"Modality": {"vr": 1}}}`},
		{"binary not a string", `{"data": {"PixelData": {"vr": "OB", "binary": 1}}}`},
		{"nested list", `{"data": {"PixelSpacing": {"vr": "DS", "value": [[1]]}}}`},
		{"person name component", `{"data": {"PatientName": {"vr": "PN", "value": {"Nickname": "x"}}}}`},
		{"duplicate key", `{"data": {"Modality": {"vr": "CS"}, "Modality": {"vr": "CS"}}}`},
		{"trailing data", `{} {}`},
		{"syntax", `{"data": `},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.in), JSON, Policy{})
			if !errors.Is(err, ErrCodec) {
				t.Fatalf("got %v, want a codec error", err)
			}
		})
	}
}

func TestDecodeMissingVR(t *testing.T) {
	_, err := Decode([]byte(`{"data": {"Modality": {"value": "MR"}}}`), JSON, Policy{})
	var missing *MissingVRError
	if !errors.As(err, &missing) {
		t.Fatalf("got %v, want *MissingVRError", err)
	}
	if missing.Path != "data.Modality" {
		t.Fatalf("path = %q, want %q", missing.Path, "data.Modality")
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	_, err := Decode([]byte(`{"data": {"NoSuchKeyword": {"vr": "LO"}}}`), JSON, Policy{})
	var unknown *UnknownTagError
	if !errors.As(err, &unknown) {
		t.Fatalf("got %v, want *UnknownTagError", err)
	}
}

func TestDecodeJSONWithComments(t *testing.T) {
	in := `{
	// edited by hand
	"data": {
		/* acquisition */
		"Modality": {"vr": "CS", "value": "CT",},
		"Rows": {"vr": "US", "value": "512"},
		"PatientName": {"vr": "PN", "value": "Doe^John"},
	},
}`
	r, err := Decode([]byte(in), JSON, Policy{})
	if err != nil {
		t.Fatal(err)
	}
	want := MustNewDataset(
		MustNewElement(tagdict.Modality, CS, List{"CT"}),
		MustNewElement(tagdict.Rows, US, List{int64(512)}),
		MustNewElement(tagdict.PatientName, PN, List{PersonName{Alphabetic: "Doe^John"}}),
	)
	if !r.Data.Equal(want) {
		t.Fatalf("data = %+v", r.Data.Elements())
	}
}

func TestDecodeYAMLScalars(t *testing.T) {
	in := `
data:
  StudyDate: {vr: DA, value: 20190102}
  Rows: {vr: US, value: 0x200}
  PixelSpacing:
    vr: DS
    value: [0.5, 1]
  Modality: &mod {vr: CS, value: MR}
`
	r, err := Decode([]byte(in), YAML, Policy{})
	if err != nil {
		t.Fatal(err)
	}
	want := MustNewDataset(
		MustNewElement(tagdict.StudyDate, DA, List{"20190102"}),
		MustNewElement(tagdict.Rows, US, List{int64(512)}),
		MustNewElement(tagdict.PixelSpacing, DS, List{0.5, 1.0}),
		MustNewElement(tagdict.Modality, CS, List{"MR"}),
	)
	if !r.Data.Equal(want) {
		t.Fatalf("data = %+v", r.Data.Elements())
	}
}

func TestOutputKeepsOrder(t *testing.T) {
	r := NewRecord()
	r.Data = MustNewDataset(
		MustNewElement(tagdict.Rows, US, List{int64(2)}),
		MustNewElement(tagdict.Modality, CS, List{"MR"}),
	)
	tests := []struct {
		f    Format
		keys []string
	}{
		{JSON, []string{`"info"`, `"file_meta"`, `"data"`, `"Rows"`, `"Modality"`}},
		{YAML, []string{"info:", "file_meta:", "data:", "Rows:", "Modality:"}},
	}
	for _, tc := range tests {
		data, err := Encode(r, tc.f, Policy{})
		if err != nil {
			t.Fatal(err)
		}
		s := string(data)
		last := -1
		for _, k := range tc.keys {
			i := strings.Index(s, k)
			if i <= last {
				t.Errorf("%s output does not keep order at %s:\n%s", tc.f, k, s)
				break
			}
			last = i
		}
	}
}

func TestJSONIndent(t *testing.T) {
	data, err := Encode(NewRecord(), JSON, Policy{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "{\n    \"info\": ") {
		t.Fatalf("unexpected JSON layout:\n%s", data)
	}
}

func TestYAMLFloatsStayFloats(t *testing.T) {
	r := NewRecord()
	r.Data = MustNewDataset(MustNewElement(tagdict.PixelSpacing, DS, List{1.0, 2.0}))
	data, err := Encode(r, YAML, Policy{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "1.0") {
		t.Fatalf("float rendered as an integer:\n%s", data)
	}
}

func TestCBORDeterministic(t *testing.T) {
	a, err := Encode(sampleRecord(), CBOR, Policy{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(sampleRecord(), CBOR, Policy{})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatal("CBOR encoding is not deterministic")
	}
}

func TestWriteRead(t *testing.T) {
	want := sampleRecord()
	for _, f := range []Format{JSON, YAML, CBOR} {
		t.Run(f.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", "dir", "record"+f.Ext())
			if err := Write(path, want, f, Policy{}); err != nil {
				t.Fatal(err)
			}
			got, err := Read(path, f, Policy{})
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(want) {
				t.Fatal("record changed across Write and Read")
			}
			entries, err := os.ReadDir(filepath.Dir(path))
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 1 {
				t.Fatalf("directory holds %d entries, want only the document", len(entries))
			}
		})
	}
}

func TestWriteFormatMismatch(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		f    Format
	}{
		{"record.txt", JSON},
		{"record.yaml", JSON},
		{"record.json", YAML},
		{"record", CBOR},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name)
			err := Write(path, sampleRecord(), tc.f, Policy{})
			var mismatch *FormatMismatchError
			if !errors.As(err, &mismatch) {
				t.Fatalf("got %v, want *FormatMismatchError", err)
			}
			if _, err := os.Stat(path); !errors.Is(err, fs.ErrNotExist) {
				t.Fatalf("Stat(%s) = %v, want not exist", path, err)
			}
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.json"), JSON, Policy{})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("got %v, want fs.ErrNotExist", err)
	}
}

func TestReadUsesGivenFormat(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "record.yaml")
	if err := Write(src, sampleRecord(), YAML, Policy{}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "record.txt")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := Read(path, YAML, Policy{})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(sampleRecord()) {
		t.Fatal("record changed across Read of a renamed document")
	}
}

func TestFormats(t *testing.T) {
	tests := []struct {
		name string
		path string
		want Format
	}{
		{"json", "a/b.json", JSON},
		{"YAML", "b.YAML", YAML},
		{"cbor", "c.cbor", CBOR},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f, err := ParseFormat(tc.name)
			if err != nil || f != tc.want {
				t.Fatalf("ParseFormat(%q) = %v, %v, want %v", tc.name, f, err, tc.want)
			}
			f, err = FormatForPath(tc.path)
			if err != nil || f != tc.want {
				t.Fatalf("FormatForPath(%q) = %v, %v, want %v", tc.path, f, err, tc.want)
			}
		})
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat accepted xml")
	}
	if _, err := FormatForPath("a.txt"); err == nil {
		t.Error("FormatForPath accepted .txt")
	}
}
