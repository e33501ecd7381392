package dcmfile

import (
	"errors"
	"io/fs"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/gradienthealth/dicom"
	"github.com/gradienthealth/dicom/dicomtag"

	"github.com/macadamian/dicomdoc"
	"github.com/macadamian/dicomdoc/tagdict"
)

var (
	referencedImageSequence  = tagdict.New(0x0008, 0x1140)
	referencedSOPInstanceUID = tagdict.New(0x0008, 0x1155)
	privateTag               = tagdict.New(0x0009, 0x1001)
)

func element(t tagdict.Tag, vr string, values ...interface{}) *dicom.Element {
	return &dicom.Element{Tag: t.DicomTag(), VR: vr, Value: values}
}

func TestFromDataSet(t *testing.T) {
	item := element(tagdict.Item, "NA", element(referencedSOPInstanceUID, "UI", "1.2.3"))
	ds := &dicom.DataSet{Elements: []*dicom.Element{
		element(tagdict.FileMetaInformationVersion, "OB", []byte{0, 1}),
		element(tagdict.TransferSyntaxUID, "UI", "1.2.840.10008.1.2.1"),
		element(tagdict.Modality, "CS", "MR"),
		element(tagdict.Rows, "US", uint16(256)),
		element(tagdict.PixelSpacing, "DS", "0.5", " 0.25"),
		element(tagdict.NumberOfFrames, "IS", "12 "),
		element(tagdict.PatientName, "PN", "Doe^Jane"),
		element(tagdict.SeriesDescription, "LO"),
		element(referencedImageSequence, "SQ", item),
		element(privateTag, "", uint16(7)),
		element(tagdict.PixelData, "OW"),
	}}

	r, err := FromDataSet(ds)
	if err != nil {
		t.Fatal(err)
	}

	wantMeta := dicomdoc.MustNewDataset(
		dicomdoc.MustNewElement(tagdict.FileMetaInformationVersion, dicomdoc.OB, dicomdoc.Blob{0, 1}),
		dicomdoc.MustNewElement(tagdict.TransferSyntaxUID, dicomdoc.UI, dicomdoc.List{"1.2.840.10008.1.2.1"}),
	)
	if !r.FileMeta.Equal(wantMeta) {
		t.Errorf("file meta = %+v", r.FileMeta.Elements())
	}

	wantData := dicomdoc.MustNewDataset(
		dicomdoc.MustNewElement(tagdict.Modality, dicomdoc.CS, dicomdoc.List{"MR"}),
		dicomdoc.MustNewElement(tagdict.Rows, dicomdoc.US, dicomdoc.List{int64(256)}),
		dicomdoc.MustNewElement(tagdict.PixelSpacing, dicomdoc.DS, dicomdoc.List{0.5, 0.25}),
		dicomdoc.MustNewElement(tagdict.NumberOfFrames, dicomdoc.IS, dicomdoc.List{int64(12)}),
		dicomdoc.MustNewElement(tagdict.PatientName, dicomdoc.PN, dicomdoc.List{dicomdoc.PersonName{Alphabetic: "Doe^Jane"}}),
		dicomdoc.MustNewElement(tagdict.SeriesDescription, dicomdoc.LO, nil),
		dicomdoc.MustNewElement(referencedImageSequence, dicomdoc.SQ, dicomdoc.Sequence{
			dicomdoc.MustNewDataset(dicomdoc.MustNewElement(referencedSOPInstanceUID, dicomdoc.UI, dicomdoc.List{"1.2.3"})),
		}),
		dicomdoc.MustNewElement(privateTag, dicomdoc.US, dicomdoc.List{int64(7)}),
	)
	if !r.Data.Equal(wantData) {
		t.Errorf("data = %+v", r.Data.Elements())
	}
}

func TestFromDataSetSkipsBadValues(t *testing.T) {
	ds := &dicom.DataSet{Elements: []*dicom.Element{
		element(tagdict.Rows, "US", "not a number"),
		element(tagdict.Modality, "CS", "CT"),
	}}
	r, err := FromDataSet(ds)
	if err != nil {
		t.Fatal(err)
	}
	if r.Data.Contains(tagdict.Rows) {
		t.Error("unconvertible element was kept")
	}
	if !r.Data.Contains(tagdict.Modality) {
		t.Error("Modality was dropped")
	}
}

func TestToDataSet(t *testing.T) {
	r := dicomdoc.NewRecord()
	r.FileMeta = dicomdoc.MustNewDataset(
		dicomdoc.MustNewElement(tagdict.FileMetaInformationGroupLength, dicomdoc.UL, dicomdoc.List{int64(190)}),
		dicomdoc.MustNewElement(tagdict.TransferSyntaxUID, dicomdoc.UI, dicomdoc.List{"1.2.840.10008.1.2.1"}),
	)
	r.Data = dicomdoc.MustNewDataset(
		dicomdoc.MustNewElement(tagdict.Rows, dicomdoc.US, dicomdoc.List{int64(256)}),
		dicomdoc.MustNewElement(tagdict.Modality, dicomdoc.CS, dicomdoc.List{"MR"}),
		dicomdoc.MustNewElement(tagdict.PixelSpacing, dicomdoc.DS, dicomdoc.List{0.5, 1.0 / 3}),
		dicomdoc.MustNewElement(tagdict.New(0x0028, 0x1201), dicomdoc.OW, dicomdoc.Blob{1, 2, 3, 4}),
		dicomdoc.MustNewElement(referencedImageSequence, dicomdoc.SQ, dicomdoc.Sequence{
			dicomdoc.MustNewDataset(dicomdoc.MustNewElement(referencedSOPInstanceUID, dicomdoc.UI, dicomdoc.List{"1.2.3"})),
		}),
	)

	ds, err := ToDataSet(r)
	if err != nil {
		t.Fatal(err)
	}
	var tags []tagdict.Tag
	for _, e := range ds.Elements {
		tags = append(tags, tagdict.FromDicomTag(e.Tag))
	}
	wantTags := []tagdict.Tag{
		tagdict.TransferSyntaxUID,
		tagdict.Modality,
		referencedImageSequence,
		tagdict.Rows,
		tagdict.PixelSpacing,
		tagdict.New(0x0028, 0x1201),
	}
	if !reflect.DeepEqual(tags, wantTags) {
		t.Fatalf("tags = %v, want %v", tags, wantTags)
	}

	rows := ds.Elements[3]
	if !reflect.DeepEqual(rows.Value, []interface{}{uint16(256)}) {
		t.Errorf("Rows value = %#v", rows.Value)
	}
	spacing := ds.Elements[4]
	if !reflect.DeepEqual(spacing.Value, []interface{}{"0.5", "0.33333333333333"}) {
		t.Errorf("PixelSpacing value = %#v", spacing.Value)
	}
	lut := ds.Elements[5]
	if !reflect.DeepEqual(lut.Value, []interface{}{[]byte{1, 2, 3, 4}}) {
		t.Errorf("OW value = %#v", lut.Value)
	}
	seq := ds.Elements[2]
	if len(seq.Value) != 1 {
		t.Fatalf("sequence has %d items, want 1", len(seq.Value))
	}
	item := seq.Value[0].(*dicom.Element)
	if item.Tag != dicomtag.Item || len(item.Value) != 1 {
		t.Fatalf("item = %+v", item)
	}
}

func TestToDataSetErrors(t *testing.T) {
	tests := []struct {
		name string
		e    *dicomdoc.Element
	}{
		{"out of range", dicomdoc.MustNewElement(tagdict.Rows, dicomdoc.US, dicomdoc.List{int64(70000)})},
		{"unresolved uri", dicomdoc.MustNewElement(tagdict.New(0x0028, 0x1201), dicomdoc.OW, dicomdoc.URI("bulk:00"))},
		{"bad attribute tag", dicomdoc.MustNewElement(tagdict.New(0x0020, 0x5000), dicomdoc.AT, dicomdoc.List{"nope"})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := dicomdoc.NewRecord()
			r.Data = dicomdoc.MustNewDataset(tc.e)
			if _, err := ToDataSet(r); err == nil {
				t.Fatal("ToDataSet accepted an unwritable value")
			}
		})
	}
}

func TestToDataSetEncodesText(t *testing.T) {
	r := dicomdoc.NewRecord()
	r.Data = dicomdoc.MustNewDataset(
		dicomdoc.MustNewElement(tagdict.SpecificCharacterSet, dicomdoc.CS, dicomdoc.List{"ISO_IR 100"}),
		dicomdoc.MustNewElement(tagdict.PatientName, dicomdoc.PN, dicomdoc.List{dicomdoc.PersonName{Alphabetic: "Müller^Jürgen"}}),
		dicomdoc.MustNewElement(tagdict.Modality, dicomdoc.CS, dicomdoc.List{"MR"}),
	)
	ds, err := ToDataSet(r)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range ds.Elements {
		if tagdict.FromDicomTag(e.Tag) != tagdict.PatientName {
			continue
		}
		want := "M\xfcller^J\xfcrgen"
		if got := e.Value[0].(string); got != want {
			t.Fatalf("PatientName = %q, want %q", got, want)
		}
		return
	}
	t.Fatal("PatientName missing")
}

func TestLookupCharset(t *testing.T) {
	for _, term := range []string{"ISO_IR 100", "ISO_IR 192", "ISO_IR 13", "GB18030", "ISO 2022 IR 87"} {
		enc, err := LookupCharset(term)
		if err != nil || enc == nil {
			t.Errorf("LookupCharset(%q) = %v, %v", term, enc, err)
		}
	}
	if enc, err := LookupCharset(""); enc != nil || err != nil {
		t.Errorf("LookupCharset(\"\") = %v, %v, want nil, nil", enc, err)
	}
	if _, err := LookupCharset("ISO_IR 999"); err == nil {
		t.Error("LookupCharset accepted an unknown term")
	}
}

func TestFormatDS(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.5, "0.5"},
		{-12, "-12"},
		{1.0 / 3, "0.33333333333333"},
		{123456789.123456789, "123456789.123457"},
	}
	for _, tc := range tests {
		if got := formatDS(tc.in); got != tc.want {
			t.Errorf("formatDS(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWriteRead(t *testing.T) {
	r := dicomdoc.NewRecord()
	r.FileMeta = dicomdoc.MustNewDataset(
		dicomdoc.MustNewElement(tagdict.MediaStorageSOPClassUID, dicomdoc.UI, dicomdoc.List{"1.2.840.10008.5.1.4.1.1.4"}),
		dicomdoc.MustNewElement(tagdict.MediaStorageSOPInstanceUID, dicomdoc.UI, dicomdoc.List{"1.2.3.4"}),
		dicomdoc.MustNewElement(tagdict.TransferSyntaxUID, dicomdoc.UI, dicomdoc.List{"1.2.840.10008.1.2.1"}),
	)
	r.Data = dicomdoc.MustNewDataset(
		dicomdoc.MustNewElement(tagdict.Modality, dicomdoc.CS, dicomdoc.List{"MR"}),
		dicomdoc.MustNewElement(tagdict.Rows, dicomdoc.US, dicomdoc.List{int64(256)}),
		dicomdoc.MustNewElement(tagdict.PatientName, dicomdoc.PN, dicomdoc.List{dicomdoc.PersonName{Alphabetic: "Doe^Jane"}}),
	)
	path := filepath.Join(t.TempDir(), "out", "image.dcm")
	if err := Write(path, r); err != nil {
		t.Fatal(err)
	}
	got, err := Read(path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range r.Data.Elements() {
		g, ok := got.Data.Get(e.Tag)
		if !ok || !g.Equal(e) {
			t.Errorf("%v = %+v, want %+v", e.Tag, g, e)
		}
	}
	if s, _ := got.FileMeta.String(tagdict.TransferSyntaxUID); s != "1.2.840.10008.1.2.1" {
		t.Errorf("TransferSyntaxUID = %q", s)
	}
}

func TestWriteRequiresFileMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.dcm")
	if err := Write(path, dicomdoc.NewRecord()); err == nil {
		t.Fatal("Write accepted a record without file meta")
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.dcm"), Options{})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("got %v, want fs.ErrNotExist", err)
	}
}
