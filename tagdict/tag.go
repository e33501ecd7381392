package tagdict

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gradienthealth/dicom/dicomtag"
)

// Tag identifies a data element by its (group, element) pair.
type Tag struct {
	Group   uint16
	Element uint16
}

// New creates a Tag.
func New(group, element uint16) Tag {
	return Tag{Group: group, Element: element}
}

// String renders the canonical document key form, 0xGGGGEEEE.
func (t Tag) String() string {
	return fmt.Sprintf("0x%04X%04X", t.Group, t.Element)
}

// IsPrivate is true for tags in an odd group.
func (t Tag) IsPrivate() bool {
	return t.Group%2 == 1
}

// IsMeta is true for file meta information elements (group 0002).
func (t Tag) IsMeta() bool {
	return t.Group == 0x0002
}

// Less orders tags by group, then element.
func (t Tag) Less(other Tag) bool {
	if t.Group != other.Group {
		return t.Group < other.Group
	}
	return t.Element < other.Element
}

// DicomTag converts to the parser library's tag type.
func (t Tag) DicomTag() dicomtag.Tag {
	return dicomtag.Tag{Group: t.Group, Element: t.Element}
}

// FromDicomTag converts from the parser library's tag type.
func FromDicomTag(t dicomtag.Tag) Tag {
	return Tag{Group: t.Group, Element: t.Element}
}

// Parse reads a hex tag in one of the forms 0xGGGGEEEE, GGGGEEEE or
// (GGGG,EEEE). Case is not significant.
func Parse(s string) (Tag, error) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		parts := strings.Split(strings.Trim(s, "()"), ",")
		if len(parts) != 2 {
			return Tag{}, fmt.Errorf("malformed tag %q", s)
		}
		group, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 16, 16)
		if err != nil {
			return Tag{}, fmt.Errorf("malformed tag group in %q: %w", s, err)
		}
		element, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 16, 16)
		if err != nil {
			return Tag{}, fmt.Errorf("malformed tag element in %q: %w", s, err)
		}
		return New(uint16(group), uint16(element)), nil
	}

	hex := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(hex) != 8 {
		return Tag{}, fmt.Errorf("malformed tag %q: want 8 hex digits", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Tag{}, fmt.Errorf("malformed tag %q: %w", s, err)
	}
	return New(uint16(v>>16), uint16(v&0xFFFF)), nil
}

// Tags referenced by name throughout the module.
var (
	FileMetaInformationGroupLength = Tag{0x0002, 0x0000}
	FileMetaInformationVersion     = Tag{0x0002, 0x0001}
	MediaStorageSOPClassUID        = Tag{0x0002, 0x0002}
	MediaStorageSOPInstanceUID     = Tag{0x0002, 0x0003}
	TransferSyntaxUID              = Tag{0x0002, 0x0010}
	ImplementationClassUID         = Tag{0x0002, 0x0012}

	SpecificCharacterSet = Tag{0x0008, 0x0005}
	SOPClassUID          = Tag{0x0008, 0x0016}
	SOPInstanceUID       = Tag{0x0008, 0x0018}
	StudyDate            = Tag{0x0008, 0x0020}
	Modality             = Tag{0x0008, 0x0060}
	SeriesDescription    = Tag{0x0008, 0x103E}

	PatientName = Tag{0x0010, 0x0010}
	PatientID   = Tag{0x0010, 0x0020}

	SliceLocation = Tag{0x0020, 0x1041}

	NumberOfFrames = Tag{0x0028, 0x0008}
	Rows           = Tag{0x0028, 0x0010}
	Columns        = Tag{0x0028, 0x0011}
	PixelSpacing   = Tag{0x0028, 0x0030}

	PixelData = Tag{0x7FE0, 0x0010}

	Item = Tag{0xFFFE, 0xE000}
)
