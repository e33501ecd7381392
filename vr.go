package dicomdoc

import "fmt"

// VRKind groups value representations by how their values are held.
type VRKind int

const (
	// StringKind values are held as string in a List.
	StringKind VRKind = iota
	// TextKind values are a single Text; the VR never repeats.
	TextKind
	// PersonNameKind values are PersonName in a List.
	PersonNameKind
	// IntKind values are int64 in a List.
	IntKind
	// FloatKind values are float64 in a List.
	FloatKind
	// BulkKind values are a Blob or a URI.
	BulkKind
	// SequenceKind values are a Sequence of nested datasets.
	SequenceKind
)

func (k VRKind) String() string {
	switch k {
	case StringKind:
		return "string"
	case TextKind:
		return "text"
	case PersonNameKind:
		return "person name"
	case IntKind:
		return "integer"
	case FloatKind:
		return "float"
	case BulkKind:
		return "bulk"
	case SequenceKind:
		return "sequence"
	default:
		return fmt.Sprintf("VRKind(%d)", int(k))
	}
}

// VR is a two letter value representation code.
type VR string

var vrKinds = map[VR]VRKind{}

func newVR(code string, kind VRKind) VR {
	vr := VR(code)
	vrKinds[vr] = kind
	return vr
}

// VR list from PS3.5 section 6.2.
var (
	AE = newVR("AE", StringKind)
	AS = newVR("AS", StringKind)
	AT = newVR("AT", StringKind)
	CS = newVR("CS", StringKind)
	DA = newVR("DA", StringKind)
	DT = newVR("DT", StringKind)
	LO = newVR("LO", StringKind)
	SH = newVR("SH", StringKind)
	TM = newVR("TM", StringKind)
	UC = newVR("UC", StringKind)
	UI = newVR("UI", StringKind)

	LT = newVR("LT", TextKind)
	ST = newVR("ST", TextKind)
	UR = newVR("UR", TextKind)
	UT = newVR("UT", TextKind)

	PN = newVR("PN", PersonNameKind)

	IS = newVR("IS", IntKind)
	SL = newVR("SL", IntKind)
	SS = newVR("SS", IntKind)
	SV = newVR("SV", IntKind)
	UL = newVR("UL", IntKind)
	US = newVR("US", IntKind)
	UV = newVR("UV", IntKind)

	DS = newVR("DS", FloatKind)
	FD = newVR("FD", FloatKind)
	FL = newVR("FL", FloatKind)

	OB = newVR("OB", BulkKind)
	OD = newVR("OD", BulkKind)
	OF = newVR("OF", BulkKind)
	OL = newVR("OL", BulkKind)
	OV = newVR("OV", BulkKind)
	OW = newVR("OW", BulkKind)
	UN = newVR("UN", BulkKind)

	SQ = newVR("SQ", SequenceKind)
)

// ParseVR validates a code against the closed VR enumeration.
func ParseVR(code string) (VR, error) {
	vr := VR(code)
	if _, ok := vrKinds[vr]; !ok {
		return "", fmt.Errorf("unknown value representation %q", code)
	}
	return vr, nil
}

// Kind reports how values of this VR are held. Unknown VRs report BulkKind.
func (vr VR) Kind() VRKind {
	if k, ok := vrKinds[vr]; ok {
		return k
	}
	return BulkKind
}

// Multiple reports whether the VR allows a value multiplicity above one,
// which decides whether a bare document scalar is wrapped into a List.
func (vr VR) Multiple() bool {
	switch vr.Kind() {
	case StringKind, PersonNameKind, IntKind, FloatKind:
		return true
	}
	return false
}

func (vr VR) String() string {
	return string(vr)
}
