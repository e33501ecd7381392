// Package dicomdoc converts DICOM records into editable tree documents and
// back.
//
// A Record pairs the file meta information with the data set. ToDocument
// turns it into a Document with three sections, info, file_meta and data,
// where each element is keyed by its dictionary keyword, or by its hex tag
// (0xGGGGEEEE) when it has none:
//
//	{
//	    "info": "...",
//	    "file_meta": {
//	        "TransferSyntaxUID": {"vr": "UI", "value": "1.2.840.10008.1.2.1"}
//	    },
//	    "data": {
//	        "PixelSpacing": {"vr": "DS", "value": [0.5, 0.5]},
//	        "0x00091001": {"vr": "OB", "binary": "AAEC"}
//	    }
//	}
//
// A value list holding a single item is written as a bare scalar. Decoding
// wraps a bare scalar back into a one-item list, except for the free text
// VRs (LT, ST, UT, UR) which hold a single Text. Whether a value was a
// one-item list or a bare value is not recorded in the document.
//
// Documents are stored as JSON, YAML or CBOR; the format never changes the
// document's shape. Write checks that the file suffix matches the format
// before touching the file system; Read parses with the format it is given.
//
// Policy controls two defined losses. SkipBinary omits inline binary
// values and SkipNonStandard omits elements without a dictionary keyword.
// The file meta section always keeps binary values and drops non-standard
// elements.
package dicomdoc
