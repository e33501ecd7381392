package dicomdoc

// fileMetaPolicy is applied to the file meta section in both directions.
// File meta is small and fully standard, so inline binary is always kept
// and names without a keyword are always dropped.
var fileMetaPolicy = Policy{SkipBinary: false, SkipNonStandard: true}

// ToDocument encodes a record. The file meta section always uses
// fileMetaPolicy; the data section uses p.
func ToDocument(r *Record, p Policy) (*Document, error) {
	fileMeta, err := encodeDataset(r.FileMeta, fileMetaPolicy, "file_meta", 0)
	if err != nil {
		return nil, err
	}
	data, err := encodeDataset(r.Data, p, "data", 0)
	if err != nil {
		return nil, err
	}
	return &Document{Info: Info, FileMeta: fileMeta, Data: data}, nil
}

// FromDocument decodes a document. A missing file_meta or data section
// yields an empty dataset; malformed elements inside a present section are
// errors.
func FromDocument(doc *Document, p Policy) (*Record, error) {
	r := NewRecord()
	var err error
	if doc.Data != nil {
		if r.Data, err = decodeDataset(doc.Data, p, "data", 0); err != nil {
			return nil, err
		}
	}
	if doc.FileMeta != nil {
		if r.FileMeta, err = decodeDataset(doc.FileMeta, fileMetaPolicy, "file_meta", 0); err != nil {
			return nil, err
		}
	}
	return r, nil
}
