package bulk

import (
	"fmt"

	"github.com/macadamian/dicomdoc"
)

// Externalize moves inline Blob values of at least minSize bytes into the
// store, replacing them with URIs. Sequence items are walked too. It
// returns the number of values moved.
func Externalize(ds *dicomdoc.Dataset, s *Store, minSize int) (int, error) {
	return walk(ds, 0, func(e *dicomdoc.Element) (dicomdoc.Value, error) {
		blob, ok := e.Value.(dicomdoc.Blob)
		if !ok || len(blob) < minSize {
			return nil, nil
		}
		uri, err := s.Put(blob)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", e.Tag, err)
		}
		return dicomdoc.URI(uri), nil
	})
}

// Internalize resolves bulk URIs back into inline Blob values. URIs of
// other schemes are left alone. It returns the number of values resolved.
func Internalize(ds *dicomdoc.Dataset, s *Store) (int, error) {
	return walk(ds, 0, func(e *dicomdoc.Element) (dicomdoc.Value, error) {
		uri, ok := e.Value.(dicomdoc.URI)
		if !ok {
			return nil, nil
		}
		if _, owned, _ := ParseURI(string(uri)); !owned {
			return nil, nil
		}
		data, err := s.Get(string(uri))
		if err != nil {
			return nil, fmt.Errorf("%v: %w", e.Tag, err)
		}
		return dicomdoc.Blob(data), nil
	})
}

// walk calls replace on every leaf element; a non-nil result becomes the
// element's new value.
func walk(ds *dicomdoc.Dataset, depth int, replace func(*dicomdoc.Element) (dicomdoc.Value, error)) (int, error) {
	if depth > dicomdoc.MaxDepth {
		return 0, fmt.Errorf("sequence nesting exceeds %d levels", dicomdoc.MaxDepth)
	}
	count := 0
	for _, e := range ds.Elements() {
		if seq, ok := e.Value.(dicomdoc.Sequence); ok {
			for _, item := range seq {
				n, err := walk(item, depth+1, replace)
				count += n
				if err != nil {
					return count, err
				}
			}
			continue
		}
		v, err := replace(e)
		if err != nil {
			return count, err
		}
		if v == nil {
			continue
		}
		ds.Set(&dicomdoc.Element{Tag: e.Tag, VR: e.VR, Value: v})
		count++
	}
	return count, nil
}
