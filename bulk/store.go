// Package bulk keeps large element payloads, such as pixel data, outside
// the document. A payload is stored once under the hash of its bytes and
// the element carries a "bulk:<hash>" URI in its place.
package bulk

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/macadamian/dicomdoc/internal/atomicfile"
)

// Scheme prefixes every URI the store hands out.
const Scheme = "bulk:"

// Hash is the keyed BLAKE3 digest of a payload's uncompressed bytes.
type Hash [32]byte

// blobDomainKey is the ASCII domain name zero-padded to 32 bytes.
var blobDomainKey = [32]byte{
	'd', 'i', 'c', 'o', 'm', 'd', 'o', 'c', '.', 'b', 'u', 'l', 'k', '.', 'b', 'l',
	'o', 'b', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashBlob hashes data in the blob domain.
func HashBlob(data []byte) Hash {
	hasher, err := blake3.NewKeyed(blobDomainKey[:])
	if err != nil {
		// Only fails on a key that is not 32 bytes.
		panic("bulk: " + err.Error())
	}
	hasher.Write(data)
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// URI returns the reference an element carries for this payload.
func (h Hash) URI() string {
	return Scheme + h.String()
}

// ParseURI extracts the hash from a bulk URI. The second result is false
// for URIs of any other scheme, which the store does not own.
func ParseURI(uri string) (Hash, bool, error) {
	if !strings.HasPrefix(uri, Scheme) {
		return Hash{}, false, nil
	}
	var h Hash
	raw, err := hex.DecodeString(strings.TrimPrefix(uri, Scheme))
	if err != nil || len(raw) != len(h) {
		return Hash{}, true, fmt.Errorf("malformed bulk reference %q", uri)
	}
	copy(h[:], raw)
	return h, true, nil
}

// headerSize is the compression byte plus the uncompressed length.
const headerSize = 1 + 8

// Store is a directory of content-addressed payloads. Files are laid out
// as <dir>/<first two hex digits>/<hash>.
type Store struct {
	dir         string
	compression Compression
}

// NewStore opens (creating if needed) a store rooted at dir. New payloads
// are compressed with c.
func NewStore(dir string, c Compression) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating bulk store: %w", err)
	}
	return &Store{dir: dir, compression: c}, nil
}

func (s *Store) path(h Hash) string {
	name := h.String()
	return filepath.Join(s.dir, name[:2], name)
}

// Put stores data and returns its URI. Storing the same bytes twice writes
// one file.
func (s *Store) Put(data []byte) (string, error) {
	h := HashBlob(data)
	path := s.path(h)
	if _, err := os.Stat(path); err == nil {
		return h.URI(), nil
	}

	c := s.compression
	payload, err := compress(data, c)
	if errors.Is(err, errIncompressible) {
		c, payload = CompressionNone, data
	} else if err != nil {
		return "", err
	}

	out := make([]byte, headerSize, headerSize+len(payload))
	out[0] = byte(c)
	binary.LittleEndian.PutUint64(out[1:headerSize], uint64(len(data)))
	out = append(out, payload...)

	if err := atomicfile.WriteFile(path, out); err != nil {
		return "", err
	}
	slog.Debug("stored bulk data", "hash", h.String(), "size", len(data), "stored", len(out), "compression", c)
	return h.URI(), nil
}

// Get returns the payload a URI references, verifying its hash.
func (s *Store) Get(uri string) ([]byte, error) {
	h, ok, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("not a bulk reference: %q", uri)
	}
	raw, err := os.ReadFile(s.path(h))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("bulk data %s is not in %s: %w", h, s.dir, err)
		}
		return nil, err
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("bulk data %s: truncated header", h)
	}
	size := binary.LittleEndian.Uint64(raw[1:headerSize])
	if size > uint64(maxBlobSize) {
		return nil, fmt.Errorf("bulk data %s: size %d exceeds limit", h, size)
	}
	data, err := decompress(raw[headerSize:], Compression(raw[0]), int(size))
	if err != nil {
		return nil, fmt.Errorf("bulk data %s: %w", h, err)
	}
	if HashBlob(data) != h {
		return nil, fmt.Errorf("bulk data %s: content does not match its hash", h)
	}
	return data, nil
}

// A DICOM element length is a 32-bit field.
const maxBlobSize = 1<<32 - 1
