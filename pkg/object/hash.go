package object

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// IDSize is the length in bytes of an ObjectID (160 bits).
const IDSize = 20

// ObjectID is the BLAKE2b-160 digest of an object's canonical encoding.
// The zero value is NullID and means "absent".
type ObjectID [IDSize]byte

// NullID is the all-zero sentinel id.
var NullID ObjectID

// ParseID decodes a 40-character hex string.
func ParseID(s string) (ObjectID, error) {
	var id ObjectID
	if len(s) != IDSize*2 {
		return id, fmt.Errorf("%w: object id %q: want %d hex chars", ErrInvalid, s, IDSize*2)
	}
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return id, fmt.Errorf("%w: object id %q: %v", ErrInvalid, s, err)
	}
	return id, nil
}

// MustParseID is ParseID for constants and tests.
func MustParseID(s string) ObjectID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ObjectID) String() string { return hex.EncodeToString(id[:]) }

// Short returns the first eight hex characters.
func (id ObjectID) Short() string { return id.String()[:8] }

// IsNull reports whether id is the NullID sentinel.
func (id ObjectID) IsNull() bool { return id == NullID }

// Compare orders ids byte-wise.
func (id ObjectID) Compare(o ObjectID) int { return bytes.Compare(id[:], o[:]) }

// MarshalText encodes the id as hex so ids can live in JSON records.
func (id ObjectID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText accepts the hex form written by MarshalText.
func (id *ObjectID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func newHasher() hash.Hash {
	h, err := blake2b.New(IDSize, nil)
	if err != nil {
		// Only reachable with an invalid size or key, both constant here.
		panic(err)
	}
	return h
}

// HashBytes hashes raw bytes into an ObjectID.
func HashBytes(data []byte) ObjectID {
	h := newHasher()
	h.Write(data)
	var id ObjectID
	copy(id[:], h.Sum(nil))
	return id
}

// HashObject hashes the envelope "type byte || body". Encode produces
// exactly these bytes, so HashObject(t, body) == HashBytes(Encode(obj)).
func HashObject(t ObjectType, body []byte) ObjectID {
	h := newHasher()
	h.Write([]byte{byte(t)})
	h.Write(body)
	var id ObjectID
	copy(id[:], h.Sum(nil))
	return id
}

// BucketIndex returns the bucket a tree entry name falls into at the given
// bucket tier. Tier 0 is the root level of a bucketed tree.
func BucketIndex(name string, depth, bucketsPerTier int) int {
	sum := HashBytes([]byte(name))
	return int(sum[depth%IDSize]) % bucketsPerTier
}
