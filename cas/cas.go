// Package cas provides content-addressable hashing utilities built on
// BLAKE3. Node digests computed here are the identity keys of the shared
// node store: two subtrees with the same digest are the same node.
package cas

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"lukechampine.com/blake3"
)

// DigestSize is the size in bytes of a node digest.
const DigestSize = 32

// Digest is a BLAKE3-256 content digest.
type Digest [DigestSize]byte

// String returns the hex form of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first 8 bytes of the digest in hex.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:8])
}

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// NowMs returns the current time in milliseconds since epoch.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// Blake3Hash computes a BLAKE3 hash of the input and returns it as bytes.
func Blake3Hash(data []byte) []byte {
	hash := blake3.Sum256(data)
	return hash[:]
}

// Blake3HashHex computes a BLAKE3 hash and returns it as a hex string.
func Blake3HashHex(data []byte) string {
	return hex.EncodeToString(Blake3Hash(data))
}

// NewBlake3Hasher returns a new streaming BLAKE3 hasher.
func NewBlake3Hasher() *blake3.Hasher {
	return blake3.New(DigestSize, nil)
}

// NodeDigest computes the content address of a syntax node:
//
//	blake3(type "\n" hasLabel label "\n" len(children) child digests...)
//
// Children are hashed by digest so the result does not depend on the
// store a node was interned into.
func NodeDigest(typ string, label string, hasLabel bool, children []Digest) Digest {
	h := NewBlake3Hasher()
	h.Write([]byte(typ))
	h.Write([]byte{'\n'})
	if hasLabel {
		h.Write([]byte{1})
		h.Write([]byte(label))
	} else {
		h.Write([]byte{0})
	}
	h.Write([]byte{'\n'})
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(children)))
	h.Write(n[:])
	for i := range children {
		h.Write(children[i][:])
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// DigestFromBytes converts a byte slice to a Digest. It returns false if
// the slice has the wrong length.
func DigestFromBytes(b []byte) (Digest, bool) {
	var d Digest
	if len(b) != DigestSize {
		return d, false
	}
	copy(d[:], b)
	return d, true
}

// CanonicalJSON converts a value to canonical JSON (stable key ordering).
func CanonicalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var obj interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}

	return canonicalMarshal(obj)
}

func canonicalMarshal(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		return marshalSortedMap(val)
	case []interface{}:
		return marshalArray(val)
	default:
		return json.Marshal(v)
	}
}

func marshalSortedMap(m map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := canonicalMarshal(m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalArray(arr []interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		valBytes, err := canonicalMarshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// ParseDigest parses the hex form produced by Digest.String.
func ParseDigest(s string) (Digest, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, fmt.Errorf("parsing digest: %w", err)
	}
	d, ok := DigestFromBytes(b)
	if !ok {
		return Digest{}, fmt.Errorf("parsing digest: got %d bytes, want %d", len(b), DigestSize)
	}
	return d, nil
}
