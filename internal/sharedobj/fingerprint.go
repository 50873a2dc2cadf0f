package sharedobj

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Fingerprint is a loose object's content hash, derived from the `xx/yyyy…`
// path under which the host VCS stores it. Kept as a variable-length byte
// string rather than a fixed [20]byte so that repositories using a longer
// object-name hash (e.g. SHA-256) group correctly alongside SHA-1 ones —
// two objects only ever compare equal if both their length and bytes match.
//
// NOTE zero value Fingerprint{} is the null fingerprint and never matches a
// real object name.
type Fingerprint struct {
	raw string // hex-decoded bytes, stored as string for cheap comparison/hashing as a map key
}

var _ fmt.Stringer = Fingerprint{}

func (f Fingerprint) String() string {
	return hex.EncodeToString([]byte(f.raw))
}

// IsNull reports whether f is the zero Fingerprint.
func (f Fingerprint) IsNull() bool {
	return f.raw == ""
}

// rawBytes returns f's raw, hex-decoded bytes.
func (f Fingerprint) rawBytes() []byte {
	return []byte(f.raw)
}

// FingerprintParse parses a fingerprint from its hex representation (the
// `xx` directory name concatenated with the remainder of the object's
// filename).
func FingerprintParse(hexstr string) (Fingerprint, error) {
	if len(hexstr)%2 != 0 {
		return Fingerprint{}, fmt.Errorf("fingerprint: %q: odd length", hexstr)
	}
	raw, err := hex.DecodeString(hexstr)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("fingerprint: %q: %s", hexstr, err)
	}
	if len(raw) == 0 {
		return Fingerprint{}, fmt.Errorf("fingerprint: %q: empty", hexstr)
	}
	return Fingerprint{raw: string(raw)}, nil
}

// ByFingerprint sorts fingerprints lexicographically by raw byte value, so
// that output ordering is stable between runs irrespective of map
// iteration order.
type ByFingerprint []Fingerprint

func (p ByFingerprint) Len() int      { return len(p) }
func (p ByFingerprint) Swap(i, j int) { p[i], p[j] = p[j], p[i] }
func (p ByFingerprint) Less(i, j int) bool {
	return bytes.Compare([]byte(p[i].raw), []byte(p[j].raw)) < 0
}
