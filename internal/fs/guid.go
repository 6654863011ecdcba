package fs

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// GUID is a Microsoft-style mixed-endian GUID as laid out on disk in GPT
// headers and partition entries: the first three fields are little-endian,
// the last two are big-endian byte strings (RFC 4122 "variant 2" layout).
type GUID [16]byte

// ParseDiskGUID decodes the 16 on-disk bytes of a GUID field.
func ParseDiskGUID(b []byte) GUID {
	var g GUID
	copy(g[:], b)
	return g
}

// IsZero reports whether the GUID is all-zero, the GPT convention for "this
// partition entry is unused".
func (g GUID) IsZero() bool {
	for _, b := range g {
		if b != 0 {
			return false
		}
	}
	return true
}

// String renders the GUID in canonical 8-4-4-4-12 form, converting from the
// on-disk mixed-endian layout to RFC 4122's big-endian string form.
func (g GUID) String() string {
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], binary.LittleEndian.Uint32(g[0:4]))
	binary.BigEndian.PutUint16(u[4:6], binary.LittleEndian.Uint16(g[4:6]))
	binary.BigEndian.PutUint16(u[6:8], binary.LittleEndian.Uint16(g[6:8]))
	copy(u[8:], g[8:16])
	return u.String()
}

// ParseTextGUID parses the canonical 8-4-4-4-12 textual form used by the
// path grammar's DISKUUID/PARTUUID syntax, returning the on-disk mixed
// endian byte layout.
func ParseTextGUID(s string) (GUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return GUID{}, err
	}

	var g GUID
	binary.LittleEndian.PutUint32(g[0:4], binary.BigEndian.Uint32(u[0:4]))
	binary.LittleEndian.PutUint16(g[4:6], binary.BigEndian.Uint16(u[4:6]))
	binary.LittleEndian.PutUint16(g[6:8], binary.BigEndian.Uint16(u[6:8]))
	copy(g[8:16], u[8:])
	return g, nil
}
