// Package util provides small helpers shared by the annotation converter.
package util

import (
	"math/big"

	"github.com/google/uuid"
)

// uidNamespace scopes deterministic UIDs to this tool.
var uidNamespace = uuid.MustParse("6f1b2c8e-3d4a-5b6c-9d0e-1f2a3b4c5d6e")

// NewUID returns a fresh DICOM UID under the 2.25 root (UUID-derived).
func NewUID() string {
	return uuidToUID(uuid.New())
}

// GenerateDeterministicUID returns a DICOM UID that is stable for a given seed.
// The same seed always yields the same UID, which keeps series identity stable
// across reruns of the same slide.
func GenerateDeterministicUID(seed string) string {
	return uuidToUID(uuid.NewSHA1(uidNamespace, []byte(seed)))
}

// uuidToUID converts a UUID to its 2.25.<integer> form (PS3.5 B.2).
func uuidToUID(u uuid.UUID) string {
	n := new(big.Int).SetBytes(u[:])
	return "2.25." + n.String()
}
