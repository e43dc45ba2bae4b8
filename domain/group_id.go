package domain

import (
	"bytes"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// GroupIDSize matches the size of a native unique id.
const GroupIDSize = 128

// GroupID is the opaque identifier every participant must share to build a handle.
type GroupID []byte

func (g GroupID) Empty() bool {
	return len(g) == 0
}

func (g GroupID) Equal(other GroupID) bool {
	return bytes.Equal(g, other)
}

// Fingerprint is a short digest safe to print in logs.
func (g GroupID) Fingerprint() string {
	if g.Empty() {
		return "<none>"
	}
	sum := blake2b.Sum256(g)
	return hex.EncodeToString(sum[:6])
}

func (g GroupID) Clone() GroupID {
	if g == nil {
		return nil
	}
	return bytes.Clone(g)
}
