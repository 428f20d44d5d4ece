// Package derive computes deterministic sub-account addresses. An address
// is a pure function of a domain tag and an ordered list of seed
// components, so any party can locate a record without a central index.
package derive

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// Domain tags namespace the derivation so records of different kinds
// cannot collide.
const (
	TagUser     = "user"
	TagEscrow   = "escrow"
	TagContract = "contract"
)

// Address derives an address from a domain tag and ordered seed
// components. Each component is length-prefixed before hashing so two
// different seed lists can never produce the same digest input.
func Address(tag string, seeds ...[]byte) string {
	h := sha256.New()
	writeComponent(h, []byte(tag))
	for _, seed := range seeds {
		writeComponent(h, seed)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeComponent(h hash.Hash, component []byte) {
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(component)))
	h.Write(size[:])
	h.Write(component)
}

// UserAddress locates the registry record for an owner.
func UserAddress(owner string) string {
	return Address(TagUser, []byte(owner))
}

// EscrowAddress locates the escrow sub-account for an owner.
func EscrowAddress(owner string) string {
	return Address(TagEscrow, []byte(owner))
}

// ContractAddress locates the contract derived for a buyer/seller pair
// and the buyer's contract count at creation time. The count acts as a
// one-time nonce, big-endian encoded.
func ContractAddress(buyer, seller string, contractID uint64) string {
	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], contractID)
	return Address(TagContract, []byte(buyer), []byte(seller), nonce[:])
}
