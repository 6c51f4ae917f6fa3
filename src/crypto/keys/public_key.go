package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"
	"hash/fnv"
)

// FromPublicKey serializes a public key to the uncompressed form of its
// point on the curve.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(Curve(), pub.X, pub.Y)
}

// PeerID derives the substrate peer ID from a public key. It is the 32-bit
// FNV-1a hash of the uncompressed public key, in hex. There is obviously a
// risk of collision, which is acceptable here: the ID only routes provider
// queries, it does not authenticate anything.
func PeerID(pub *ecdsa.PublicKey) string {
	h := fnv.New32a()
	h.Write(FromPublicKey(pub))

	return fmt.Sprintf("%08x", h.Sum32())
}

// PublicKeyHex is the display form of a public key, used by the keygen
// command.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return fmt.Sprintf("0X%X", FromPublicKey(pub))
}
