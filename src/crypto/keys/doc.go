// Package keys implements the key-pair that identifies a peerline node.
//
// Every node owns an ECDSA key-pair on the secp256k1 curve. The peer ID that
// the substrate advertises, and that other nodes use to address provider
// queries, is derived from the public key. The private key never leaves the
// node's data directory.
package keys
