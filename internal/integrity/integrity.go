// Package integrity signs exported snapshots/updates so an importer can
// verify they came from a trusted peer and weren't tampered with in
// transit. A thin Dilithium-3 wrapper over circl's sign.Scheme, narrowed
// to the sign/verify pair an exporter and importer actually need.
package integrity

import (
	"fmt"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// KeyPair is a replica's export-signing identity.
type KeyPair struct {
	Public  sign.PublicKey
	Private sign.PrivateKey
}

// GenerateKeyPair mints a fresh Dilithium-3 signing identity for a peer.
func GenerateKeyPair() (*KeyPair, error) {
	scheme := mode3.Scheme()
	pub, priv, err := scheme.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("integrity: generate key pair: %w", err)
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// Sign signs an exported blob (a snapshot or update frame).
func Sign(priv sign.PrivateKey, blob []byte) []byte {
	return mode3.Scheme().Sign(priv, blob, nil)
}

// Verify checks a signature produced by Sign against blob.
func Verify(pub sign.PublicKey, blob, signature []byte) bool {
	return mode3.Scheme().Verify(pub, blob, signature, nil)
}

// MarshalPublicKey serializes a public key for inclusion in a peer
// directory or trust list.
func MarshalPublicKey(kp *KeyPair) ([]byte, error) {
	return kp.Public.MarshalBinary()
}

// UnmarshalPublicKey parses a public key previously produced by
// MarshalPublicKey.
func UnmarshalPublicKey(data []byte) (sign.PublicKey, error) {
	return mode3.Scheme().UnmarshalBinaryPublicKey(data)
}
