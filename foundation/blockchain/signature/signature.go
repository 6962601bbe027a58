// Package signature provides helper functions for handling the blockchain
// identity and signature needs.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrIdentity is returned when key material can't be used at all. This is
// different from a signature that simply does not verify.
var ErrIdentity = errors.New("identity failure")

// =============================================================================

// GenerateKey produces a new secp256k1 private key for a node or wallet.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// Address converts the public key into the address used on the blockchain.
// An address is the 0x prefixed hex encoding of the compressed public key, so
// a signature can be verified directly against it.
func Address(pk ecdsa.PublicKey) string {
	return hexutil.Encode(crypto.CompressPubkey(&pk))
}

// IsAddress validates the string decodes into a compressed public key.
func IsAddress(address string) bool {
	_, err := publicKey(address)
	return err == nil
}

// Hash returns the hex encoded SHA-256 of the data.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// Sign uses the specified private key to sign the 32 byte digest.
func Sign(digest []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	if len(digest) != crypto.DigestLength {
		return nil, fmt.Errorf("%w: digest length %d, exp %d", ErrIdentity, len(digest), crypto.DigestLength)
	}

	sig, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIdentity, err)
	}

	return sig, nil
}

// Verify checks the signature was produced over the digest by the key behind
// the address. A malformed or missing signature does not verify and returns
// false. An error is only returned when the address isn't usable key material.
func Verify(address string, digest []byte, sig []byte) (bool, error) {
	pub, err := publicKey(address)
	if err != nil {
		return false, err
	}

	// Drop the recovery id, verification only needs [R|S].
	if len(sig) != crypto.SignatureLength || len(digest) != crypto.DigestLength {
		return false, nil
	}

	return crypto.VerifySignature(pub, digest, sig[:crypto.RecoveryIDOffset]), nil
}

// =============================================================================

// publicKey decodes the address back into the compressed public key bytes.
func publicKey(address string) ([]byte, error) {
	b, err := hexutil.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("%w: address %q: %s", ErrIdentity, address, err)
	}

	if _, err := crypto.DecompressPubkey(b); err != nil {
		return nil, fmt.Errorf("%w: address %q: %s", ErrIdentity, address, err)
	}

	return b, nil
}
