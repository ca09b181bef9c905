// Package didkey reads and writes the secp256k1 keys a domain publishes at
// /did.pem and verifies the DER signatures made with them.
//
// crypto/x509 does not know the secp256k1 curve, so the SubjectPublicKeyInfo
// and PKCS#8 envelopes are handled here with encoding/asn1 while the curve
// math is delegated to decred's secp256k1 package.
package didkey

import (
	"bytes"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

const (
	pemPublicKey    = "PUBLIC KEY"
	pemPrivateKey   = "PRIVATE KEY"
	pemECPrivateKey = "EC PRIVATE KEY"
)

var (
	oidPublicKeyEC = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1   = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

var (
	// ErrNoPublicKey means the document carries no PEM public key block.
	ErrNoPublicKey = errors.New("didkey: no PEM public key found")
	// ErrUnsupportedKey means the key is not an EC key on secp256k1.
	ErrUnsupportedKey = errors.New("didkey: key is not a secp256k1 EC key")
	// ErrBadSignature means the signature does not verify against the key.
	ErrBadSignature = errors.New("didkey: signature verification failed")
)

type algorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier `asn1:"optional"`
}

type subjectPublicKeyInfo struct {
	Algorithm algorithmIdentifier
	PublicKey asn1.BitString
}

type pkcs8 struct {
	Version    int
	Algorithm  algorithmIdentifier
	PrivateKey []byte
}

type ecPrivateKey struct {
	Version       int
	PrivateKey    []byte
	NamedCurveOID asn1.ObjectIdentifier `asn1:"optional,explicit,tag:0"`
	PublicKey     asn1.BitString        `asn1:"optional,explicit,tag:1"`
}

// HasPublicKeyMarker reports whether data contains a PEM public key header.
func HasPublicKeyMarker(data []byte) bool {
	return bytes.Contains(data, []byte("-----BEGIN "+pemPublicKey+"-----"))
}

// ParsePublicKeyPEM extracts the first "PUBLIC KEY" block from data and
// decodes it as a secp256k1 SubjectPublicKeyInfo.
func ParsePublicKeyPEM(data []byte) (*secp256k1.PublicKey, error) {
	if !HasPublicKeyMarker(data) {
		return nil, ErrNoPublicKey
	}
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, ErrNoPublicKey
		}
		if block.Type == pemPublicKey {
			return ParsePublicKeyDER(block.Bytes)
		}
	}
}

// ParsePublicKeyDER decodes a DER SubjectPublicKeyInfo.
func ParsePublicKeyDER(der []byte) (*secp256k1.PublicKey, error) {
	var spki subjectPublicKeyInfo
	rest, err := asn1.Unmarshal(der, &spki)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedKey, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing data", ErrUnsupportedKey)
	}
	if !spki.Algorithm.Algorithm.Equal(oidPublicKeyEC) || !spki.Algorithm.Parameters.Equal(oidSecp256k1) {
		return nil, ErrUnsupportedKey
	}
	pub, err := secp256k1.ParsePubKey(spki.PublicKey.RightAlign())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedKey, err)
	}
	return pub, nil
}

// MarshalPublicKeyPEM encodes pub as an uncompressed SPKI "PUBLIC KEY" block.
func MarshalPublicKeyPEM(pub *secp256k1.PublicKey) ([]byte, error) {
	point := pub.SerializeUncompressed()
	der, err := asn1.Marshal(subjectPublicKeyInfo{
		Algorithm: algorithmIdentifier{Algorithm: oidPublicKeyEC, Parameters: oidSecp256k1},
		PublicKey: asn1.BitString{Bytes: point, BitLength: len(point) * 8},
	})
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemPublicKey, Bytes: der}), nil
}

// MarshalPrivateKeyPEM encodes priv as a PKCS#8 "PRIVATE KEY" block.
func MarshalPrivateKeyPEM(priv *secp256k1.PrivateKey) ([]byte, error) {
	point := priv.PubKey().SerializeUncompressed()
	inner, err := asn1.Marshal(ecPrivateKey{
		Version:    1,
		PrivateKey: priv.Serialize(),
		PublicKey:  asn1.BitString{Bytes: point, BitLength: len(point) * 8},
	})
	if err != nil {
		return nil, err
	}
	der, err := asn1.Marshal(pkcs8{
		Algorithm:  algorithmIdentifier{Algorithm: oidPublicKeyEC, Parameters: oidSecp256k1},
		PrivateKey: inner,
	})
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemPrivateKey, Bytes: der}), nil
}

// ParsePrivateKeyPEM accepts PKCS#8 "PRIVATE KEY" and SEC1 "EC PRIVATE KEY" blocks.
func ParsePrivateKeyPEM(data []byte) (*secp256k1.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("didkey: no PEM block found")
	}
	switch block.Type {
	case pemPrivateKey:
		var p pkcs8
		if _, err := asn1.Unmarshal(block.Bytes, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedKey, err)
		}
		if !p.Algorithm.Algorithm.Equal(oidPublicKeyEC) || !p.Algorithm.Parameters.Equal(oidSecp256k1) {
			return nil, ErrUnsupportedKey
		}
		return parseECPrivateKey(p.PrivateKey)
	case pemECPrivateKey:
		return parseECPrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("didkey: unexpected PEM block %q", block.Type)
	}
}

func parseECPrivateKey(der []byte) (*secp256k1.PrivateKey, error) {
	var k ecPrivateKey
	if _, err := asn1.Unmarshal(der, &k); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedKey, err)
	}
	if len(k.NamedCurveOID) > 0 && !k.NamedCurveOID.Equal(oidSecp256k1) {
		return nil, ErrUnsupportedKey
	}
	if len(k.PrivateKey) == 0 || len(k.PrivateKey) > 32 {
		return nil, fmt.Errorf("%w: bad private scalar length %d", ErrUnsupportedKey, len(k.PrivateKey))
	}
	return secp256k1.PrivKeyFromBytes(k.PrivateKey), nil
}

// GenerateKeyPair returns a fresh key pair as (private PKCS#8 PEM, public SPKI PEM).
func GenerateKeyPair() (privPEM, pubPEM []byte, err error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, err
	}
	if privPEM, err = MarshalPrivateKeyPEM(priv); err != nil {
		return nil, nil, err
	}
	if pubPEM, err = MarshalPublicKeyPEM(priv.PubKey()); err != nil {
		return nil, nil, err
	}
	return privPEM, pubPEM, nil
}

// Sign hashes msg with SHA-256 and returns the DER encoded signature.
func Sign(priv *secp256k1.PrivateKey, msg []byte) []byte {
	digest := sha256.Sum256(msg)
	return ecdsa.Sign(priv, digest[:]).Serialize()
}

// Verify checks a DER signature over SHA-256(msg).
func Verify(pub *secp256k1.PublicKey, msg, sig []byte) error {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	digest := sha256.Sum256(msg)
	if !parsed.Verify(digest[:], pub) {
		return ErrBadSignature
	}
	return nil
}
