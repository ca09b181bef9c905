package didkey

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKeyPairRoundTrip(t *testing.T) {
	privPEM, pubPEM, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.True(t, HasPublicKeyMarker(pubPEM))

	priv, err := ParsePrivateKeyPEM(privPEM)
	require.NoError(t, err)
	pub, err := ParsePublicKeyPEM(pubPEM)
	require.NoError(t, err)
	assert.True(t, priv.PubKey().IsEqual(pub))
}

func TestSignVerify(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	msg := []byte("0000abc/example.com/first-post/deadbeef")

	sig := Sign(priv, msg)
	require.NoError(t, Verify(priv.PubKey(), msg, sig))

	assert.ErrorIs(t, Verify(priv.PubKey(), []byte("0000abc/example.com/first-post/deadbeee"), sig), ErrBadSignature)

	other, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	assert.ErrorIs(t, Verify(other.PubKey(), msg, sig), ErrBadSignature)

	assert.ErrorIs(t, Verify(priv.PubKey(), msg, []byte{0x30, 0x01}), ErrBadSignature)
}

func TestParsePublicKeyPEMWithSurroundingText(t *testing.T) {
	_, pubPEM, err := GenerateKeyPair()
	require.NoError(t, err)
	doc := append([]byte("# did key for example.com\n"), pubPEM...)

	_, err = ParsePublicKeyPEM(doc)
	assert.NoError(t, err)
}

func TestParsePublicKeyPEMErrors(t *testing.T) {
	_, err := ParsePublicKeyPEM([]byte("<html>not found</html>"))
	assert.ErrorIs(t, err, ErrNoPublicKey)

	broken := []byte("-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----\n")
	_, err = ParsePublicKeyPEM(broken)
	assert.ErrorIs(t, err, ErrUnsupportedKey)

	// P-256 keys are well-formed SPKI but on the wrong curve.
	p256, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&p256.PublicKey)
	require.NoError(t, err)
	_, err = ParsePublicKeyPEM(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	assert.ErrorIs(t, err, ErrUnsupportedKey)
}

func TestParsePrivateKeySEC1(t *testing.T) {
	priv, err := secp256k1.GeneratePrivateKey()
	require.NoError(t, err)
	der, err := asn1.Marshal(ecPrivateKey{Version: 1, PrivateKey: priv.Serialize(), NamedCurveOID: oidSecp256k1})
	require.NoError(t, err)

	got, err := ParsePrivateKeyPEM(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))
	require.NoError(t, err)
	assert.Equal(t, priv.Serialize(), got.Serialize())
}
