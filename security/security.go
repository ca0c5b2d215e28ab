// Package security provides the cryptographic primitives shared by the
// identity and JWT-builder packages: RSA-3072 key generation, RSA-PSS
// signing, SHA-256 hashing, and a CSPRNG byte source.
package security

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"math/big"

	"github.com/mindconnect/mcl-go/mclerr"
)

// RsaKeyBits is the modulus size the platform requires for the Rsa3072
// security profile.
const RsaKeyBits = 3072

// GenerateRSAKeyPair creates a new RSA key pair of RsaKeyBits size. The
// identity context calls it at initialization when no key was loaded and
// again on every rekey, replacing the previous pair.
func GenerateRSAKeyPair() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, RsaKeyBits)
	if err != nil {
		return nil, mclerr.Wrap(mclerr.OutOfMemory, "generate RSA key pair", err)
	}
	return key, nil
}

// SignPSS signs digest (already SHA-256'd by the caller) with key using
// RSA-PSS and a salt length equal to the hash size, matching the
// platform's JWS signing requirement for the Rsa3072 profile.
func SignPSS(key *rsa.PrivateKey, digest []byte) ([]byte, error) {
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return nil, mclerr.Wrap(mclerr.Fail, "sign with RSA-PSS", err)
	}
	return sig, nil
}

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, mclerr.Wrap(mclerr.Fail, "read random bytes", err)
	}
	return buf, nil
}

// ModulusAndExponent returns the base64url-encoded, unpadded modulus ("n")
// and public exponent ("e") of pub, the form the Rsa3072 profile embeds as
// a JWK in its registration request body.
func ModulusAndExponent(pub *rsa.PublicKey) (n string, e string) {
	n = base64.RawURLEncoding.EncodeToString(pub.N.Bytes())
	e = base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())
	return n, e
}

// EncodePrivateKeyPEM PKCS#1-encodes and PEM-wraps key, the RSA analogue
// of cluster/ca.go's writeKeyPEM helper.
func EncodePrivateKeyPEM(key *rsa.PrivateKey) string {
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return string(pem.EncodeToMemory(block))
}

// EncodePublicKeyPEM PKCS#1-encodes and PEM-wraps pub.
func EncodePublicKeyPEM(pub *rsa.PublicKey) string {
	block := &pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(pub)}
	return string(pem.EncodeToMemory(block))
}

// DecodePrivateKeyPEM parses a PKCS#1 PEM-encoded RSA private key, the
// inverse of EncodePrivateKeyPEM, used when credentials are loaded back
// from a store.
func DecodePrivateKeyPEM(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, mclerr.New(mclerr.ImproperCertificate, "decode RSA private key PEM")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, mclerr.Wrap(mclerr.ImproperCertificate, "parse RSA private key", err)
	}
	return key, nil
}
