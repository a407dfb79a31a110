package keys

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Key uses as published in a JWKS.
const (
	UseSig = "sig"
	UseEnc = "enc"
)

// GenerateRSAKey generates a new RSA private JWK for the given use and algorithm
// (e.g. sig/RS256 or enc/RSA-OAEP-256).
func GenerateRSAKey(keyID, use, alg string, bits int) (jose.JSONWebKey, error) {
	if bits < 2048 {
		bits = 2048
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return jose.JSONWebKey{}, errors.Wrap(err, "failed to generate RSA key")
	}

	return newPrivateKey(privateKey, keyID, use, alg)
}

// GenerateECDSAKey generates a new P-256 private JWK for ES256 signing
func GenerateECDSAKey(keyID string) (jose.JSONWebKey, error) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return jose.JSONWebKey{}, errors.Wrap(err, "failed to generate ECDSA key")
	}

	return newPrivateKey(privateKey, keyID, UseSig, string(jose.ES256))
}

// NewSymmetricKey wraps a shared secret as an HMAC signing JWK. Symmetric keys
// are never published.
func NewSymmetricKey(keyID, alg string, secret []byte) jose.JSONWebKey {
	if keyID == "" {
		keyID = uuid.New().String()
	}
	return jose.JSONWebKey{Key: secret, KeyID: keyID, Algorithm: alg, Use: UseSig}
}

// LoadRSAKeyFromPEM loads a PKCS#1 RSA private key as a private JWK.
func LoadRSAKeyFromPEM(keyID, use, alg, pemData string) (jose.JSONWebKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return jose.JSONWebKey{}, errors.New("failed to decode PEM block")
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return jose.JSONWebKey{}, errors.Wrap(err, "failed to parse RSA private key")
	}

	return newPrivateKey(privateKey, keyID, use, alg)
}

// ExportRSAKeyPEM exports an RSA private JWK as PKCS#1 PEM.
func ExportRSAKeyPEM(key jose.JSONWebKey) (string, error) {
	rsaKey, ok := key.Key.(*rsa.PrivateKey)
	if !ok {
		return "", errors.New("private key is not RSA")
	}

	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(rsaKey),
	})), nil
}

func newPrivateKey(key crypto.PrivateKey, keyID, use, alg string) (jose.JSONWebKey, error) {
	jwk := jose.JSONWebKey{Key: key, KeyID: keyID, Algorithm: alg, Use: use}
	if jwk.KeyID == "" {
		thumbprint, err := jwk.Thumbprint(crypto.SHA256)
		if err != nil {
			return jose.JSONWebKey{}, errors.Wrap(err, "failed to compute key thumbprint")
		}
		jwk.KeyID = base64.RawURLEncoding.EncodeToString(thumbprint)
	}
	return jwk, nil
}
