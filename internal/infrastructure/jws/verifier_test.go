package jws

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"testing"

	"github.com/go-jose/go-jose/v4"
)

func newRSAVerifier(t *testing.T) (*rsa.PrivateKey, *Verifier) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	v, err := NewVerifier(marshalPublicKey(t, &priv.PublicKey))
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	return priv, v
}

func marshalPublicKey(t *testing.T, pub any) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("failed to marshal public key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

func signDetached(t *testing.T, key any, alg jose.SignatureAlgorithm, body []byte) string {
	t.Helper()
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, nil)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	obj, err := signer.Sign(body)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	sig, err := obj.DetachedCompactSerialize()
	if err != nil {
		t.Fatalf("failed to serialize detached: %v", err)
	}
	return sig
}

func TestVerifyValidDetachedRS256(t *testing.T) {
	body := []byte(`{"consentId":"c-1","status":"ACTIVE"}`)
	priv, v := newRSAVerifier(t)

	sig := signDetached(t, priv, jose.RS256, body)
	if err := v.Verify(sig, body); err != nil {
		t.Errorf("Verify() error = %v, want nil", err)
	}
}

func TestVerifyValidDetachedES256(t *testing.T) {
	body := []byte(`{"consentId":"c-1"}`)
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate ECDSA key: %v", err)
	}
	v, err := NewVerifier(marshalPublicKey(t, &priv.PublicKey))
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}

	sig := signDetached(t, priv, jose.ES256, body)
	if err := v.Verify(sig, body); err != nil {
		t.Errorf("Verify() error = %v, want nil", err)
	}
}

func TestVerifyTamperedBody(t *testing.T) {
	body := []byte(`{"consentId":"c-1","status":"ACTIVE"}`)
	priv, v := newRSAVerifier(t)
	sig := signDetached(t, priv, jose.RS256, body)

	tampered := []byte(`{"consentId":"c-1","status":"REVOKED"}`)
	if err := v.Verify(sig, tampered); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("Verify() error = %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifyReserializedBodyFails(t *testing.T) {
	// Semantically identical JSON with different whitespace must fail:
	// the signature covers the exact wire bytes.
	body := []byte(`{"consentId":"c-1"}`)
	priv, v := newRSAVerifier(t)
	sig := signDetached(t, priv, jose.RS256, body)

	reserialized := []byte(`{ "consentId": "c-1" }`)
	if err := v.Verify(sig, reserialized); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("Verify() error = %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifyWrongKey(t *testing.T) {
	body := []byte(`{"consentId":"c-1"}`)
	priv, _ := newRSAVerifier(t)
	_, other := newRSAVerifier(t)

	sig := signDetached(t, priv, jose.RS256, body)
	if err := other.Verify(sig, body); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("Verify() error = %v, want ErrSignatureInvalid", err)
	}
}

func TestVerifyMissingSignature(t *testing.T) {
	_, v := newRSAVerifier(t)
	if err := v.Verify("", []byte("{}")); !errors.Is(err, ErrMissingSignature) {
		t.Errorf("Verify() error = %v, want ErrMissingSignature", err)
	}
}

func TestVerifyEmptyBody(t *testing.T) {
	priv, v := newRSAVerifier(t)
	sig := signDetached(t, priv, jose.RS256, []byte(`{"consentId":"c-1"}`))

	if err := v.Verify(sig, nil); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("Verify(sig, nil) error = %v, want ErrEmptyBody", err)
	}
	if err := v.Verify(sig, []byte{}); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("Verify(sig, empty) error = %v, want ErrEmptyBody", err)
	}
}

func TestVerifyMalformedSignature(t *testing.T) {
	priv, v := newRSAVerifier(t)
	body := []byte(`{"consentId":"c-1"}`)

	// A non-detached compact JWS carries the payload in the middle
	// segment and must be rejected before any crypto runs.
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.RS256, Key: priv}, nil)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}
	obj, err := signer.Sign(body)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	attached, err := obj.CompactSerialize()
	if err != nil {
		t.Fatalf("failed to serialize: %v", err)
	}

	tests := []struct {
		name string
		sig  string
	}{
		{"two segments", "abc.def"},
		{"four segments", "a.b.c.d"},
		{"non-empty payload segment", attached},
		{"garbage header", "!!notbase64!!..c2ln"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := v.Verify(tt.sig, body); !errors.Is(err, ErrMalformedSignature) {
				t.Errorf("Verify(%q) error = %v, want ErrMalformedSignature", tt.sig, err)
			}
		})
	}
}

func TestVerifyUnsupportedAlgorithm(t *testing.T) {
	_, v := newRSAVerifier(t)
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256"}`))
	sig := header + ".." + base64.RawURLEncoding.EncodeToString([]byte("sig"))

	if err := v.Verify(sig, []byte("{}")); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("Verify() error = %v, want ErrUnsupportedAlgorithm", err)
	}
}

func TestVerifyUnencodedPayload(t *testing.T) {
	// b64:false mode: the raw body bytes go into the signing input directly.
	priv, v := newRSAVerifier(t)
	body := []byte(`{"consentId":"c-1","status":"ACTIVE"}`)

	protected := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256","b64":false,"crit":["b64"]}`))
	signingInput := append([]byte(protected+"."), body...)
	digest := sha256.Sum256(signingInput)
	rawSig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	sig := protected + ".." + base64.RawURLEncoding.EncodeToString(rawSig)

	if err := v.Verify(sig, body); err != nil {
		t.Errorf("Verify() error = %v, want nil", err)
	}

	tampered := []byte(`{"consentId":"c-2","status":"ACTIVE"}`)
	if err := v.Verify(sig, tampered); !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("Verify() with tampered body error = %v, want ErrSignatureInvalid", err)
	}
}

func TestInsecureVerifierAcceptsAnything(t *testing.T) {
	v := NewInsecureVerifier()
	if err := v.Verify("", []byte("{}")); err != nil {
		t.Errorf("insecure Verify() error = %v, want nil", err)
	}
	if err := v.Verify("garbage", nil); err != nil {
		t.Errorf("insecure Verify() error = %v, want nil", err)
	}
}

func TestNewVerifierRejectsBadKeys(t *testing.T) {
	if _, err := NewVerifier(nil); !errors.Is(err, ErrNoPublicKey) {
		t.Errorf("NewVerifier(nil) error = %v, want ErrNoPublicKey", err)
	}
	if _, err := NewVerifier([]byte("not pem at all")); !errors.Is(err, ErrNoPublicKey) {
		t.Errorf("NewVerifier(garbage) error = %v, want ErrNoPublicKey", err)
	}
}
