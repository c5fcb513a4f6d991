// Copyright 2025 The Secure Systems Lab Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package keys provides the public-key and signature value types carried
// across the signer boundary.
//
// A PublicKey is an immutable (keyid, scheme, key material) triple.
// Verification lives here, on the public side, so that signatures can be
// checked without any hardware or secret access.
package keys

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sigstore/sigstore/pkg/cryptoutils"

	"github.com/NabeelShahid7/securesystemslib/internal/encoding"
	"github.com/NabeelShahid7/securesystemslib/pkg/hash"
)

var (
	// ErrUnverifiedSignature reports that a signature failed cryptographic
	// verification against the given data. This is a routine negative
	// outcome, not a malfunction; callers handle it like a false result.
	ErrUnverifiedSignature = errors.New("signature verification failed")

	// ErrUnsupportedScheme reports a scheme identifier naming a curve or
	// digest combination the implementation cannot perform.
	ErrUnsupportedScheme = errors.New("unsupported signing scheme")
)

// PublicKey is an immutable public-key value.
//
// The keyid is a portable, content-derived identifier: when not supplied by
// the caller it is the SHA-256 hex digest of the canonical serialization of
// (scheme, key material), and it survives export/import round trips
// unchanged. It is deliberately decoupled from any backend-local object id.
type PublicKey struct {
	keyID  string
	scheme string
	point  []byte
}

// NewPublicKey constructs a PublicKey from a scheme identifier and the
// uncompressed SEC 1 point bytes, deriving the keyid from the content.
func NewPublicKey(scheme string, point []byte) (*PublicKey, error) {
	keyID, err := computeKeyID(scheme, point)
	if err != nil {
		return nil, err
	}
	return NewPublicKeyWithID(keyID, scheme, point)
}

// NewPublicKeyWithID constructs a PublicKey with a caller-supplied portable
// keyid. The keyid must be a 64-character hex digest.
func NewPublicKeyWithID(keyID, scheme string, point []byte) (*PublicKey, error) {
	if err := validateKeyID(keyID); err != nil {
		return nil, err
	}
	s, err := ParseScheme(scheme)
	if err != nil {
		return nil, err
	}
	if x, _ := elliptic.Unmarshal(s.Curve, point); x == nil {
		return nil, fmt.Errorf("public key material is not a valid point on %s", s.Curve.Params().Name)
	}
	return &PublicKey{
		keyID:  keyID,
		scheme: scheme,
		point:  bytes.Clone(point),
	}, nil
}

// FromCryptoKey constructs a PublicKey from a Go ECDSA public key, selecting
// the scheme from the curve and deriving the keyid.
func FromCryptoKey(pub *ecdsa.PublicKey) (*PublicKey, error) {
	s, err := SchemeForCurve(pub.Curve)
	if err != nil {
		return nil, err
	}
	point := elliptic.Marshal(pub.Curve, pub.X, pub.Y)
	return NewPublicKey(s.Name, point)
}

// FromPEM constructs a PublicKey from a PEM-encoded PKIX public key.
func FromPEM(pemBytes []byte) (*PublicKey, error) {
	pub, err := cryptoutils.UnmarshalPEMToPublicKey(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PEM public key: %w", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: key type %T", ErrUnsupportedScheme, pub)
	}
	return FromCryptoKey(ecPub)
}

// KeyID returns the portable key identifier.
func (k *PublicKey) KeyID() string { return k.keyID }

// Scheme returns the scheme identifier, e.g. "ecdsa-sha2-nistp384".
func (k *PublicKey) Scheme() string { return k.scheme }

// Point returns a copy of the uncompressed SEC 1 point bytes.
func (k *PublicKey) Point() []byte { return bytes.Clone(k.point) }

// CryptoKey returns the key as a Go ECDSA public key.
func (k *PublicKey) CryptoKey() (*ecdsa.PublicKey, error) {
	s, err := ParseScheme(k.scheme)
	if err != nil {
		return nil, err
	}
	x, y := elliptic.Unmarshal(s.Curve, k.point)
	if x == nil {
		return nil, fmt.Errorf("public key material is not a valid point on %s", s.Curve.Params().Name)
	}
	return &ecdsa.PublicKey{Curve: s.Curve, X: x, Y: y}, nil
}

// PEM returns the key as a PEM-encoded PKIX public key.
func (k *PublicKey) PEM() ([]byte, error) {
	pub, err := k.CryptoKey()
	if err != nil {
		return nil, err
	}
	pemBytes, err := cryptoutils.MarshalPublicKeyToPEM(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key to PEM: %w", err)
	}
	return pemBytes, nil
}

// Verify checks sig over data. It returns nil on success and an error
// wrapping ErrUnverifiedSignature when the signature does not match; any
// other error class indicates malformed inputs, not a verification result.
//
// Verification needs no secret or hardware access.
func (k *PublicKey) Verify(sig *Signature, data []byte) error {
	if sig == nil {
		return fmt.Errorf("no signature given")
	}
	s, err := ParseScheme(k.scheme)
	if err != nil {
		return err
	}
	pub, err := k.CryptoKey()
	if err != nil {
		return err
	}
	digest, err := hash.Digest(s.DigestName, data)
	if err != nil {
		return err
	}
	r, sv, err := encoding.ParseRaw(sig.Sig, s.Curve)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnverifiedSignature, err)
	}
	if !ecdsa.Verify(pub, digest, r, sv) {
		return fmt.Errorf("%w for keyid %s", ErrUnverifiedSignature, k.keyID)
	}
	return nil
}

// publicKeyJSON is the wire representation:
// {keyid, scheme, keyval: {public: hex point}}.
type publicKeyJSON struct {
	KeyID  string     `json:"keyid"`
	Scheme string     `json:"scheme"`
	KeyVal keyValJSON `json:"keyval"`
}

type keyValJSON struct {
	Public string `json:"public"`
}

// MarshalJSON implements json.Marshaler.
func (k *PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(publicKeyJSON{
		KeyID:  k.keyID,
		Scheme: k.scheme,
		KeyVal: keyValJSON{Public: hex.EncodeToString(k.point)},
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (k *PublicKey) UnmarshalJSON(data []byte) error {
	var wire publicKeyJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("failed to unmarshal public key: %w", err)
	}
	point, err := hex.DecodeString(wire.KeyVal.Public)
	if err != nil {
		return fmt.Errorf("failed to decode public key material: %w", err)
	}
	parsed, err := NewPublicKeyWithID(wire.KeyID, wire.Scheme, point)
	if err != nil {
		return err
	}
	*k = *parsed
	return nil
}

// computeKeyID derives the content-addressed keyid: the SHA-256 hex digest
// of the canonical serialization of (scheme, key material). The canonical
// form is JSON with lexically ordered fields and no insignificant
// whitespace, written out literally so the derivation cannot drift with
// encoder behavior.
func computeKeyID(scheme string, point []byte) (string, error) {
	if _, err := ParseScheme(scheme); err != nil {
		return "", err
	}
	canonical := fmt.Sprintf(`{"keyval":{"public":"%s"},"scheme":"%s"}`,
		hex.EncodeToString(point), scheme)
	digest := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(digest[:]), nil
}

func validateKeyID(keyID string) error {
	if len(keyID) != 2*sha256.Size {
		return fmt.Errorf("keyid must be a %d-character hex digest, got %d characters", 2*sha256.Size, len(keyID))
	}
	if _, err := hex.DecodeString(keyID); err != nil {
		return fmt.Errorf("keyid is not valid hex: %w", err)
	}
	return nil
}
