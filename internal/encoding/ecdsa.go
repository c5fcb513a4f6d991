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

// Package encoding converts between the ECDSA signature and key framings
// used by PKCS#11 tokens and the canonical wire forms carried across the
// signer boundary.
//
// The canonical signature form is the fixed-width big-endian r||s
// concatenation, where each half is as wide as the curve order in bytes.
// Go's crypto/ecdsa and most software stacks emit ASN.1 DER instead, and
// PKCS#11 tokens emit raw r||s that may lack leading zero padding, so both
// framings need normalization.
package encoding

import (
	"crypto/elliptic"
	"encoding/asn1"
	"fmt"
	"math/big"
)

// asn1Signature is the DER SEQUENCE { r INTEGER, s INTEGER } framing used by
// crypto/ecdsa.SignASN1 and X.509.
type asn1Signature struct {
	R, S *big.Int
}

// ElementSize returns the byte width of one signature half for the curve.
func ElementSize(curve elliptic.Curve) int {
	return (curve.Params().BitSize + 7) / 8
}

// RawFromASN1 converts a DER-encoded ECDSA signature into the canonical
// fixed-width r||s form for the given curve.
func RawFromASN1(der []byte, curve elliptic.Curve) ([]byte, error) {
	var sig asn1Signature
	rest, err := asn1.Unmarshal(der, &sig)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DER signature: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("trailing bytes after DER signature")
	}
	return rawFromInts(sig.R, sig.S, curve)
}

// ASN1FromRaw converts a canonical fixed-width r||s signature into DER.
func ASN1FromRaw(raw []byte, curve elliptic.Curve) ([]byte, error) {
	r, s, err := ParseRaw(raw, curve)
	if err != nil {
		return nil, err
	}
	der, err := asn1.Marshal(asn1Signature{R: r, S: s})
	if err != nil {
		return nil, fmt.Errorf("failed to encode DER signature: %w", err)
	}
	return der, nil
}

// NormalizeRaw re-pads a raw r||s signature, as returned by a PKCS#11 sign
// operation, to the canonical width for the curve. Most tokens already
// return each half at the full element width; some strip leading zeroes.
func NormalizeRaw(sig []byte, curve elliptic.Curve) ([]byte, error) {
	size := ElementSize(curve)
	if len(sig) == 0 || len(sig)%2 != 0 {
		return nil, fmt.Errorf("raw signature has invalid length %d", len(sig))
	}
	half := len(sig) / 2
	if half > size {
		return nil, fmt.Errorf("raw signature element width %d exceeds curve width %d", half, size)
	}
	r := new(big.Int).SetBytes(sig[:half])
	s := new(big.Int).SetBytes(sig[half:])
	return rawFromInts(r, s, curve)
}

// ParseRaw splits a canonical fixed-width r||s signature into its scalars.
func ParseRaw(raw []byte, curve elliptic.Curve) (r, s *big.Int, err error) {
	size := ElementSize(curve)
	if len(raw) != 2*size {
		return nil, nil, fmt.Errorf("signature length %d does not match curve width %d", len(raw), 2*size)
	}
	r = new(big.Int).SetBytes(raw[:size])
	s = new(big.Int).SetBytes(raw[size:])
	return r, s, nil
}

func rawFromInts(r, s *big.Int, curve elliptic.Curve) ([]byte, error) {
	size := ElementSize(curve)
	if r.BitLen() > 8*size || s.BitLen() > 8*size {
		return nil, fmt.Errorf("signature scalar too large for curve")
	}
	out := make([]byte, 2*size)
	r.FillBytes(out[:size])
	s.FillBytes(out[size:])
	return out, nil
}
