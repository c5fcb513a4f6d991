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

package keys

import (
	"crypto"
	"crypto/elliptic"
	"fmt"
)

// Scheme names the logical algorithm+curve+digest combination a key signs
// under, independent of any hardware mechanism identifier.
type Scheme struct {
	// Name is the scheme identifier carried on the wire, e.g. "ecdsa-sha2-nistp256".
	Name string
	// Curve is the elliptic curve the key lives on.
	Curve elliptic.Curve
	// Hash is the digest the scheme mandates for signing and verification.
	Hash crypto.Hash
	// DigestName is the hash algorithm by name, for lookup via pkg/hash.
	DigestName string
}

// Supported scheme identifiers.
const (
	SchemeECDSAP256 = "ecdsa-sha2-nistp256"
	SchemeECDSAP384 = "ecdsa-sha2-nistp384"
	SchemeECDSAP521 = "ecdsa-sha2-nistp521"
)

var schemes = map[string]Scheme{
	SchemeECDSAP256: {SchemeECDSAP256, elliptic.P256(), crypto.SHA256, "sha256"},
	SchemeECDSAP384: {SchemeECDSAP384, elliptic.P384(), crypto.SHA384, "sha384"},
	SchemeECDSAP521: {SchemeECDSAP521, elliptic.P521(), crypto.SHA512, "sha512"},
}

// ParseScheme resolves a scheme identifier to its curve and digest.
// Unknown identifiers fail with ErrUnsupportedScheme.
func ParseScheme(name string) (Scheme, error) {
	s, ok := schemes[name]
	if !ok {
		return Scheme{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, name)
	}
	return s, nil
}

// SchemeForCurve returns the scheme a key on the given curve signs under.
// There is exactly one scheme per supported curve, with the digest width
// matched to the curve size.
func SchemeForCurve(curve elliptic.Curve) (Scheme, error) {
	for _, s := range schemes {
		if s.Curve == curve {
			return s, nil
		}
	}
	return Scheme{}, fmt.Errorf("%w: no scheme for curve %s", ErrUnsupportedScheme, curve.Params().Name)
}
