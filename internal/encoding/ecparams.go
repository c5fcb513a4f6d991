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

package encoding

import (
	"crypto/elliptic"
	"encoding/asn1"
	"fmt"
)

// Named-curve OIDs from RFC 5480. These are the DER payloads tokens carry
// in CKA_EC_PARAMS for named curves.
var (
	oidNamedCurveP256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 3, 1, 7}
	oidNamedCurveP384 = asn1.ObjectIdentifier{1, 3, 132, 0, 34}
	oidNamedCurveP521 = asn1.ObjectIdentifier{1, 3, 132, 0, 35}
)

// ECParams returns the DER-encoded named-curve OID for the given curve,
// suitable for a CKA_EC_PARAMS attribute.
func ECParams(curve elliptic.Curve) ([]byte, error) {
	oid, err := curveOID(curve)
	if err != nil {
		return nil, err
	}
	der, err := asn1.Marshal(oid)
	if err != nil {
		return nil, fmt.Errorf("failed to encode curve OID: %w", err)
	}
	return der, nil
}

// CurveFromECParams maps a CKA_EC_PARAMS attribute value back to a curve.
// Only named curves are supported; explicit domain parameters are not.
func CurveFromECParams(der []byte) (elliptic.Curve, error) {
	var oid asn1.ObjectIdentifier
	if _, err := asn1.Unmarshal(der, &oid); err != nil {
		return nil, fmt.Errorf("failed to parse EC parameters: %w", err)
	}
	switch {
	case oid.Equal(oidNamedCurveP256):
		return elliptic.P256(), nil
	case oid.Equal(oidNamedCurveP384):
		return elliptic.P384(), nil
	case oid.Equal(oidNamedCurveP521):
		return elliptic.P521(), nil
	}
	return nil, fmt.Errorf("unsupported named curve OID %v", oid)
}

// PointFromECPoint unwraps a CKA_EC_POINT attribute value into the
// uncompressed SEC 1 point bytes for the given curve. PKCS#11 specifies
// the point as a DER OCTET STRING, but some tokens return the bare point.
// A bare point's leading 0x04 doubles as the OCTET STRING tag, so the two
// framings are told apart by the curve's expected point width rather than
// by whether the DER parse happens to succeed.
func PointFromECPoint(value []byte, curve elliptic.Curve) ([]byte, error) {
	if len(value) == 0 {
		return nil, fmt.Errorf("empty EC point attribute")
	}
	want := 1 + 2*ElementSize(curve)

	var wrapped []byte
	if rest, err := asn1.Unmarshal(value, &wrapped); err == nil && len(rest) == 0 &&
		len(wrapped) == want && wrapped[0] == 4 {
		return wrapped, nil
	}
	if len(value) == want && value[0] == 4 {
		return value, nil
	}
	return nil, fmt.Errorf("EC point attribute is neither a DER-wrapped nor a bare uncompressed %s point", curve.Params().Name)
}

func curveOID(curve elliptic.Curve) (asn1.ObjectIdentifier, error) {
	switch curve {
	case elliptic.P256():
		return oidNamedCurveP256, nil
	case elliptic.P384():
		return oidNamedCurveP384, nil
	case elliptic.P521():
		return oidNamedCurveP521, nil
	}
	return nil, fmt.Errorf("unsupported curve %s", curve.Params().Name)
}
