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

package hsm

import (
	"fmt"

	"github.com/miekg/pkcs11"

	"github.com/NabeelShahid7/securesystemslib/internal/encoding"
	"github.com/NabeelShahid7/securesystemslib/pkg/keys"
)

// ExportPublicKey reads the EC public key stored under hsmKeyID on the
// configured token. The portable keyid is whatever the caller passes in;
// an empty keyid derives one from the key material. The two ids are
// independent: hsmKeyID addresses an object on one physical token, keyid
// names the key wherever it travels.
//
// Public objects are readable without authentication, so no PIN is
// needed. The signing scheme is inferred from the object's curve
// parameters.
func ExportPublicKey(cfg Config, keyid string, hsmKeyID []byte) (*keys.PublicKey, error) {
	sess, err := openSession(cfg)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	obj, err := sess.findObject(hsmKeyID, pkcs11.CKO_PUBLIC_KEY)
	if err != nil {
		return nil, err
	}

	params, err := sess.attribute(obj, pkcs11.CKA_EC_PARAMS)
	if err != nil {
		return nil, err
	}
	curve, err := encoding.CurveFromECParams(params)
	if err != nil {
		return nil, fmt.Errorf("object %x: %w", hsmKeyID, err)
	}

	wrapped, err := sess.attribute(obj, pkcs11.CKA_EC_POINT)
	if err != nil {
		return nil, err
	}
	point, err := encoding.PointFromECPoint(wrapped, curve)
	if err != nil {
		return nil, fmt.Errorf("object %x: %w", hsmKeyID, err)
	}

	scheme, err := keys.SchemeForCurve(curve)
	if err != nil {
		return nil, err
	}
	if keyid == "" {
		return keys.NewPublicKey(scheme.Name, point)
	}
	return keys.NewPublicKeyWithID(keyid, scheme.Name, point)
}
