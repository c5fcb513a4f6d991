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

	"github.com/NabeelShahid7/securesystemslib/pkg/keys"
)

// mechanism is the hardware operation selected for one signing call.
// Prehash means the token only offers the bare curve operation and the
// caller must digest the message locally before invoking it.
type mechanism struct {
	ckm     uint
	prehash bool
}

// combinedMechanisms maps a scheme's digest to the digest+sign mechanism
// performing the hash on the token.
var combinedMechanisms = map[string]uint{
	"sha256": pkcs11.CKM_ECDSA_SHA256,
	"sha384": pkcs11.CKM_ECDSA_SHA384,
	"sha512": pkcs11.CKM_ECDSA_SHA512,
}

// resolveMechanism negotiates the mechanism for a scheme against the set
// the token actually advertises. Real hardware typically offers the
// combined digest+sign mechanisms; compatibility tokens such as SoftHSM
// may expose only CKM_ECDSA, in which case the prehash path is selected.
// A scheme neither path can serve fails with ErrUnsupportedScheme.
func resolveMechanism(scheme keys.Scheme, supported map[uint]bool) (mechanism, error) {
	ckm, ok := combinedMechanisms[scheme.DigestName]
	if !ok {
		return mechanism{}, fmt.Errorf("%w: no mechanism for digest %s", keys.ErrUnsupportedScheme, scheme.DigestName)
	}
	if supported[ckm] {
		return mechanism{ckm: ckm}, nil
	}
	if supported[pkcs11.CKM_ECDSA] {
		return mechanism{ckm: pkcs11.CKM_ECDSA, prehash: true}, nil
	}
	return mechanism{}, fmt.Errorf("%w: token offers neither CKM 0x%08X nor CKM_ECDSA for %s",
		keys.ErrUnsupportedScheme, ckm, scheme.Name)
}
