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
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Signature is an opaque signature value in the scheme's canonical wire
// format. For ECDSA that is the fixed-width big-endian r||s concatenation,
// never the DER framing some backends produce natively.
type Signature struct {
	// KeyID names the public key the signature was produced under.
	KeyID string
	// Sig is the canonical signature encoding.
	Sig []byte
}

// signatureJSON is the wire representation: {keyid, sig: hex}.
type signatureJSON struct {
	KeyID string `json:"keyid"`
	Sig   string `json:"sig"`
}

// MarshalJSON implements json.Marshaler.
func (s *Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(signatureJSON{
		KeyID: s.KeyID,
		Sig:   hex.EncodeToString(s.Sig),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Signature) UnmarshalJSON(data []byte) error {
	var wire signatureJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("failed to unmarshal signature: %w", err)
	}
	sig, err := hex.DecodeString(wire.Sig)
	if err != nil {
		return fmt.Errorf("failed to decode signature bytes: %w", err)
	}
	s.KeyID = wire.KeyID
	s.Sig = sig
	return nil
}
