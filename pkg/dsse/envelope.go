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

// Package dsse provides utilities for working with Dead Simple Signing
// Envelope (DSSE) format.
//
// This package wraps the go-securesystemslib/dsse envelope type so that
// signing and verification run through the Signer and PublicKey contracts
// of this module. Signatures cover the pre-authentication encoding (PAE)
// of payload type and payload, per the DSSE spec.
package dsse

import (
	"encoding/base64"
	"fmt"

	dsse_lib "github.com/secure-systems-lab/go-securesystemslib/dsse"

	"github.com/NabeelShahid7/securesystemslib/pkg/keys"
	"github.com/NabeelShahid7/securesystemslib/pkg/signing"
)

// Envelope wraps a DSSE envelope with utility methods.
type Envelope struct {
	raw *dsse_lib.Envelope
}

// NewEnvelope creates an envelope wrapper from a raw envelope.
func NewEnvelope(raw *dsse_lib.Envelope) *Envelope {
	return &Envelope{raw: raw}
}

// SignEnvelope signs payload under payloadType with the given signer and
// returns a single-signature envelope. The signature covers the PAE of
// payload type and payload, and carries the signer's keyid.
func SignEnvelope(payloadType string, payload []byte, signer signing.Signer) (*Envelope, error) {
	sig, err := signer.Sign(dsse_lib.PAE(payloadType, payload))
	if err != nil {
		return nil, fmt.Errorf("failed to sign envelope: %w", err)
	}
	envelope := &dsse_lib.Envelope{
		Payload:     base64.StdEncoding.EncodeToString(payload),
		PayloadType: payloadType,
		Signatures: []dsse_lib.Signature{
			{
				Sig:   base64.StdEncoding.EncodeToString(sig.Sig),
				KeyID: sig.KeyID,
			},
		},
	}
	return &Envelope{raw: envelope}, nil
}

// VerifyEnvelope checks the envelope's signature against pub. A keyid
// recorded in the envelope must match the key's; an empty recorded keyid
// is accepted, since DSSE treats keyids as hints.
func (e *Envelope) VerifyEnvelope(pub *keys.PublicKey) error {
	if err := e.ValidateSignatureCount(); err != nil {
		return err
	}
	recorded := e.raw.Signatures[0].KeyID
	if recorded != "" && recorded != pub.KeyID() {
		return fmt.Errorf("envelope signed by keyid %s, not %s", recorded, pub.KeyID())
	}
	payload, err := e.DecodePayload()
	if err != nil {
		return err
	}
	sigBytes, err := e.DecodeSignature()
	if err != nil {
		return err
	}
	sig := &keys.Signature{KeyID: pub.KeyID(), Sig: sigBytes}
	return pub.Verify(sig, dsse_lib.PAE(e.raw.PayloadType, payload))
}

// ValidateSignatureCount checks that exactly one signature is present.
// Multi-signature envelopes are not supported.
func (e *Envelope) ValidateSignatureCount() error {
	if len(e.raw.Signatures) == 0 {
		return fmt.Errorf("no signatures found in envelope")
	}
	if len(e.raw.Signatures) > 1 {
		return fmt.Errorf("multiple signatures not supported")
	}
	return nil
}

// ValidatePayloadType checks that the DSSE payload matches the expected type.
func (e *Envelope) ValidatePayloadType(expectedType string) error {
	if e.raw.PayloadType != expectedType {
		return fmt.Errorf("expected DSSE payload %s, but got %s",
			expectedType, e.raw.PayloadType)
	}
	return nil
}

// DecodePayload decodes the base64-encoded DSSE payload.
func (e *Envelope) DecodePayload() ([]byte, error) {
	if e.raw.Payload == "" {
		return nil, fmt.Errorf("envelope payload is empty")
	}
	payloadBytes, err := base64.StdEncoding.DecodeString(e.raw.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return payloadBytes, nil
}

// DecodeSignature decodes the base64-encoded first signature. Call
// ValidateSignatureCount first to ensure exactly one signature exists.
func (e *Envelope) DecodeSignature() ([]byte, error) {
	if len(e.raw.Signatures) == 0 {
		return nil, fmt.Errorf("no signatures found in envelope")
	}
	sig := e.raw.Signatures[0].Sig
	if sig == "" {
		return nil, fmt.Errorf("signature is empty")
	}
	sigBytes, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", err)
	}
	return sigBytes, nil
}

// PayloadType returns the DSSE payload type.
func (e *Envelope) PayloadType() string {
	return e.raw.PayloadType
}

// RawEnvelope returns the underlying DSSE envelope for operations not
// covered by the Envelope methods.
func (e *Envelope) RawEnvelope() *dsse_lib.Envelope {
	return e.raw
}
