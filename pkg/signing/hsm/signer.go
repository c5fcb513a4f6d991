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

// Package hsm implements the Signer contract on top of a PKCS#11 token.
//
// The private key never leaves the token: a Signer holds only the object
// id referencing it. Every Sign call opens its own session, authenticates
// through the configured SecretProvider, signs, and closes the session on
// every exit path. Sessions are not pooled; hardware concurrency limits
// are backend-specific, so callers wanting parallel signing use
// independent Signer instances.
package hsm

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/miekg/pkcs11"

	"github.com/NabeelShahid7/securesystemslib/internal/encoding"
	"github.com/NabeelShahid7/securesystemslib/pkg/hash"
	"github.com/NabeelShahid7/securesystemslib/pkg/keys"
	"github.com/NabeelShahid7/securesystemslib/pkg/logging"
	"github.com/NabeelShahid7/securesystemslib/pkg/signing"
)

// Scheme is the URI scheme this backend registers under. The addressing
// form is "hsm:<hex-object-id>"; a bare "hsm:" selects the configured
// default object id.
const Scheme = "hsm"

func init() {
	signing.Register(Scheme, NewFromURI)
}

// Signer signs with a private key held on a PKCS#11 token.
type Signer struct {
	cfg    Config
	keyID  []byte
	pub    *keys.PublicKey
	secret signing.SecretProvider
	logger logging.Logger
}

// Option adjusts optional Signer behavior.
type Option func(*Signer)

// WithLogger sets the logger used for debug output.
func WithLogger(logger logging.Logger) Option {
	return func(s *Signer) { s.logger = logger }
}

// NewSigner binds a token object id to its public key and a secret
// provider. Construction is pure value assembly: no driver is loaded and
// no I/O happens until Sign.
func NewSigner(cfg Config, keyID []byte, pub *keys.PublicKey, secret signing.SecretProvider, opts ...Option) (*Signer, error) {
	if len(keyID) == 0 {
		return nil, fmt.Errorf("empty HSM object id")
	}
	if pub == nil {
		return nil, fmt.Errorf("no public key given")
	}
	if _, err := keys.ParseScheme(pub.Scheme()); err != nil {
		return nil, err
	}
	if secret == nil {
		return nil, fmt.Errorf("no secret provider given")
	}
	s := &Signer{
		cfg:    cfg,
		keyID:  bytes.Clone(keyID),
		pub:    pub,
		secret: secret,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.EnsureLogger(s.logger)
	return s, nil
}

// NewFromURI is the registry factory for "hsm:" URIs. The remainder after
// the scheme is a hex object id; empty selects the configured default.
// Token configuration comes from the environment (see ConfigFromEnv).
func NewFromURI(uri string, pub *keys.PublicKey, secret signing.SecretProvider) (signing.Signer, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	keyID, err := parseURI(uri, cfg)
	if err != nil {
		return nil, err
	}
	return NewSigner(cfg, keyID, pub, secret)
}

// parseURI extracts the object id from "hsm:<hex-object-id>".
func parseURI(uri string, cfg Config) ([]byte, error) {
	scheme, rest, ok := strings.Cut(uri, ":")
	if !ok || scheme != Scheme {
		return nil, fmt.Errorf("%w: %q is not an hsm URI", signing.ErrUnsupportedURI, uri)
	}
	if rest == "" {
		return cfg.defaultKeyID()
	}
	keyID, err := hex.DecodeString(rest)
	if err != nil {
		return nil, fmt.Errorf("object id %q in URI is not valid hex: %w", rest, err)
	}
	return keyID, nil
}

// Public returns the public key paired with the token-held private key.
func (s *Signer) Public() *keys.PublicKey {
	return s.pub
}

// Sign signs data with the token-held private key.
//
// The call opens one session scoped to itself: negotiate the mechanism
// against the token's advertised set, digest locally if the token cannot,
// authenticate with the PIN from the SecretProvider, locate the private
// key by object id, and sign. The session closes on every path. Errors
// propagate as-is with cleanup already done; nothing is retried, since
// repeated authentication can lock a token.
func (s *Signer) Sign(data []byte) (*keys.Signature, error) {
	scheme, err := keys.ParseScheme(s.pub.Scheme())
	if err != nil {
		return nil, err
	}

	sess, err := openSession(s.cfg)
	if err != nil {
		return nil, err
	}
	defer sess.close()

	supported, err := sess.mechanisms()
	if err != nil {
		return nil, err
	}
	mech, err := resolveMechanism(scheme, supported)
	if err != nil {
		return nil, err
	}

	message := data
	if mech.prehash {
		s.logger.Debug("token lacks on-device %s, prehashing locally", scheme.DigestName)
		message, err = hash.Digest(scheme.DigestName, data)
		if err != nil {
			return nil, err
		}
	}

	pin, err := s.secret(fmt.Sprintf("user PIN for HSM slot %d", sess.slot))
	if err != nil {
		return nil, fmt.Errorf("failed to obtain secret: %w", err)
	}
	if err := sess.login(pin); err != nil {
		return nil, err
	}

	private, err := sess.findObject(s.keyID, pkcs11.CKO_PRIVATE_KEY)
	if err != nil {
		return nil, err
	}

	raw, err := sess.sign(private, mech.ckm, message)
	if err != nil {
		return nil, err
	}

	// Tokens emit raw r||s; re-pad to the scheme's canonical fixed width.
	sig, err := encoding.NormalizeRaw(raw, scheme.Curve)
	if err != nil {
		return nil, fmt.Errorf("token returned malformed signature: %w", err)
	}

	return &keys.Signature{KeyID: s.pub.KeyID(), Sig: sig}, nil
}
