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

// Package signing defines the polymorphic signer contract and the URI-based
// backend registry.
//
// Every key-storage backend (HSM, on-disk key file, ...) implements the same
// Signer interface and registers a factory under its URI scheme. Callers
// resolve a Signer with FromURI and never contain backend-specific logic.
package signing

import (
	"errors"

	"github.com/NabeelShahid7/securesystemslib/pkg/keys"
)

var (
	// ErrUnsupportedURI reports a signer URI whose scheme has no
	// registered backend.
	ErrUnsupportedURI = errors.New("unsupported signer URI")

	// ErrTokenNotPresent reports that no token occupies the requested slot.
	ErrTokenNotPresent = errors.New("token not present")

	// ErrKeyNotFound reports that a key object could not be located, or
	// that its identifier matched more than one object.
	ErrKeyNotFound = errors.New("key not found")

	// ErrAuthentication reports a rejected secret (wrong PIN or
	// passphrase). It is never retried here: retry and lockout policy
	// belong to the backend holding the key.
	ErrAuthentication = errors.New("authentication failed")
)

// Signer signs data with a securely-held private key.
//
// Implementations bind a reference to private material that never leaves
// its storage backend. A Signer is stateless across calls; backends that
// need a session acquire and release it inside Sign.
type Signer interface {
	// Sign creates a signature over data in the scheme's canonical wire
	// format. It blocks for the duration of any backend I/O and never
	// returns a partial signature.
	Sign(data []byte) (*keys.Signature, error)

	// Public returns the public key paired with the signing key.
	Public() *keys.PublicKey
}

// SecretProvider returns the secret named by description, e.g. the user PIN
// for a token or the passphrase for an encrypted key file. It is invoked
// synchronously at authentication time. No caching is performed here;
// providers may cache on their own.
type SecretProvider func(description string) (string, error)
