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

// Package file implements the Signer contract with a PEM-encoded private
// key on disk, addressed as "file:<path>". It exists mainly for tests and
// development setups where no hardware token is around.
package file

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"os"
	"strings"

	"github.com/sigstore/sigstore/pkg/cryptoutils"

	"github.com/NabeelShahid7/securesystemslib/internal/encoding"
	"github.com/NabeelShahid7/securesystemslib/pkg/hash"
	"github.com/NabeelShahid7/securesystemslib/pkg/keys"
	"github.com/NabeelShahid7/securesystemslib/pkg/signing"
)

// Scheme is the URI scheme this backend registers under.
const Scheme = "file"

func init() {
	signing.Register(Scheme, NewFromURI)
}

// Signer signs with an ECDSA private key loaded from a PEM file.
type Signer struct {
	key *ecdsa.PrivateKey
	pub *keys.PublicKey
}

// NewSigner wraps an in-memory ECDSA private key, checking that it matches
// the given public key.
func NewSigner(key *ecdsa.PrivateKey, pub *keys.PublicKey) (*Signer, error) {
	if key == nil {
		return nil, fmt.Errorf("no private key given")
	}
	if pub == nil {
		return nil, fmt.Errorf("no public key given")
	}
	cryptoPub, err := pub.CryptoKey()
	if err != nil {
		return nil, err
	}
	if !key.PublicKey.Equal(cryptoPub) {
		return nil, fmt.Errorf("private key does not match public key %s", pub.KeyID())
	}
	return &Signer{key: key, pub: pub}, nil
}

// NewFromURI is the registry factory for "file:" URIs. The remainder after
// the scheme is a filesystem path to a PEM-encoded private key. Encrypted
// keys obtain their passphrase through the SecretProvider.
func NewFromURI(uri string, pub *keys.PublicKey, secret signing.SecretProvider) (signing.Signer, error) {
	scheme, path, ok := strings.Cut(uri, ":")
	if !ok || scheme != Scheme {
		return nil, fmt.Errorf("%w: %q is not a file URI", signing.ErrUnsupportedURI, uri)
	}
	if path == "" {
		return nil, fmt.Errorf("%w: %q has no path", signing.ErrUnsupportedURI, uri)
	}
	key, err := loadPrivateKey(path, secret)
	if err != nil {
		return nil, err
	}
	return NewSigner(key, pub)
}

func loadPrivateKey(path string, secret signing.SecretProvider) (*ecdsa.PrivateKey, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var passFunc cryptoutils.PassFunc
	if secret != nil {
		passFunc = func(_ bool) ([]byte, error) {
			pass, err := secret(fmt.Sprintf("passphrase for key file %s", path))
			if err != nil {
				return nil, err
			}
			return []byte(pass), nil
		}
	}

	privKey, err := cryptoutils.UnmarshalPEMToPrivateKey(pemBytes, passFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := privKey.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key file %s does not hold an ECDSA private key", path)
	}
	return key, nil
}

// Public returns the public key paired with the private key.
func (s *Signer) Public() *keys.PublicKey {
	return s.pub
}

// Sign digests data per the key's scheme and signs the digest. Go's ECDSA
// emits ASN.1 DER; the signature is converted to the canonical fixed-width
// form before returning.
func (s *Signer) Sign(data []byte) (*keys.Signature, error) {
	scheme, err := keys.ParseScheme(s.pub.Scheme())
	if err != nil {
		return nil, err
	}
	digest, err := hash.Digest(scheme.DigestName, data)
	if err != nil {
		return nil, err
	}
	der, err := s.key.Sign(rand.Reader, digest, crypto.Hash(0))
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}
	sig, err := encoding.RawFromASN1(der, scheme.Curve)
	if err != nil {
		return nil, err
	}
	return &keys.Signature{KeyID: s.pub.KeyID(), Sig: sig}, nil
}
