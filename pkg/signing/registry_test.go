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

package signing

import (
	"errors"
	"testing"

	"github.com/NabeelShahid7/securesystemslib/pkg/keys"
)

type fakeSigner struct {
	uri string
	pub *keys.PublicKey
}

func (s *fakeSigner) Sign(_ []byte) (*keys.Signature, error) {
	return &keys.Signature{}, nil
}

func (s *fakeSigner) Public() *keys.PublicKey { return s.pub }

func TestFromURIDispatch(t *testing.T) {
	Register("fake", func(uri string, pub *keys.PublicKey, _ SecretProvider) (Signer, error) {
		return &fakeSigner{uri: uri, pub: pub}, nil
	})

	signer, err := FromURI("fake:whatever", nil, nil)
	if err != nil {
		t.Fatalf("FromURI failed: %v", err)
	}
	fake, ok := signer.(*fakeSigner)
	if !ok {
		t.Fatalf("Expected fakeSigner, got %T", signer)
	}
	if fake.uri != "fake:whatever" {
		t.Errorf("Expected factory to receive the full URI, got %q", fake.uri)
	}

	// Only the prefix before the first colon selects the backend.
	if _, err := FromURI("fake:a:b:c", nil, nil); err != nil {
		t.Errorf("FromURI failed on URI with extra colons: %v", err)
	}
}

func TestFromURIUnsupported(t *testing.T) {
	tests := []struct {
		name string
		uri  string
	}{
		{"unregistered scheme", "nosuch:key"},
		{"no colon", "hsm"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromURI(tt.uri, nil, nil)
			if !errors.Is(err, ErrUnsupportedURI) {
				t.Errorf("Expected ErrUnsupportedURI, got %v", err)
			}
		})
	}
}

func TestRegisterPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic on duplicate registration")
		}
	}()
	Register("dup", func(string, *keys.PublicKey, SecretProvider) (Signer, error) { return nil, nil })
	Register("dup", func(string, *keys.PublicKey, SecretProvider) (Signer, error) { return nil, nil })
}
