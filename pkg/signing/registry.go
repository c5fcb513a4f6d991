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
	"fmt"
	"strings"
	"sync"

	"github.com/NabeelShahid7/securesystemslib/pkg/keys"
)

// Factory constructs a backend Signer from a full signer URI, the public
// key it must pair with, and a SecretProvider for authentication secrets.
// The text after the scheme prefix is backend-specific addressing.
type Factory func(uri string, pub *keys.PublicKey, secret SecretProvider) (Signer, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend factory available under the given URI scheme.
// Backends call this from init, the way database/sql drivers register
// themselves; importing a backend package is what enables its scheme.
// Registering a duplicate scheme panics, since it indicates two backends
// fighting over the same prefix at process start.
func Register(scheme string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("signing: Register with nil factory")
	}
	if _, dup := registry[scheme]; dup {
		panic("signing: Register called twice for scheme " + scheme)
	}
	registry[scheme] = factory
}

// FromURI resolves the backend named by the URI's scheme prefix (the text
// before ':') and asks it to construct a Signer for the key. Unregistered
// schemes fail with ErrUnsupportedURI.
func FromURI(uri string, pub *keys.PublicKey, secret SecretProvider) (Signer, error) {
	scheme, _, ok := strings.Cut(uri, ":")
	if !ok {
		return nil, fmt.Errorf("%w: %q has no scheme prefix", ErrUnsupportedURI, uri)
	}

	registryMu.RLock()
	factory, ok := registry[scheme]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no backend registered for scheme %q", ErrUnsupportedURI, scheme)
	}

	return factory(uri, pub, secret)
}
