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

// Package hash provides digest construction by algorithm name.
//
// Schemes carry their digest algorithm as a string (e.g. the "sha2-256" in
// "ecdsa-sha2-nistp256" resolves to "sha256"), so signing and verification
// paths look digests up by name rather than importing hash packages
// directly.
package hash

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
)

// New returns a new hash.Hash for the named algorithm.
// Supported names: sha256, sha384, sha512, blake2b-256, blake2b-512.
func New(name string) (hash.Hash, error) {
	switch name {
	case "sha256":
		return sha256.New(), nil
	case "sha384":
		return sha512.New384(), nil
	case "sha512":
		return sha512.New(), nil
	case "blake2b-256":
		h, err := blake2b.New256(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to construct blake2b-256: %w", err)
		}
		return h, nil
	case "blake2b-512":
		h, err := blake2b.New512(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to construct blake2b-512: %w", err)
		}
		return h, nil
	}
	return nil, fmt.Errorf("unsupported hash algorithm %q", name)
}

// Digest computes the digest of data under the named algorithm.
func Digest(name string, data []byte) ([]byte, error) {
	h, err := New(name)
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Sum(nil), nil
}
