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
	"crypto/elliptic"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/miekg/pkcs11"

	"github.com/NabeelShahid7/securesystemslib/internal/encoding"
	"github.com/NabeelShahid7/securesystemslib/pkg/keys"
	"github.com/NabeelShahid7/securesystemslib/pkg/signing"
)

const (
	testTokenLabel = "hsm-test-token"
	testSOPIN      = "12345678"
	testUserPIN    = "123456"
)

// setupSoftHSM provisions a fresh SoftHSM token in a temp directory with a
// P-256 key under object id 01 and a P-384 key under object id 02. Tests
// needing real hardware behavior run against it; without the HSM_MODULE
// environment variable they are skipped.
func setupSoftHSM(t *testing.T) Config {
	t.Helper()
	module := os.Getenv(ModuleEnv)
	if module == "" {
		t.Skipf("%s not set, skipping SoftHSM integration test", ModuleEnv)
	}

	tokenDir := filepath.Join(t.TempDir(), "tokens")
	if err := os.MkdirAll(tokenDir, 0o755); err != nil {
		t.Fatalf("Failed to create token directory: %v", err)
	}
	conf := filepath.Join(t.TempDir(), "softhsm2.conf")
	content := fmt.Sprintf("directories.tokendir = %s\nobjectstore.backend = file\n", tokenDir)
	if err := os.WriteFile(conf, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write SoftHSM config: %v", err)
	}
	t.Setenv("SOFTHSM2_CONF", conf)

	// Provision through the shared context; the library reads SOFTHSM2_CONF
	// at first initialization only, so later setups reuse the first token
	// directory and reinitialize the token in place.
	mod, err := loadModule(module)
	if err != nil {
		t.Fatalf("Failed to load PKCS#11 module: %v", err)
	}

	slots, err := mod.GetSlotList(true)
	if err != nil || len(slots) == 0 {
		t.Fatalf("Failed to list slots: %v", err)
	}
	if err := mod.InitToken(slots[0], testSOPIN, testTokenLabel); err != nil {
		t.Fatalf("Failed to initialize token: %v", err)
	}

	// SoftHSM moves an initialized token to a fresh slot id.
	slot := findTokenSlot(t, mod)

	sess, err := mod.OpenSession(slot, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		t.Fatalf("Failed to open session: %v", err)
	}
	defer func() { _ = mod.CloseSession(sess) }()

	if err := mod.Login(sess, pkcs11.CKU_SO, testSOPIN); err != nil {
		t.Fatalf("Failed to log in as SO: %v", err)
	}
	if err := mod.InitPIN(sess, testUserPIN); err != nil {
		t.Fatalf("Failed to set user PIN: %v", err)
	}
	if err := mod.Logout(sess); err != nil {
		t.Fatalf("Failed to log out SO: %v", err)
	}

	if err := mod.Login(sess, pkcs11.CKU_USER, testUserPIN); err != nil {
		t.Fatalf("Failed to log in as user: %v", err)
	}
	generateKeyPair(t, mod, sess, elliptic.P256(), []byte{0x01})
	generateKeyPair(t, mod, sess, elliptic.P384(), []byte{0x02})
	if err := mod.Logout(sess); err != nil {
		t.Fatalf("Failed to log out user: %v", err)
	}

	return Config{Module: module, TokenLabel: testTokenLabel, DefaultKeyID: "01"}
}

func findTokenSlot(t *testing.T, mod *pkcs11.Ctx) uint {
	t.Helper()
	slots, err := mod.GetSlotList(true)
	if err != nil {
		t.Fatalf("Failed to list slots: %v", err)
	}
	for _, slot := range slots {
		info, err := mod.GetTokenInfo(slot)
		if err != nil {
			continue
		}
		if strings.TrimRight(info.Label, " ") == testTokenLabel {
			return slot
		}
	}
	t.Fatalf("Token %s not found after initialization", testTokenLabel)
	return 0
}

func generateKeyPair(t *testing.T, mod *pkcs11.Ctx, sess pkcs11.SessionHandle, curve elliptic.Curve, id []byte) {
	t.Helper()
	params, err := encoding.ECParams(curve)
	if err != nil {
		t.Fatalf("ECParams failed: %v", err)
	}
	public := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_EC),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_VERIFY, true),
		pkcs11.NewAttribute(pkcs11.CKA_EC_PARAMS, params),
		pkcs11.NewAttribute(pkcs11.CKA_ID, id),
	}
	private := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_EC),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_SIGN, true),
		pkcs11.NewAttribute(pkcs11.CKA_PRIVATE, true),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, true),
		pkcs11.NewAttribute(pkcs11.CKA_ID, id),
	}
	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_EC_KEY_PAIR_GEN, nil)}
	if _, _, err := mod.GenerateKeyPair(sess, mech, public, private); err != nil {
		t.Fatalf("Failed to generate %s key pair: %v", curve.Params().Name, err)
	}
}

func TestHSMSignAndVerify(t *testing.T) {
	cfg := setupSoftHSM(t)
	keyid := strings.Repeat("a", 64)

	tests := []struct {
		name   string
		hsmID  []byte
		scheme string
	}{
		{"P-256", []byte{0x01}, keys.SchemeECDSAP256},
		{"P-384", []byte{0x02}, keys.SchemeECDSAP384},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub, err := ExportPublicKey(cfg, keyid, tt.hsmID)
			if err != nil {
				t.Fatalf("ExportPublicKey failed: %v", err)
			}
			if pub.KeyID() != keyid {
				t.Errorf("Expected keyid %s, got %s", keyid, pub.KeyID())
			}
			if pub.Scheme() != tt.scheme {
				t.Errorf("Expected scheme %s, got %s", tt.scheme, pub.Scheme())
			}

			signer, err := NewSigner(cfg, tt.hsmID, pub, signing.StaticSecret(testUserPIN))
			if err != nil {
				t.Fatalf("NewSigner failed: %v", err)
			}
			data := []byte("DATA")
			sig, err := signer.Sign(data)
			if err != nil {
				t.Fatalf("Sign failed: %v", err)
			}
			if sig.KeyID != keyid {
				t.Errorf("Expected keyid %s on signature, got %s", keyid, sig.KeyID)
			}
			if err := pub.Verify(sig, data); err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if err := pub.Verify(sig, []byte("NOT DATA")); !errors.Is(err, keys.ErrUnverifiedSignature) {
				t.Errorf("Expected ErrUnverifiedSignature, got %v", err)
			}
		})
	}
}

func TestHSMSignerFromURI(t *testing.T) {
	cfg := setupSoftHSM(t)
	t.Setenv(ModuleEnv, cfg.Module)
	t.Setenv(TokenLabelEnv, cfg.TokenLabel)
	t.Setenv(DefaultKeyIDEnv, cfg.DefaultKeyID)

	pub, err := ExportPublicKey(cfg, strings.Repeat("a", 64), []byte{0x01})
	if err != nil {
		t.Fatalf("ExportPublicKey failed: %v", err)
	}

	// A bare "hsm:" URI selects the configured default object id.
	signer, err := signing.FromURI("hsm:", pub, signing.StaticSecret(testUserPIN))
	if err != nil {
		t.Fatalf("FromURI failed: %v", err)
	}
	data := []byte("DATA")
	sig, err := signer.Sign(data)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if err := pub.Verify(sig, data); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
}

func TestHSMWrongPIN(t *testing.T) {
	cfg := setupSoftHSM(t)
	pub, err := ExportPublicKey(cfg, strings.Repeat("a", 64), []byte{0x01})
	if err != nil {
		t.Fatalf("ExportPublicKey failed: %v", err)
	}
	signer, err := NewSigner(cfg, []byte{0x01}, pub, signing.StaticSecret("wrong"))
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	if _, err := signer.Sign([]byte("DATA")); !errors.Is(err, signing.ErrAuthentication) {
		t.Errorf("Expected ErrAuthentication, got %v", err)
	}
}

func TestHSMKeyNotFound(t *testing.T) {
	cfg := setupSoftHSM(t)

	if _, err := ExportPublicKey(cfg, strings.Repeat("a", 64), []byte{0x7f}); !errors.Is(err, signing.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}

	pub, err := ExportPublicKey(cfg, strings.Repeat("a", 64), []byte{0x01})
	if err != nil {
		t.Fatalf("ExportPublicKey failed: %v", err)
	}
	signer, err := NewSigner(cfg, []byte{0x7f}, pub, signing.StaticSecret(testUserPIN))
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	if _, err := signer.Sign([]byte("DATA")); !errors.Is(err, signing.ErrKeyNotFound) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
}

// Batch signing is parallelized by callers across independent Signer
// instances, each Sign call opening its own session on the shared driver
// context.
func TestHSMConcurrentSigners(t *testing.T) {
	cfg := setupSoftHSM(t)
	keyid := strings.Repeat("a", 64)

	newSigner := func(id []byte) (*Signer, *keys.PublicKey) {
		pub, err := ExportPublicKey(cfg, keyid, id)
		if err != nil {
			t.Fatalf("ExportPublicKey failed: %v", err)
		}
		signer, err := NewSigner(cfg, id, pub, signing.StaticSecret(testUserPIN))
		if err != nil {
			t.Fatalf("NewSigner failed: %v", err)
		}
		return signer, pub
	}
	signer256, pub256 := newSigner([]byte{0x01})
	signer384, pub384 := newSigner([]byte{0x02})

	const iterations = 4
	var wg sync.WaitGroup
	errs := make(chan error, 2*iterations)
	for _, pair := range []struct {
		signer *Signer
		pub    *keys.PublicKey
	}{{signer256, pub256}, {signer384, pub384}} {
		wg.Add(1)
		go func(signer *Signer, pub *keys.PublicKey) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				data := []byte(fmt.Sprintf("DATA %d", i))
				sig, err := signer.Sign(data)
				if err != nil {
					errs <- fmt.Errorf("Sign failed: %w", err)
					return
				}
				if err := pub.Verify(sig, data); err != nil {
					errs <- fmt.Errorf("Verify failed: %w", err)
					return
				}
			}
		}(pair.signer, pair.pub)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func sessionCount(t *testing.T, mod *pkcs11.Ctx, slot uint) uint {
	t.Helper()
	info, err := mod.GetTokenInfo(slot)
	if err != nil {
		t.Fatalf("GetTokenInfo failed: %v", err)
	}
	return info.SessionCount
}

// The token's open session count must return to its pre-call value after
// any number of calls, including induced failures.
func TestHSMSessionsReleased(t *testing.T) {
	cfg := setupSoftHSM(t)
	mod, err := loadModule(cfg.Module)
	if err != nil {
		t.Fatalf("Failed to load module: %v", err)
	}
	slot := findTokenSlot(t, mod)
	keyid := strings.Repeat("a", 64)

	pub, err := ExportPublicKey(cfg, keyid, []byte{0x01})
	if err != nil {
		t.Fatalf("ExportPublicKey failed: %v", err)
	}
	baseline := sessionCount(t, mod, slot)

	good, err := NewSigner(cfg, []byte{0x01}, pub, signing.StaticSecret(testUserPIN))
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	badPIN, err := NewSigner(cfg, []byte{0x01}, pub, signing.StaticSecret("wrong"))
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	badID, err := NewSigner(cfg, []byte{0x7f}, pub, signing.StaticSecret(testUserPIN))
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := good.Sign([]byte("DATA")); err != nil {
			t.Fatalf("Sign failed: %v", err)
		}
		if _, err := badPIN.Sign([]byte("DATA")); !errors.Is(err, signing.ErrAuthentication) {
			t.Fatalf("Expected ErrAuthentication, got %v", err)
		}
		if _, err := badID.Sign([]byte("DATA")); !errors.Is(err, signing.ErrKeyNotFound) {
			t.Fatalf("Expected ErrKeyNotFound, got %v", err)
		}
		if _, err := ExportPublicKey(cfg, keyid, []byte{0x7f}); !errors.Is(err, signing.ErrKeyNotFound) {
			t.Fatalf("Expected ErrKeyNotFound, got %v", err)
		}
	}

	if got := sessionCount(t, mod, slot); got != baseline {
		t.Errorf("Expected session count to return to %d, got %d", baseline, got)
	}
}

func TestHSMTokenNotPresent(t *testing.T) {
	cfg := setupSoftHSM(t)
	cfg.TokenLabel = "no-such-token"

	if _, err := ExportPublicKey(cfg, strings.Repeat("a", 64), []byte{0x01}); !errors.Is(err, signing.ErrTokenNotPresent) {
		t.Errorf("Expected ErrTokenNotPresent, got %v", err)
	}
}
