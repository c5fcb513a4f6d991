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
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/miekg/pkcs11"

	"github.com/NabeelShahid7/securesystemslib/pkg/signing"
)

// HardwareError wraps a native PKCS#11 failure verbatim so the token's
// return code stays diagnosable. It is never downgraded to a softer error.
type HardwareError struct {
	// Op is the session operation that failed.
	Op string
	// Code is the CKR return value reported by the token.
	Code uint
	err  error
}

// Error implements the error interface.
func (e *HardwareError) Error() string {
	return fmt.Sprintf("hsm: %s failed with CKR 0x%08X", e.Op, e.Code)
}

// Unwrap returns the underlying pkcs11 error.
func (e *HardwareError) Unwrap() error { return e.err }

func hardwareError(op string, err error) error {
	var rv pkcs11.Error
	if errors.As(err, &rv) {
		return &HardwareError{Op: op, Code: uint(rv), err: err}
	}
	return fmt.Errorf("hsm: %s failed: %w", op, err)
}

// session owns one live connection to a token slot.
//
// Lifecycle is Closed -> Open -> Authenticated -> Closed. Exactly one
// session is opened per signing or export call, and close is deferred on
// every path, so hardware session slots cannot leak even when an operation
// fails midway.
type session struct {
	mod      *pkcs11.Ctx
	handle   pkcs11.SessionHandle
	slot     uint
	loggedIn bool
	closed   bool
}

var (
	modulesMu sync.Mutex
	modules   = make(map[string]*pkcs11.Ctx)
)

// loadModule returns the initialized context for the driver at path.
// C_Initialize and C_Finalize are process-global per the PKCS#11 standard,
// so the context is loaded and initialized once per path, shared by all
// sessions, and never finalized while the process lives. Concurrent Sign
// calls each open their own session on the shared context.
func loadModule(path string) (*pkcs11.Ctx, error) {
	modulesMu.Lock()
	defer modulesMu.Unlock()
	if mod, ok := modules[path]; ok {
		return mod, nil
	}
	mod := pkcs11.New(path)
	if mod == nil {
		return nil, fmt.Errorf("failed to load PKCS#11 module %s", path)
	}
	if err := mod.Initialize(); err != nil {
		// Another library user may have initialized it already.
		if !isReturnCode(err, pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED) {
			mod.Destroy()
			return nil, hardwareError("initialize", err)
		}
	}
	modules[path] = mod
	return mod, nil
}

// openSession opens a read-only session on the selected slot of the shared
// driver context. Failure to resolve the driver is a configuration error;
// an empty slot is ErrTokenNotPresent.
func openSession(cfg Config) (*session, error) {
	modulePath, err := cfg.resolveModule()
	if err != nil {
		return nil, err
	}

	mod, err := loadModule(modulePath)
	if err != nil {
		return nil, err
	}

	slot, err := findSlot(mod, cfg.TokenLabel)
	if err != nil {
		return nil, err
	}

	handle, err := mod.OpenSession(slot, pkcs11.CKF_SERIAL_SESSION)
	if err != nil {
		if isReturnCode(err, pkcs11.CKR_TOKEN_NOT_PRESENT) {
			return nil, fmt.Errorf("%w in slot %d", signing.ErrTokenNotPresent, slot)
		}
		return nil, hardwareError("open session", err)
	}

	return &session{mod: mod, handle: handle, slot: slot}, nil
}

// login authenticates the session as the token user. A rejected PIN is
// surfaced as ErrAuthentication and never retried here; lockout policy is
// the token's own concern.
func (s *session) login(pin string) error {
	if err := s.mod.Login(s.handle, pkcs11.CKU_USER, pin); err != nil {
		if isReturnCode(err, pkcs11.CKR_PIN_INCORRECT, pkcs11.CKR_PIN_LOCKED, pkcs11.CKR_PIN_EXPIRED) {
			return fmt.Errorf("%w: %v", signing.ErrAuthentication, err)
		}
		return hardwareError("login", err)
	}
	s.loggedIn = true
	return nil
}

// findObject locates the single object with the given CKA_ID and class.
// Zero matches and multiple matches both fail with ErrKeyNotFound:
// identifiers must be unique per class within a slot.
func (s *session) findObject(id []byte, class uint) (pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, class),
		pkcs11.NewAttribute(pkcs11.CKA_ID, id),
	}
	if err := s.mod.FindObjectsInit(s.handle, template); err != nil {
		return 0, hardwareError("find objects init", err)
	}
	objects, _, err := s.mod.FindObjects(s.handle, 2)
	if finalErr := s.mod.FindObjectsFinal(s.handle); err == nil {
		err = finalErr
	}
	if err != nil {
		return 0, hardwareError("find objects", err)
	}
	switch len(objects) {
	case 0:
		return 0, fmt.Errorf("%w: no object with id %x", signing.ErrKeyNotFound, id)
	case 1:
		return objects[0], nil
	default:
		return 0, fmt.Errorf("%w: id %x is ambiguous (%d matches)", signing.ErrKeyNotFound, id, len(objects))
	}
}

// sign runs the hardware signing operation and returns the token's native
// signature bytes.
func (s *session) sign(key pkcs11.ObjectHandle, mechanism uint, data []byte) ([]byte, error) {
	mech := []*pkcs11.Mechanism{pkcs11.NewMechanism(mechanism, nil)}
	if err := s.mod.SignInit(s.handle, mech, key); err != nil {
		return nil, hardwareError("sign init", err)
	}
	sig, err := s.mod.Sign(s.handle, data)
	if err != nil {
		return nil, hardwareError("sign", err)
	}
	return sig, nil
}

// attribute reads one attribute value from an object.
func (s *session) attribute(obj pkcs11.ObjectHandle, typ uint) ([]byte, error) {
	attrs, err := s.mod.GetAttributeValue(s.handle, obj, []*pkcs11.Attribute{
		pkcs11.NewAttribute(typ, nil),
	})
	if err != nil {
		return nil, hardwareError("get attribute", err)
	}
	return attrs[0].Value, nil
}

// mechanisms reports the signing mechanisms the token in this slot
// advertises. Backends differ here; resolution happens per call against
// this list.
func (s *session) mechanisms() (map[uint]bool, error) {
	list, err := s.mod.GetMechanismList(s.slot)
	if err != nil {
		return nil, hardwareError("get mechanism list", err)
	}
	supported := make(map[uint]bool, len(list))
	for _, m := range list {
		supported[m.Mechanism] = true
	}
	return supported, nil
}

// close releases the session. The shared driver context stays initialized
// for other callers. Idempotent and safe to defer immediately after
// openSession succeeds.
func (s *session) close() {
	if s.closed {
		return
	}
	s.closed = true
	if s.loggedIn {
		_ = s.mod.Logout(s.handle)
	}
	_ = s.mod.CloseSession(s.handle)
}

// findSlot picks the slot holding the target token. With no label
// configured the first occupied slot wins.
func findSlot(mod *pkcs11.Ctx, tokenLabel string) (uint, error) {
	slots, err := mod.GetSlotList(true)
	if err != nil {
		return 0, hardwareError("get slot list", err)
	}
	if len(slots) == 0 {
		return 0, fmt.Errorf("%w: no slot holds a token", signing.ErrTokenNotPresent)
	}
	if tokenLabel == "" {
		return slots[0], nil
	}
	for _, slot := range slots {
		info, err := mod.GetTokenInfo(slot)
		if err != nil {
			continue
		}
		if strings.TrimRight(info.Label, " ") == tokenLabel {
			return slot, nil
		}
	}
	return 0, fmt.Errorf("%w: no token labeled %q", signing.ErrTokenNotPresent, tokenLabel)
}

func isReturnCode(err error, codes ...pkcs11.Error) bool {
	var rv pkcs11.Error
	if !errors.As(err, &rv) {
		return false
	}
	for _, code := range codes {
		if rv == code {
			return true
		}
	}
	return false
}
