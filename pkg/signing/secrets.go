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
	"os"
	"syscall"

	"golang.org/x/term"
)

// StaticSecret returns a SecretProvider that answers every request with the
// same value. Useful for tests and for callers that already hold the PIN.
func StaticSecret(secret string) SecretProvider {
	return func(_ string) (string, error) {
		return secret, nil
	}
}

// EnvSecret returns a SecretProvider that reads the secret from the named
// environment variable. An unset or empty variable is an error, so a
// missing PIN fails before the backend wastes an authentication attempt.
func EnvSecret(name string) SecretProvider {
	return func(description string) (string, error) {
		secret, ok := os.LookupEnv(name)
		if !ok || secret == "" {
			return "", fmt.Errorf("environment variable %s is not set (needed for %s)", name, description)
		}
		return secret, nil
	}
}

// TerminalSecret returns a SecretProvider that prompts on the controlling
// terminal with echo disabled.
func TerminalSecret() SecretProvider {
	return func(description string) (string, error) {
		fmt.Fprintf(os.Stderr, "Enter %s: ", description)
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from terminal: %w", err)
		}
		return string(secret), nil
	}
}
