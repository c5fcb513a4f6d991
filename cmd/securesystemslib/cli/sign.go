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

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/NabeelShahid7/securesystemslib/pkg/dsse"
	"github.com/NabeelShahid7/securesystemslib/pkg/keys"
	"github.com/NabeelShahid7/securesystemslib/pkg/signing"

	// Signer backends register their URI schemes on import.
	_ "github.com/NabeelShahid7/securesystemslib/pkg/signing/file"
	_ "github.com/NabeelShahid7/securesystemslib/pkg/signing/hsm"
)

type signOptions struct {
	KeyPath     string // --key
	URI         string // --uri
	PinEnv      string // --pin-env
	Signature   string // --signature
	PayloadType string // --payload-type
}

func (o *signOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.KeyPath, "key", "", "Path to the public key, as a JSON key document. [required]")
	_ = cmd.MarkFlagRequired("key")
	cmd.Flags().StringVar(&o.URI, "uri", "", "Signer URI selecting the private key, e.g. \"hsm:\" or \"file:key.pem\". [required]")
	_ = cmd.MarkFlagRequired("uri")
	cmd.Flags().StringVar(&o.PinEnv, "pin-env", "", "Environment variable holding the PIN or passphrase. Prompts on the terminal if unset.")
	cmd.Flags().StringVar(&o.Signature, "signature", "", "Write the signature to this file instead of stdout.")
	cmd.Flags().StringVar(&o.PayloadType, "payload-type", "", "Wrap the payload in a DSSE envelope with this payload type.")
}

// Sign builds the sign sub-command. It signs the contents of FILE with
// the signer selected by --uri and emits either a bare signature or a
// DSSE envelope.
func Sign() *cobra.Command {
	o := &signOptions{}

	cmd := &cobra.Command{
		Use:   "sign FILE",
		Short: "Sign the contents of a file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read payload: %w", err)
			}
			pub, err := loadPublicKey(o.KeyPath)
			if err != nil {
				return err
			}

			secret := signing.TerminalSecret()
			if o.PinEnv != "" {
				secret = signing.EnvSecret(o.PinEnv)
			}
			signer, err := signing.FromURI(o.URI, pub, secret)
			if err != nil {
				return err
			}

			var out []byte
			if o.PayloadType != "" {
				env, err := dsse.SignEnvelope(o.PayloadType, data, signer)
				if err != nil {
					return err
				}
				out, err = json.MarshalIndent(env.RawEnvelope(), "", "  ")
				if err != nil {
					return err
				}
			} else {
				sig, err := signer.Sign(data)
				if err != nil {
					return err
				}
				out, err = json.MarshalIndent(sig, "", "  ")
				if err != nil {
					return err
				}
			}
			out = append(out, '\n')

			logger.Info("signed %s with key %s", args[0], pub.KeyID())
			if o.Signature != "" {
				return os.WriteFile(o.Signature, out, 0o644)
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}
	o.addFlags(cmd)
	return cmd
}

func loadPublicKey(path string) (*keys.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	pub := &keys.PublicKey{}
	if err := json.Unmarshal(raw, pub); err != nil {
		return nil, fmt.Errorf("failed to parse public key %s: %w", path, err)
	}
	return pub, nil
}
