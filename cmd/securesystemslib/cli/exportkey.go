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
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/NabeelShahid7/securesystemslib/pkg/signing/hsm"
)

type exportKeyOptions struct {
	HSMKeyID string // --hsm-key-id
	KeyID    string // --keyid
	Output   string // --output
	PEM      bool   // --pem
}

func (o *exportKeyOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.HSMKeyID, "hsm-key-id", "", "Hex-encoded object id of the public key on the token. [required]")
	_ = cmd.MarkFlagRequired("hsm-key-id")
	cmd.Flags().StringVar(&o.KeyID, "keyid", "", "Portable keyid to record in the exported key. Derived from the key material if omitted.")
	cmd.Flags().StringVarP(&o.Output, "output", "o", "", "Write the key to this file instead of stdout.")
	cmd.Flags().BoolVar(&o.PEM, "pem", false, "Emit the key as PEM instead of the JSON key document.")
}

// ExportKey builds the export-key sub-command. It reads a public key off
// the configured token and prints it as a JSON key document or PEM.
func ExportKey() *cobra.Command {
	o := &exportKeyOptions{}

	cmd := &cobra.Command{
		Use:   "export-key",
		Short: "Export a public key from the HSM.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			hsmKeyID, err := hex.DecodeString(o.HSMKeyID)
			if err != nil {
				return fmt.Errorf("invalid --hsm-key-id %q: %w", o.HSMKeyID, err)
			}
			cfg, err := hsm.ConfigFromEnv()
			if err != nil {
				return err
			}

			logger.Debug("exporting public key for token object %x", hsmKeyID)
			pub, err := hsm.ExportPublicKey(cfg, o.KeyID, hsmKeyID)
			if err != nil {
				return err
			}

			var out []byte
			if o.PEM {
				out, err = pub.PEM()
				if err != nil {
					return err
				}
			} else {
				out, err = json.MarshalIndent(pub, "", "  ")
				if err != nil {
					return err
				}
				out = append(out, '\n')
			}

			if o.Output != "" {
				return os.WriteFile(o.Output, out, 0o644)
			}
			_, err = os.Stdout.Write(out)
			return err
		},
	}
	o.addFlags(cmd)
	return cmd
}
