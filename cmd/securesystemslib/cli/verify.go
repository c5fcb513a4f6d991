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

	dsse_lib "github.com/secure-systems-lab/go-securesystemslib/dsse"
	"github.com/spf13/cobra"

	"github.com/NabeelShahid7/securesystemslib/pkg/dsse"
	"github.com/NabeelShahid7/securesystemslib/pkg/keys"
)

type verifyOptions struct {
	KeyPath     string // --key
	Signature   string // --signature
	Envelope    string // --envelope
	PayloadType string // --payload-type
}

func (o *verifyOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.KeyPath, "key", "", "Path to the public key, as a JSON key document. [required]")
	_ = cmd.MarkFlagRequired("key")
	cmd.Flags().StringVar(&o.Signature, "signature", "", "Path to a bare signature over FILE.")
	cmd.Flags().StringVar(&o.Envelope, "envelope", "", "Path to a DSSE envelope. FILE is not needed in this mode.")
	cmd.Flags().StringVar(&o.PayloadType, "payload-type", "", "Expected DSSE payload type, checked when verifying an envelope.")
	cmd.MarkFlagsMutuallyExclusive("signature", "envelope")
	cmd.MarkFlagsOneRequired("signature", "envelope")
}

// Verify builds the verify sub-command. It checks a bare signature over
// FILE, or a self-contained DSSE envelope.
func Verify() *cobra.Command {
	o := &verifyOptions{}

	cmd := &cobra.Command{
		Use:   "verify [FILE]",
		Short: "Verify a signature against a public key.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			pub, err := loadPublicKey(o.KeyPath)
			if err != nil {
				return err
			}
			if o.Envelope != "" {
				return verifyEnvelope(o, pub)
			}
			if len(args) != 1 {
				return fmt.Errorf("FILE is required when verifying a bare signature")
			}
			return verifySignature(o, pub, args[0])
		},
	}
	o.addFlags(cmd)
	return cmd
}

func verifySignature(o *verifyOptions, pub *keys.PublicKey, payloadPath string) error {
	data, err := os.ReadFile(payloadPath)
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	raw, err := os.ReadFile(o.Signature)
	if err != nil {
		return fmt.Errorf("failed to read signature: %w", err)
	}
	sig := &keys.Signature{}
	if err := json.Unmarshal(raw, sig); err != nil {
		return fmt.Errorf("failed to parse signature %s: %w", o.Signature, err)
	}
	if err := pub.Verify(sig, data); err != nil {
		return err
	}
	logger.Info("verified %s with key %s", payloadPath, pub.KeyID())
	fmt.Println("signature verified")
	return nil
}

func verifyEnvelope(o *verifyOptions, pub *keys.PublicKey) error {
	raw, err := os.ReadFile(o.Envelope)
	if err != nil {
		return fmt.Errorf("failed to read envelope: %w", err)
	}
	rawEnv := &dsse_lib.Envelope{}
	if err := json.Unmarshal(raw, rawEnv); err != nil {
		return fmt.Errorf("failed to parse envelope %s: %w", o.Envelope, err)
	}
	env := dsse.NewEnvelope(rawEnv)
	if o.PayloadType != "" {
		if err := env.ValidatePayloadType(o.PayloadType); err != nil {
			return err
		}
	}
	if err := env.VerifyEnvelope(pub); err != nil {
		return err
	}
	logger.Info("verified envelope %s with key %s", o.Envelope, pub.KeyID())
	fmt.Println("envelope verified")
	return nil
}
