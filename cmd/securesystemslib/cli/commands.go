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

// Package cli implements the securesystemslib command line interface.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/NabeelShahid7/securesystemslib/pkg/logging"
)

type rootOptions struct {
	LogLevel string // --log-level
}

func (o *rootOptions) addFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&o.LogLevel, "log-level", "info", "Log level (debug, info, warn, error, silent).")
}

var ro = &rootOptions{}

// New builds the root command with all sub-commands attached.
func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "securesystemslib",
		Short:             "Sign and verify data with software or hardware-held keys.",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger = logging.NewLogger(logging.ParseLogLevel(ro.LogLevel))
		},
	}
	ro.addFlags(cmd)

	cmd.AddCommand(ExportKey())
	cmd.AddCommand(Sign())
	cmd.AddCommand(Verify())
	return cmd
}

// logger is set by the root command before any sub-command runs.
var logger logging.Logger = logging.Default()
