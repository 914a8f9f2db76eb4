// Copyright The Authly Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command authlyctl is Authly's admin CLI: apply a TOML document to a
// directory, issue a mandate submission code/token pair, and resolve an
// entity id to its attribute labels. It operates directly on the node's
// SQLite file the way the teacher's cmd/local-dev tooling operates
// directly on a local cluster rather than through a remote API.
package main

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"sigs.k8s.io/release-utils/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// rootDefaults is the shape of an optional `--config FILE` an operator
// managing several nodes can point authlyctl at, so per-node defaults
// (db path, created-by persona) don't need repeating on every invocation.
type rootDefaults struct {
	DB        string `mapstructure:"db"`
	CreatedBy string `mapstructure:"created-by"`
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "authlyctl",
		Short: "Administer an Authly node",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadRootDefaults(cmd)
		},
	}
	root.PersistentFlags().String("db", "authly.sqlite3", "path to the node's sqlite database")
	root.PersistentFlags().String("config", "", "optional YAML file of per-node default flags")
	root.AddCommand(newVersionCmd(), newApplyCmd(), newIssueMandateCmd(), newWhoamiCmd())
	return root
}

// loadRootDefaults reads --config (if set) through viper's YAML decoder
// and applies it as flag defaults via mapstructure, the same
// decode-generic-map-into-struct step viper.Unmarshal performs internally,
// done explicitly here so only the two flags rootDefaults names are
// affected rather than every key in the file.
func loadRootDefaults(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("authlyctl: read config %q: %w", path, err)
	}
	var defaults rootDefaults
	if err := mapstructure.Decode(v.AllSettings(), &defaults); err != nil {
		return fmt.Errorf("authlyctl: decode config %q: %w", path, err)
	}
	if defaults.DB != "" && !cmd.Flags().Changed("db") {
		if err := cmd.Flags().Set("db", defaults.DB); err != nil {
			return err
		}
	}
	if defaults.CreatedBy != "" {
		if f := cmd.Flags().Lookup("created-by"); f != nil && !f.Changed {
			if err := f.Value.Set(defaults.CreatedBy); err != nil {
				return err
			}
		}
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print authlyctl's version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetVersionInfo()
			fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return nil
		},
	}
}
