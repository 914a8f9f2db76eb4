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

package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/document"
	"github.com/authly-sh/authly/pkg/id"
)

func newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply-document DIR_ID FILE",
		Short: "Compile a TOML document and apply it to a directory",
		Args:  cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return viper.BindPFlags(cmd.Parent().PersistentFlags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd.Context(), viper.GetString("db"), args[0], args[1])
		},
	}
	return cmd
}

func runApply(ctx context.Context, dbPath, dirIDHex, file string) error {
	dirID, err := id.Parse(id.KindDirectory, dirIDHex)
	if err != nil {
		return err
	}
	source, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	store, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck
	if err := directory.Migrate(ctx, store); err != nil {
		return err
	}

	deks, err := loadDeks(ctx, store)
	if err != nil {
		return err
	}

	_, err = document.Apply(ctx, store, deks, dirID, string(source))
	return err
}
