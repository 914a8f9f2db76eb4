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
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
)

// newWhoamiCmd is authlyctl's local stand-in for the admin "whoami"
// introspection endpoint SPEC_FULL.md §3 supplements: it resolves an
// entity id to its attribute labels rather than a caller's mTLS identity,
// since this tool runs against the node's database directly rather than
// over an authenticated connection.
func newWhoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami EID",
		Short: "Resolve an entity id to its attribute labels",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return viper.BindPFlags(cmd.Parent().PersistentFlags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhoami(cmd.Context(), cmd, viper.GetString("db"), args[0])
		},
	}
	return cmd
}

func runWhoami(ctx context.Context, cmd *cobra.Command, dbPath, eidText string) error {
	eid, err := id.ParseAny(eidText)
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

	attrs, err := directory.ListEntityAttrs(ctx, store, eid)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "entity: %s\n", eid.String())
	for _, attrID := range attrs {
		if builtin, ok := id.BuiltinAttrByID(attrID); ok {
			fmt.Fprintf(out, "  attribute: %s\n", builtin.Label())
			continue
		}
		label, err := directory.LookupAttrLabel(ctx, store, attrID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  attribute: %s\n", label)
	}
	return nil
}
