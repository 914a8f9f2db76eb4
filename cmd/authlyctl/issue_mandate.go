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
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/authly-sh/authly/pkg/config"
	"github.com/authly-sh/authly/pkg/db"
	"github.com/authly-sh/authly/pkg/directory"
	"github.com/authly-sh/authly/pkg/id"
	"github.com/authly-sh/authly/pkg/instance"
	"github.com/authly-sh/authly/pkg/mandate"
)

func newIssueMandateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue-mandate-token",
		Short: "Generate a submission code and its signed JWT for a new mandate enrollment",
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIssueMandate(cmd.Context(), cmd, viper.GetString("db"), viper.GetString("created-by"))
		},
	}
	cmd.Flags().String("created-by", "", "hex id of the operator persona issuing this submission (random if empty)")
	return cmd
}

func runIssueMandate(ctx context.Context, cmd *cobra.Command, dbPath, createdByHex string) error {
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

	cfg, err := config.LoadNode()
	if err != nil {
		return err
	}

	authlyEID := id.New(id.KindService)
	snapshot, err := instance.Bootstrap(ctx, store, deks, authlyEID, cfg.RotationPeriod)
	if err != nil {
		return err
	}

	admin := id.New(id.KindPersona)
	if createdByHex != "" {
		admin, err = id.Parse(id.KindPersona, createdByHex)
		if err != nil {
			return err
		}
	}
	code, err := mandate.GenerateSubmissionCode(ctx, store, admin)
	if err != nil {
		return err
	}
	token, mandateEID, err := mandate.IssueSubmissionToken(snapshot.Load(), cfg.AuthorityURL, code)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "mandate entity id: %s\n", mandateEID.String())
	fmt.Fprintf(out, "submission code (base64): %s\n", base64.StdEncoding.EncodeToString(code))
	fmt.Fprintf(out, "submission token: %s\n", token)
	return nil
}
