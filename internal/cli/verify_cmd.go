// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// verify_cmd.go - Headless login check.
//
// Command: verify
// Short:   Check the admin key (and second factor) against the API
//
// Examples:
//   SQUIDOPS_KEY=sb-admin-... squidops verify
//   squidops verify --api http://127.0.0.1:8089 --json

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/squidbay/squidops-tui/internal/session"
)

func (a *App) verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the admin key against the API",
		Long: `Logs in with the admin key from $SQUIDOPS_KEY (or a hidden prompt),
asks for the authenticator or backup code when two-factor is enabled, then
logs out again. Failures count towards the lockout like console logins.`,
		Args: cobra.NoArgs,
		RunE: a.runVerify,
	}
}

func (a *App) runVerify(cmd *cobra.Command, args []string) error {
	var data VerifyData
	err := a.withSession(cmd.Context(), func(ctrl *session.Controller) error {
		snap := ctrl.Snapshot()
		data = VerifyData{
			API:              a.cfg.API.BaseURL,
			State:            snap.State.String(),
			SecondFactor:     a.usedSecondFactor,
			SessionExpiresAt: snap.StartedAt.Add(ctrl.Config().SessionTimeout).UTC().Format(time.RFC3339),
		}
		return nil
	})
	if err != nil {
		return err
	}

	if a.JSON {
		return NewJSONResponse("verify", data).Write(a.Out)
	}
	fmt.Fprintf(a.Out, "%s Admin key accepted\n", RenderStatus("ok"))
	fmt.Fprintln(a.Out, RenderField("API", data.API))
	factor := "not enabled"
	if data.SecondFactor {
		factor = "verified"
	}
	fmt.Fprintln(a.Out, RenderField("Two-factor", factor))
	fmt.Fprintln(a.Out, RenderField("Session expires", data.SessionExpiresAt))
	return nil
}
