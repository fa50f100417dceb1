/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/camrotator/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a signed API token",
	Long: `Issues a JWT signed with CAMROTATOR_JWT_SIGNING_KEY.

  operator  may send every command and playback signal
  bridge    may only cast ballots (chat relays)`,
	RunE: runTokenIssue,
}

var (
	tokenRoles []string
	tokenName  string
	tokenTTL   time.Duration
)

func init() {
	tokenIssueCmd.Flags().StringSliceVar(&tokenRoles, "role", []string{auth.RoleOperator}, "Role to grant (operator, bridge); repeatable")
	tokenIssueCmd.Flags().StringVar(&tokenName, "name", "", "Name recorded as the token subject (required)")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "Token lifetime")
	tokenIssueCmd.MarkFlagRequired("name")
	tokenCmd.AddCommand(tokenIssueCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if tokenTTL <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	token, err := auth.Issue([]byte(cfg.JWTSigningKey), auth.Claims{Name: tokenName, Roles: tokenRoles}, tokenTTL)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
