/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/friendsincode/camrotator/internal/catalog"
	"github.com/friendsincode/camrotator/internal/db"
	"github.com/friendsincode/camrotator/internal/store"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Validate and import source catalogs",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Check a YAML catalog without touching the database",
	Args:  cobra.ExactArgs(1),
	RunE:  runCatalogValidate,
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the catalog table with a YAML catalog",
	Long: `Parses the YAML catalog and replaces the contents of the catalog table with it,
keeping the file order. Servers started without CAMROTATOR_CATALOG_FILE load
the table at boot.`,
	Args: cobra.ExactArgs(1),
	RunE: runCatalogImport,
}

var catalogStrict bool

func init() {
	catalogValidateCmd.Flags().BoolVar(&catalogStrict, "strict", false, "Treat warnings as errors")
	catalogImportCmd.Flags().BoolVar(&catalogStrict, "strict", false, "Refuse to import a catalog with warnings")
	catalogCmd.AddCommand(catalogValidateCmd)
	catalogCmd.AddCommand(catalogImportCmd)
	rootCmd.AddCommand(catalogCmd)
}

func runCatalogValidate(cmd *cobra.Command, args []string) error {
	sources, err := catalog.LoadFile(args[0])
	if err != nil {
		return err
	}
	if err := reportWarnings(cmd, catalog.Warnings(sources)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d sources OK\n", args[0], len(sources))
	return nil
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	sources, err := catalog.LoadFile(args[0])
	if err != nil {
		return err
	}
	if err := reportWarnings(cmd, catalog.Warnings(sources)); err != nil {
		return err
	}

	if err := loadConfig(); err != nil {
		return err
	}
	database, err := db.Connect(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close(database)
	if err := db.Migrate(database); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := store.New(database, logger).ImportCatalog(ctx, sources); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d sources from %s\n", len(sources), args[0])
	return nil
}

func reportWarnings(cmd *cobra.Command, warnings []string) error {
	for _, warn := range warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warn)
	}
	if catalogStrict && len(warnings) > 0 {
		return fmt.Errorf("catalog has %d warnings", len(warnings))
	}
	return nil
}
