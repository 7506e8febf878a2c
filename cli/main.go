// Package main is the crud server: it serves the generated resource
// handlers over the configured backend.
//
// Usage:
//
//	crud [serve|migrate|routes] [--config path]
package main

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var logrusLogger = logrus.New()

var configPath string

var rootCmd = &cobra.Command{
	Use:           "crud",
	Short:         "Serve generated CRUD endpoints",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the backing tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate(cmd.Context())
	},
}

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the route table as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printRoutes(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	rootCmd.AddCommand(serveCmd, migrateCmd, routesCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logrusLogger.WithError(err).Error("command failed")
		os.Exit(1)
	}
}
