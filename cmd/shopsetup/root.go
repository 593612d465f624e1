package main

import (
	"github.com/spf13/cobra"

	"github.com/Yslas262/shopify-setup/internal/api"
	"github.com/Yslas262/shopify-setup/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "shopsetup",
	Short: "Storefront provisioning for Shopify stores",
	Long: `Shopsetup provisions a Shopify storefront end to end through the
admin GraphQL API.

A setup run walks a fixed sequence of steps:
  - Discover the online store publication and fulfillment location
  - Import the product catalog and publish every product
  - Create per-type and featured collections
  - Install, brand, and publish the theme
  - Set up navigation menus and shop policies

Runs are resumable: a failed run can be retried from its earliest
failed step without repeating the work that already succeeded.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.shopsetup/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "shopsetup home directory (default: ~/.shopsetup)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
