package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Yslas262/shopify-setup/internal/config"
	"github.com/Yslas262/shopify-setup/internal/home"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the home directory and a default config file",
	Long: `Create the shopsetup home directory and write a default config file.

Edit the generated config to set your shop domain, then export
SHOPIFY_ADMIN_TOKEN (or put the token in the config directly).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		if h.ConfigExists() && !initForce {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", h.ConfigPath())
		}

		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return err
		}

		fmt.Printf("Wrote %s\n", h.ConfigPath())
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}
