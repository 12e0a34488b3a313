package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/basalthq/basalt/internal/functions"
)

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "Inspect the functions directory",
}

var functionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List functions with valid manifests",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		descs, err := functions.Discover(cfg.Functions.Dir, zerolog.Nop())
		if err != nil {
			return err
		}
		if len(descs) == 0 {
			fmt.Println("no functions found in", cfg.Functions.Dir)
			return nil
		}

		for _, d := range descs {
			timeout := cfg.Functions.Timeout
			if d.Timeout > 0 {
				timeout = d.Timeout
			}
			fmt.Printf("%-24s %-8s auth=%-13s timeout=%s\n", d.Name, d.Runtime, d.AuthMode, timeout)
		}
		return nil
	},
}

var functionsCheckCmd = &cobra.Command{
	Use:   "check <dir>",
	Short: "Validate a single function directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := functions.LoadManifest(args[0])
		if err != nil {
			return err
		}
		if _, err := m.Descriptor(args[0]); err != nil {
			return err
		}
		fmt.Printf("%s: ok\n", m.Name)
		return nil
	},
}

func init() {
	functionsCmd.AddCommand(functionsListCmd)
	functionsCmd.AddCommand(functionsCheckCmd)
	rootCmd.AddCommand(functionsCmd)
}
