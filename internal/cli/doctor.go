package cli

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d\n", len(cfg.Providers), len(cfg.Models))
			fmt.Fprintf(out, "Transport: %s, metrics: %v\n", cfg.Server.Transport, cfg.Server.MetricsEnabled)

			for lang, sc := range cfg.LSP.Servers {
				if _, err := exec.LookPath(sc.Command); err != nil {
					fmt.Fprintf(out, "Language server %s: %s NOT FOUND in PATH\n", lang, sc.Command)
					continue
				}
				fmt.Fprintf(out, "Language server %s: %s OK\n", lang, sc.Command)
			}
			return nil
		},
	}
}
