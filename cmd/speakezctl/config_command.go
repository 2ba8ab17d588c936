package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Configuration %s is valid\n", ctx.configPath())
			fmt.Fprintln(w, renderTable([]string{"Setting", "Value"}, [][]string{
				{"listen_addr", cfg.Server.ListenAddr},
				{"stt", orDefault(cfg.Providers.STT.Name, "(none)")},
				{"tts", orDefault(cfg.Providers.TTS.Name, "(none)")},
				{"converter", orDefault(cfg.Converter.Name, "auto")},
				{"capture", orDefault(cfg.Capture.Name, "disabled")},
				{"language", cfg.Practice.Language},
				{"history", string(cfg.History.Driver)},
			}, nil))
			return nil
		},
	})
	return cmd
}
