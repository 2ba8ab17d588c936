package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/speakez/internal/app"
	"github.com/MrWong99/speakez/internal/config"
	"github.com/MrWong99/speakez/internal/health"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deps",
		Short: "Check external tools and backends the config relies on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			checkers := []health.Checker{ffmpegCheck(cfg)}
			store, err := app.OpenHistory(cmd.Context(), cfg.History)
			if err != nil {
				checkers = append(checkers, health.Func("history", func() error { return err }))
			} else {
				defer store.Close()
				checkers = append(checkers, health.Ping("history", store))
			}
			checkers = append(checkers,
				providerCheck("stt", cfg.Providers.STT),
				providerCheck("tts", cfg.Providers.TTS),
			)

			results := health.New(checkers...).Run(cmd.Context())
			w := cmd.OutOrStdout()
			colorize := shouldColorize(w)
			failed := 0
			for _, r := range results {
				kind, msg := statusOK, r.Elapsed.Round(time.Millisecond).String()
				switch {
				case r.Err != nil && r.Optional:
					kind, msg = statusWarn, r.Err.Error()
				case r.Err != nil:
					kind, msg = statusError, r.Err.Error()
					failed++
				}
				fmt.Fprintln(w, renderStatusLine(r.Name, kind, msg, colorize))
			}
			if failed > 0 {
				return fmt.Errorf("%d required dependencies unavailable", failed)
			}
			return nil
		},
	}
}

// ffmpegCheck is required when capture or the converter names ffmpeg
// explicitly and optional when the converter only prefers it.
func ffmpegCheck(cfg *config.Config) health.Checker {
	if cfg.Capture.Name == "ffmpeg" {
		return health.Binary("ffmpeg", orDefault(cfg.Capture.Binary, "ffmpeg"), false)
	}
	if cfg.Converter.Name == "native" {
		return health.Checker{Name: "ffmpeg", Optional: true, Check: func(context.Context) error {
			return errors.New("not used; converter is native")
		}}
	}
	return health.Binary("ffmpeg", orDefault(cfg.Converter.Binary, "ffmpeg"), cfg.Converter.Name != "ffmpeg")
}

// providerCheck verifies that the entry and its fallbacks can be constructed.
func providerCheck(kind string, entry config.ProviderEntry) health.Checker {
	return health.Checker{
		Name:     kind + " provider",
		Optional: entry.Name == "",
		Check: func(context.Context) error {
			if entry.Name == "" {
				return errors.New("not configured")
			}
			cfg := &config.Config{}
			switch kind {
			case "stt":
				cfg.Providers.STT = entry
			default:
				cfg.Providers.TTS = entry
			}
			cfg.Practice.TTSCacheSize = -1
			reg := config.NewRegistry()
			app.RegisterBuiltins(reg)
			ps, err := app.BuildProviders(cfg, reg)
			if err != nil {
				return err
			}
			return ps.Close()
		},
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
