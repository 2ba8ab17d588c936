package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/speakez/internal/app"
	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/provider/stt"
)

type transcribeOutput struct {
	Text       string  `json:"text"`
	Language   string  `json:"language,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Seconds    float64 `json:"seconds,omitempty"`
}

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var language string
	var format string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe a recording with the configured STT provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read recording: %w", err)
			}

			if format == "" {
				format = strings.TrimPrefix(filepath.Ext(path), ".")
			}
			enc, err := audio.ParseEncoding(format)
			if err != nil {
				return err
			}
			switch enc {
			case audio.EncodingWAV:
			case audio.EncodingPCM:
				return fmt.Errorf("raw PCM has no header; convert %s to WAV first", path)
			default:
				data, err = app.NewConverter(cfg.Converter).Convert(cmd.Context(), data,
					audio.Source{Encoding: enc},
					audio.Target{Encoding: audio.EncodingWAV})
				if err != nil {
					return fmt.Errorf("convert %s to wav: %w", enc, err)
				}
			}

			ps, err := ctx.providers()
			if err != nil {
				return err
			}
			defer ps.Close()

			if language == "" {
				language = cfg.Practice.Language
			}
			tr, err := ps.STT.Transcribe(cmd.Context(), stt.Request{Audio: data, Language: language})
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, transcribeOutput{
					Text:       tr.Text,
					Language:   tr.Language,
					Confidence: tr.Confidence,
					Seconds:    tr.Duration.Seconds(),
				})
			}
			if tr.Text == "" {
				fmt.Fprintln(cmd.ErrOrStderr(), "No speech detected.")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), tr.Text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Language tag (defaults to practice.language)")
	cmd.Flags().StringVar(&format, "format", "", "Input encoding (defaults to the file extension)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
