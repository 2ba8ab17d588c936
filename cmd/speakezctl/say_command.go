package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/speakez/internal/app"
	"github.com/MrWong99/speakez/pkg/audio"
	"github.com/MrWong99/speakez/pkg/provider/tts"
)

func newSayCommand(ctx *commandContext) *cobra.Command {
	var output string
	var language string
	var voice string
	var speed float64

	cmd := &cobra.Command{
		Use:   "say <text>",
		Short: "Synthesise a reference pronunciation to a WAV file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			ps, err := ctx.providers()
			if err != nil {
				return err
			}
			defer ps.Close()

			opts := tts.Options{Language: language, Voice: voice, Speed: speed}
			if opts.Language == "" {
				opts.Language = cfg.Practice.Language
			}
			if opts.Voice == "" {
				opts.Voice = cfg.Practice.Voice
			}
			clip, err := ps.TTS.Synthesize(cmd.Context(), strings.Join(args, " "), opts)
			if err != nil {
				return err
			}

			wav := clip.Data
			if clip.Encoding != audio.EncodingWAV {
				wav, err = app.NewConverter(cfg.Converter).Convert(cmd.Context(), clip.Data,
					audio.Source{Encoding: clip.Encoding, Format: clip.Format},
					audio.Target{Encoding: audio.EncodingWAV})
				if err != nil {
					return fmt.Errorf("convert %s to wav: %w", clip.Encoding, err)
				}
			}
			pcm, f, err := audio.DecodeWAV(wav)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, wav, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s, %s)\n", output, f.Duration(len(pcm)).Round(10*time.Millisecond), f)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "pronunciation.wav", "Destination WAV file")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Language tag (defaults to practice.language)")
	cmd.Flags().StringVar(&voice, "voice", "", "Voice identifier (defaults to practice.voice)")
	cmd.Flags().Float64Var(&speed, "speed", 0, "Playback speed multiplier")
	return cmd
}

func newVoicesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the voices offered by the TTS provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, err := ctx.providers()
			if err != nil {
				return err
			}
			defer ps.Close()

			lister, ok := ps.TTS.(tts.VoiceLister)
			if !ok {
				return fmt.Errorf("tts provider %q cannot list voices", ps.TTSName)
			}
			voices, err := lister.ListVoices(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				if voices == nil {
					voices = []tts.Voice{}
				}
				return writeJSON(cmd, voices)
			}
			if len(voices) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No voices reported.")
				return nil
			}
			rows := make([][]string, 0, len(voices))
			for _, v := range voices {
				rows = append(rows, []string{v.ID, v.Name, v.Language, v.Provider})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Name", "Language", "Provider"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
