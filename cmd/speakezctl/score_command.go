package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MrWong99/speakez/internal/hint"
	"github.com/MrWong99/speakez/internal/practice"
	"github.com/MrWong99/speakez/pkg/scoring"
)

type scoreOutput struct {
	Percentage  float64              `json:"percentage"`
	Formatted   string               `json:"formatted"`
	Matched     int                  `json:"matched"`
	Total       int                  `json:"total"`
	Annotations []scoring.Annotation `json:"annotations"`
	Message     string               `json:"message,omitempty"`
	Hints       []hint.Hint          `json:"hints,omitempty"`
}

func newScoreCommand() *cobra.Command {
	var asJSON bool
	var noHints bool

	cmd := &cobra.Command{
		Use:         "score <reference> <candidate>",
		Short:       "Compare a reference text with what was said",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			res := scoring.Score(args[0], args[1])
			out := scoreOutput{
				Percentage:  res.Percentage,
				Formatted:   res.Format(),
				Matched:     res.Matched(),
				Total:       res.Total(),
				Annotations: res.Annotations,
			}
			if res.NoMatch() {
				out.Message = practice.NoMatchMessage
			}
			if !noHints {
				out.Hints = hint.New().Suggest(res, args[1])
			}
			if asJSON {
				return writeJSON(cmd, out)
			}

			w := cmd.OutOrStdout()
			colorize := shouldColorize(w)
			fmt.Fprintf(w, "Reference: %s\n", renderAnnotations(out.Annotations, colorize))
			if out.Message != "" {
				fmt.Fprintf(w, "Match:     %s\n", out.Message)
			} else {
				fmt.Fprintf(w, "Match:     %s (%d of %d words)\n", out.Formatted, out.Matched, out.Total)
			}
			if len(out.Hints) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(out.Hints))
			for _, h := range out.Hints {
				heard, similarity := h.Heard, ""
				if heard == "" {
					heard = "-"
				} else {
					similarity = strconv.FormatFloat(h.Similarity, 'f', 2, 64)
				}
				rows = append(rows, []string{h.Word, heard, similarity, yesNo(h.Phonetic)})
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, renderTable(
				[]string{"Missed", "Heard", "Similarity", "Sounds alike"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noHints, "no-hints", false, "Skip suggestions for missed words")
	return cmd
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
