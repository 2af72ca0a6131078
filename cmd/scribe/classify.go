package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/MikeSquared-Agency/scribe/internal/classifier"
	"github.com/MikeSquared-Agency/scribe/internal/retrieval"
)

func classifyCommand() *cobra.Command {
	var cursor int

	cmd := &cobra.Command{
		Use:   "classify [text]",
		Short: "Classify the writing context at a cursor position",
		Long:  "Print the writing-context classification and the retrieval query for text. Reads stdin when no text is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 1 {
				text = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = strings.TrimRight(string(data), "\n")
			}

			out := struct {
				classifier.Result
				Query string `json:"query_used"`
			}{
				Result: classifier.Classify(text, cursor),
				Query:  retrieval.BuildQuery(text, cursor),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().IntVarP(&cursor, "cursor", "c", -1, "cursor position in characters (-1 = end of text)")
	return cmd
}
