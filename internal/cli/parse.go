package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var (
	parseCtx     contextFlags
	parseCompact bool
)

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse [text...]",
	Short: "Recognize the intent and slots of one utterance",
	Long: `Parse runs every recognizer on the text, fuses the answers and fills slots.
Without arguments the text is read from stdin.

Example:
  intentra parse "预订北京的机票"
  intentra parse ok --last-intent book_flight
  intentra parse --trigger-sheet --filler anomaly_slot_filler --sheet-path links.xlsx`,
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
	parseCtx.bind(parseCmd)
	parseCmd.Flags().BoolVar(&parseCompact, "compact", false, "print JSON on one line")
}

func runParse(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	}

	rc, err := parseCtx.build()
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	res := s.engine.Process(ctx, text, rc)
	return writeJSON(cmd, res, !parseCompact)
}
