package cli

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/ppiankov/intentra/internal/model"
	"github.com/ppiankov/intentra/internal/worker"
	"github.com/spf13/cobra"
)

var (
	batchCtx     contextFlags
	concurrency  int
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Process a file of utterances in parallel",
	Long: `Batch processes one utterance per line concurrently:
- Blank lines and lines starting with '#' are skipped
- Every utterance gets the same context
- One JSON object per input line is printed, in input order

Example:
  intentra batch utterances.txt
  intentra batch utterances.txt --concurrency 16 --timeout 5m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCtx.bind(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of utterances processed at once")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
}

// batchLine is one line of batch output
type batchLine struct {
	Line   int                 `json:"line"`
	Text   string              `json:"text"`
	Result *model.IntentResult `json:"result,omitempty"`
	Error  string              `json:"error,omitempty"`
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]

	rc, err := batchCtx.build()
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, batchTimeout)
	defer cancel()

	processor := worker.NewBatchProcessor(func(ctx context.Context, text string) (*model.IntentResult, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return s.engine.Process(ctx, text, rc), nil
	}, concurrency)

	start := time.Now()
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	failures := 0
	unknown := 0
	for _, r := range results {
		out := batchLine{Line: r.Line.Number, Text: r.Line.Text, Result: r.Value}
		if r.Err != nil {
			failures++
			out.Error = r.Err.Error()
		} else if r.Value.Source == model.SourceSystem {
			unknown++
		}
		if err := writeJSON(cmd, out, false); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "\n")
	fmt.Fprintf(cmd.ErrOrStderr(), "  Total:     %d utterances\n", len(results))
	fmt.Fprintf(cmd.ErrOrStderr(), "  Unknown:   %d\n", unknown)
	fmt.Fprintf(cmd.ErrOrStderr(), "  Failures:  %d\n", failures)
	fmt.Fprintf(cmd.ErrOrStderr(), "  Elapsed:   %v\n", time.Since(start).Round(time.Millisecond))

	return nil
}
