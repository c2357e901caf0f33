package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/intentra/internal/model"
	"github.com/ppiankov/intentra/internal/sheet"
	"github.com/ppiankov/intentra/internal/slots"
	"github.com/spf13/cobra"
)

var (
	classifySheet     string
	classifyType      string
	classifyThreshold float64
	classifyKeepEmpty bool
	classifyPattern   string
)

// classifyCmd represents the classify command
var classifyCmd = &cobra.Command{
	Use:   "classify <records.json|workbook.xlsx>",
	Short: "Classify satellite interruptions of a record batch",
	Long: `Classify runs the anomaly classifier directly on a record batch.

The input is either a JSON array of records
  [{"<segment>": {"start_time": "...", "end_time": "...", "satellites": {"A0015": 0.5}}}, ...]
or a workbook, parsed the same way as the sheet recognizer does.

Example:
  intentra classify records.json
  intentra classify links.xlsx --sheet 中断统计 --threshold 15`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringVar(&classifySheet, "sheet", "", "worksheet name (workbook input)")
	classifyCmd.Flags().StringVar(&classifyType, "type", sheet.TypeMerged, "sheet type: merged or standardized")
	classifyCmd.Flags().Float64Var(&classifyThreshold, "threshold", 15, "interruption threshold in seconds")
	classifyCmd.Flags().BoolVar(&classifyKeepEmpty, "keep-empty", false, "keep segments without interruptions")
	classifyCmd.Flags().StringVar(&classifyPattern, "segment-pattern", sheet.DefaultSegmentPattern, "segment name pattern (standardized sheets)")
}

func runClassify(cmd *cobra.Command, args []string) error {
	records, err := readRecords(args[0])
	if err != nil {
		return err
	}
	return writeJSON(cmd, slots.Classify(records), true)
}

func readRecords(path string) ([]model.SegmentRecord, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		if classifySheet == "" {
			return nil, fmt.Errorf("--sheet is required for workbook input")
		}
		return sheet.Read(path, classifySheet, sheet.Options{
			Type:                 classifyType,
			DurationThreshold:    classifyThreshold,
			IgnoreNoInterruption: !classifyKeepEmpty,
			SegmentPattern:       classifyPattern,
		})
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	var records []model.SegmentRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse records: %w", err)
	}
	return records, nil
}
