package cli

import (
	"fmt"
	"sort"

	"github.com/ppiankov/intentra/internal/rules"
	"github.com/spf13/cobra"
)

// rulesCmd represents the rules command
var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the rules directory",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check [dir]",
	Short: "Load the rules and report problems",
	Long: `Check loads every rule file the way the engine does and prints what was
loaded. Files that failed to parse make the command exit non-zero; skipped
patterns and intents are reported but tolerated.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRulesCheck,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesCheckCmd)
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dir := cfg.RulesDir
	if len(args) == 1 {
		dir = args[0]
	}

	files, readErr := rules.ReadDir(dir)
	if readErr != nil && len(files) == 0 {
		return readErr
	}
	rs := rules.Build(nil, files...)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Rules directory: %s\n\n", dir)

	failed := 0
	for _, f := range rs.Files {
		status := "ok"
		if f.Error != "" {
			status = "FAILED: " + f.Error
			failed++
		}
		fmt.Fprintf(out, "  %-28s %-16s entries=%-4d skipped=%-3d %s\n", f.Name, f.Kind, f.Entries, f.Skipped, status)
	}

	blocks := rs.BlockKeys()
	sort.Strings(blocks)

	fmt.Fprintf(out, "\n")
	fmt.Fprintf(out, "  Intents:          %d (unknown: %s)\n", len(rs.Intents()), rs.UnknownIntent())
	fmt.Fprintf(out, "  Keyword rules:    %d\n", len(rs.Keywords()))
	fmt.Fprintf(out, "  Pattern intents:  %d\n", len(rs.IntentPatterns()))
	fmt.Fprintf(out, "  Config blocks:    %v\n", blocks)

	if readErr != nil {
		return readErr
	}
	if failed > 0 {
		return fmt.Errorf("%d rule file(s) failed to load", failed)
	}
	return nil
}
