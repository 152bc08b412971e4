package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"weft/internal/verify"
)

var (
	verifyFormat string
	verifyFix    bool
	verifyDryRun bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the derived graph for referential and quality problems",
	Long: `Verify the stored model: interactions, flow steps, and module
members must reference rows that exist, and recorded values must agree
with the symbol evidence.

Referential violations are errors and fail verification. Quality
findings (suspicious weights, direction mismatches, missing symbol
evidence) are warnings.

With --fix, issues carrying fix data are repaired in report order;
--dry-run shows what a fix pass would do without writing.

Examples:
  weft verify
  weft verify --fix
  weft verify --fix --dry-run`,
	Args: cobra.NoArgs,
	Run:  runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyFormat, "format", "json", "Output format (json, human)")
	verifyCmd.Flags().BoolVar(&verifyFix, "fix", false, "Apply available fixes")
	verifyCmd.Flags().BoolVar(&verifyDryRun, "dry-run", false, "With --fix, report fixes without applying them")
	rootCmd.AddCommand(verifyCmd)
}

type VerifyResponseCLI struct {
	Result *verify.VerificationResult `json:"result"`
	Repair *verify.RepairResult       `json:"repair,omitempty"`
}

func runVerify(cmd *cobra.Command, args []string) {
	logger := newLogger()
	ctx := newContext()
	repoRoot := mustGetRepoRoot()
	st, _ := mustGetStore(repoRoot, logger)
	defer st.Close()

	result, err := verify.New(st, logger).Verify(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error verifying: %v\n", err)
		os.Exit(1)
	}

	resp := &VerifyResponseCLI{Result: result}
	if verifyFix {
		repair, err := verify.NewRepairer(st, logger, verifyDryRun).Repair(ctx, result.Issues)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error repairing: %v\n", err)
			os.Exit(1)
		}
		resp.Repair = repair
	}
	emit(resp, verifyFormat)

	if !result.Passed && !verifyFix {
		os.Exit(1)
	}
}
