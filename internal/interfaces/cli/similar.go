package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/MolForge/internal/application/enrichment"
	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
)

type similarOptions struct {
	threshold float64
	limit     int
}

// NewSimilarCmd creates the similar command.
func NewSimilarCmd() *cobra.Command {
	opts := &similarOptions{}
	cmd := &cobra.Command{
		Use:   "similar <smiles>",
		Short: "Find known molecules similar to a structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimilar(cmd, args[0], opts)
		},
	}
	cmd.Flags().Float64VarP(&opts.threshold, "threshold", "t", 0,
		fmt.Sprintf("similarity threshold %.1f-%.1f (default from config)", molecule.MinSimilarityThreshold, molecule.MaxSimilarityThreshold))
	cmd.Flags().IntVarP(&opts.limit, "limit", "l", 0, "maximum number of matches (default from config)")
	return cmd
}

func runSimilar(cmd *cobra.Command, smiles string, opts *similarOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	threshold := cliCtx.Config.Enrichment.SimilarityThreshold
	if cmd.Flags().Changed("threshold") {
		threshold = opts.threshold
	}
	if err := enrichment.CheckThreshold(threshold); err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()
	app, err := cliCtx.App(ctx)
	if err != nil {
		return err
	}

	f := app.Views.Open(smiles)
	defer app.Views.Close(smiles)

	matches, err := f.FindSimilar(ctx, smiles, threshold, opts.limit)
	if err != nil {
		return err
	}
	cliCtx.Logger.Debug("similarity search completed",
		logging.Float64("threshold", threshold), logging.Int("matches", len(matches)))
	return PrintResult(cmd, similarResult{Query: smiles, Threshold: threshold, Matches: matches})
}

type similarResult struct {
	Query     string                     `json:"query_smiles"`
	Threshold float64                    `json:"threshold"`
	Matches   []molecule.SimilarityMatch `json:"matches"`
}

func (r similarResult) TableHeaders() []string {
	return []string{"#", "NAME", "SIMILARITY", "SMILES", "MW", "LOGP", "TPSA"}
}

func (r similarResult) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Matches))
	for i, m := range r.Matches {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			m.Name,
			fmt.Sprintf("%.3f", m.Similarity),
			m.SMILES,
			fmt.Sprintf("%.2f", m.MolecularWeight),
			fmt.Sprintf("%.2f", m.LogP),
			fmt.Sprintf("%.2f", m.TPSA),
		})
	}
	return rows
}

func (r similarResult) String() string {
	if len(r.Matches) == 0 {
		return fmt.Sprintf("No similar molecules found.\nTry lowering the similarity threshold (current: %.2f)\n", r.Threshold)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d matches at threshold %.2f\n\n", len(r.Matches), r.Threshold)
	for i, m := range r.Matches {
		sim := fmt.Sprintf("%.3f", m.Similarity)
		if m.Similarity >= 0.9 {
			sim = color.GreenString(sim)
		}
		fmt.Fprintf(&sb, "%3d. %-24s %s  %s\n", i+1, m.Name, sim, m.SMILES)
	}
	return sb.String()
}
