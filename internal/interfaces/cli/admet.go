package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/MolForge/internal/domain/molecule"
)

// NewADMETCmd creates the admet command.
func NewADMETCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "admet <smiles>",
		Short: "Predict absorption, distribution, metabolism, excretion and toxicity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runADMET(cmd, args[0])
		},
	}
}

func runADMET(cmd *cobra.Command, smiles string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
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

	r, err := f.PredictADMET(ctx, smiles)
	if err != nil {
		return err
	}
	return PrintResult(cmd, admetResult{r})
}

type admetResult struct {
	molecule.ADMETResult
}

func (r admetResult) TableHeaders() []string { return []string{"CATEGORY", "SCORE", "GRADE"} }

func (r admetResult) TableRows() [][]string {
	scores := append(r.Scores(), molecule.CategoryScore{Category: "overall", Score: r.OverallScore})
	rows := make([][]string, 0, len(scores))
	for _, s := range scores {
		rows = append(rows, []string{s.Category, fmt.Sprintf("%.2f", s.Score), molecule.ScoreGrade(s.Score)})
	}
	return rows
}

func (r admetResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n", color.New(color.Bold).Sprint(r.SMILES))
	writeADMET(&sb, r.ADMETResult)
	return sb.String()
}

// writeADMET renders the category scores, the headline details and any
// raised toxicity flags.
func writeADMET(sb *strings.Builder, r molecule.ADMETResult) {
	for _, s := range r.Scores() {
		fmt.Fprintf(sb, "  %-13s %s\n", s.Category, gradeColor(s.Score))
	}
	fmt.Fprintf(sb, "  %-13s %s (%s)\n", "overall", gradeColor(r.OverallScore), molecule.ScoreGrade(r.OverallScore))

	d := r.Details
	fmt.Fprintf(sb, "  bioavailability %.2f  half-life %.1fh  LD50 %.0f mg/kg\n", d.Bioavailability, d.HalfLife, d.LD50)
	if len(d.CYPInhibition) > 0 {
		fmt.Fprintf(sb, "  CYP inhibition: %s\n", strings.Join(d.CYPInhibition, ", "))
	}
	if flags := r.ToxicityFlags(); len(flags) > 0 {
		fmt.Fprintf(sb, "  %s %s\n", color.RedString("toxicity flags:"), strings.Join(flags, ", "))
	}
}

// gradeColor formats a score coloured by its grade.
func gradeColor(score float64) string {
	s := fmt.Sprintf("%.2f", score)
	switch molecule.ScoreGrade(score) {
	case "good":
		return color.GreenString(s)
	case "moderate":
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}
