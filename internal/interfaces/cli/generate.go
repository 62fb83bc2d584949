package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/MolForge/internal/application/session"
	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
)

type generateOptions struct {
	disease string
	count   int
	mwMin   float64
	mwMax   float64
	logpMin float64
	logpMax float64
}

// NewGenerateCmd creates the generate command.
func NewGenerateCmd() *cobra.Command {
	opts := &generateOptions{}
	d := molecule.DefaultConstraints()

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a batch of candidate molecules for a target disease",
		Long: "Generate submits one generation request. When the generation service is\n" +
			"unreachable (or --mode mock is set) a deterministic local generator is used.\n" +
			"Constraint flags are optional; setting any of them sends all four bounds.",
		Example: "  molforge generate --disease glp1 --count 30\n" +
			"  molforge generate --disease alzheimers --mw-max 450 --logp-max 4 -o table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.disease, "disease", "d", "", "target disease code (see 'molforge diseases')")
	f.IntVarP(&opts.count, "count", "n", molecule.DefaultMolecules,
		fmt.Sprintf("number of molecules (%d-%d, step %d)", molecule.MinMolecules, molecule.MaxMolecules, molecule.MoleculesStep))
	f.Float64Var(&opts.mwMin, "mw-min", d.MolecularWeight.Min, "minimum molecular weight")
	f.Float64Var(&opts.mwMax, "mw-max", d.MolecularWeight.Max, "maximum molecular weight")
	f.Float64Var(&opts.logpMin, "logp-min", d.LogP.Min, "minimum LogP")
	f.Float64Var(&opts.logpMax, "logp-max", d.LogP.Max, "maximum LogP")
	_ = cmd.MarkFlagRequired("disease")

	return cmd
}

func (o *generateOptions) request(cmd *cobra.Command) (molecule.GenerationRequest, error) {
	disease, err := molecule.ParseDisease(o.disease)
	if err != nil {
		return molecule.GenerationRequest{}, err
	}
	req := molecule.GenerationRequest{TargetDisease: disease, NumMolecules: o.count}

	f := cmd.Flags()
	if f.Changed("mw-min") || f.Changed("mw-max") || f.Changed("logp-min") || f.Changed("logp-max") {
		req.Constraints = &molecule.Constraints{
			MolecularWeight: molecule.Range{Min: o.mwMin, Max: o.mwMax},
			LogP:            molecule.Range{Min: o.logpMin, Max: o.logpMax},
		}
	}
	return req, req.Validate()
}

func runGenerate(cmd *cobra.Command, opts *generateOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	req, err := opts.request(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()
	app, err := cliCtx.App(ctx)
	if err != nil {
		return err
	}

	cliCtx.Logger.Info("submitting generation request",
		logging.String("disease", req.TargetDisease.String()),
		logging.Int("count", req.NumMolecules),
		logging.String("mode", app.Mode))

	if err := app.Coordinator.Submit(ctx, req); err != nil {
		return err
	}

	st := app.Store.Snapshot()
	res := generateResult{
		Source:    st.Source,
		Disease:   req.TargetDisease,
		Molecules: st.Molecules,
	}
	if st.Banner != nil {
		res.Message = st.Banner.Message
	}
	return PrintResult(cmd, res)
}

// generateResult is the printable outcome of one generation cycle.
type generateResult struct {
	Source    session.Source      `json:"source"`
	Disease   molecule.Disease    `json:"target_disease"`
	Message   string              `json:"message,omitempty"`
	Molecules []molecule.Molecule `json:"molecules"`
}

func (r generateResult) TableHeaders() []string {
	return []string{"#", "NAME", "SMILES", "MW", "LOGP", "TPSA", "AFFINITY", "SYNTHESIS"}
}

func (r generateResult) TableRows() [][]string {
	rows := make([][]string, 0, len(r.Molecules))
	for i, m := range r.Molecules {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			m.Name,
			m.SMILES,
			fmt.Sprintf("%.2f", m.MolecularWeight),
			fmt.Sprintf("%.2f", m.LogP),
			fmt.Sprintf("%.2f", m.TPSA),
			optionalScore(m.BindingAffinity),
			optionalScore(m.SynthesisScore),
		})
	}
	return rows
}

func (r generateResult) String() string {
	var sb strings.Builder
	if r.Message != "" {
		fmt.Fprintf(&sb, "%s %s\n", color.GreenString("✓"), r.Message)
	}
	label := "generation service"
	if r.Source == session.SourceOracle {
		label = color.YellowString("local generator")
	}
	fmt.Fprintf(&sb, "%d molecules for %s via %s\n\n", len(r.Molecules), r.Disease.Label(), label)
	for i, m := range r.Molecules {
		fmt.Fprintf(&sb, "%3d. %-12s %s\n", i+1, m.Name, m.SMILES)
		fmt.Fprintf(&sb, "     MW %.2f  LogP %.2f  TPSA %.2f  affinity %s  synthesis %s\n",
			m.MolecularWeight, m.LogP, m.TPSA, optionalScore(m.BindingAffinity), optionalScore(m.SynthesisScore))
	}
	return sb.String()
}

// optionalScore renders an optional score, or a dash when absent.
func optionalScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
