package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/MolForge/internal/application/enrichment"
	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/pkg/errors"
)

// NewInspectCmd creates the inspect command.
func NewInspectCmd() *cobra.Command {
	var sdfOut string

	cmd := &cobra.Command{
		Use:   "inspect <smiles>",
		Short: "Show properties, ADMET prediction and 3D structure of a molecule",
		Long: "Inspect runs the detail-view lookups for one molecule concurrently. A failed\n" +
			"lookup does not hide the others: missing properties print as a dash and a\n" +
			"missing structure falls back to a placeholder ring.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args[0], sdfOut)
		},
	}
	cmd.Flags().StringVar(&sdfOut, "sdf-out", "", "write the 3D structure to this SDF file")
	return cmd
}

func runInspect(cmd *cobra.Command, smiles, sdfOut string) error {
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

	res := inspectResult{SMILES: smiles}
	var g errgroup.Group
	g.Go(func() error {
		p, err := f.FetchProperties(ctx, smiles)
		if err != nil {
			// Property failures are silent; the snapshot shows unresolved.
			return nil
		}
		res.setProperties(p)
		return nil
	})
	g.Go(func() error {
		r, err := f.PredictADMET(ctx, smiles)
		if err != nil {
			res.ADMETError = errors.Message(err)
			return nil
		}
		res.ADMET = &r
		return nil
	})
	g.Go(func() error {
		s, err := f.FetchStructure(ctx, smiles)
		if err != nil {
			return err
		}
		res.Structure = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	res.PropertiesStatus = f.Snapshot(smiles).Properties.Status

	if sdfOut != "" {
		if err := os.WriteFile(sdfOut, []byte(res.Structure.SDF), 0o644); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to write SDF file").WithDetail(sdfOut)
		}
	}
	return PrintResult(cmd, res)
}

// inspectResult collects the independent lookups of one molecule.
type inspectResult struct {
	SMILES           string                       `json:"smiles"`
	PropertiesStatus enrichment.Status            `json:"properties_status"`
	Properties       *molecule.DetailedProperties `json:"properties,omitempty"`
	Lipinski         []molecule.LipinskiCheck     `json:"lipinski,omitempty"`
	DrugLike         *bool                        `json:"drug_like,omitempty"`
	ADMET            *molecule.ADMETResult        `json:"admet,omitempty"`
	ADMETError       string                       `json:"admet_error,omitempty"`
	Structure        enrichment.Structure         `json:"structure"`
}

func (r *inspectResult) setProperties(p molecule.DetailedProperties) {
	drugLike := p.DrugLike()
	r.Properties = &p
	r.Lipinski = p.LipinskiChecks()
	r.DrugLike = &drugLike
}

func (r inspectResult) TableHeaders() []string { return []string{"LOOKUP", "FIELD", "VALUE"} }

func (r inspectResult) TableRows() [][]string {
	var rows [][]string
	if p := r.Properties; p != nil {
		rows = append(rows,
			[]string{"properties", "hbd", fmt.Sprintf("%d", p.HBD)},
			[]string{"properties", "hba", fmt.Sprintf("%d", p.HBA)},
			[]string{"properties", "rotatable_bonds", fmt.Sprintf("%d", p.RotatableBonds)},
			[]string{"properties", "qed", fmt.Sprintf("%.2f", p.QED)},
			[]string{"properties", "drug_like", fmt.Sprintf("%t", *r.DrugLike)},
		)
	} else {
		rows = append(rows, []string{"properties", "status", string(r.PropertiesStatus)})
	}
	if a := r.ADMET; a != nil {
		for _, s := range a.Scores() {
			rows = append(rows, []string{"admet", s.Category, fmt.Sprintf("%.2f", s.Score)})
		}
		rows = append(rows, []string{"admet", "overall", fmt.Sprintf("%.2f", a.OverallScore)})
	} else {
		rows = append(rows, []string{"admet", "error", r.ADMETError})
	}
	rows = append(rows, []string{"structure", "placeholder", fmt.Sprintf("%t", r.Structure.Placeholder)})
	return rows
}

func (r inspectResult) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n", color.New(color.Bold).Sprint(r.SMILES))

	sb.WriteString("Properties\n")
	if p := r.Properties; p != nil {
		fmt.Fprintf(&sb, "  HBD %d  HBA %d  rotatable bonds %d  QED %.2f\n", p.HBD, p.HBA, p.RotatableBonds, p.QED)
		for _, c := range r.Lipinski {
			mark := color.GreenString("pass")
			if !c.Pass {
				mark = color.RedString("fail")
			}
			fmt.Fprintf(&sb, "  %-18s %8.2f  (limit %g)  %s\n", c.Rule, c.Value, c.Limit, mark)
		}
		verdict := color.GreenString("drug-like")
		if !*r.DrugLike {
			verdict = color.RedString("not drug-like")
		}
		fmt.Fprintf(&sb, "  Lipinski: %s\n", verdict)
	} else {
		sb.WriteString("  -\n")
	}

	sb.WriteString("\nADMET\n")
	if a := r.ADMET; a != nil {
		writeADMET(&sb, *a)
	} else {
		fmt.Fprintf(&sb, "  %s %s\n", color.RedString("failed:"), r.ADMETError)
	}

	sb.WriteString("\n3D structure\n")
	if r.Structure.Placeholder {
		fmt.Fprintf(&sb, "  %s\n", color.YellowString("unavailable, showing placeholder ring"))
	} else {
		fmt.Fprintf(&sb, "  %d SDF lines\n", strings.Count(r.Structure.SDF, "\n"))
	}
	return sb.String()
}
