package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/MolForge/internal/domain/molecule"
)

// NewDiseasesCmd creates the diseases command.
func NewDiseasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diseases",
		Short: "List supported generation targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var list diseaseList
			for _, d := range molecule.SupportedDiseases() {
				list = append(list, diseaseInfo{Code: d, Label: d.Label(), Prefix: d.NamePrefix()})
			}
			return PrintResult(cmd, list)
		},
	}
}

type diseaseInfo struct {
	Code   molecule.Disease `json:"code"`
	Label  string           `json:"label"`
	Prefix string           `json:"name_prefix"`
}

type diseaseList []diseaseInfo

func (l diseaseList) TableHeaders() []string { return []string{"CODE", "LABEL", "PREFIX"} }

func (l diseaseList) TableRows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, d := range l {
		rows = append(rows, []string{string(d.Code), d.Label, d.Prefix})
	}
	return rows
}

func (l diseaseList) String() string {
	var sb strings.Builder
	for _, d := range l {
		fmt.Fprintf(&sb, "%-12s %s\n", d.Code, d.Label)
	}
	return sb.String()
}
