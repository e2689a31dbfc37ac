package render

import (
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/layout"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

var (
	safeStyle   = color.New(color.FgGreen)
	unsafeStyle = color.New(color.FgRed)
)

// ReportRenderer renders storage layout reports and validation results
type ReportRenderer struct {
	out io.Writer
}

// NewReportRenderer creates a new report renderer
func NewReportRenderer(out io.Writer) *ReportRenderer {
	return &ReportRenderer{out: out}
}

// RenderNotes lists the layout changes of an accepted upgrade. Nothing is printed when the
// layouts are identical.
func (r *ReportRenderer) RenderNotes(report *layout.Report) error {
	if report == nil || len(report.Changes) == 0 {
		return nil
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, titleStyle.Sprint("Storage layout changes:"))

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Op", "Variable", "Namespace", ""})
	for _, c := range report.Changes {
		t.AppendRow(table.Row{string(c.Op), variableLabel(c), c.Namespace, changeVerdict(c)})
	}
	_, err := fmt.Fprintln(r.out, t.Render())
	return err
}

func (r *ReportRenderer) RenderValidateImplementation(result *usecase.ValidateImplementationResult) error {
	fmt.Fprintln(r.out, FormatSuccess(fmt.Sprintf("%s is upgrade safe", result.Contract)))
	fmt.Fprintln(r.out)
	_, err := fmt.Fprintln(r.out, propertyTable([][2]string{
		{"Kind", kindName(result.Kind)},
		{"Version", formatHash(result.Version.Key)},
	}))
	return err
}

func (r *ReportRenderer) RenderValidateUpgrade(result *usecase.ValidateUpgradeResult) error {
	fmt.Fprintln(r.out, FormatSuccess(fmt.Sprintf("Upgrade to %s is safe", result.Contract)))
	fmt.Fprintln(r.out)
	rows := [][2]string{{"Kind", kindName(result.Kind)}}
	if result.Current != zeroAddress {
		rows = append(rows, [2]string{"Current", formatAddress(result.Current)})
	}
	if _, err := fmt.Fprintln(r.out, propertyTable(rows)); err != nil {
		return err
	}
	return r.RenderNotes(result.Report)
}

// RenderError prints err with a hint for the errors a user can act on
func (r *ReportRenderer) RenderError(err error) {
	fmt.Fprintln(r.out, FormatError(err.Error()))

	var hint string
	var unsafe *domain.NotUpgradeSafeError
	var conflict *domain.StorageLayoutConflictError
	switch {
	case errors.As(err, &unsafe):
		hint = "Fix the contract, or allow the reported patterns with --unsafe-allow or a @custom:oz-upgrades-unsafe-allow annotation"
	case errors.As(err, &conflict):
		hint = "Keep existing variables in place and append new ones, or pass --unsafe-skip-storage-check if the change is intended"
	case errors.Is(err, domain.ErrNoNetwork):
		hint = "Select a network with --network"
	case errors.Is(err, domain.ErrNoSigner):
		hint = "Set PRIVATE_KEY or TREB_PRIVATE_KEY to send transactions"
	}
	if hint != "" {
		fmt.Fprintln(r.out, FormatWarning(hint))
	}
}

func variableLabel(c models.LayoutChange) string {
	if c.Op == models.LayoutOpRename && c.Original != nil && c.Updated != nil {
		return fmt.Sprintf("%s → %s", c.Original.Label, c.Updated.Label)
	}
	if s := c.Subject(); s != nil {
		return s.Label
	}
	return ""
}

func changeVerdict(c models.LayoutChange) string {
	if c.Safe || c.Op == models.LayoutOpAppend {
		return safeStyle.Sprint("safe")
	}
	return unsafeStyle.Sprint("allowed")
}
