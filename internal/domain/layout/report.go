package layout

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
)

// Options are the caller overrides honored when judging a report
type Options struct {
	UnsafeAllowRenames bool
}

// Report is the ordered list of changes between two layouts
type Report struct {
	Changes []models.LayoutChange `json:"changes"`
}

// Unsafe returns the changes that block an upgrade under the given options
func (r *Report) Unsafe(opts Options) []models.LayoutChange {
	return lo.Filter(r.Changes, func(c models.LayoutChange, _ int) bool {
		return isUnsafe(c, opts)
	})
}

// Pass reports whether the upgrade is storage compatible under the given options
func (r *Report) Pass(opts Options) bool {
	return len(r.Unsafe(opts)) == 0
}

// Explain describes every change that is not known to be safe, one per line
func (r *Report) Explain() string {
	return explain(r.Unsafe(Options{}))
}

// Check returns a StorageLayoutConflictError naming every unsafe change
func (r *Report) Check(contract string, opts Options) error {
	unsafe := r.Unsafe(opts)
	if len(unsafe) == 0 {
		return nil
	}
	return &domain.StorageLayoutConflictError{
		Contract:    contract,
		Changes:     unsafe,
		Explanation: explain(unsafe),
	}
}

func isUnsafe(c models.LayoutChange, opts Options) bool {
	if c.Safe {
		return false
	}
	switch c.Op {
	case models.LayoutOpAppend:
		return false
	case models.LayoutOpRename:
		return !opts.UnsafeAllowRenames
	default:
		return true
	}
}

func explain(changes []models.LayoutChange) string {
	lines := lo.Map(changes, func(c models.LayoutChange, _ int) string {
		return Describe(c)
	})
	return strings.Join(lines, "\n\n")
}

// Describe renders a single change for humans
func Describe(c models.LayoutChange) string {
	var b strings.Builder
	subject := c.Subject()
	if subject != nil && subject.Contract != "" {
		fmt.Fprintf(&b, "%s: ", subject.Contract)
	}
	if c.Namespace != "" {
		fmt.Fprintf(&b, "(namespace %s) ", c.Namespace)
	}

	switch c.Op {
	case models.LayoutOpAppend:
		fmt.Fprintf(&b, "Added `%s`", c.Updated.Label)
	case models.LayoutOpInsert:
		fmt.Fprintf(&b, "Inserted `%s`", c.Updated.Label)
		if !c.Safe {
			b.WriteString("\n  > New variables should be placed after all existing inherited variables")
		}
	case models.LayoutOpDelete:
		fmt.Fprintf(&b, "Deleted `%s`", c.Original.Label)
		b.WriteString("\n  > Keep the variable even if unused")
	case models.LayoutOpTypeChange:
		fmt.Fprintf(&b, "Upgraded `%s` to an incompatible type", c.Original.Label)
	case models.LayoutOpLayoutChange:
		fmt.Fprintf(&b, "Layout changed for `%s`", c.Subject().Label)
	case models.LayoutOpRename:
		fmt.Fprintf(&b, "Renamed `%s` to `%s`", c.Original.Label, c.Updated.Label)
	case models.LayoutOpReplace:
		fmt.Fprintf(&b, "Replaced `%s` with `%s` of incompatible type", c.Original.Label, c.Updated.Label)
	default:
		fmt.Fprintf(&b, "%s `%s`", c.Op, subject.Label)
	}

	if c.Detail != "" && c.Op != models.LayoutOpDelete {
		fmt.Fprintf(&b, "\n  - %s", c.Detail)
	}
	return b.String()
}
