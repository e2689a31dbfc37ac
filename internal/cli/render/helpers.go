package render

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain"
)

var (
	zeroAddress common.Address

	labelStyle   = color.New(color.Faint)
	addressStyle = color.New(color.FgWhite, color.Bold)
	hashStyle    = color.New(color.Faint)
	titleStyle   = color.New(color.Bold, color.FgHiWhite)
)

// FormatWarning formats a warning message with the warning icon
func FormatWarning(message string) string {
	return color.New(color.FgYellow).Sprintf("⚠️  %s", message)
}

// FormatError formats an error message with the error icon. Multi-line messages keep
// their layout; only the first letter is capitalized.
func FormatError(message string) string {
	if len(message) > 0 {
		message = strings.ToUpper(message[:1]) + message[1:]
	}
	return color.New(color.FgRed).Sprintf("❌ %s", message)
}

// FormatSuccess formats a success message with the success icon
func FormatSuccess(message string) string {
	return color.New(color.FgGreen).Sprintf("✅ %s", message)
}

// kindName renders a proxy kind for humans, e.g. "Beacon Proxy"
func kindName(kind domain.ProxyKind) string {
	return cases.Title(language.English).String(strings.ReplaceAll(kind.String(), "-", " "))
}

func formatAddress(addr common.Address) string {
	if addr == (common.Address{}) {
		return labelStyle.Sprint("-")
	}
	return addressStyle.Sprint(addr.Hex())
}

func formatHash(hash string) string {
	if hash == "" || hash == (common.Hash{}).Hex() {
		return labelStyle.Sprint("-")
	}
	return hashStyle.Sprint(hash)
}

// propertyTable renders label/value rows without borders
func propertyTable(rows [][2]string) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateColumns = false
	t.Style().Options.SeparateHeader = false
	t.Style().Box = table.BoxStyle{
		PaddingLeft:  "  ",
		PaddingRight: "  ",
	}
	for _, row := range rows {
		t.AppendRow(table.Row{labelStyle.Sprint(row[0]), row[1]})
	}
	return t.Render()
}
