package render

import (
	"fmt"
	"io"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

// OperationRenderer renders the results of deploy, upgrade and import commands
type OperationRenderer struct {
	out io.Writer
}

// NewOperationRenderer creates a new operation renderer
func NewOperationRenderer(out io.Writer) *OperationRenderer {
	return &OperationRenderer{out: out}
}

func (r *OperationRenderer) print(summary string, rows [][2]string) error {
	fmt.Fprintln(r.out, FormatSuccess(summary))
	fmt.Fprintln(r.out)
	_, err := fmt.Fprintln(r.out, propertyTable(rows))
	return err
}

func (r *OperationRenderer) RenderDeployProxy(result *usecase.DeployProxyResult) error {
	rows := [][2]string{
		{"Proxy", formatAddress(result.Proxy)},
		{"Kind", kindName(result.Kind)},
		{"Implementation", formatAddress(result.Implementation)},
	}
	if result.Admin.Cmp(zeroAddress) != 0 {
		rows = append(rows, [2]string{"Admin", formatAddress(result.Admin)})
	}
	rows = append(rows, [2]string{"Transaction", formatHash(result.TxHash.Hex())})
	return r.print(fmt.Sprintf("Deployed %s proxy", kindName(result.Kind)), rows)
}

func (r *OperationRenderer) RenderUpgradeProxy(result *usecase.UpgradeProxyResult) error {
	if err := r.print(fmt.Sprintf("Upgraded %s proxy", kindName(result.Kind)), [][2]string{
		{"Proxy", formatAddress(result.Proxy)},
		{"Previous", formatAddress(result.PreviousImplementation)},
		{"Implementation", formatAddress(result.Implementation)},
		{"Upgraded by", formatAddress(result.UpgradedBy)},
		{"Transaction", formatHash(result.TxHash.Hex())},
	}); err != nil {
		return err
	}
	return NewReportRenderer(r.out).RenderNotes(result.Report)
}

func (r *OperationRenderer) RenderPrepareUpgrade(result *usecase.PrepareUpgradeResult) error {
	summary := "Prepared implementation"
	if result.TxHash == "" {
		summary = "Reusing deployed implementation"
	}
	if err := r.print(summary, [][2]string{
		{"Target", formatAddress(result.Address)},
		{"Kind", kindName(result.Kind)},
		{"Implementation", formatAddress(result.Implementation)},
		{"Transaction", formatHash(result.TxHash)},
	}); err != nil {
		return err
	}
	return NewReportRenderer(r.out).RenderNotes(result.Report)
}

func (r *OperationRenderer) RenderDeployBeacon(result *usecase.DeployBeaconResult) error {
	return r.print("Deployed beacon", [][2]string{
		{"Beacon", formatAddress(result.Beacon)},
		{"Implementation", formatAddress(result.Implementation)},
		{"Owner", formatAddress(result.Owner)},
		{"Transaction", formatHash(result.TxHash.Hex())},
	})
}

func (r *OperationRenderer) RenderDeployBeaconProxy(result *usecase.DeployBeaconProxyResult) error {
	return r.print("Deployed beacon proxy", [][2]string{
		{"Proxy", formatAddress(result.Proxy)},
		{"Beacon", formatAddress(result.Beacon)},
		{"Implementation", formatAddress(result.Implementation)},
		{"Transaction", formatHash(result.TxHash.Hex())},
	})
}

func (r *OperationRenderer) RenderUpgradeBeacon(result *usecase.UpgradeBeaconResult) error {
	if err := r.print("Upgraded beacon", [][2]string{
		{"Beacon", formatAddress(result.Beacon)},
		{"Previous", formatAddress(result.PreviousImplementation)},
		{"Implementation", formatAddress(result.Implementation)},
		{"Transaction", formatHash(result.TxHash.Hex())},
	}); err != nil {
		return err
	}
	return NewReportRenderer(r.out).RenderNotes(result.Report)
}

func (r *OperationRenderer) RenderForceImport(result *usecase.ForceImportResult) error {
	rows := [][2]string{
		{"Address", formatAddress(result.Address)},
		{"Kind", kindName(result.Kind)},
		{"Implementation", formatAddress(result.Implementation)},
	}
	if result.Admin.Cmp(zeroAddress) != 0 {
		rows = append(rows, [2]string{"Admin", formatAddress(result.Admin)})
	}
	rows = append(rows, [2]string{"Version", formatHash(result.Version.Key)})
	return r.print("Imported into the manifest", rows)
}

func (r *OperationRenderer) RenderDetect(info *usecase.ProxyInfo) error {
	fmt.Fprintf(r.out, "%s %s\n\n", titleStyle.Sprint(kindName(info.Kind)), formatAddress(info.Address))
	rows := [][2]string{{"Implementation", formatAddress(info.Implementation)}}
	if info.Admin.Cmp(zeroAddress) != 0 {
		rows = append(rows, [2]string{"Admin", formatAddress(info.Admin)})
	}
	if info.Beacon.Cmp(zeroAddress) != 0 {
		rows = append(rows, [2]string{"Beacon", formatAddress(info.Beacon)})
	}
	if info.UpgradeInterfaceVersion != "" {
		rows = append(rows, [2]string{"Upgrade interface", info.UpgradeInterfaceVersion})
	}
	_, err := fmt.Fprintln(r.out, propertyTable(rows))
	return err
}
