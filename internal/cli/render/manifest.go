package render

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/domain/models"
	"github.com/OpenZeppelin/openzeppelin-upgrades-sub001/internal/usecase"
)

// ManifestRenderer renders the manifest of a network
type ManifestRenderer struct {
	out io.Writer
}

// NewManifestRenderer creates a new manifest renderer
func NewManifestRenderer(out io.Writer) *ManifestRenderer {
	return &ManifestRenderer{out: out}
}

func (r *ManifestRenderer) Render(result *usecase.ShowManifestResult) error {
	m := result.Manifest
	fmt.Fprintf(r.out, "%s %s\n", titleStyle.Sprintf("Chain %d", result.ChainID), labelStyle.Sprint(result.Path))
	fmt.Fprintf(r.out, "%s %s\n\n", labelStyle.Sprint("Manifest version"), m.ManifestVersion)

	if m.Admin != nil {
		fmt.Fprintf(r.out, "%s %s\n\n", titleStyle.Sprint("ProxyAdmin"), addressStyle.Sprint(m.Admin.Address))
	}

	if len(m.Proxies) == 0 && len(m.Impls) == 0 {
		_, err := fmt.Fprintln(r.out, "No deployments recorded for this network")
		return err
	}

	if len(m.Proxies) > 0 {
		fmt.Fprintln(r.out, titleStyle.Sprintf("Proxies (%d)", len(m.Proxies)))
		t := newListTable()
		t.AppendHeader(table.Row{"Address", "Kind", "Transaction"})
		for _, p := range m.Proxies {
			t.AppendRow(table.Row{addressStyle.Sprint(p.Address), string(p.Kind), formatHash(p.TxHash)})
		}
		fmt.Fprintln(r.out, t.Render())
		fmt.Fprintln(r.out)
	}

	if len(m.Impls) > 0 {
		fmt.Fprintln(r.out, titleStyle.Sprintf("Implementations (%d)", len(m.Impls)))
		t := newListTable()
		t.AppendHeader(table.Row{"Version", "Address", "Variables", "Previous"})
		for _, key := range result.ImplKeys {
			impl := m.Impls[key]
			t.AppendRow(table.Row{
				shortKey(key),
				addressStyle.Sprint(impl.Address),
				layoutSize(impl.Layout),
				len(impl.Addresses()) - 1,
			})
		}
		fmt.Fprintln(r.out, t.Render())
	}
	return nil
}

// RenderYAML writes the manifest using its JSON field names
func (r *ManifestRenderer) RenderYAML(result *usecase.ShowManifestResult) error {
	data, err := json.Marshal(result.Manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}

func newListTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.Style().Options.SeparateRows = false
	return t
}

func shortKey(key string) string {
	if len(key) <= 18 {
		return key
	}
	return key[:10] + "…" + key[len(key)-6:]
}

func layoutSize(l *models.StorageLayout) string {
	if l == nil {
		return labelStyle.Sprint("none")
	}
	n := len(l.Storage)
	for _, ns := range l.Namespaces {
		n += len(ns)
	}
	return fmt.Sprintf("%d", n)
}
