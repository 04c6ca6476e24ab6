package audit

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// RenderTable writes the entries as an aligned console table.
func RenderTable(w io.Writer, entries []Entry) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Item", "Discovery Script", "Remediation Script"})
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	table.SetAutoFormatHeaders(false)
	table.SetAutoMergeCells(false)
	table.SetAutoWrapText(false)
	table.SetReflowDuringAutoWrap(false)

	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{entry.ItemName, entry.DiscoveryInfo, entry.RemediationInfo})
	}
	table.AppendBulk(rows)
	table.Render()
}
