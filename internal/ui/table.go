package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

func styledTable(headers []string, rows [][]string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
}

// FileView renders name, size and type of a file as a one-row table.
func FileView(name string, size int64, mimeType string) string {
	return styledTable(
		[]string{"Name", "Size", "Type"},
		[][]string{{Truncate(name, 50), FormatSize(size), Truncate(mimeType, 24)}},
	).Render()
}

func RenderFile(name string, size int64, mimeType string) {
	fmt.Println(FileView(name, size, mimeType))
}

type TransferSummary struct {
	Status    string
	File      string
	TotalSize string
	Duration  string
	Speed     string
}

func TransferSummaryView(summary TransferSummary) string {
	return styledTable(
		[]string{"Metric", "Value"},
		[][]string{
			{"Status", summary.Status},
			{"File", summary.File},
			{"Total Size", summary.TotalSize},
			{"Duration", summary.Duration},
			{"Avg Speed", summary.Speed},
		},
	).Render()
}

func RenderTransferSummary(summary TransferSummary) {
	fmt.Println(TransferSummaryView(summary))
}

// CodeView renders the box the sender reads the pairing code from.
func CodeView(code string) string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Code:  %s\n\n%s",
		IconSuccess,
		IconCode, CodeStyle.Render(code),
		MutedStyle.Render("Run `codedrop receive "+code+"` on the other device"),
	)
	return CodeBoxStyle.Render(content)
}

func RenderCode(code string) {
	fmt.Println(CodeView(code))
}

// DropView renders the receipt of a stored drop.
func DropView(code string, expiresAt time.Time, maxDevices int) string {
	content := fmt.Sprintf("%s Drop stored!\n\n%s Code:     %s\n%s Expires:  %s\n%s Devices:  %d",
		IconSuccess,
		IconCode, CodeStyle.Render(code),
		IconClock, expiresAt.Local().Format(time.Kitchen),
		IconDevices, maxDevices,
	)
	return InfoBoxStyle.Render(content)
}

func RenderDrop(code string, expiresAt time.Time, maxDevices int) {
	fmt.Println(DropView(code, expiresAt, maxDevices))
}
