package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dkeye/meshroom/internal/domain"
)

var (
	primary     = lipgloss.Color("#7D56F4")
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(primary)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	senderStyle = lipgloss.NewStyle().Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(primary).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func historyTable(msgs []domain.ChatMessage) string {
	if len(msgs) == 0 {
		return mutedStyle.Render("no messages")
	}
	rows := make([][]string, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, []string{m.Timestamp.Local().Format("2006-01-02 15:04"), string(m.Sender), m.Text})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(primary)).
		Headers("Time", "Sender", "Message").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Render()
}
