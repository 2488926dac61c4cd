package utils

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func levelStyle(background, foreground string) lipgloss.Style {
	return lipgloss.NewStyle().
		Padding(0, 1, 0, 1).
		Bold(true).
		MaxWidth(80).
		Background(lipgloss.Color(background)).
		Foreground(lipgloss.Color(foreground))
}

var levelStyles = map[string]lipgloss.Style{
	"INFO": levelStyle("87", "16"),
	"WARN": levelStyle("214", "16"),
	"ERRO": levelStyle("204", "0"),
	"DEBU": levelStyle("63", "0"),
}

// ColorizeLogs styles the level tags of buffered log lines for the dashboard
// viewport.
func ColorizeLogs(logs []string) []string {
	for i, line := range logs {
		// Only style if not already styled (check for ANSI codes)
		if strings.Contains(line, "\x1b[") {
			continue
		}
		for level, style := range levelStyles {
			if strings.Contains(line, level) {
				logs[i] = strings.Replace(line, level, style.Render(level), 1)
				break
			}
		}
	}
	return logs
}
