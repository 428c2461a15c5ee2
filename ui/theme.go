package ui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	root     lipgloss.Style
	header   lipgloss.Style
	panel    lipgloss.Style
	title    lipgloss.Style
	status   lipgloss.Style
	local    lipgloss.Style
	rejected lipgloss.Style
	ready    lipgloss.Style
	waiting  lipgloss.Style
	badge    map[string]lipgloss.Style
	helpText lipgloss.Style
}

func newTheme() theme {
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	pink := lipgloss.Color("#ff71ce")
	amber := lipgloss.Color("#ffd166")
	muted := lipgloss.Color("#9ca3d8")
	badge := lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("#120924"))

	return theme{
		root: lipgloss.NewStyle().Padding(1, 2),
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(blue).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(muted).
			Padding(0, 1).
			Width(60),
		title:    lipgloss.NewStyle().Foreground(muted),
		status:   lipgloss.NewStyle().Foreground(mint).Bold(true),
		local:    lipgloss.NewStyle().Foreground(blue),
		rejected: lipgloss.NewStyle().Foreground(pink).Bold(true),
		ready:    lipgloss.NewStyle().Foreground(mint),
		waiting:  lipgloss.NewStyle().Foreground(amber),
		badge: map[string]lipgloss.Style{
			"connected":    badge.Background(mint),
			"connecting":   badge.Background(amber),
			"disconnected": badge.Background(muted),
			"failed":       badge.Background(pink),
		},
		helpText: lipgloss.NewStyle().Foreground(muted),
	}
}
