package tui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	title    lipgloss.Style
	muted    lipgloss.Style
	label    lipgloss.Style
	own      lipgloss.Style
	other    lipgloss.Style
	selected lipgloss.Style
	quote    lipgloss.Style
	banner   lipgloss.Style
	online   lipgloss.Style
	offline  lipgloss.Style
	info     lipgloss.Style
	success  lipgloss.Style
	failure  lipgloss.Style
}

func newTheme() theme {
	accent := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	pink := lipgloss.Color("#ff71ce")
	grey := lipgloss.Color("#8a8aa3")
	red := lipgloss.Color("#ff5f5f")

	return theme{
		title:    lipgloss.NewStyle().Bold(true).Foreground(accent),
		muted:    lipgloss.NewStyle().Foreground(grey),
		label:    lipgloss.NewStyle().Width(14),
		own:      lipgloss.NewStyle().Bold(true).Foreground(mint),
		other:    lipgloss.NewStyle().Bold(true).Foreground(pink),
		selected: lipgloss.NewStyle().Bold(true).Foreground(accent),
		quote:    lipgloss.NewStyle().Italic(true).Foreground(grey),
		banner:   lipgloss.NewStyle().Foreground(accent).PaddingLeft(1),
		online:   lipgloss.NewStyle().Foreground(mint),
		offline:  lipgloss.NewStyle().Foreground(red),
		info:     lipgloss.NewStyle().Foreground(accent),
		success:  lipgloss.NewStyle().Foreground(mint),
		failure:  lipgloss.NewStyle().Foreground(red),
	}
}
