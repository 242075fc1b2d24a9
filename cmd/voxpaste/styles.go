package main

import "github.com/charmbracelet/lipgloss"

// Colors
var (
	primaryColor   = lipgloss.Color("39")  // Blue
	secondaryColor = lipgloss.Color("245") // Gray
	errorColor     = lipgloss.Color("196") // Red
	successColor   = lipgloss.Color("82")  // Green
	warningColor   = lipgloss.Color("214") // Orange
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	dimStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)

	okStyle = lipgloss.NewStyle().
		Foreground(successColor).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	errStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	pathStyle = lipgloss.NewStyle().
			Width(28)
)
