package main

import "github.com/charmbracelet/lipgloss"

// Styled CLI output, in the spirit of BeadsLog's own Ayu-themed command
// output: a handful of named colors reused across commands rather than
// inline hex codes scattered through each file.
var (
	colorAccent = lipgloss.Color("39")  // blue
	colorWarn   = lipgloss.Color("214") // amber
	colorPass   = lipgloss.Color("42")  // green
	colorMuted  = lipgloss.Color("245") // gray

	bundleHeaderStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	conflictIDStyle   = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	okStyle           = lipgloss.NewStyle().Foreground(colorPass)
	mutedStyle        = lipgloss.NewStyle().Foreground(colorMuted)
)
