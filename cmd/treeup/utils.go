package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// 256 color palette indices
var (
	red   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	cyan  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// label pads s so the values of a summary block line up.
func label(s string) string {
	return fmt.Sprintf("%-11s", s+":")
}
