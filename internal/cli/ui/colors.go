// Package ui provides UI styling and output functions for the CLI.
package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/EPICLab/synectic/internal/core/store"
)

var (
	// ErrorStyle is the style for error messages
	ErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))

	// SuccessStyle is the style for success messages
	SuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))

	// InfoStyle is the style for informational messages
	InfoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#0099FF"))

	// WarningStyle is the style for warning messages
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00"))

	// DimStyle is the style for dimmed text
	DimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

	// BoldStyle is the style for bold text
	BoldStyle = lipgloss.NewStyle().Bold(true)

	// HeaderStyle is the style for headers
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))

	// RepoIcon is the icon for repositories
	RepoIcon = "📦"

	// BranchIcon is the icon for branches
	BranchIcon = "🌿"

	// FileIcon is the icon for metafiles
	FileIcon = "📄"

	// SuccessIcon is the icon for success messages
	SuccessIcon = "✅"

	// ErrorIcon is the icon for error messages
	ErrorIcon = "❌"

	// InfoIcon is the icon for informational messages
	InfoIcon = "ⓘ"

	// WarningIcon is the icon for warning messages
	WarningIcon = "⚠️"
)

// StatusStyle picks the style for a version status. Unstaged changes warn.
func StatusStyle(s store.VersionStatus) lipgloss.Style {
	switch {
	case s == store.StatusIgnored || s == store.StatusUnmodified || s == "":
		return DimStyle
	case s.Unstaged():
		return WarningStyle
	default:
		return SuccessStyle
	}
}

// BranchStatusStyle picks the style for a branch status
func BranchStatusStyle(s store.BranchStatus) lipgloss.Style {
	switch s {
	case store.BranchUnmerged:
		return ErrorStyle
	case store.BranchUncommitted:
		return WarningStyle
	default:
		return DimStyle
	}
}
