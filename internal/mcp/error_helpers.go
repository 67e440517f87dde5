package mcp

import (
	"fmt"
	"strings"
)

// ErrorWithSuggestions represents an error with tool suggestions
type ErrorWithSuggestions struct {
	Message     string
	Suggestions []string
}

// Error returns the error message with suggestions
func (e *ErrorWithSuggestions) Error() string {
	if len(e.Suggestions) == 0 {
		return e.Message
	}

	var sb strings.Builder
	sb.WriteString(e.Message)
	sb.WriteString("\n\nDid you mean to use one of these tools instead?\n")
	for _, suggestion := range e.Suggestions {
		sb.WriteString("  - ")
		sb.WriteString(suggestion)
		sb.WriteString("\n")
	}
	return sb.String()
}

// NewErrorWithSuggestions creates a new error with tool suggestions
func NewErrorWithSuggestions(message string, suggestions ...string) error {
	return &ErrorWithSuggestions{
		Message:     message,
		Suggestions: suggestions,
	}
}

// RepositoryNotFoundError is returned when a path is outside any repository
func RepositoryNotFoundError(path string) error {
	return NewErrorWithSuggestions(
		fmt.Sprintf("not inside a git repository: %s", path),
		"fetch_metafile - Open the path without version information",
	)
}

// BranchNotFoundError is returned when a ref does not exist in the repository
func BranchNotFoundError(ref, root string) error {
	return NewErrorWithSuggestions(
		fmt.Sprintf("branch %q not found in %s", ref, root),
		"fetch_repo - List the repository's local and remote branches",
		"add_branch - Create the branch in a linked worktree",
	)
}

// InvalidParameterError returns an error with suggestions for invalid parameters
func InvalidParameterError(param string, expected string) error {
	return NewErrorWithSuggestions(
		fmt.Sprintf("invalid %s: expected %s", param, expected),
		"Use the tool descriptions to understand parameter requirements",
	)
}
