package mcp

import "strings"

// ToolDescription provides enhanced descriptions for AI agents
type ToolDescription struct {
	Description string
	WhenToUse   []string
	NextTools   []string
}

var toolDescriptions = map[string]ToolDescription{
	"fetch_repo": {
		Description: "Resolve the git repository containing a path and list its local and remote branches",
		WhenToUse: []string{
			"Before working with branches of a repository",
			"When asked which branches exist or which one is checked out",
		},
		NextTools: []string{
			"fetch_branch - Inspect one branch in detail",
			"add_branch - Open another branch side by side",
		},
	},

	"fetch_branch": {
		Description: "Return one branch with its worktree root, head commit, recent commits and status (clean, uncommitted or unmerged)",
		WhenToUse: []string{
			"When you need the worktree path of a branch",
			"When checking whether a branch has uncommitted or conflicting changes",
		},
		NextTools: []string{
			"merge_branch - Merge this branch into another",
			"fetch_metafile - Open a file within the branch's worktree",
		},
	},

	"fetch_metafile": {
		Description: "Open a file or directory and return its metafile: content or children, and its version status against git",
		WhenToUse: []string{
			"When reading a tracked file together with its git status",
			"When listing a directory with per-entry version status",
		},
		NextTools: []string{
			"stage - Stage the file's changes",
			"add_branch - Open the same file on another branch",
		},
	},

	"add_branch": {
		Description: "Make a branch available alongside the current checkout. Branches that are not checked out get a linked worktree next to the repository",
		WhenToUse: []string{
			"When you need to read or edit another branch without switching the main checkout",
			"When starting a new branch from a specific commit",
		},
		NextTools: []string{
			"fetch_metafile - Open files in the new worktree",
			"remove_branch - Clean up the branch when done",
		},
	},

	"remove_branch": {
		Description: "Remove a local branch and its linked worktree. The branch checked out in the main worktree is never removed",
		WhenToUse: []string{
			"After a branch has been merged",
			"When cleaning up worktrees created by add_branch",
		},
		NextTools: []string{
			"fetch_repo - Verify the remaining branches",
		},
	},

	"merge_branch": {
		Description: "Merge compare into base in the worktree where base is checked out. Conflicts produce a Failing result and leave base unmerged",
		WhenToUse: []string{
			"When integrating a feature branch",
			"With continue=true after resolving conflicts",
		},
		NextTools: []string{
			"fetch_branch - Check the merge state of base",
			"fetch_metafile - Inspect conflicting files",
		},
	},

	"stage": {
		Description: "Add the changes at a path to the git index and return its refreshed metafile",
		NextTools: []string{
			"unstage - Undo the staging",
		},
	},

	"unstage": {
		Description: "Remove the changes at a path from the git index and return its refreshed metafile",
		NextTools: []string{
			"stage - Stage the path again",
		},
	},

	"snapshot": {
		Description: "Return every repository, branch, metafile and cache entry currently tracked",
		WhenToUse: []string{
			"When debugging what the engine knows",
		},
	},
}

// toolDescription renders the description registered with the tool
func toolDescription(name string) string {
	desc, ok := toolDescriptions[name]
	if !ok {
		return ""
	}
	if len(desc.WhenToUse) == 0 {
		return desc.Description
	}
	return desc.Description + "\n\nUse it:\n- " + strings.Join(desc.WhenToUse, "\n- ")
}

// GetNextToolSuggestions returns suggested next tools for a given tool
func GetNextToolSuggestions(toolName string) []map[string]string {
	desc, ok := toolDescriptions[toolName]
	if !ok {
		return nil
	}
	suggestions := make([]map[string]string, 0, len(desc.NextTools))
	for _, next := range desc.NextTools {
		suggestions = append(suggestions, map[string]string{"tool": next})
	}
	return suggestions
}
