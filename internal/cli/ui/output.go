package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/EPICLab/synectic/internal/core/store"
)

// Output is where pretty printers write by default
var Output io.Writer = os.Stdout

// Print functions for consistent output

func Error(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorIcon, ErrorStyle.Render(fmt.Sprintf(format, args...)))
}

func Success(format string, args ...any) {
	fmt.Fprintf(Output, "%s %s\n", SuccessIcon, SuccessStyle.Render(fmt.Sprintf(format, args...)))
}

func Info(format string, args ...any) {
	fmt.Fprintf(Output, "%s %s\n", InfoIcon, InfoStyle.Render(fmt.Sprintf(format, args...)))
}

func Warning(format string, args ...any) {
	fmt.Fprintf(Output, "%s %s\n", WarningIcon, WarningStyle.Render(fmt.Sprintf(format, args...)))
}

// OutputLine prints one formatted line
func OutputLine(format string, args ...any) {
	fmt.Fprintf(Output, format+"\n", args...)
}

// PrintRepository displays a repository and its branches
func PrintRepository(r store.Repository, branches []store.Branch) {
	OutputLine("%s %s %s", RepoIcon, BoldStyle.Render(r.Name), DimStyle.Render(fmt.Sprintf("(%s)", r.ID)))
	OutputLine("   %s %s", DimStyle.Render("Root:"), r.Root)
	if r.URL != "" {
		OutputLine("   %s %s", DimStyle.Render("URL:"), r.URL)
	}
	if r.DefaultBranch != "" {
		OutputLine("   %s %s", DimStyle.Render("Default:"), r.DefaultBranch)
	}
	PrintBranchList(branches)
}

// PrintBranchList displays branches using a table
func PrintBranchList(branches []store.Branch) {
	if len(branches) == 0 {
		Info("No branches found")
		return
	}

	tbl := NewTable("REF", "SCOPE", "STATUS", "HEAD", "ROOT")
	tbl.WithWriter(Output)
	for _, b := range branches {
		ref := b.Ref
		if b.Current {
			ref = "* " + ref
		}
		root := b.Root
		if b.Scope == store.ScopeRemote {
			root = "-"
		}
		status := BranchStatusStyle(b.Status).Render(string(b.Status))
		if b.Merging != nil {
			status += DimStyle.Render(fmt.Sprintf(" (merging %s)", b.Merging.Compare))
		}
		tbl.AddRow(ref, string(b.Scope), status, ShortHash(b.Head), root)
	}

	PrintSectionHeader(BranchIcon, "Branches", len(branches))
	tbl.Print()
	OutputLine("")
}

// PrintMetafile displays a single metafile with formatting
func PrintMetafile(mf store.Metafile) {
	OutputLine("%s %s %s %s", FileIcon, BoldStyle.Render(mf.Name),
		DimStyle.Render(fmt.Sprintf("(%s)", mf.ID)),
		DimStyle.Render(fmt.Sprintf("%s/%s", mf.Kind, mf.Filetype)))
	if mf.Path != "" {
		OutputLine("   %s %s", DimStyle.Render("Path:"), mf.Path)
	}
	if mf.Filebased() {
		OutputLine("   %s %s", DimStyle.Render("State:"), mf.State)
		OutputLine("   %s %s", DimStyle.Render("Modified:"), FormatTime(mf.Mtime))
	}
	if mf.Kind == store.KindFile {
		OutputLine("   %s %s", DimStyle.Render("Size:"), FormatSize(int64(len(mf.Content))))
	}
	if mf.IsDirectory() {
		OutputLine("   %s %d", DimStyle.Render("Contains:"), len(mf.Contains))
	}
	if v := mf.Version; v != nil {
		OutputLine("   %s %s", DimStyle.Render("Status:"), StatusStyle(v.Status).Render(string(v.Status)))
		OutputLine("   %s %s", DimStyle.Render("Branch:"), v.Branch)
		if len(v.Conflicts) > 0 {
			OutputLine("   %s %s", ErrorStyle.Render("Conflicts:"), strings.Join(v.Conflicts, ", "))
		}
	}
}

// PrintStatusList displays the version status of each metafile, skipping
// unchanged ones unless all is set
func PrintStatusList(metafiles []store.Metafile, all bool) {
	tbl := NewTable("STATUS", "PATH")
	tbl.WithWriter(Output)
	n := 0
	for _, mf := range metafiles {
		if !mf.Versioned() || (!all && !mf.Version.Status.Changed()) {
			continue
		}
		status := mf.Version.Status
		tbl.AddRow(StatusStyle(status).Render(string(status)), mf.Path)
		n++
	}
	if n == 0 {
		Info("Nothing to report, working tree clean")
		return
	}
	PrintSectionHeader(FileIcon, "Changes", n)
	tbl.Print()
	OutputLine("")
}

// ShortHash abbreviates a commit hash for display
func ShortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	if h == "" {
		return "-"
	}
	return h
}

// FormatSize formats a byte count using binary units
func FormatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%cB", float64(n)/float64(div), "KMG"[exp])
}

// FormatDuration formats a duration into a human-readable string
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "< 1m"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// FormatTime formats a time for display
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		minutes := int(diff.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}
