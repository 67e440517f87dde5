package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/EPICLab/synectic/internal/core/store"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := Output
	Output = &buf
	t.Cleanup(func() { Output = old })
	return &buf
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0B"},
		{1023, "1023B"},
		{1024, "1.0KB"},
		{1536, "1.5KB"},
		{1048576, "1.0MB"},
		{1073741824, "1.0GB"},
		{2147483648, "2.0GB"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatSize(tt.bytes))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "< 1m", FormatDuration(30*time.Second))
	assert.Equal(t, "5m", FormatDuration(5*time.Minute))
	assert.Equal(t, "3h", FormatDuration(3*time.Hour))
	assert.Equal(t, "2d", FormatDuration(49*time.Hour))
}

func TestFormatTime(t *testing.T) {
	assert.Equal(t, "never", FormatTime(time.Time{}))
	assert.Equal(t, "just now", FormatTime(time.Now()))
	assert.Equal(t, "1 hour ago", FormatTime(time.Now().Add(-90*time.Minute)))
	assert.Equal(t, "3 days ago", FormatTime(time.Now().Add(-73*time.Hour)))
}

func TestShortHash(t *testing.T) {
	assert.Equal(t, "-", ShortHash(""))
	assert.Equal(t, "abc", ShortHash("abc"))
	assert.Equal(t, "0123456", ShortHash("0123456789abcdef"))
}

func TestPrintBranchList(t *testing.T) {
	buf := captureOutput(t)

	PrintBranchList([]store.Branch{
		{Ref: "main", Scope: store.ScopeLocal, Root: "/repo", Current: true, Status: store.BranchClean, Head: "0123456789"},
		{Ref: "feature", Scope: store.ScopeRemote, Status: store.BranchClean},
	})

	out := buf.String()
	assert.Contains(t, out, "Branches (2)")
	assert.Contains(t, out, "* main")
	assert.Contains(t, out, "0123456")
	assert.Contains(t, out, "feature")
}

func TestPrintBranchList_Empty(t *testing.T) {
	buf := captureOutput(t)
	PrintBranchList(nil)
	assert.Contains(t, buf.String(), "No branches found")
}

func TestPrintMetafile(t *testing.T) {
	buf := captureOutput(t)

	PrintMetafile(store.Metafile{
		ID:       "m1",
		Name:     "README.md",
		Kind:     store.KindFile,
		Filetype: "Markdown",
		Path:     "/repo/README.md",
		State:    store.StateUnmodified,
		Content:  "hello",
		Version: &store.Version{
			Branch:    "b1",
			Status:    store.StatusUnstagedModified,
			Conflicts: []string{"/repo/README.md"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "README.md")
	assert.Contains(t, out, "file/Markdown")
	assert.Contains(t, out, "5B")
	assert.Contains(t, out, "*modified")
	assert.Contains(t, out, "Conflicts:")
}

func TestPrintStatusList(t *testing.T) {
	buf := captureOutput(t)
	metafiles := []store.Metafile{
		{Path: "/repo/a", Kind: store.KindFile, Version: &store.Version{Status: store.StatusUnmodified}},
		{Path: "/repo/b", Kind: store.KindFile, Version: &store.Version{Status: store.StatusAdded}},
		{Path: "/tmp/c", Kind: store.KindFile},
	}

	PrintStatusList(metafiles, false)
	out := buf.String()
	assert.Contains(t, out, "Changes (1)")
	assert.Contains(t, out, "/repo/b")
	assert.NotContains(t, out, "/repo/a")

	buf.Reset()
	PrintStatusList(metafiles, true)
	assert.Contains(t, buf.String(), "Changes (2)")

	buf.Reset()
	PrintStatusList(metafiles[:1], false)
	assert.Contains(t, buf.String(), "working tree clean")
}

func TestStatusStyle(t *testing.T) {
	assert.Equal(t, DimStyle.Render("x"), StatusStyle(store.StatusUnmodified).Render("x"))
	assert.Equal(t, WarningStyle.Render("x"), StatusStyle(store.StatusUnstagedAdded).Render("x"))
	assert.Equal(t, SuccessStyle.Render("x"), StatusStyle(store.StatusAdded).Render("x"))
	assert.Equal(t, ErrorStyle.Render("x"), BranchStatusStyle(store.BranchUnmerged).Render("x"))
}
