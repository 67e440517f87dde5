package metafile

import (
	"path/filepath"
	"strings"

	"github.com/EPICLab/synectic/internal/core/config"
)

// Registry assigns filetypes and handlers to paths
type Registry struct {
	byExt     map[string]config.Filetype
	directory config.Filetype
	fallback  config.Filetype
}

// NewRegistry builds a registry from filetype entries. Missing directory or
// fallback entries are filled from the built-in defaults.
func NewRegistry(filetypes []config.Filetype) *Registry {
	r := &Registry{byExt: make(map[string]config.Filetype)}
	for _, ft := range filetypes {
		if ft.Directory {
			if r.directory.Name == "" {
				r.directory = ft
			}
			continue
		}
		if ft.Name == config.FallbackFiletype {
			r.fallback = ft
		}
		for _, ext := range ft.Extensions {
			ext = normalizeExt(ext)
			if _, taken := r.byExt[ext]; !taken {
				r.byExt[ext] = ft
			}
		}
	}

	for _, ft := range config.DefaultFiletypes() {
		if ft.Directory && r.directory.Name == "" {
			r.directory = ft
		}
		if ft.Name == config.FallbackFiletype && r.fallback.Name == "" {
			r.fallback = ft
		}
	}
	return r
}

// Lookup returns the filetype for path. It never fails: unknown paths get
// the fallback text filetype.
func (r *Registry) Lookup(path string, isDir bool) config.Filetype {
	if isDir {
		return r.directory
	}
	if ft, ok := r.byExt[normalizeExt(filepath.Ext(path))]; ok {
		return ft
	}
	return r.fallback
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
