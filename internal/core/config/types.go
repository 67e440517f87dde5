package config

// Config is the synectic engine configuration
type Config struct {
	Version   string          `yaml:"version"`
	Worktrees WorktreesConfig `yaml:"worktrees"`
	Watch     WatchConfig     `yaml:"watch"`
	Cache     CacheConfig     `yaml:"cache"`
	Log       LogConfig       `yaml:"log"`
	Filetypes []Filetype      `yaml:"filetypes"`
}

// WorktreesConfig controls where linked worktrees are materialized
type WorktreesConfig struct {
	// Dir is created next to the repository: <repoParent>/<Dir>/<repoName>/<ref>
	Dir string `yaml:"dir"`
}

// WatchConfig controls the filesystem watcher bridge
type WatchConfig struct {
	// Debounce is the per-root coalescing window in milliseconds
	Debounce int      `yaml:"debounce"`
	Ignore   []string `yaml:"ignore"`
	Buffer   int      `yaml:"buffer"`
}

// CacheConfig controls the content cache
type CacheConfig struct {
	// MaxCost bounds cached content in bytes
	MaxCost int64 `yaml:"maxCost"`
}

// LogConfig controls logging
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Filetype maps paths to a handler
type Filetype struct {
	Name       string   `yaml:"name"`
	Handler    string   `yaml:"handler"`
	Extensions []string `yaml:"extensions,omitempty"`
	Directory  bool     `yaml:"directory,omitempty"`
}

const (
	// DefaultWorktreeDir is the sibling directory holding linked worktrees
	DefaultWorktreeDir = ".syn"
	// DefaultDebounce is the watcher coalescing window in milliseconds
	DefaultDebounce = 100
	// DefaultCacheMaxCost is 64 MiB
	DefaultCacheMaxCost = 64 << 20
	// FallbackFiletype names the registry entry used when nothing matches
	FallbackFiletype = "Text"
)

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Worktrees: WorktreesConfig{
			Dir: DefaultWorktreeDir,
		},
		Watch: WatchConfig{
			Debounce: DefaultDebounce,
			Ignore:   []string{".git", "node_modules", DefaultWorktreeDir},
			Buffer:   256,
		},
		Cache: CacheConfig{
			MaxCost: DefaultCacheMaxCost,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Filetypes: DefaultFiletypes(),
	}
}

// DefaultFiletypes returns the built-in filetype registry
func DefaultFiletypes() []Filetype {
	return []Filetype{
		{Name: "Directory", Handler: "Explorer", Directory: true},
		{Name: "Go", Handler: "Editor", Extensions: []string{"go"}},
		{Name: "TypeScript", Handler: "Editor", Extensions: []string{"ts", "tsx"}},
		{Name: "JavaScript", Handler: "Editor", Extensions: []string{"js", "jsx", "mjs"}},
		{Name: "JSON", Handler: "Editor", Extensions: []string{"json"}},
		{Name: "YAML", Handler: "Editor", Extensions: []string{"yaml", "yml"}},
		{Name: "Markdown", Handler: "Editor", Extensions: []string{"md", "markdown"}},
		{Name: "PNG", Handler: "Browser", Extensions: []string{"png"}},
		{Name: FallbackFiletype, Handler: "Editor", Extensions: []string{"txt"}},
	}
}
