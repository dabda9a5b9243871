package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths holds the directories data files are looked up in.
type Paths struct {
	ExecutableDir string
	WorkingDir    string
	LogsDir       string
	ReportsDir    string
}

// GetPaths resolves the executable and working directories.
func GetPaths() (*Paths, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve executable symlinks: %w", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}

	exeDir := filepath.Dir(exe)
	return &Paths{
		ExecutableDir: exeDir,
		WorkingDir:    wd,
		LogsDir:       filepath.Join(wd, "logs"),
		ReportsDir:    filepath.Join(wd, "reports"),
	}, nil
}

// ResolveFile locates a data file. Absolute paths are returned unchanged.
// A relative path is tried against the working directory first and then
// next to the executable, where the workbook usually ships. When neither
// exists the working directory candidate is returned so that the caller
// reports a meaningful "not found" path.
func (p *Paths) ResolveFile(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	candidates := []string{
		filepath.Join(p.WorkingDir, name),
		filepath.Join(p.ExecutableDir, name),
	}
	for _, c := range candidates {
		if FileExists(c) {
			slog.Debug("Resolved data file", slog.String("name", name), slog.String("path", c))
			return c
		}
	}
	return candidates[0]
}

// EnsureDirectories creates the log and report directories.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.LogsDir, p.ReportsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
