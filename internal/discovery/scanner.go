// pattern: Imperative Shell

// Package discovery walks the global config's scan_paths one level deep
// looking for git repositories that aren't already tracked, so the `p`
// add-project prompt can offer them instead of asking for a bare path
// every time.
package discovery

import (
	"os"
	"path/filepath"
)

// Scanner discovers untracked git repositories under configured scan paths.
type Scanner struct{}

// NewScanner creates a new project scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// ScanAll walks each of paths one level deep, returning every subdirectory
// that is a git repository and not already present in tracked.
func (s *Scanner) ScanAll(paths []string, tracked map[string]bool) []DiscoveredProject {
	var projects []DiscoveredProject
	seen := make(map[string]bool)

	for _, scanPath := range paths {
		entries, err := os.ReadDir(scanPath)
		if err != nil {
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() && entry.Type()&os.ModeSymlink == 0 {
				continue
			}
			projectPath := filepath.Join(scanPath, entry.Name())

			resolved, err := filepath.EvalSymlinks(projectPath)
			if err != nil {
				resolved = projectPath
			}
			if seen[resolved] || tracked[resolved] {
				continue
			}
			seen[resolved] = true

			if !isGitRepo(resolved) {
				continue
			}
			projects = append(projects, DiscoveredProject{Name: entry.Name(), Path: resolved})
		}
	}

	return projects
}

// isGitRepo reports whether path is a git worktree or repository root,
// i.e. it has either a .git directory (a normal clone) or a .git file
// (a linked worktree, whose .git is a gitdir pointer).
func isGitRepo(path string) bool {
	_, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil
}
