// pattern: Imperative Shell

// Package gitprobe shells out to git to discover worktrees and derive the
// per-worktree GitState the tree view renders. The query calls
// (ListWorktrees, Status, IsBranchMerged, MergeableWorktrees,
// LoadProjectConfig) are side-effect-free; Fetch, Pull, PullRebase, Push,
// Merge, RunHook, CreateWorktree, CopyFiles, RemoveWorktree and
// CleanMerged change the repository or its worktrees on the caller's behalf.
package gitprobe

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"devagent/internal/execx"
	"devagent/internal/model"
)

// Probe runs git commands against a worktree or repository root via the
// shared Executor, never through a shell.
type Probe struct {
	exec *execx.Executor
}

// New creates a Probe backed by exec.
func New(exec *execx.Executor) *Probe {
	return &Probe{exec: exec}
}

func (p *Probe) git(ctx context.Context, dir string, args ...string) (*execx.Result, error) {
	return p.exec.Run(ctx, execx.Request{Argv: append([]string{"git"}, args...), Dir: dir})
}

// ListWorktrees runs `git worktree list --porcelain` against repoPath and
// returns the discovered worktrees in git's own order, the first of which
// is always the main worktree (§4.2).
func (p *Probe) ListWorktrees(ctx context.Context, repoPath string) ([]model.WorktreeSeed, error) {
	res, err := p.git(ctx, repoPath, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	seeds := parsePorcelainWorktreeList(string(res.Stdout))
	if len(seeds) == 0 {
		seeds = []model.WorktreeSeed{{Path: repoPath, BranchName: "HEAD", IsMain: true}}
	}
	return seeds, nil
}

func parsePorcelainWorktreeList(output string) []model.WorktreeSeed {
	var seeds []model.WorktreeSeed
	var path, branch string
	first := true

	flush := func() {
		if path == "" {
			return
		}
		if branch == "" {
			branch = "HEAD"
		}
		seeds = append(seeds, model.WorktreeSeed{Path: path, BranchName: branch, IsMain: first})
		first = false
		path, branch = "", ""
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "worktree "):
			path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "branch "):
			b := strings.TrimPrefix(line, "branch ")
			branch = strings.TrimPrefix(b, "refs/heads/")
		}
	}
	flush()
	return seeds
}

// Status derives a worktree's GitState by combining branch, upstream,
// ahead/behind, working-tree diff and recent-commit log queries (§4.2).
// The returned fingerprint is a content hash of the raw command output,
// letting the observer skip a redundant Model mutation when nothing
// actually changed between ticks.
func (p *Probe) Status(ctx context.Context, worktreePath string) (model.GitState, string, error) {
	var raw strings.Builder
	var state model.GitState

	branchRes, err := p.git(ctx, worktreePath, "branch", "--show-current")
	if err != nil {
		return model.GitState{}, "", err
	}
	raw.Write(branchRes.Stdout)

	upstreamRes, err := p.git(ctx, worktreePath, "rev-parse", "--abbrev-ref", "--symbolic-full-name", "@{upstream}")
	hasUpstream := err == nil
	if hasUpstream {
		state.RemoteBranch = strings.TrimSpace(string(upstreamRes.Stdout))
		raw.Write(upstreamRes.Stdout)
	}

	if hasUpstream {
		countRes, err := p.git(ctx, worktreePath, "rev-list", "--left-right", "--count", "HEAD...@{upstream}")
		if err == nil {
			raw.Write(countRes.Stdout)
			ahead, behind := parseAheadBehind(string(countRes.Stdout))
			state.Ahead, state.Behind = ahead, behind
		}
	}

	statusRes, err := p.git(ctx, worktreePath, "status", "--short")
	if err == nil {
		raw.Write(statusRes.Stdout)
		files := parseChangedFiles(string(statusRes.Stdout))
		state.ChangedFiles = files
		state.LocalDirty = len(files) > 0
	}

	logRes, err := p.git(ctx, worktreePath, "log", "--oneline", "-3")
	if err == nil {
		raw.Write(logRes.Stdout)
		state.RecentCommits = parseRecentCommits(string(logRes.Stdout))
	}

	fp := fmt.Sprintf("%016x", xxhash.Sum64String(raw.String()))
	return state, fp, nil
}

func parseAheadBehind(output string) (ahead, behind uint32) {
	fields := strings.Fields(output)
	if len(fields) < 2 {
		return 0, 0
	}
	// HEAD...@{upstream} with --left-right: left column counts commits only
	// on HEAD (ahead), right column commits only on the upstream (behind).
	a, _ := strconv.ParseUint(fields[0], 10, 32)
	b, _ := strconv.ParseUint(fields[1], 10, 32)
	return uint32(a), uint32(b)
}

func parseChangedFiles(output string) []model.FileChange {
	var files []model.FileChange
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}
		files = append(files, model.FileChange{
			Status: strings.TrimSpace(line[:2]),
			Path:   strings.TrimSpace(line[3:]),
		})
		if len(files) >= 10 {
			break
		}
	}
	return files
}

func parseRecentCommits(output string) []model.CommitSummary {
	var commits []model.CommitSummary
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		hash, message, ok := strings.Cut(line, " ")
		if !ok {
			hash, message = line, ""
		}
		commits = append(commits, model.CommitSummary{Hash: hash, Message: message})
	}
	return commits
}

// Fetch runs `git fetch` for a worktree's remote, used by the slow
// GitFetchTicker (§4.6). It never mutates the working tree.
func (p *Probe) Fetch(ctx context.Context, worktreePath string) error {
	_, err := p.git(ctx, worktreePath, "fetch")
	return err
}

// Pull runs `git pull` in worktreePath. A failure is returned as a
// classified *ActionError so callers can distinguish a rejected
// non-fast-forward from a real conflict (§4.2/§7).
func (p *Probe) Pull(ctx context.Context, worktreePath string) error {
	_, err := p.git(ctx, worktreePath, "pull")
	return classifyActionError("pull", err)
}

// PullRebase runs `git pull --rebase` in worktreePath.
func (p *Probe) PullRebase(ctx context.Context, worktreePath string) error {
	_, err := p.git(ctx, worktreePath, "pull", "--rebase")
	return classifyActionError("pull --rebase", err)
}

// Push runs `git push` in worktreePath.
func (p *Probe) Push(ctx context.Context, worktreePath string) error {
	_, err := p.git(ctx, worktreePath, "push")
	return classifyActionError("push", err)
}

// Merge runs `git merge <branch>` in worktreePath.
func (p *Probe) Merge(ctx context.Context, worktreePath, branch string) error {
	_, err := p.git(ctx, worktreePath, "merge", branch)
	return classifyActionError("merge", err)
}

// RunHook runs a .gtrconfig hook command through a shell, since hook
// commands are author-supplied shell strings (e.g. "npm install") rather
// than a fixed argv wsx controls; it still goes through the shared
// Executor so it is bounded and cancellable like every other probe.
func (p *Probe) RunHook(ctx context.Context, dir, command string) (*execx.Result, error) {
	return p.exec.Run(ctx, execx.Request{Argv: []string{"sh", "-c", command}, Dir: dir})
}

var branchSlugRe = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// CreateWorktree runs `git worktree add -b <branch> <path> <base>`,
// deriving path as a sibling directory of repoPath named
// "<repo>-<slugified-branch>" (§4.2, original_source/src/git/worktree.rs).
func (p *Probe) CreateWorktree(ctx context.Context, repoPath, branch, baseBranch string) (string, error) {
	parent := filepath.Dir(repoPath)
	repoName := filepath.Base(repoPath)
	slug := branchSlugRe.ReplaceAllString(branch, "-")
	wtPath := filepath.Join(parent, repoName+"-"+slug)

	if _, err := p.git(ctx, repoPath, "worktree", "add", "-b", branch, wtPath, baseBranch); err != nil {
		return "", classifyActionError("worktree add", err)
	}
	return wtPath, nil
}

// CopyFiles copies every file under repoPath matching one of includes
// (glob patterns relative to repoPath) into the same relative path under
// destPath, skipping anything that also matches excludes. Used after
// worktree creation to carry over untracked local files like .env that a
// fresh `git worktree add` never populates (§4.9, original_source's
// hooks.rs copy_env_files). Directories matched by an include pattern are
// skipped: the feature only ever copies files.
func (p *Probe) CopyFiles(repoPath, destPath string, includes, excludes []string) error {
	for _, pattern := range includes {
		matches, err := filepath.Glob(filepath.Join(repoPath, pattern))
		if err != nil {
			continue
		}
		for _, src := range matches {
			rel, err := filepath.Rel(repoPath, src)
			if err != nil || matchesAnyGlob(rel, excludes) {
				continue
			}
			if err := copyFile(src, filepath.Join(destPath, rel)); err != nil {
				return err
			}
		}
	}
	return nil
}

func matchesAnyGlob(name string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode())
}

// RemoveWorktree runs `git worktree remove --force <path>` then attempts a
// best-effort `git branch -d <branch>`; a failure to delete the now-unused
// branch is not an error (§4.2).
func (p *Probe) RemoveWorktree(ctx context.Context, repoPath, worktreePath, branch string) error {
	if _, err := p.git(ctx, repoPath, "worktree", "remove", "--force", worktreePath); err != nil {
		return classifyActionError("worktree remove", err)
	}
	_, _ = p.git(ctx, repoPath, "branch", "-d", branch)
	return nil
}

// IsBranchMerged reports whether branch is an ancestor of defaultBranch.
func (p *Probe) IsBranchMerged(ctx context.Context, repoPath, branch, defaultBranch string) bool {
	_, err := p.git(ctx, repoPath, "merge-base", "--is-ancestor", branch, defaultBranch)
	return err == nil
}

// LoadProjectConfig reads .gtrconfig from a project's root via
// `git config -f`, which already understands gitconfig-INI multi-valued
// keys, so wsx needs no INI parser of its own (§4.9; grounded in
// original_source/src/config/project.rs, which reads the same file the
// same way). A missing file or a key git can't find yields a zero-value
// field, never an error.
func (p *Probe) LoadProjectConfig(ctx context.Context, repoPath string) model.ProjectConfig {
	configPath := filepath.Join(repoPath, ".gtrconfig")
	var cfg model.ProjectConfig

	postCreate, err := p.gitConfigGet(ctx, configPath, "hooks.postCreate")
	if err != nil {
		cfg.ParseError = err
	}
	cfg.PostCreateHook = postCreate
	cfg.CopyIncludes, _ = p.gitConfigGetAll(ctx, configPath, "copy.include")
	cfg.CopyExcludes, _ = p.gitConfigGetAll(ctx, configPath, "copy.exclude")
	return cfg
}

func (p *Probe) gitConfigGet(ctx context.Context, configPath, key string) (string, error) {
	res, err := p.exec.Run(ctx, execx.Request{Argv: []string{"git", "config", "-f", configPath, "--get", key}})
	if err != nil {
		var nz *execx.NonZeroExitError
		if asNonZeroExit(err, &nz) {
			return "", nil // key absent, not an error
		}
		return "", err
	}
	return strings.TrimSpace(string(res.Stdout)), nil
}

func (p *Probe) gitConfigGetAll(ctx context.Context, configPath, key string) ([]string, error) {
	res, err := p.exec.Run(ctx, execx.Request{Argv: []string{"git", "config", "-f", configPath, "--get-all", key}})
	if err != nil {
		var nz *execx.NonZeroExitError
		if asNonZeroExit(err, &nz) {
			return nil, nil
		}
		return nil, err
	}
	var values []string
	scanner := bufio.NewScanner(strings.NewReader(string(res.Stdout)))
	for scanner.Scan() {
		if l := strings.TrimSpace(scanner.Text()); l != "" {
			values = append(values, l)
		}
	}
	return values, nil
}

func asNonZeroExit(err error, target **execx.NonZeroExitError) bool {
	nz, ok := err.(*execx.NonZeroExitError)
	if !ok {
		return false
	}
	*target = nz
	return true
}

// MergeableWorktrees returns the non-main worktrees whose branch has merged
// into defaultBranch and which carry no uncommitted local changes — the
// exact candidate set CleanMerged is about to remove, computed separately
// so a caller can preview it before the user confirms (§4.8 `c`).
func (p *Probe) MergeableWorktrees(ctx context.Context, repoPath, defaultBranch string) ([]model.WorktreeSeed, error) {
	mergedRes, err := p.git(ctx, repoPath, "branch", "--merged", defaultBranch)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]bool)
	scanner := bufio.NewScanner(strings.NewReader(string(mergedRes.Stdout)))
	for scanner.Scan() {
		// git marks the current branch with "*" and branches checked out in
		// linked worktrees with "+".
		b := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(scanner.Text()), "*+"))
		if b == "" || b == defaultBranch || strings.HasPrefix(b, "HEAD") {
			continue
		}
		merged[b] = true
	}

	worktrees, err := p.ListWorktrees(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	var candidates []model.WorktreeSeed
	for _, wt := range worktrees {
		if wt.IsMain || !merged[wt.BranchName] {
			continue
		}
		state, _, err := p.Status(ctx, wt.Path)
		if err != nil || state.LocalDirty {
			continue
		}
		candidates = append(candidates, wt)
	}
	return candidates, nil
}

// CleanMerged removes every non-main worktree whose branch has been merged
// into defaultBranch and which has no uncommitted local changes (the set
// MergeableWorktrees returns), returning the branches it removed (§4.9 post-create
// hook's counterpart: the "gtr clean" style sweep). It recomputes the
// candidate set rather than trusting a caller-supplied preview, since the
// worktree state may have changed in the time it took the user to confirm.
func (p *Probe) CleanMerged(ctx context.Context, repoPath, defaultBranch string) ([]string, error) {
	candidates, err := p.MergeableWorktrees(ctx, repoPath, defaultBranch)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, wt := range candidates {
		if err := p.RemoveWorktree(ctx, repoPath, wt.Path, wt.BranchName); err == nil {
			removed = append(removed, wt.BranchName)
		}
	}
	return removed, nil
}
