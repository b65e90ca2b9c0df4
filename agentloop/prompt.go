package agentloop

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024

// DefaultSystemPrompt is the base instruction block used when a host does not
// supply its own.
const DefaultSystemPrompt = `You are an autonomous coding agent. You work in the user's repository
using the tools provided. Prefer reading files before editing them, make
the smallest change that solves the task, and report what you did in
plain text when you are done.`

// ComposeSystemPrompt builds the full system prompt: the base instructions,
// an environment block, discovered project instruction files, and a short
// git summary. Intended for hosts to assign to SessionConfig.SystemPrompt.
func ComposeSystemPrompt(base string, env ExecutionEnvironment) string {
	if base == "" {
		base = DefaultSystemPrompt
	}
	sections := []string{base, BuildEnvironmentContext(env)}
	if docs := DiscoverProjectDocs(env.WorkingDirectory()); docs != "" {
		sections = append(sections, docs)
	}
	if git := GitContext(env.WorkingDirectory()); git != "" {
		sections = append(sections, git)
	}
	return strings.Join(sections, "\n\n")
}

// BuildEnvironmentContext renders the structured environment block.
func BuildEnvironmentContext(env ExecutionEnvironment) string {
	workingDir := env.WorkingDirectory()
	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workingDir)
	fmt.Fprintf(&sb, "Is git repository: %v\n", isGitRepository(workingDir))
	if branch := gitBranch(workingDir); branch != "" {
		fmt.Fprintf(&sb, "Git branch: %s\n", branch)
	}
	fmt.Fprintf(&sb, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	sb.WriteString("</environment>")
	return sb.String()
}

// DiscoverProjectDocs loads AGENTS.md files from the git root down to the
// working directory, capped at 32KB total.
func DiscoverProjectDocs(workingDir string) string {
	root := gitRoot(workingDir)
	if root == "" {
		root = workingDir
	}

	var docs []string
	totalBytes := 0
	for _, dir := range pathHierarchy(root, workingDir) {
		path := filepath.Join(dir, "AGENTS.md")
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		remaining := maxProjectDocBytes - totalBytes
		if remaining <= 0 {
			docs = append(docs, "[Project instructions truncated at 32KB]")
			break
		}
		text := string(content)
		if len(text) > remaining {
			text = text[:remaining] + "\n[Project instructions truncated at 32KB]"
		}
		docs = append(docs, fmt.Sprintf("# AGENTS.md (from %s)\n\n%s", dir, text))
		totalBytes += len(text)
	}
	return strings.Join(docs, "\n\n---\n\n")
}

// GitContext summarizes the repository state for the system prompt.
func GitContext(workingDir string) string {
	root := gitRoot(workingDir)
	if root == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("<git_context>\n")
	if branch := gitBranch(root); branch != "" {
		fmt.Fprintf(&sb, "Branch: %s\n", branch)
	}
	if status := runGit(root, "status", "--short"); status != "" {
		lines := strings.Split(strings.TrimSpace(status), "\n")
		fmt.Fprintf(&sb, "Modified/untracked files: %d\n", len(lines))
	}
	if log := runGit(root, "log", "--oneline", "-10"); log != "" {
		sb.WriteString("Recent commits:\n")
		sb.WriteString(log)
	}
	sb.WriteString("</git_context>")
	return sb.String()
}

// pathHierarchy returns the directories from root down to target, inclusive.
func pathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)
	dirs := []string{root}
	if root == target {
		return dirs
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return dirs
	}
	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == "." || part == ".." {
			continue
		}
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

func isGitRepository(dir string) bool {
	out := runGit(dir, "rev-parse", "--is-inside-work-tree")
	return strings.TrimSpace(out) == "true"
}

func gitRoot(dir string) string {
	return strings.TrimSpace(runGit(dir, "rev-parse", "--show-toplevel"))
}

func gitBranch(dir string) string {
	return strings.TrimSpace(runGit(dir, "rev-parse", "--abbrev-ref", "HEAD"))
}

func runGit(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return string(out)
}
