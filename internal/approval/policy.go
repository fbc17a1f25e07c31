package approval

import "strings"

// safeCommands are read-only commands that never modify state. A command
// auto-approves when its first token (or leading token pair for the git
// subcommands) matches an entry exactly.
var safeCommands = []string{
	"ls",
	"pwd",
	"echo",
	"cat",
	"head",
	"tail",
	"grep",
	"find",
	"wc",
	"date",
	"whoami",
	"uname",
	"df",
	"du",
	"ps",
	"which",
	"file",
	"stat",
	"git status",
	"git log",
	"git diff",
	"git show",
	"git branch",
}

// CommandPolicy decides which commands are safe to run without asking.
type CommandPolicy struct {
	patterns []string
}

// NewCommandPolicy builds the policy from the built-in safe list plus any
// configured extras.
func NewCommandPolicy(extra []string) *CommandPolicy {
	patterns := make([]string, 0, len(safeCommands)+len(extra))
	patterns = append(patterns, safeCommands...)
	for _, p := range extra {
		p = strings.TrimSpace(p)
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	return &CommandPolicy{patterns: patterns}
}

// Matches reports whether command matches a safe pattern. The pattern must
// cover whole tokens from the start of the command: "ls" matches "ls -la"
// but not "lsof", and a bare "git" never matches "git push".
func (p *CommandPolicy) Matches(command string) bool {
	command = strings.TrimSpace(command)
	if command == "" {
		return false
	}
	// Shell metacharacters can chain an unsafe command onto a safe prefix.
	if strings.ContainsAny(command, ";|&`$><") {
		return false
	}
	for _, pattern := range p.patterns {
		if command == pattern || strings.HasPrefix(command, pattern+" ") {
			return true
		}
	}
	return false
}
