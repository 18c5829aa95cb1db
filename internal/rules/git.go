package rules

import (
	"regexp"
	"strings"
)

// GitRule is a predicate over a command. Deny rules block unconditionally and
// cannot be trusted away; ask rules prompt for confirmation.
type GitRule struct {
	Name    string
	Check   func(cmd string) bool
	Message string
}

// ProtectedBranches are branches that never take direct commits or pushes.
var ProtectedBranches = map[string]bool{"main": true, "master": true}

// SafeRemoteRefs are start points for branch creation with no stacking risk.
var SafeRemoteRefs = map[string]bool{
	"upstream/main":   true,
	"origin/main":     true,
	"upstream/master": true,
	"origin/master":   true,
}

var (
	forceFlagRe     = regexp.MustCompile(`(^|\s)--force(\s|=|$)`)
	bundledForceRe  = regexp.MustCompile(`(^|\s)-[a-zA-Z]*f[a-zA-Z]*(\s|$)`)
	forceWithLease  = regexp.MustCompile(`(^|\s)--force-with-lease(=[^\s]+)?(\s|$)`)
	bundledDeleteRe = regexp.MustCompile(`(^|\s)-[a-zA-Z]*D[a-zA-Z]*(\s|$)`)
	// HEAD is a valid start point: specifying it signals intent, unlike
	// omitting the base entirely.
	headRefRe = regexp.MustCompile(`^HEAD([~^]\d*)*$`)
	shaRefRe  = regexp.MustCompile(`^[0-9a-f]{7,40}$`)

	gitPushRe  = regexp.MustCompile(`git\s+push`)
	gitAddRe   = regexp.MustCompile(`git\s+add`)
	gitRmRe    = regexp.MustCompile(`git\s+rm`)
	gitCleanRe = regexp.MustCompile(`git\s+clean`)
	gitWordRe  = regexp.MustCompile(`git\s+`)
	gitBranch  = regexp.MustCompile(`git\s+branch`)
	cleanXRe   = regexp.MustCompile(`-[a-zA-Z]*[xX]`)

	gitConfigGlobalRe = regexp.MustCompile(`git\s+config\s+--global`)
	configReadRe      = regexp.MustCompile(`(--get|--list)(\s|$)`)
	configShortLRe    = regexp.MustCompile(`\s-l(\s|$)`)
)

func hasForceFlag(cmd string) bool {
	return forceFlagRe.MatchString(cmd) || bundledForceRe.MatchString(cmd)
}

// pushTarget returns the remote and branch positionals of a git push command.
func pushTarget(cmd string) (remote, branch string) {
	foundPush := false
	for _, part := range strings.Fields(cmd) {
		if part == "push" {
			foundPush = true
			continue
		}
		if !foundPush || strings.HasPrefix(part, "-") {
			continue
		}
		if remote == "" {
			remote = part
			continue
		}
		branch = part
		break
	}
	return remote, branch
}

// BranchCreation describes a branch-creating git command.
type BranchCreation struct {
	Branch string
	Start  string // "" when no start point was given
}

func nextPositional(parts []string, start int) string {
	for i := start; i < len(parts); i++ {
		if parts[i] == "--" || strings.HasPrefix(parts[i], "-") {
			continue
		}
		return parts[i]
	}
	return ""
}

// findFlagBranch scans parts from start for a branch-creation flag such as
// -c/--create or -b/-B. A bare positional before the flag means this is not a
// creation command. Returns the branch name and the index after it.
func findFlagBranch(parts []string, start int, flags map[string]bool, equalsPrefix string) (string, int, bool) {
	for i := start; i < len(parts); i++ {
		arg := parts[i]
		if arg == "--" {
			continue
		}
		if equalsPrefix != "" && strings.HasPrefix(arg, equalsPrefix) {
			return arg[len(equalsPrefix):], i + 1, true
		}
		if flags[arg] {
			if i+1 < len(parts) {
				return parts[i+1], i + 2, true
			}
			return "", 0, false // flag with no branch name
		}
		if strings.HasPrefix(arg, "-") {
			continue
		}
		return "", 0, false // positional before flag
	}
	return "", 0, false
}

// ParseBranchCreation recognizes `git switch -c`, `git checkout -b/-B` and
// `git worktree add -b` forms. Returns nil for anything else.
func ParseBranchCreation(cmd string) *BranchCreation {
	parts := strings.Fields(cmd)
	if len(parts) < 3 || parts[0] != "git" {
		return nil
	}

	switch parts[1] {
	case "switch":
		branch, next, ok := findFlagBranch(parts, 2, map[string]bool{"-c": true, "--create": true}, "--create=")
		if !ok {
			return nil
		}
		return &BranchCreation{Branch: branch, Start: nextPositional(parts, next)}
	case "checkout":
		branch, next, ok := findFlagBranch(parts, 2, map[string]bool{"-b": true, "-B": true}, "")
		if !ok {
			return nil
		}
		return &BranchCreation{Branch: branch, Start: nextPositional(parts, next)}
	case "worktree":
		if parts[2] != "add" {
			return nil
		}
		// git worktree add <path> -b <name> [<start-point>]
		pathSeen := false
		for i := 3; i < len(parts); i++ {
			arg := parts[i]
			if arg == "-b" {
				if i+1 < len(parts) {
					return &BranchCreation{Branch: parts[i+1], Start: nextPositional(parts, i+2)}
				}
				return nil
			}
			if strings.HasPrefix(arg, "-") {
				continue
			}
			if !pathSeen {
				pathSeen = true
				continue
			}
			break // second positional before -b
		}
		return nil
	}
	return nil
}

// IsSafeStartPoint reports whether a branch start point carries no stacking
// risk: an upstream remote ref, a HEAD variant, or a commit SHA.
func IsSafeStartPoint(ref string) bool {
	return SafeRemoteRefs[ref] || headRefRe.MatchString(ref) || shaRefRe.MatchString(ref)
}

func matchRe(pattern string) func(string) bool {
	re := regexp.MustCompile(pattern)
	return re.MatchString
}

// GitDeny rules block unconditionally, even under GUARD_BYPASS.
var GitDeny = []GitRule{
	{
		"reset-hard",
		matchRe(`git\s+reset\s+--hard`),
		"git reset --hard is FORBIDDEN. " +
			"Use 'git reset --mixed' or 'git stash' to preserve changes.",
	},
	{
		"push-force",
		func(cmd string) bool {
			return gitPushRe.MatchString(cmd) && hasForceFlag(cmd)
		},
		"Force push (--force/-f) is FORBIDDEN. Use --force-with-lease for safer force pushing.",
	},
	{
		"push-upstream",
		func(cmd string) bool {
			if !gitPushRe.MatchString(cmd) {
				return false
			}
			remote, _ := pushTarget(cmd)
			return remote == "upstream"
		},
		"Pushing to upstream is FORBIDDEN. Push to origin and create a PR instead.",
	},
	{
		"fwl-main",
		func(cmd string) bool {
			if !gitPushRe.MatchString(cmd) || !forceWithLease.MatchString(cmd) {
				return false
			}
			_, branch := pushTarget(cmd)
			return ProtectedBranches[branch]
		},
		"--force-with-lease to main/master is FORBIDDEN. Use feature branches for rebasing.",
	},
	{
		"branch-D",
		func(cmd string) bool {
			return gitBranch.MatchString(cmd) && bundledDeleteRe.MatchString(cmd)
		},
		"git branch -D is FORBIDDEN. Use 'git branch -d' for safe deletion of merged branches.",
	},
	{
		"branch-force",
		matchRe(`git\s+branch.*--force`),
		"git branch --force is FORBIDDEN. Force operations on branches must be done manually.",
	},
	{
		"push-origin-main",
		matchRe(`git\s+push.*origin\s+(main|master)(\s|$)`),
		"Pushing directly to origin/main or origin/master is FORBIDDEN. " +
			"Use feature branches and PRs.",
	},
	{
		"no-verify",
		func(cmd string) bool {
			return gitWordRe.MatchString(cmd) && strings.Contains(cmd, "--no-verify")
		},
		"--no-verify flag is FORBIDDEN. Git hooks must run for all commits and pushes.",
	},
	{
		"add-force",
		func(cmd string) bool {
			return gitAddRe.MatchString(cmd) && hasForceFlag(cmd)
		},
		"git add --force is FORBIDDEN. Files are gitignored for a reason.",
	},
	{
		"rm-cached-force",
		func(cmd string) bool {
			return gitRmRe.MatchString(cmd) &&
				strings.Contains(cmd, "--cached") &&
				(hasForceFlag(cmd) || strings.Contains(cmd, "--force"))
		},
		"git rm --cached --force is FORBIDDEN. Use 'git rm --cached' without --force.",
	},
	{
		"rm-unsafe",
		func(cmd string) bool {
			return gitRmRe.MatchString(cmd) && !strings.Contains(cmd, "--cached")
		},
		"git rm is FORBIDDEN (deletes files). Use 'git rm --cached' to unstage only.",
	},
	{
		"clean-ignored",
		func(cmd string) bool {
			return gitCleanRe.MatchString(cmd) &&
				cleanXRe.MatchString(cmd)
		},
		"git clean with -x or -X is FORBIDDEN. These delete ignored/untracked files irreversibly.",
	},
	{
		"branch-no-base",
		func(cmd string) bool {
			parsed := ParseBranchCreation(cmd)
			return parsed != nil && parsed.Start == ""
		},
		"Branch creation without a start-point defaults to HEAD (which may be stale " +
			"or another feature branch). Specify a base: " +
			"git switch -c <name> upstream/main",
	},
}

// GitAsk rules prompt the user for confirmation and are eligible for trust.
var GitAsk = []GitRule{
	{
		"config-global-write",
		func(cmd string) bool {
			return gitConfigGlobalRe.MatchString(cmd) &&
				!configReadRe.MatchString(cmd) &&
				!configShortLRe.MatchString(cmd)
		},
		"git config --global modifications require permission. " +
			"Read operations (--get, --list) are allowed.",
	},
	{
		"stash-drop",
		matchRe(`git\s+stash\s+drop`),
		"git stash drop permanently deletes a stash. Confirm this is intentional.",
	},
	{
		"checkout-dash-dash",
		matchRe(`git\s+checkout\s+--`),
		"git checkout -- is destructive and deprecated. Consider using 'git restore' instead.",
	},
	{
		"filter-branch",
		matchRe(`git\s+filter-branch`),
		"git filter-branch is dangerous and deprecated. Use git-filter-repo if truly needed.",
	},
	{
		"reflog-delete-expire",
		matchRe(`git\s+reflog\s+(delete|expire)`),
		"git reflog delete/expire removes recovery points. Confirm this is intentional.",
	},
	{
		"remote-remove",
		matchRe(`git\s+remote\s+(remove|rm)`),
		"Removing a git remote may break workflows. Confirm this is intentional.",
	},
	{
		"branch-from-local-main",
		func(cmd string) bool {
			parsed := ParseBranchCreation(cmd)
			return parsed != nil && ProtectedBranches[parsed.Start]
		},
		"Local main may be stale. Prefer upstream/main or run git fetch upstream main first.",
	},
	{
		"branch-from-non-upstream",
		func(cmd string) bool {
			parsed := ParseBranchCreation(cmd)
			return parsed != nil && parsed.Start != "" && !IsSafeStartPoint(parsed.Start)
		},
		"Branching from a non-upstream ref risks branch stacking. Use upstream/main instead.",
	},
}
