package rules

import (
	"regexp"
	"strconv"
)

// URLRule matches fetched URLs that point at authenticated services where a
// raw HTTP request returns login walls instead of content.
type URLRule struct {
	Name     string
	Pattern  *regexp.Regexp
	Guidance string
	Action   Action
}

func urlBlock(name, pattern, guidance string) URLRule {
	return URLRule{
		Name:     name,
		Pattern:  regexp.MustCompile(pattern),
		Guidance: guidance,
		Action:   ActionBlock,
	}
}

// URL is the built-in authenticated-URL table.
var URL = []URLRule{
	urlBlock("github-api", `api\.github\.com`,
		"This URL targets the GitHub API which requires authentication. "+
			"Use the `gh` CLI instead. Example: `gh api repos/OWNER/REPO`."),
	urlBlock("github-auth-content", `github\.com/[^/]+/[^/]+/(settings|pulls|issues|actions|security)`,
		"This GitHub URL requires authentication to return useful content. "+
			"Use the `gh` CLI instead. Example: `gh pr list`, `gh issue list`, `gh run list`."),
	urlBlock("gitlab-api", `gitlab\.com/api/`,
		"This URL targets the GitLab API which requires authentication. "+
			"Use `glab api` instead. Example: `glab api projects/:id/issues`."),
	urlBlock("gitlab-raw", `gitlab\.com/.+/(-/raw/|-/blob/)`,
		"This GitLab URL points to raw/blob content which may require authentication. "+
			"Use `glab` CLI or clone the repo locally."),
	urlBlock("google-docs", `docs\.google\.com/document/`,
		"Google Docs requires authentication. "+
			"Use a Google MCP tool or `gcloud` CLI to access document content."),
	urlBlock("google-drive", `drive\.google\.com/(file|drive)/`,
		"Google Drive requires authentication. "+
			"Use a Google MCP tool or `gcloud` CLI to access files."),
	urlBlock("google-sheets", `sheets\.google\.com/`,
		"Google Sheets requires authentication. "+
			"Use a Google MCP tool or `gcloud` CLI to access spreadsheet data."),
	urlBlock("atlassian-api", `[a-z0-9-]+\.atlassian\.net/(rest/api|wiki)/`,
		"This Atlassian URL requires authentication. Use the Atlassian MCP tools instead."),
	urlBlock("jira-server", `jira\.[a-z0-9-]+\.(com|org|net)/`,
		"This Jira server URL requires authentication. "+
			"Use the `jira` CLI or Atlassian MCP tools instead."),
	urlBlock("slack-api", `(api|hooks)\.slack\.com/`,
		"This Slack URL requires authentication. "+
			"Use the Slack MCP tools or access Slack via Playwright MCP."),
}

// MatchURL returns the first URL rule matching url, or nil.
func MatchURL(table []URLRule, url string) *URLRule {
	for i := range table {
		if table[i].Pattern.MatchString(url) {
			return &table[i]
		}
	}
	return nil
}

var authFailPatterns = []*regexp.Regexp{
	regexp.MustCompile(`HTTP/[\d.]+ 401\b`),
	regexp.MustCompile(`HTTP/[\d.]+ 403\b`),
	regexp.MustCompile(`HTTP/[\d.]+ 407\b`),
	regexp.MustCompile(`curl: \(22\).*40[1379]`),
	regexp.MustCompile(`(?i)Unauthorized`),
	regexp.MustCompile(`(?i)Access Denied`),
	regexp.MustCompile(`(?i)Login Required`),
	regexp.MustCompile(`(?i)sign.?in`),
	regexp.MustCompile(`(?i)SSO.*redirect`),
}

var httpStatusRe = regexp.MustCompile(`HTTP/[\d.]+ (\d{3})\b`)

// DetectAuthFailure scans fetch-response text for authentication failure
// indicators. The status code is 0 when no HTTP status line is present.
func DetectAuthFailure(text string) (failed bool, statusCode int) {
	if text == "" {
		return false, 0
	}
	if m := httpStatusRe.FindStringSubmatch(text); m != nil {
		statusCode, _ = strconv.Atoi(m[1])
	}
	for _, p := range authFailPatterns {
		if p.MatchString(text) {
			return true, statusCode
		}
	}
	return false, statusCode
}
