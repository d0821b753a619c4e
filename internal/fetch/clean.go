package fetch

import (
	"regexp"
	"strings"
)

var (
	badgeRe      = regexp.MustCompile(`!\[[^\]]*\]\([^)]*(badge|shields\.io|travis-ci|codecov|circleci)[^)]*\)`)
	admonitionRe = regexp.MustCompile(`^(!!!|:::|\?\?\?)\s*\w*`)
	blankRunRe   = regexp.MustCompile(`\n{3,}`)
	linkOnlyRe   = regexp.MustCompile(`^\s*[-*]?\s*\[[^\]]+\]\([^)]+\)\s*$`)
)

// blockedMarkers are phrases from anti-bot interstitial pages. A page
// containing two or more is a block page, not documentation.
var blockedMarkers = []string{
	"just a moment",
	"enable javascript and cookies",
	"attention required",
	"cloudflare",
	"verifying you are human",
	"checking your browser",
	"ddos protection by",
}

// navBlockMinLines is the run length of consecutive link-only lines that
// marks a navigation block rather than a short reference list.
const navBlockMinLines = 8

// CleanMarkdown strips markup noise that hurts chunk quality: badge images,
// YAML frontmatter, admonition markers, long navigation link blocks, and
// runs of blank lines.
func CleanMarkdown(content string) string {
	content = stripFrontmatter(content)
	content = badgeRe.ReplaceAllString(content, "")

	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))

	i := 0
	for i < len(lines) {
		line := lines[i]

		if admonitionRe.MatchString(strings.TrimSpace(line)) {
			i++
			continue
		}

		// Skip navigation blocks: long runs of link-only lines
		if linkOnlyRe.MatchString(line) {
			run := 0
			for j := i; j < len(lines) && linkOnlyRe.MatchString(lines[j]); j++ {
				run++
			}
			if run >= navBlockMinLines {
				i += run
				continue
			}
		}

		out = append(out, line)
		i++
	}

	cleaned := strings.Join(out, "\n")
	cleaned = blankRunRe.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}

// stripFrontmatter removes a leading YAML frontmatter block delimited by ---
func stripFrontmatter(content string) string {
	if !strings.HasPrefix(content, "---\n") && content != "---" {
		return content
	}
	rest := content[4:]
	if idx := strings.Index(rest, "\n---"); idx >= 0 {
		after := rest[idx+4:]
		if nl := strings.Index(after, "\n"); nl >= 0 {
			return after[nl+1:]
		}
		return ""
	}
	return content
}

// IsBlockedContent reports whether content is an anti-bot interstitial
// page. Requires two independent markers to avoid false positives on docs
// that merely mention a CDN vendor.
func IsBlockedContent(content string) bool {
	lower := strings.ToLower(content)
	hits := 0
	for _, marker := range blockedMarkers {
		if strings.Contains(lower, marker) {
			hits++
			if hits >= 2 {
				return true
			}
		}
	}
	return false
}
