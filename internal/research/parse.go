// parse.go turns free-form model output into questions, findings and a summary.
package research

import (
	"strings"
	"unicode"

	"github.com/berth-dev/scout/internal/session"
)

const (
	tagFinding    = "FINDING:"
	tagSources    = "SOURCES:"
	tagConfidence = "CONFIDENCE:"
)

// ParseQuestions extracts up to n questions from a numbered list. A line is
// kept when, with its leading enumeration removed, it contains a letter.
// Digits that belong to the question itself, as in "2024 trends", are kept.
func ParseQuestions(text string, n int) []string {
	if n <= 0 {
		return nil
	}

	var questions []string
	for _, line := range strings.Split(text, "\n") {
		q := trimEnumeration(line)
		if !strings.ContainsFunc(q, unicode.IsLetter) {
			continue
		}
		questions = append(questions, q)
		if len(questions) == n {
			break
		}
	}
	return questions
}

// ParseFindings extracts FINDING/SOURCES/CONFIDENCE records. Lines before
// the first finding and untagged lines are ignored.
func ParseFindings(text string) []session.Finding {
	var findings []session.Finding
	var current *session.Finding

	flush := func() {
		if current != nil {
			findings = append(findings, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := stripListMarker(line)

		if rest, ok := cutTag(trimmed, tagFinding); ok {
			flush()
			if rest != "" {
				current = &session.Finding{Text: rest}
			}
			continue
		}
		if current == nil {
			continue
		}
		if rest, ok := cutTag(trimmed, tagSources); ok {
			current.SourceRefs = splitRefs(rest)
			continue
		}
		if rest, ok := cutTag(trimmed, tagConfidence); ok {
			current.Confidence = rest
		}
	}
	flush()

	return findings
}

// Summarize returns the first paragraph of content.
func Summarize(content string) string {
	var para []string
	for _, line := range strings.Split(strings.TrimLeft(content, " \t\r\n"), "\n") {
		if strings.TrimSpace(line) == "" {
			break
		}
		para = append(para, strings.TrimRight(line, " \t\r"))
	}
	return strings.TrimSpace(strings.Join(para, "\n"))
}

// stripListMarker trims whitespace and a leading "-", "*" or "1." marker.
func stripListMarker(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "-*• ")
	if i := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }); i > 0 && (s[i] == '.' || s[i] == ')') {
		s = strings.TrimLeft(s[i+1:], "* ")
	}
	return strings.TrimSpace(s)
}

// trimEnumeration removes a leading bullet and an "N.", "N)" or "N -"
// counter from line.
func trimEnumeration(line string) string {
	s := strings.TrimLeft(strings.TrimSpace(line), "-*• \t")
	i := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	switch {
	case i < 0:
		return ""
	case i > 0:
		rest := strings.TrimLeft(s[i:], " \t")
		if rest != "" && strings.ContainsRune(".)-", rune(rest[0])) {
			s = rest[1:]
		}
	}
	return strings.TrimSpace(s)
}

// cutTag matches tag case-insensitively at the start of s and returns the
// trimmed remainder. Markdown emphasis around the tag is tolerated.
func cutTag(s, tag string) (string, bool) {
	if len(s) < len(tag) || !strings.EqualFold(s[:len(tag)], tag) {
		return "", false
	}
	rest := strings.TrimLeft(s[len(tag):], "* ")
	return strings.TrimSpace(rest), true
}

func splitRefs(s string) []string {
	var refs []string
	for _, part := range strings.Split(s, ",") {
		ref := strings.Trim(strings.TrimSpace(part), "[]# ")
		if ref != "" {
			refs = append(refs, ref)
		}
	}
	return refs
}
