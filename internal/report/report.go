// Package report writes research reports to disk and renders them for the
// terminal.
package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/glamour"
)

// Extension is the file extension of written reports.
const Extension = ".md"

const (
	fileTimestampLayout = "20060102_150405"
	headerTimeLayout    = "2006-01-02 15:04:05"
	maxSlugLen          = 50
)

// Document is a synthesized report ready to be written.
type Document struct {
	Topic       string
	SessionID   int64
	GeneratedAt time.Time
	Body        string
}

// Slugify reduces topic to letters, digits, '-' and '_', with spaces turned
// into underscores, capped at 50 characters. An empty result becomes "research".
func Slugify(topic string) string {
	var b strings.Builder
	for _, r := range topic {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	slug := []rune(strings.TrimSpace(b.String()))
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	s := strings.ReplaceAll(strings.TrimSpace(string(slug)), " ", "_")
	if s == "" {
		return "research"
	}
	return s
}

// FileName returns "{timestamp}_{slug}.md" for topic at t.
func FileName(topic string, t time.Time) string {
	return t.Format(fileTimestampLayout) + "_" + Slugify(topic) + Extension
}

// Format produces the file contents: a title header, the session ID, the
// generation time, a separator and the report body exactly as given, ending
// in a newline.
func Format(doc Document) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Research Report: %s\n\n", doc.Topic)
	fmt.Fprintf(&b, "**Session ID:** %d\n", doc.SessionID)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", doc.GeneratedAt.Format(headerTimeLayout))
	b.WriteString("---\n\n")
	b.WriteString(doc.Body)
	if !strings.HasSuffix(doc.Body, "\n") {
		b.WriteString("\n")
	}

	return b.String()
}

// Write stores doc in dir, creating dir if needed, and returns the file path.
// If a report with the same name already exists a numeric suffix is added.
func Write(dir string, doc Document) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	name := FileName(doc.Topic, doc.GeneratedAt)
	base := strings.TrimSuffix(name, Extension)
	content := []byte(Format(doc))

	for i := 1; ; i++ {
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) && i < 100 {
			name = fmt.Sprintf("%s_%d%s", base, i+1, Extension)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("creating report file: %w", err)
		}

		if _, err := f.Write(content); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("writing report file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("closing report file: %w", err)
		}
		return path, nil
	}
}

// Copy duplicates the report at src to dst, creating dst's directory.
func Copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening report: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying report: %w", err)
	}
	return out.Close()
}

// Render formats markdown for a terminal of the given width.
func Render(markdown string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("creating markdown renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return out, nil
}
