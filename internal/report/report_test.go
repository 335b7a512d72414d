package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"quantum computing", "quantum_computing"},
		{"AI/ML: what's next?", "AIML_whats_next"},
		{"  padded-topic_name  ", "padded-topic_name"},
		{"?!*", "research"},
		{"", "research"},
		{strings.Repeat("a", 60), strings.Repeat("a", 50)},
		{"café crème", "café_crème"},
	}

	for _, tt := range tests {
		if got := Slugify(tt.topic); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}

func TestSlugifyTrimsAfterTruncation(t *testing.T) {
	topic := strings.Repeat("x", 49) + " tail"
	got := Slugify(topic)
	if got != strings.Repeat("x", 49) {
		t.Errorf("Slugify = %q, want 49 x without trailing underscore", got)
	}
}

func TestFileName(t *testing.T) {
	at := time.Date(2026, 10, 19, 8, 5, 3, 0, time.UTC)
	if got := FileName("quantum computing", at); got != "20261019_080503_quantum_computing.md" {
		t.Errorf("FileName = %q", got)
	}
}

func TestFormat(t *testing.T) {
	doc := Document{
		Topic:       "fusion",
		SessionID:   7,
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Body:        "\nSummary paragraph.\n\n## Conclusion\nDone.\n\n",
	}

	got := Format(doc)
	want := "# Research Report: fusion\n\n" +
		"**Session ID:** 7\n" +
		"**Generated:** 2026-01-02 03:04:05\n\n" +
		"---\n\n" +
		"\nSummary paragraph.\n\n## Conclusion\nDone.\n\n"
	if got != want {
		t.Errorf("Format mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestFormatKeepsBodyVerbatim(t *testing.T) {
	body := "\n  Lead paragraph.\n\n## Conclusion\nDone."
	got := Format(Document{Topic: "fusion", SessionID: 1, GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Body: body})

	if !strings.HasSuffix(got, "---\n\n"+body+"\n") {
		t.Errorf("Format should append the body unchanged plus a final newline, got %q", got)
	}
}

func TestWriteCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")
	doc := Document{Topic: "fusion", SessionID: 1, GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Body: "Body."}

	path, err := Write(dir, doc)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if filepath.Base(path) != "20260102_030405_fusion.md" {
		t.Errorf("path = %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	if !strings.Contains(string(data), "Body.") {
		t.Errorf("report missing body: %q", data)
	}
}

func TestWriteDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	doc := Document{Topic: "fusion", SessionID: 1, GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Body: "first"}

	first, err := Write(dir, doc)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	doc.Body = "second"
	second, err := Write(dir, doc)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if first == second {
		t.Fatalf("second write reused path %q", first)
	}
	if filepath.Base(second) != "20260102_030405_fusion_2.md" {
		t.Errorf("second path = %q", second)
	}
	data, _ := os.ReadFile(first)
	if !strings.Contains(string(data), "first") {
		t.Errorf("first report was overwritten: %q", data)
	}
}

func TestCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.md")
	if err := os.WriteFile(src, []byte("# report"), 0644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "out", "b.md")

	if err := Copy(src, dst); err != nil {
		t.Fatalf("Copy failed: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "# report" {
		t.Errorf("copied content = %q, err %v", data, err)
	}
}

func TestRender(t *testing.T) {
	out, err := Render("# Heading\n\nSome *text*.", 60)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(out, "Heading") || !strings.Contains(out, "text") {
		t.Errorf("Render output missing content: %q", out)
	}
}
