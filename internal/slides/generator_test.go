package slides

import (
	"strings"
	"testing"

	"github.com/yourusername/slide-forge/internal/jobs"
)

func TestExtractMarkdownFenced(t *testing.T) {
	text := "Here is your deck:\n```markdown\n---\nmarp: true\n---\n# Slide\n```\nEnjoy!"
	got := extractMarkdown(text)
	want := "---\nmarp: true\n---\n# Slide"
	if got != want {
		t.Fatalf("extractMarkdown = %q, want %q", got, want)
	}
}

func TestExtractMarkdownBareFence(t *testing.T) {
	text := "```\n# Slide\n```"
	if got := extractMarkdown(text); got != "# Slide" {
		t.Fatalf("extractMarkdown = %q", got)
	}
}

func TestExtractMarkdownNoFence(t *testing.T) {
	text := "---\nmarp: true\n---\n# Slide"
	if got := extractMarkdown(text); got != text {
		t.Fatalf("unfenced text should pass through, got %q", got)
	}
}

func TestExtractMarkdownUnclosedFence(t *testing.T) {
	text := "```markdown\n# Slide"
	if got := extractMarkdown(text); got != text {
		t.Fatalf("unclosed fence should pass through, got %q", got)
	}
}

func TestBuildPromptDefaults(t *testing.T) {
	prompt := BuildPrompt("default", jobs.Settings{})
	if !strings.Contains(prompt, "theme: default") {
		t.Fatalf("prompt missing theme: %s", prompt)
	}
	if !strings.Contains(prompt, "about 10 slides") {
		t.Fatalf("prompt missing default slide count: %s", prompt)
	}
	if !strings.Contains(prompt, "in English") {
		t.Fatalf("prompt missing default language: %s", prompt)
	}
}

func TestBuildPromptSettings(t *testing.T) {
	prompt := BuildPrompt("gaia", jobs.Settings{
		Language:   "Japanese",
		SlideCount: 6,
		Tone:       "casual",
	})
	if !strings.Contains(prompt, "theme: gaia") {
		t.Fatalf("prompt missing theme: %s", prompt)
	}
	if !strings.Contains(prompt, "about 6 slides") {
		t.Fatalf("prompt missing slide count: %s", prompt)
	}
	if !strings.Contains(prompt, "in Japanese") {
		t.Fatalf("prompt missing language: %s", prompt)
	}
	if !strings.Contains(prompt, "casual tone") {
		t.Fatalf("prompt missing tone: %s", prompt)
	}
}
