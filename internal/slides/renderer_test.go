package slides

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/yourusername/slide-forge/internal/config"
)

func TestResolveThemeCustomCSS(t *testing.T) {
	themesDir := t.TempDir()
	cssPath := filepath.Join(themesDir, "corporate.css")
	if err := os.WriteFile(cssPath, []byte("section { color: navy; }"), 0o644); err != nil {
		t.Fatalf("failed to write theme css: %v", err)
	}

	r := NewMarpRenderer(&config.Config{ThemesDir: themesDir}, zap.NewNop())
	args := r.resolveTheme("corporate")
	if len(args) != 2 || args[0] != "--theme" || args[1] != cssPath {
		t.Fatalf("unexpected theme args: %v", args)
	}
}

func TestResolveThemeBuiltinFallback(t *testing.T) {
	r := NewMarpRenderer(&config.Config{ThemesDir: t.TempDir()}, zap.NewNop())
	args := r.resolveTheme("gaia")
	if len(args) != 2 || args[0] != "--theme" || args[1] != "gaia" {
		t.Fatalf("unexpected theme args: %v", args)
	}
}

func TestRenderMarpFailure(t *testing.T) {
	r := NewMarpRenderer(&config.Config{
		MarpCommand: "/nonexistent/marp-binary",
		ThemesDir:   t.TempDir(),
	}, zap.NewNop())

	if _, _, err := r.Render(context.Background(), "# Slide", "default"); err == nil {
		t.Fatal("expected error when the CLI is missing")
	}
}
