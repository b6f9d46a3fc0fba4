package slides

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"go.uber.org/zap"

	"github.com/yourusername/slide-forge/internal/config"
)

const (
	markdownFilename = "ppt.md"
	pdfFilename      = "ppt.pdf"
	htmlFilename     = "ppt.html"
)

// MarpRenderer はMarp CLIでMarkdown原稿をPDFとHTMLにレンダリングします。
type MarpRenderer struct {
	command   string
	themesDir string
	logger    *zap.Logger
}

// NewMarpRenderer はレンダラーを初期化します。
func NewMarpRenderer(cfg *config.Config, logger *zap.Logger) *MarpRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	command := "marp"
	themesDir := "themes"
	if cfg != nil {
		if cfg.MarpCommand != "" {
			command = cfg.MarpCommand
		}
		if cfg.ThemesDir != "" {
			themesDir = cfg.ThemesDir
		}
	}
	return &MarpRenderer{command: command, themesDir: themesDir, logger: logger}
}

// Render はMarkdown原稿をPDFとHTMLの両形式に変換します。
// 生成されたPDFはページ数の検証を行い、空のPDFをエラーとして扱います。
func (r *MarpRenderer) Render(ctx context.Context, markdown, theme string) (pdfData, htmlData []byte, err error) {
	tempDir, err := os.MkdirTemp("", "slide-forge-")
	if err != nil {
		return nil, nil, fmt.Errorf("一時ディレクトリの作成に失敗しました: %w", err)
	}
	defer os.RemoveAll(tempDir)

	mdPath := filepath.Join(tempDir, markdownFilename)
	if err := os.WriteFile(mdPath, []byte(markdown), 0o600); err != nil {
		return nil, nil, fmt.Errorf("原稿ファイルの書き込みに失敗しました: %w", err)
	}

	pdfPath := filepath.Join(tempDir, pdfFilename)
	htmlPath := filepath.Join(tempDir, htmlFilename)
	themeArg := r.resolveTheme(theme)

	if err := r.runMarp(ctx, mdPath, pdfPath, append([]string{"--pdf"}, themeArg...)); err != nil {
		return nil, nil, err
	}
	if err := r.runMarp(ctx, mdPath, htmlPath, append([]string{"--html"}, themeArg...)); err != nil {
		return nil, nil, err
	}

	pages, err := pdfapi.PageCountFile(pdfPath)
	if err != nil {
		return nil, nil, fmt.Errorf("生成されたPDFの検証に失敗しました: %w", err)
	}
	if pages == 0 {
		return nil, nil, fmt.Errorf("生成されたPDFにページが含まれていません")
	}

	pdfData, err = os.ReadFile(pdfPath)
	if err != nil {
		return nil, nil, fmt.Errorf("生成されたPDFの読み込みに失敗しました: %w", err)
	}
	htmlData, err = os.ReadFile(htmlPath)
	if err != nil {
		return nil, nil, fmt.Errorf("生成されたHTMLの読み込みに失敗しました: %w", err)
	}

	r.logger.Debug("レンダリング完了",
		zap.Int("pages", pages),
		zap.Int("pdfBytes", len(pdfData)),
		zap.Int("htmlBytes", len(htmlData)))

	return pdfData, htmlData, nil
}

// resolveTheme はテーマCSSファイルが配置ディレクトリに存在すればそのパスを、
// 存在しなければテーマ名をそのままMarpに渡します（組み込みテーマ用）。
func (r *MarpRenderer) resolveTheme(theme string) []string {
	themePath := filepath.Join(r.themesDir, theme+".css")
	if _, err := os.Stat(themePath); err == nil {
		return []string{"--theme", themePath}
	}
	return []string{"--theme", theme}
}

func (r *MarpRenderer) runMarp(ctx context.Context, inputPath, outputPath string, extraArgs []string) error {
	args := append([]string{inputPath, "--output", outputPath}, extraArgs...)

	cmd := exec.CommandContext(ctx, r.command, args...)
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("Marp CLIによるレンダリングに失敗しました: %s: %w", stderr.String(), err)
	}
	return nil
}
