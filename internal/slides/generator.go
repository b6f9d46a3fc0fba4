package slides

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/yourusername/slide-forge/internal/config"
	"github.com/yourusername/slide-forge/internal/jobs"
)

// GeminiGenerator はGemini APIでスライド原稿（Marp Markdown）を生成します。
type GeminiGenerator struct {
	client          *genai.Client
	modelName       string
	maxOutputTokens int32
	tokenBudget     int32
	logger          *zap.Logger
}

// NewGeminiGenerator はGeminiクライアントを初期化します。
func NewGeminiGenerator(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*GeminiGenerator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("Geminiクライアントの初期化に失敗しました: %w", err)
	}
	return &GeminiGenerator{
		client:          client,
		modelName:       cfg.GeminiModel,
		maxOutputTokens: int32(cfg.MaxOutputTokens),
		tokenBudget:     int32(cfg.TokenBudget),
		logger:          logger,
	}, nil
}

// Close は内部クライアントを閉じます。
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

// Generate は入力ファイルと設定からMarp形式のスライド原稿を生成します。
// 各段階の前に report で進捗メッセージを通知します。
func (g *GeminiGenerator) Generate(ctx context.Context, files []jobs.InputFile, theme string, settings jobs.Settings, report jobs.StatusReporter) (string, error) {
	report("Analyzing your uploaded files...")

	parts := make([]genai.Part, 0, len(files)+1)
	for _, f := range files {
		parts = append(parts, genai.Blob{
			MIMEType: f.ContentType,
			Data:     f.Data,
		})
	}

	report("Designing your presentation...")

	prompt := BuildPrompt(theme, settings)

	report("Preparing the slide content...")

	parts = append(parts, genai.Text(prompt))

	model := g.client.GenerativeModel(g.modelName)
	model.SetMaxOutputTokens(g.maxOutputTokens)

	tokens, err := model.CountTokens(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("トークン数の算出に失敗しました: %w", err)
	}
	if tokens.TotalTokens > g.tokenBudget {
		return "", errors.New("Documents are too large to process")
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("スライド原稿の生成に失敗しました: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return "", err
	}

	markdown := extractMarkdown(text)
	if strings.TrimSpace(markdown) == "" {
		return "", errors.New("Failed to generate presentation.")
	}

	g.logger.Debug("生成されたスライド原稿",
		zap.Int("inputFiles", len(files)),
		zap.Int32("totalTokens", tokens.TotalTokens),
		zap.Int("markdownBytes", len(markdown)))

	return markdown, nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("モデルから候補が返されませんでした")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("モデル応答にテキストが含まれていません")
	}
	return b.String(), nil
}

// extractMarkdown は応答テキストから最初のフェンスコードブロックの中身を
// 取り出します。フェンスが見つからない場合は全文をそのまま返します。
func extractMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	start, end := -1, -1
	for i, line := range lines {
		if strings.HasPrefix(line, "```") {
			if start == -1 {
				start = i
			} else {
				end = i
				break
			}
		}
	}
	if start == -1 || end == -1 {
		return text
	}
	return strings.Join(lines[start+1:end], "\n")
}
