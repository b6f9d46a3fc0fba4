package slides

import (
	"fmt"
	"strings"

	"github.com/yourusername/slide-forge/internal/jobs"
)

const defaultSlideCount = 10

// BuildPrompt は添付資料からMarp形式のスライド原稿を生成させるための
// プロンプトを組み立てます。テーマ名とユーザー設定を反映します。
func BuildPrompt(theme string, settings jobs.Settings) string {
	slideCount := settings.SlideCount
	if slideCount <= 0 {
		slideCount = defaultSlideCount
	}
	language := strings.TrimSpace(settings.Language)
	if language == "" {
		language = "English"
	}

	var b strings.Builder
	b.WriteString("You are a presentation designer. Read the attached documents and create a slide deck that summarizes them.\n\n")
	b.WriteString("Output requirements:\n")
	b.WriteString("- Produce Marp-compatible Markdown inside a single fenced code block (```markdown ... ```).\n")
	b.WriteString("- Start the document with a Marp front-matter block:\n")
	b.WriteString("  ---\n  marp: true\n")
	fmt.Fprintf(&b, "  theme: %s\n", theme)
	b.WriteString("  paginate: true\n  ---\n")
	b.WriteString("- Separate slides with a line containing only `---`.\n")
	fmt.Fprintf(&b, "- Create about %d slides, including a title slide and a closing slide.\n", slideCount)
	fmt.Fprintf(&b, "- Write all slide text in %s.\n", language)
	if tone := strings.TrimSpace(settings.Tone); tone != "" {
		fmt.Fprintf(&b, "- Use a %s tone throughout.\n", tone)
	}
	b.WriteString("- Keep each slide concise: a heading plus at most five bullet points.\n")
	b.WriteString("- Do not invent facts that are not supported by the documents.\n")
	return b.String()
}
