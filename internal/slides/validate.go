package slides

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// allowedTypes は受け付ける拡張子と、それぞれに対応する許容MIMEタイプです。
var allowedTypes = map[string][]string{
	".pdf": {"application/pdf"},
	".md":  {"text/markdown", "text/plain"},
	".txt": {"text/plain"},
}

// ValidateUpload はアップロードファイルの種別を検証します。
// 拡張子の許可リスト（.pdf / .md / .txt）に加えて、内容から検出した
// MIMEタイプが拡張子と矛盾しないことを確認します。
// 検証はジョブレコードが作成される前に行われます。
func ValidateUpload(filename string, data []byte) error {
	if strings.TrimSpace(filename) == "" {
		return newError("INVALID_INPUT", "ファイル名を指定してください。", nil)
	}
	if len(data) == 0 {
		return newError("INVALID_INPUT", fmt.Sprintf("ファイル %s が空です。", filename), nil)
	}

	ext := strings.ToLower(filepath.Ext(filename))
	allowed, ok := allowedTypes[ext]
	if !ok {
		return newError("UNSUPPORTED_FILE_TYPE",
			fmt.Sprintf("対応していないファイル形式です: %s（.pdf / .md / .txt のみ対応）", filename), nil)
	}

	detected := mimetype.Detect(data)
	for _, want := range allowed {
		if detected.Is(want) {
			return nil
		}
	}
	// テキスト系はエンコーディング検出の揺れがあるため text/* であれば許容する
	if ext != ".pdf" && strings.HasPrefix(detected.String(), "text/") {
		return nil
	}
	return newError("UNSUPPORTED_FILE_TYPE",
		fmt.Sprintf("ファイル %s の内容（%s）が拡張子と一致しません。", filename, detected.String()), nil)
}
