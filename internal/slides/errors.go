// Package slides はスライド生成のドメイン機能を提供します。
// 入力検証、プロンプト構築、Geminiによる原稿生成、Marp CLIによる
// レンダリング、およびジョブ作成ハンドラーを含みます。
package slides

import "fmt"

// Error は呼び出し側へ返すエラーコード付きエラーです。
type Error struct {
	Code    string
	Message string
	cause   error
}

// Error は error インターフェースを実装します。
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap は内包するエラーを返します。
func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}
