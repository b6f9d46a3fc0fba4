// Package blob はアップロードファイルを保持するオブジェクトストレージ抽象を提供します。
package blob

import (
	"context"
	"errors"
)

// ErrNotFound は指定されたオブジェクトが存在しないことを表します。
var ErrNotFound = errors.New("blob: object not found")

// Store はコンテンツアドレス指定のオブジェクトストレージです。
type Store interface {
	// Put はオブジェクトを保存します。バケットが無い場合は作成します。
	Put(ctx context.Context, path string, data []byte, contentType string) error
	// Get はオブジェクトの内容とContent-Typeを返します。
	// 存在しない場合は ErrNotFound を返します。
	Get(ctx context.Context, path string) ([]byte, string, error)
	// Delete はオブジェクトを削除します。
	Delete(ctx context.Context, path string) error
}
