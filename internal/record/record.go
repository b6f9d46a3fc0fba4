// Package record はジョブ・結果レコードを保持するドキュメントストア抽象を提供します。
package record

import (
	"context"
	"errors"
)

// ErrNotFound は指定されたドキュメントが存在しないことを表します。
var ErrNotFound = errors.New("record: document not found")

// Store はコレクション単位のドキュメントストアです。
// ドキュメントはJSONバイト列として保存されます。
type Store interface {
	// Get はドキュメントを取得します。存在しない場合は ErrNotFound を返します。
	Get(ctx context.Context, collection, id string) ([]byte, error)
	// Set はドキュメント全体を保存します（存在する場合は上書き）。
	Set(ctx context.Context, collection, id string, doc []byte) error
	// Update は指定フィールドのみをマージ更新します。
	// ドキュメントが存在しない場合は ErrNotFound を返します。
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// Delete はドキュメントを削除します。存在しない場合もエラーにしません。
	Delete(ctx context.Context, collection, id string) error
	// Subscribe はドキュメントの変更通知を購読します。
	// コールバックは変更のたびに最新のドキュメント全体を受け取ります。
	// コールバックは購読側のゴルーチンとは別の実行コンテキストで呼ばれるため、
	// 呼び出し先はスレッドセーフな受け渡しを行う必要があります。
	// 返された関数を呼ぶと購読を解除します。
	Subscribe(ctx context.Context, collection, id string, fn func(doc []byte)) (func(), error)
}
