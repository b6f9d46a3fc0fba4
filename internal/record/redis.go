package record

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const changeChannelSuffix = ":changes"

// RedisStore は Store のRedis実装です。
// ドキュメントは "<collection>:<id>" キーにJSONとして保存され、
// 書き込みのたびに "<collection>:<id>:changes" チャンネルへ全文が発行されます。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Get はドキュメントを取得します。
func (s *RedisStore) Get(ctx context.Context, collection, id string) ([]byte, error) {
	if collection == "" || id == "" {
		return nil, fmt.Errorf("collection and id are required")
	}
	data, err := s.rdb.Get(ctx, docKey(collection, id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Set はドキュメント全体を保存し、変更を発行します。
// 保存と発行は同一トランザクションで行い、単一ドキュメントの通知順序を
// 適用順に揃えます。
func (s *RedisStore) Set(ctx context.Context, collection, id string, doc []byte) error {
	if collection == "" || id == "" {
		return fmt.Errorf("collection and id are required")
	}
	key := docKey(collection, id)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, doc, 0)
		pipe.Publish(ctx, key+changeChannelSuffix, doc)
		return nil
	})
	return err
}

// Update は既存ドキュメントへ指定フィールドをマージし、変更を発行します。
// 同一ドキュメントへの同時更新に備えて WATCH による楽観ロックで再試行します。
func (s *RedisStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if collection == "" || id == "" {
		return fmt.Errorf("collection and id are required")
	}
	key := docKey(collection, id)

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return ErrNotFound
			}
			return err
		}

		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("failed to parse document %s: %w", key, err)
		}
		for k, v := range fields {
			doc[k] = v
		}
		updated, err := json.Marshal(doc)
		if err != nil {
			return err
		}

		// 保存と発行を同一トランザクションに含めることで、並行更新でも
		// 通知が適用順で届く
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			pipe.Publish(ctx, key+changeChannelSuffix, updated)
			return nil
		})
		return err
	}

	for {
		err := s.rdb.Watch(ctx, txn, key)
		if err == redis.TxFailedErr {
			continue
		}
		return err
	}
}

// Delete はドキュメントを削除します。
func (s *RedisStore) Delete(ctx context.Context, collection, id string) error {
	if collection == "" || id == "" {
		return fmt.Errorf("collection and id are required")
	}
	return s.rdb.Del(ctx, docKey(collection, id)).Err()
}

// Subscribe はドキュメントの変更通知を購読します。
// コールバックはPub/Sub受信ゴルーチン上で、同一ドキュメントに対しては
// ストアへの適用順に呼び出されます。
func (s *RedisStore) Subscribe(ctx context.Context, collection, id string, fn func(doc []byte)) (func(), error) {
	if collection == "" || id == "" {
		return nil, fmt.Errorf("collection and id are required")
	}
	if fn == nil {
		return nil, fmt.Errorf("callback is required")
	}

	pubsub := s.rdb.Subscribe(ctx, docKey(collection, id)+changeChannelSuffix)
	// 購読が確立するまで待つ（確立前の変更は購読確立後の再読込で拾う前提）
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	go func() {
		for msg := range pubsub.Channel() {
			fn([]byte(msg.Payload))
		}
	}()

	return func() { _ = pubsub.Close() }, nil
}

func docKey(collection, id string) string {
	return collection + ":" + id
}
