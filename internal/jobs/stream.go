package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/slide-forge/internal/record"
)

// ストリームで送出されるイベント名。
const (
	EventUpdate = "update"
	EventPing   = "ping"
	EventClose  = "close"
)

// StreamEvent は1クライアント接続へ送出されるイベントです。
type StreamEvent struct {
	Name string
	Data any
}

// SendFunc はイベントをクライアントへ送出します。
// クライアントが切断済みの場合はエラーを返します。
type SendFunc func(event StreamEvent) error

// Bridge はレコードストアの変更通知を1接続分のライブイベント列に変換します。
// 通知コールバックはストアのPub/Sub受信ゴルーチン上で実行されるため、
// 変更はチャンネル経由でストリーム側の実行コンテキストへ受け渡します。
// 同一ジョブに対する通知の順序はこの受け渡しで保存されます。
type Bridge struct {
	records    record.Store
	svc        *Service
	logger     *zap.Logger
	heartbeat  time.Duration
	closeGrace time.Duration
}

// NewBridge は Bridge を初期化します。
func NewBridge(records record.Store, svc *Service, logger *zap.Logger, heartbeat, closeGrace time.Duration) (*Bridge, error) {
	if records == nil {
		return nil, errors.New("record store is nil")
	}
	if svc == nil {
		return nil, errors.New("service is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	if closeGrace < 0 {
		closeGrace = 0
	}
	return &Bridge{
		records:    records,
		svc:        svc,
		logger:     logger,
		heartbeat:  heartbeat,
		closeGrace: closeGrace,
	}, nil
}

// Stream はジョブの状態をライブ配信します。
//
// 開始時点の状態を必ず最初の update イベントとして送出します。その時点で
// 既に終端状態であれば close イベントを送って終了し、購読は確立しません。
// それ以外の場合は変更通知を購読し、購読確立前に入った書き込みを再読込で
// 補完した上で、通知ごとに update を送出します。
// ハートビート間隔の間に通知が無ければ ping を送出します。
// 終端状態に達したら update → close の順に送出し、猶予時間の後に購読を解除します。
// ctx のキャンセル（クライアント切断）では最終イベントを送らずに停止します。
//
// ジョブが存在しない場合は ErrNotFound を返します。
func (b *Bridge) Stream(ctx context.Context, jobID string, send SendFunc) error {
	job, err := b.svc.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if err := send(StreamEvent{Name: EventUpdate, Data: job}); err != nil {
		return nil
	}
	if job.Status.IsTerminal() {
		_ = send(StreamEvent{Name: EventClose, Data: closeBody(job)})
		return nil
	}

	// コールバックからストリーム本体への受け渡しチャンネル。
	// コールバック側は done が閉じるまでブロック送信し、順序を保存する。
	updates := make(chan *Job, 16)
	done := make(chan struct{})
	defer close(done)

	unsubscribe, err := b.records.Subscribe(ctx, CollectionJobs, jobID, func(doc []byte) {
		var j Job
		if err := json.Unmarshal(doc, &j); err != nil {
			b.logger.Warn("failed to parse job change notification",
				zap.String("jobId", jobID), zap.Error(err))
			return
		}
		select {
		case updates <- &j:
		case <-done:
		}
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	// スナップショット読取から購読確立までの間に入った書き込みは通知されない。
	// 購読確立後に再読込して取りこぼしを埋める。以降はチャンネル側にも同じ
	// 書き込みが届きうるため、updatedAt が進んでいない通知は捨てて順序を守る。
	last := job.UpdatedAt
	if j, err := b.svc.GetJob(ctx, jobID); err == nil && j.UpdatedAt.After(last) {
		if err := send(StreamEvent{Name: EventUpdate, Data: j}); err != nil {
			return nil
		}
		last = j.UpdatedAt
		if j.Status.IsTerminal() {
			b.finish(ctx, send, j)
			return nil
		}
	}

	heartbeat := time.NewTimer(b.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case j := <-updates:
			if !j.UpdatedAt.After(last) {
				continue
			}
			b.svc.ResolveResultURL(ctx, j)
			if err := send(StreamEvent{Name: EventUpdate, Data: j}); err != nil {
				return nil
			}
			last = j.UpdatedAt
			if j.Status.IsTerminal() {
				b.finish(ctx, send, j)
				return nil
			}
			resetTimer(heartbeat, b.heartbeat)

		case <-heartbeat.C:
			if err := send(StreamEvent{Name: EventPing, Data: map[string]any{
				"ts": time.Now().UTC().Format(time.RFC3339),
			}}); err != nil {
				return nil
			}
			heartbeat.Reset(b.heartbeat)

		case <-ctx.Done():
			return nil
		}
	}
}

// finish は close イベントを送出し、フラッシュの猶予を置いて終了します。
func (b *Bridge) finish(ctx context.Context, send SendFunc, job *Job) {
	_ = send(StreamEvent{Name: EventClose, Data: closeBody(job)})
	select {
	case <-time.After(b.closeGrace):
	case <-ctx.Done():
	}
}

func closeBody(job *Job) map[string]any {
	return map[string]any{
		"id":     job.ID,
		"status": job.Status,
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
