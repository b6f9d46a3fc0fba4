package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yourusername/slide-forge/internal/blob"
	"github.com/yourusername/slide-forge/internal/record"
)

const (
	// CollectionJobs はジョブレコードのコレクション名です。
	CollectionJobs = "jobs"
	// CollectionResults は結果レコードのコレクション名です。
	CollectionResults = "results"
)

var (
	// ErrNotFound はジョブまたは結果が存在しない（もしくは失効した）ことを表します。
	// 失効による削除と元々存在しないケースは呼び出し側から区別できません。
	ErrNotFound = errors.New("jobs: not found")
	// ErrStagingFailed は入力ファイルのBlobストアへのステージングに失敗したことを表します。
	ErrStagingFailed = errors.New("jobs: file staging failed")
	// ErrDispatchFailed はタスクのキュー投入に失敗したことを表します。
	ErrDispatchFailed = errors.New("jobs: task dispatch failed")
)

// Enqueuer はスライド生成タスクをキューに投入します。
type Enqueuer interface {
	Enqueue(ctx context.Context, payload *TaskPayload) error
}

// Service はジョブの作成・照会・状態更新を担います。
type Service struct {
	records   record.Store
	blobs     blob.Store
	queue     Enqueuer
	logger    *zap.Logger
	jobTTL    time.Duration
	resultTTL time.Duration
	now       func() time.Time
}

// NewService は Service を初期化します。
func NewService(records record.Store, blobs blob.Store, logger *zap.Logger, jobTTL, resultTTL time.Duration) (*Service, error) {
	if records == nil {
		return nil, errors.New("record store is nil")
	}
	if blobs == nil {
		return nil, errors.New("blob store is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if jobTTL <= 0 || resultTTL <= 0 {
		return nil, errors.New("jobTTL and resultTTL must be positive")
	}
	return &Service{
		records:   records,
		blobs:     blobs,
		logger:    logger,
		jobTTL:    jobTTL,
		resultTTL: resultTTL,
		now:       time.Now,
	}, nil
}

// SetQueue はタスク投入先を設定します。
// Manager がワーカーを参照し、ワーカーが Service を参照するため、配線後に呼び出します。
func (s *Service) SetQueue(queue Enqueuer) {
	s.queue = queue
}

// CreateJob は新しいジョブを作成します。
// 初期レコードの保存 → 入力ファイルのステージング → タスク投入の順に行い、
// 途中で失敗した場合はジョブを failed に遷移させた上でエラーを返します。
// ステージ済みのファイルは失敗時も削除しません（ワーカー側の後始末に委ねる）。
// 戻り値は作成時のスナップショットで、ストアからの再読込は行いません。
func (s *Service) CreateJob(ctx context.Context, theme string, files []UploadFile, settings Settings) (*Job, error) {
	if s.queue == nil {
		return nil, errors.New("task queue is not configured")
	}
	if len(files) == 0 {
		return nil, errors.New("at least one file is required")
	}

	now := s.now().UTC()
	job := &Job{
		ID:        uuid.NewString(),
		Status:    StatusQueued,
		Message:   "Job queued",
		CreatedAt: now,
		UpdatedAt: now,
	}

	doc, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	if err := s.records.Set(ctx, CollectionJobs, job.ID, doc); err != nil {
		return nil, fmt.Errorf("failed to create job record: %w", err)
	}

	refs := make([]FileReference, 0, len(files))
	for _, f := range files {
		path := fmt.Sprintf("jobs/%s/%s", job.ID, f.Filename)
		if err := s.blobs.Put(ctx, path, f.Data, f.ContentType); err != nil {
			s.UpdateJobStatus(ctx, job, StatusFailed, fmt.Sprintf("Upload error: %v", err))
			return nil, fmt.Errorf("%w: %s: %v", ErrStagingFailed, f.Filename, err)
		}
		refs = append(refs, FileReference{
			Filename:    f.Filename,
			ContentType: f.ContentType,
			StoragePath: path,
		})
	}

	payload := &TaskPayload{
		JobID:    job.ID,
		Theme:    theme,
		Files:    refs,
		Settings: settings,
	}
	if err := s.queue.Enqueue(ctx, payload); err != nil {
		s.UpdateJobStatus(ctx, job, StatusFailed, fmt.Sprintf("Dispatch error: %v", err))
		return nil, fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}

	return job, nil
}

// GetJob はジョブを取得します。
// 失効チェックを通過した completed ジョブについては、結果レコードから
// resultUrl を補完します（この二次読込の失敗は致命的ではありません）。
func (s *Service) GetJob(ctx context.Context, id string) (*Job, error) {
	doc, err := s.records.Get(ctx, CollectionJobs, id)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var job Job
	if err := json.Unmarshal(doc, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job %s: %w", id, err)
	}

	if s.reapIfExpired(ctx, CollectionJobs, id, job.ExpiresAt) {
		return nil, ErrNotFound
	}

	s.ResolveResultURL(ctx, &job)
	return &job, nil
}

// GetResult は結果を取得します。失効済みの場合は削除した上で ErrNotFound を返します。
func (s *Service) GetResult(ctx context.Context, id string) (*Result, error) {
	doc, err := s.records.Get(ctx, CollectionResults, id)
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var result Result
	if err := json.Unmarshal(doc, &result); err != nil {
		return nil, fmt.Errorf("failed to parse result %s: %w", id, err)
	}

	if s.reapIfExpired(ctx, CollectionResults, id, result.ExpiresAt) {
		return nil, ErrNotFound
	}

	return &result, nil
}

// UpdateJobStatus はジョブの状態とメッセージを更新します。
// ストアへの書き込み失敗はログに記録するだけで伝播させません。
// メモリ上のジョブは常に更新されるため、呼び出し側の後続処理は一貫した視点を保てます。
func (s *Service) UpdateJobStatus(ctx context.Context, job *Job, status Status, message string) {
	now := s.now().UTC()
	fields := map[string]any{
		"status":    status,
		"message":   message,
		"updatedAt": now.Format(time.RFC3339Nano),
	}
	if err := s.records.Update(ctx, CollectionJobs, job.ID, fields); err != nil {
		s.logger.Error("failed to update job status",
			zap.String("jobId", job.ID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
	job.Status = status
	job.Message = message
	job.UpdatedAt = now
}

// CompleteJob はジョブを completed に遷移させ、結果URLと失効時刻を設定します。
// 終端遷移の書き込み失敗はエラーとして返します（ブローカーの再配送に委ねる）。
func (s *Service) CompleteJob(ctx context.Context, job *Job, message, resultURL string) error {
	now := s.now().UTC()
	expiresAt := now.Add(s.jobTTL)
	fields := map[string]any{
		"status":    StatusCompleted,
		"message":   message,
		"resultUrl": resultURL,
		"updatedAt": now.Format(time.RFC3339Nano),
		"expiresAt": expiresAt.Format(time.RFC3339Nano),
	}
	if err := s.records.Update(ctx, CollectionJobs, job.ID, fields); err != nil {
		return fmt.Errorf("failed to mark job %s as completed: %w", job.ID, err)
	}
	job.Status = StatusCompleted
	job.Message = message
	job.ResultURL = resultURL
	job.UpdatedAt = now
	job.ExpiresAt = expiresAt
	return nil
}

// StoreResult は生成された成果物を結果レコードとして保存します。
// 結果の失効時刻はジョブ本体より長く設定されます。
func (s *Service) StoreResult(ctx context.Context, jobID string, pdfData, htmlData []byte) (*Result, error) {
	now := s.now().UTC()
	result := &Result{
		ID:        jobID,
		ResultURL: "/v1/results/" + jobID,
		PDFData:   pdfData,
		HTMLData:  htmlData,
		CreatedAt: now,
		ExpiresAt: now.Add(s.resultTTL),
	}
	doc, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	if err := s.records.Set(ctx, CollectionResults, jobID, doc); err != nil {
		return nil, fmt.Errorf("failed to store result for job %s: %w", jobID, err)
	}
	return result, nil
}

// ResolveResultURL は completed ジョブの resultUrl を結果レコードから補完します。
// 結果がまだ書かれていない、あるいは読み込みに失敗した場合は何もしません
// （呼び出し側は一時的な null を許容し、再試行できます）。
func (s *Service) ResolveResultURL(ctx context.Context, job *Job) {
	if job.Status != StatusCompleted || job.ResultURL != "" {
		return
	}
	result, err := s.GetResult(ctx, job.ID)
	if err != nil {
		s.logger.Debug("result lookup for completed job failed",
			zap.String("jobId", job.ID), zap.Error(err))
		return
	}
	job.ResultURL = result.ResultURL
}

// reapIfExpired は読み取り時の失効チェックです。
// expiresAt が設定済みかつ過去であればレコードを削除し true を返します。
// バックグラウンドの掃除は行わず、読み取りを契機とした遅延削除のみを行います。
func (s *Service) reapIfExpired(ctx context.Context, collection, id string, expiresAt time.Time) bool {
	if expiresAt.IsZero() || s.now().UTC().Before(expiresAt) {
		return false
	}
	if err := s.records.Delete(ctx, collection, id); err != nil {
		s.logger.Warn("failed to delete expired record",
			zap.String("collection", collection),
			zap.String("id", id),
			zap.Error(err))
	}
	return true
}
