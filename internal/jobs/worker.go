package jobs

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/yourusername/slide-forge/internal/blob"
)

// StatusReporter は処理段階ごとの進捗メッセージを通知するコールバックです。
type StatusReporter func(message string)

// Generator は入力ファイルからスライド原稿（Marp形式のMarkdown）を生成します。
type Generator interface {
	Generate(ctx context.Context, files []InputFile, theme string, settings Settings, report StatusReporter) (string, error)
}

// Renderer はMarkdown原稿をPDFとHTMLにレンダリングします。
type Renderer interface {
	Render(ctx context.Context, markdown, theme string) (pdfData, htmlData []byte, err error)
}

// Worker はブローカーから配送されたタスクを処理するオーケストレーターです。
// 各段階の開始前に状態更新を発行し、失敗時はジョブを failed に遷移させて中断します。
type Worker struct {
	svc       *Service
	blobs     blob.Store
	generator Generator
	renderer  Renderer
	logger    *zap.Logger
}

// NewWorker は Worker を初期化します。
func NewWorker(svc *Service, blobs blob.Store, generator Generator, renderer Renderer, logger *zap.Logger) (*Worker, error) {
	if svc == nil {
		return nil, errors.New("service is nil")
	}
	if blobs == nil {
		return nil, errors.New("blob store is nil")
	}
	if generator == nil {
		return nil, errors.New("generator is nil")
	}
	if renderer == nil {
		return nil, errors.New("renderer is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		svc:       svc,
		blobs:     blobs,
		generator: generator,
		renderer:  renderer,
		logger:    logger,
	}, nil
}

// ProcessTask は1件のスライド生成タスクを処理します。
// 配送は at-least-once のため同じタスクが再度届くことがあります。
// 既に終端状態のジョブは再処理せずスキップします。処理中の重複実行までは
// 検出しません（後勝ちの上書きを許容します）。
// 処理の失敗はジョブを failed に遷移させた上でブローカーへエラーとして返します。
func (w *Worker) ProcessTask(ctx context.Context, payload *TaskPayload) error {
	if payload == nil || payload.JobID == "" {
		return errors.New("payload is missing jobId")
	}

	job, err := w.svc.GetJob(ctx, payload.JobID)
	switch {
	case err == nil:
		if job.Status.IsTerminal() {
			w.logger.Info("job already in terminal state, skipping redelivered task",
				zap.String("jobId", payload.JobID),
				zap.String("status", string(job.Status)))
			return nil
		}
	case errors.Is(err, ErrNotFound):
		// レコードが失効済みでも処理自体は続行できる（状態更新は記録されない可能性がある）
		job = &Job{ID: payload.JobID}
	default:
		return err
	}

	w.svc.UpdateJobStatus(ctx, job, StatusProcessing, "Starting slide generation...")

	files := make([]InputFile, 0, len(payload.Files))
	for _, ref := range payload.Files {
		data, contentType, err := w.blobs.Get(ctx, ref.StoragePath)
		if err != nil {
			w.logger.Error("failed to download staged file",
				zap.String("jobId", payload.JobID),
				zap.String("path", ref.StoragePath),
				zap.Error(err))
			w.svc.UpdateJobStatus(ctx, job, StatusFailed, fmt.Sprintf("Download error: %v", err))
			return fmt.Errorf("download staged file %s: %w", ref.StoragePath, err)
		}
		if ref.ContentType != "" {
			contentType = ref.ContentType
		}
		files = append(files, InputFile{
			Filename:    ref.Filename,
			ContentType: contentType,
			Data:        data,
		})
	}

	report := func(message string) {
		w.svc.UpdateJobStatus(ctx, job, StatusProcessing, message)
	}

	markdown, err := w.generator.Generate(ctx, files, payload.Theme, payload.Settings, report)
	if err != nil {
		w.logger.Error("slide generation failed",
			zap.String("jobId", payload.JobID), zap.Error(err))
		w.svc.UpdateJobStatus(ctx, job, StatusFailed, fmt.Sprintf("Failed to generate slides: %v", err))
		return fmt.Errorf("generate slides for job %s: %w", payload.JobID, err)
	}

	report("Finalizing your slides...")

	pdfData, htmlData, err := w.renderer.Render(ctx, markdown, payload.Theme)
	if err != nil {
		w.logger.Error("slide rendering failed",
			zap.String("jobId", payload.JobID), zap.Error(err))
		w.svc.UpdateJobStatus(ctx, job, StatusFailed, fmt.Sprintf("Failed to generate slides: %v", err))
		return fmt.Errorf("render slides for job %s: %w", payload.JobID, err)
	}

	result, err := w.svc.StoreResult(ctx, payload.JobID, pdfData, htmlData)
	if err != nil {
		w.svc.UpdateJobStatus(ctx, job, StatusFailed, fmt.Sprintf("Failed to store: %v", err))
		return err
	}

	// ステージ済み入力ファイルの削除はベストエフォート
	for _, ref := range payload.Files {
		if err := w.blobs.Delete(ctx, ref.StoragePath); err != nil {
			w.logger.Warn("failed to delete staged file",
				zap.String("jobId", payload.JobID),
				zap.String("path", ref.StoragePath),
				zap.Error(err))
			continue
		}
		w.logger.Info("deleted staged file",
			zap.String("jobId", payload.JobID),
			zap.String("path", ref.StoragePath))
	}

	if err := w.svc.CompleteJob(ctx, job, "Slides generated successfully", result.ResultURL); err != nil {
		w.logger.Error("failed to mark job as completed",
			zap.String("jobId", payload.JobID), zap.Error(err))
		return err
	}

	w.logger.Info("job completed", zap.String("jobId", payload.JobID))
	return nil
}
