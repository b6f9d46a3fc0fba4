package main

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourusername/slide-forge/internal/blob"
	"github.com/yourusername/slide-forge/internal/config"
	"github.com/yourusername/slide-forge/internal/jobs"
	"github.com/yourusername/slide-forge/internal/record"
	"github.com/yourusername/slide-forge/internal/slides"
)

// application はHTTP層から利用するジョブ基盤一式です。
type application struct {
	service   *jobs.Service
	manager   *jobs.Manager
	bridge    *jobs.Bridge
	generator *slides.GeminiGenerator
	redis     *redis.Client
}

// setupJobs はレコードストア・Blobストア・生成/レンダリング・キュー・
// ブリッジを組み立てます。ServiceとManagerは相互参照となるため、
// Manager構築後に SetQueue で接続します。
func setupJobs(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("Redis接続URLの解析に失敗しました: %w", err)
	}
	redisClient := redis.NewClient(opt)

	records := record.NewRedisStore(redisClient)

	blobs, err := blob.NewMinioStore(blob.MinioConfig{
		Endpoint:  cfg.BlobEndpoint,
		AccessKey: cfg.BlobAccessKey,
		SecretKey: cfg.BlobSecretKey,
		Bucket:    cfg.BlobBucket,
		UseSSL:    cfg.BlobUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("Blobストアの初期化に失敗しました: %w", err)
	}

	jobTTL := time.Duration(cfg.JobExpireSeconds) * time.Second
	resultTTL := time.Duration(cfg.ResultExpireSeconds) * time.Second

	service, err := jobs.NewService(records, blobs, logger, jobTTL, resultTTL)
	if err != nil {
		return nil, err
	}

	generator, err := slides.NewGeminiGenerator(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	renderer := slides.NewMarpRenderer(cfg, logger)

	worker, err := jobs.NewWorker(service, blobs, generator, renderer, logger)
	if err != nil {
		generator.Close()
		return nil, err
	}

	manager, err := jobs.NewManager(cfg, worker, logger)
	if err != nil {
		generator.Close()
		return nil, err
	}
	service.SetQueue(manager)

	heartbeat := time.Duration(cfg.StreamHeartbeatSecs) * time.Second
	closeGrace := time.Duration(cfg.StreamCloseGraceSecs) * time.Second
	bridge, err := jobs.NewBridge(records, service, logger, heartbeat, closeGrace)
	if err != nil {
		generator.Close()
		return nil, err
	}

	return &application{
		service:   service,
		manager:   manager,
		bridge:    bridge,
		generator: generator,
		redis:     redisClient,
	}, nil
}

// Close は終了時に外部接続を解放します。
func (a *application) Close() {
	if a.generator != nil {
		_ = a.generator.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
