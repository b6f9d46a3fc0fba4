// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// ファイル制限
	MaxFileSize int64 // 単一ファイルの最大サイズ（バイト）
	MaxFiles    int   // 1ジョブあたりの最大ファイル数

	// ジョブ/キュー設定
	RedisURL             string // ジョブレコード・キュー用Redis接続URL
	WorkerConcurrency    int    // ワーカーの同時実行数
	JobExpireSeconds     int    // 完了後ジョブレコードの有効期限（秒）
	ResultExpireSeconds  int    // 結果レコードの有効期限（秒）
	StreamHeartbeatSecs  int    // SSEストリームのキープアライブ間隔（秒）
	StreamCloseGraceSecs int    // close イベント送出後の猶予（秒）

	// Blobストレージ設定（MinIO / S3互換）
	BlobEndpoint  string // MinIOエンドポイント
	BlobAccessKey string // アクセスキー
	BlobSecretKey string // シークレットキー
	BlobBucket    string // アップロードファイル用バケット名
	BlobUseSSL    bool   // TLS接続を使用するか

	// 生成設定
	GeminiAPIKey    string // Gemini APIキー
	GeminiModel     string // 使用するGeminiモデル名
	MaxOutputTokens int    // 生成の最大出力トークン数
	TokenBudget     int    // 入力トークンの上限（超過時はエラー）

	// レンダリング設定
	MarpCommand string // Marp CLI実行ファイルのパス
	ThemesDir   string // スライドテーマCSSの配置ディレクトリ
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		// ファイル制限
		MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 20971520), // 20MB
		MaxFiles:    getEnvAsInt("MAX_FILES", 5),

		// ジョブ/キュー設定
		RedisURL:             getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),
		WorkerConcurrency:    getEnvAsInt("WORKER_CONCURRENCY", 4),
		JobExpireSeconds:     getEnvAsInt("JOB_EXPIRE_SECONDS", 300),
		ResultExpireSeconds:  getEnvAsInt("RESULT_EXPIRE_SECONDS", 3600),
		StreamHeartbeatSecs:  getEnvAsInt("STREAM_HEARTBEAT_SECONDS", 30),
		StreamCloseGraceSecs: getEnvAsInt("STREAM_CLOSE_GRACE_SECONDS", 1),

		// Blobストレージ設定
		BlobEndpoint:  getEnv("BLOB_ENDPOINT", "127.0.0.1:9000"),
		BlobAccessKey: getEnv("BLOB_ACCESS_KEY", ""),
		BlobSecretKey: getEnv("BLOB_SECRET_KEY", ""),
		BlobBucket:    getEnv("BLOB_BUCKET", "ai-slider-files"),
		BlobUseSSL:    getEnvAsBool("BLOB_USE_SSL", false),

		// 生成設定
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		MaxOutputTokens: getEnvAsInt("MAX_OUTPUT_TOKENS", 4096),
		TokenBudget:     getEnvAsInt("TOKEN_BUDGET", 16384),

		// レンダリング設定
		MarpCommand: getEnv("MARP_COMMAND", "marp"),
		ThemesDir:   getEnv("THEMES_DIR", "themes"),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	// ローカル開発では一部の設定は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required in release mode")
		}
		if c.BlobAccessKey == "" || c.BlobSecretKey == "" {
			return fmt.Errorf("BLOB_ACCESS_KEY and BLOB_SECRET_KEY are required in release mode")
		}
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required in release mode")
		}
		if c.MarpCommand == "" {
			return fmt.Errorf("MARP_COMMAND is required in release mode")
		}
	}

	if c.JobExpireSeconds <= 0 {
		return fmt.Errorf("JOB_EXPIRE_SECONDS must be positive")
	}
	if c.ResultExpireSeconds <= 0 {
		return fmt.Errorf("RESULT_EXPIRE_SECONDS must be positive")
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsInt64 は環境変数を64ビット整数として取得します。
func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します。
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
