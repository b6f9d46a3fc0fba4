package jobs

import "time"

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal は終端状態（completed / failed）かどうかを返します。
// 終端状態に達したジョブはそれ以上遷移しません。
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Job は1件のスライド生成リクエストに対応する非同期ジョブです。
// レコードストアが唯一の正であり、メモリ上のコピーはスナップショットに過ぎません。
type Job struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	ResultURL string    `json:"resultUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// ExpiresAt は終端状態に達した後にのみ設定されます。ゼロ値は「まだ失効しない」を意味します。
	ExpiresAt time.Time `json:"expiresAt"`
}

// Result は完了したジョブの成果物（PDF + HTML）です。
// ジョブと1:1で対応し、作成後に更新されることはありません。
type Result struct {
	ID        string    `json:"id"`
	ResultURL string    `json:"resultUrl"`
	PDFData   []byte    `json:"pdfData"`
	HTMLData  []byte    `json:"htmlData"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// FileReference はBlobストアにステージされた入力ファイルへの参照です。
type FileReference struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	StoragePath string `json:"storagePath"`
}

// Settings はスライド生成のユーザー設定です。
type Settings struct {
	Language   string `json:"language,omitempty"`
	SlideCount int    `json:"slideCount,omitempty"`
	Tone       string `json:"tone,omitempty"`
}

// TaskPayload はスライド生成タスクのペイロードです。
// ファイル本体ではなくステージ先のパスのみを持ちます。
type TaskPayload struct {
	JobID    string          `json:"jobId"`
	Theme    string          `json:"theme"`
	Files    []FileReference `json:"files"`
	Settings Settings        `json:"settings"`
}

// UploadFile はジョブ作成時に受け取る入力ファイルです。
type UploadFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// InputFile はBlobストアから取得済みの生成用入力ファイルです。
type InputFile struct {
	Filename    string
	ContentType string
	Data        []byte
}
