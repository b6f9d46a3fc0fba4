package slides

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/slide-forge/internal/jobs"
)

const defaultTheme = "default"

// CreateLimits はジョブ作成時の入力制限です。
type CreateLimits struct {
	MaxFileSize int64
	MaxFiles    int
}

// CreateHandler は POST /v1/slides のハンドラーを返します。
// 検証はすべてジョブレコードが作られる前に行われ、不正な入力は
// 一切の状態を残さずに拒否されます。
func CreateHandler(svc *jobs.Service, limits CreateLimits) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "multipart/form-data でファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		headers := form.File["files[]"]
		if len(headers) == 0 {
			headers = form.File["files"]
		}
		if len(headers) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "アップロードされたファイルが見つかりません。",
			})
			return
		}
		if limits.MaxFiles > 0 && len(headers) > limits.MaxFiles {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": fmt.Sprintf("一度にアップロードできるファイルは最大%d件です。", limits.MaxFiles),
			})
			return
		}

		uploads := make([]jobs.UploadFile, 0, len(headers))
		for _, header := range headers {
			if limits.MaxFileSize > 0 && header.Size > limits.MaxFileSize {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{
					"code":    "LIMIT_EXCEEDED",
					"message": fmt.Sprintf("ファイル %s がサイズ上限を超えています。", header.Filename),
				})
				return
			}

			data, err := readMultipartFile(header)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"code":    "INVALID_INPUT",
					"message": fmt.Sprintf("ファイル %s の読み込みに失敗しました。", header.Filename),
				})
				return
			}

			if err := ValidateUpload(header.Filename, data); err != nil {
				respondWithError(c, err)
				return
			}

			uploads = append(uploads, jobs.UploadFile{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Data:        data,
			})
		}

		theme := strings.TrimSpace(c.PostForm("theme"))
		if theme == "" {
			theme = defaultTheme
		}

		settings, err := parseSettings(c.PostForm("settings"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "settings はJSONオブジェクトで指定してください。",
			})
			return
		}

		job, err := svc.CreateJob(c.Request.Context(), theme, uploads, settings)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"id":        job.ID,
			"status":    job.Status,
			"message":   job.Message,
			"createdAt": job.CreatedAt,
			"updatedAt": job.UpdatedAt,
		})
	}
}

func readMultipartFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func parseSettings(raw string) (jobs.Settings, error) {
	var settings jobs.Settings
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return settings, nil
	}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return settings, err
	}
	return settings, nil
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		if apiErr.Code == "LIMIT_EXCEEDED" {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}
