package jobs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// StatusHandler は GET /v1/jobs/:id のハンドラーを返します。
// Accept に text/event-stream が含まれる場合はSSEでライブ配信し、
// それ以外は現在状態のJSONを返します。
func StatusHandler(svc *Service, bridge *Bridge) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		if wantsEventStream(c) {
			streamJobStatus(c, bridge, jobID)
			return
		}

		job, err := svc.GetJob(c.Request.Context(), jobID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "JOB_NOT_FOUND",
					"message": "指定されたジョブは存在しません。",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}

		c.JSON(http.StatusOK, job)
	}
}

func wantsEventStream(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}

func streamJobStatus(c *gin.Context, bridge *Bridge, jobID string) {
	var sent bool
	err := bridge.Stream(c.Request.Context(), jobID, func(event StreamEvent) error {
		if c.Request.Context().Err() != nil {
			return c.Request.Context().Err()
		}
		// ヘッダーは最初のイベント送出が確定してから設定する。
		// 初回照会が失敗した場合にエラーJSONへ誤ったContent-Typeが付くのを防ぐ。
		if !sent {
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
			c.Header("X-Accel-Buffering", "no")
		}
		c.SSEvent(event.Name, event.Data)
		c.Writer.Flush()
		sent = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) && !sent {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "指定されたジョブは存在しません。",
			})
			return
		}
		if !sent {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ状態の配信に失敗しました。",
			})
		}
	}
}

// ResultHandler は GET /v1/results/:id のハンドラーを返します。
// 既定ではHTML本文を返し、download=true が指定された場合は
// presentation-<id>.pdf としてPDFバイト列を返します。
func ResultHandler(svc *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := strings.TrimSpace(c.Param("id"))
		if jobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		result, err := svc.GetResult(c.Request.Context(), jobID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "RESULT_NOT_FOUND",
					"message": "ジョブの成果物が見つかりませんでした。",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブの成果物取得に失敗しました。",
			})
			return
		}

		if c.Query("download") == "true" {
			filename := fmt.Sprintf("presentation-%s.pdf", result.ID)
			c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
			c.Header("Cache-Control", "no-store")
			c.Data(http.StatusOK, "application/pdf", result.PDFData)
			return
		}

		c.Data(http.StatusOK, "text/html; charset=utf-8", result.HTMLData)
	}
}
