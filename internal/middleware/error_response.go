package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/sellerpro/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// errorにはメッセージを入れ、UI側はcodeで分岐する。
type ErrorResponseBody struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	Category     string `json:"category"`
	Action       string `json:"action"`
	LimitReached bool   `json:"limitReached,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// 無料枠の上限到達時はlimitReached=trueを付与する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Error:        apiErr.Message,
		Code:         apiErr.Code,
		Category:     apiErr.Category,
		Action:       apiErr.Action,
		LimitReached: apiErr.Code == model.ErrCodeLimitReached,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
