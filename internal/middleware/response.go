package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/reserv/internal/model"
)

// SuccessResponseBody はAPI成功レスポンスの統一フォーマット。
type SuccessResponseBody struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Action string `json:"action,omitempty"`
}

// WriteSuccessResponse は{ok:true}形式の成功レスポンスを書き込む。
func WriteSuccessResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(SuccessResponseBody{OK: true, Data: data})
}

// WriteErrorResponse は{ok:false}形式の統一エラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		OK:     false,
		Error:  apiErr.Message,
		Code:   apiErr.Code,
		Action: apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// StatusForAPIError はAPIエラーコードに対応するHTTPステータスコードを返す。
func StatusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeSessionNotFound, model.ErrCodeParticipantNotFound,
		model.ErrCodePaymentNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeCapacityExceeded, model.ErrCodeInvalidTransition:
		return http.StatusConflict
	case model.ErrCodeValidation:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeUpstreamFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteAPIError はAPIErrorを対応するHTTPステータスで書き込む。
// APIError以外のエラーは500として扱い、詳細を露出しない。
func WriteAPIError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*model.APIError); ok {
		WriteErrorResponse(w, StatusForAPIError(apiErr), apiErr)
		return
	}
	WriteInternalServerError(w)
}
