package proxy

import (
	"errors"
	"github.com/skybi/grade-proxy/internal/acquire"
	"github.com/skybi/grade-proxy/internal/credentials"
	"github.com/skybi/grade-proxy/internal/gid"
	"github.com/skybi/grade-proxy/internal/session"
)

// User-facing messages; the clients of the proxy display errMsg as is
const (
	messageMissingIdentifier = "请填写学号"
	messageMissingSecret     = "请填写密码"
	messageMissingGID        = "请填写 GID"
	messageInvalidGID        = "GID 格式不正确，请重新填写"
	messageAuthentication    = "统一身份认证失败，请检查账号或密码"
	messageTokenNotFound     = "未在成绩查询页面 URL 中找到有效的 gid_: "
	messageFormChanged       = "登录页缺少必要字段，无法继续登录"
	messageQueryFailed       = "获取成绩失败: "
	messageGIDFailed         = "GID 获取失败"
	messageScoresFailed      = "医学部成绩获取失败"
	messageInvalidBody       = "请求格式不正确"
	messageRateLimited       = "请求过于频繁，请稍后再试"
	messageNotFound          = "接口不存在"
	messageMethodNotAllowed  = "请求方法不被允许"
)

// failureMessage maps an error raised while serving a request to the message sent to the client.
// Errors outside the known taxonomy are reported as fallback followed by their own text.
func failureMessage(err error, fallback string) string {
	var extractionErr *acquire.TokenExtractionError
	var formErr *session.FormError
	var queryErr *session.QueryError

	switch {
	case errors.Is(err, credentials.ErrMissingIdentifier):
		return messageMissingIdentifier
	case errors.Is(err, credentials.ErrMissingSecret):
		return messageMissingSecret
	case errors.Is(err, gid.ErrEmpty):
		return messageMissingGID
	case errors.Is(err, gid.ErrInvalid):
		return messageInvalidGID
	case errors.Is(err, acquire.ErrAuthentication), errors.Is(err, session.ErrAuthentication):
		return messageAuthentication
	case errors.As(err, &extractionErr):
		return messageTokenNotFound + extractionErr.URL
	case errors.As(err, &formErr):
		return messageFormChanged
	case errors.As(err, &queryErr):
		return messageQueryFailed + string(queryErr.Raw)
	}

	if text := err.Error(); text != "" {
		return fallback + ": " + text
	}
	return fallback
}
