package app

import (
	"context"
	"log/slog"

	commonpkg "stop-spying-server/internal/common"
	"stop-spying-server/internal/metrics"
	"stop-spying-server/internal/service"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	flowMagicLink = "magic_link"
	flowPasskey   = "passkey"
	flowSession   = "session"
)

// authFailedMessage 是未认证调用方能看到的唯一失败信息。
const authFailedMessage = "认证失败"

// recordAuthFailure 记录内部原因，并把认证类错误收敛为统一的未授权错误。
// 内部错误原样返回，由传输层映射为 500。
func recordAuthFailure(ctx context.Context, recorder *metrics.Recorder, flow string, err error) error {
	reason := service.AuthFailureReason(err)
	recorder.AuthOutcome(flow, reason)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("auth.failure_reason", reason))
	span.SetStatus(codes.Error, reason)

	if serviceErr, ok := commonpkg.AsServiceError(err); ok && serviceErr.Code == commonpkg.ErrorCodeInternal {
		slog.ErrorContext(ctx, "❌ 认证流程内部错误", "flow", flow, "error", err)
		return err
	}
	slog.WarnContext(ctx, "🔒 认证失败", "flow", flow, "reason", reason)
	return commonpkg.NewUnauthorizedError(authFailedMessage)
}

func recordAuthSuccess(ctx context.Context, recorder *metrics.Recorder, flow string, userID uint) {
	recorder.AuthOutcome(flow, service.AuthFailureReason(nil))
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("auth.user_id", int64(userID)))
}
