package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// maxParamLogLen caps logged request params.
	maxParamLogLen = 200

	// slowRequestThreshold is the duration above which requests are logged at WARN level.
	slowRequestThreshold = 100 * time.Millisecond
)

// LoggingMiddleware returns middleware that logs every received request with
// its method and duration. Failures log at ERROR, slow requests at WARN.
func LoggingMiddleware(logger *slog.Logger) sdk.Middleware {
	return func(next sdk.MethodHandler) sdk.MethodHandler {
		return func(ctx context.Context, method string, req sdk.Request) (sdk.Result, error) {
			start := time.Now()
			result, err := next(ctx, method, req)
			duration := time.Since(start)

			attrs := []any{
				"method", method,
				"duration_ms", duration.Milliseconds(),
			}
			if params := formatParams(req); params != "" {
				attrs = append(attrs, "params", truncate(params, maxParamLogLen))
			}

			switch {
			case err != nil:
				attrs = append(attrs, "error", err.Error())
				logger.Error("mcp request failed", attrs...)
			case isToolError(result):
				logger.Warn("mcp tool returned error", attrs...)
			case duration > slowRequestThreshold:
				logger.Warn("slow mcp request", attrs...)
			default:
				logger.Debug("mcp request completed", attrs...)
			}
			return result, err
		}
	}
}

func isToolError(result sdk.Result) bool {
	r, ok := result.(*sdk.CallToolResult)
	return ok && r != nil && r.IsError
}

func formatParams(req sdk.Request) string {
	if req == nil {
		return ""
	}
	params := req.GetParams()
	if params == nil {
		return ""
	}
	// Tool arguments may carry whole documents; only the tool name is logged.
	if p, ok := params.(*sdk.CallToolParamsRaw); ok {
		return "tool=" + p.Name
	}
	return fmt.Sprintf("%+v", params)
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
