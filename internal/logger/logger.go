// Package logger はJSON構造化ログのセットアップを提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel はLOG_LEVELの値をslog.Levelに変換する。
// 未知の値や空文字はINFOとして扱う。
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup はINFOレベルのJSON構造化ログ出力のslog.Loggerを生成して返す。
func Setup(w io.Writer) *slog.Logger {
	return SetupWithLevel(w, slog.LevelInfo)
}

// SetupWithLevel は指定レベル以上を出力するJSONロガーを生成する。
func SetupWithLevel(w io.Writer, level slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定し、そのロガーを返す。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer, level slog.Level) *slog.Logger {
	logger := SetupWithLevel(w, level)
	slog.SetDefault(logger)
	return logger
}
