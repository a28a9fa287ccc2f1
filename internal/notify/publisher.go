// Package notify はデバイスへのコマンド通知を発行する。
package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Publisher はデバイス宛てのコマンドを発行するインターフェース。
// 実ブローカー接続はこのインターフェースの実装を差し替えて行う。
type Publisher interface {
	Publish(ctx context.Context, deviceID, command string) error
}

// Topic はデバイスIDに対応する通知トピック名を返す。
func Topic(deviceID string) string {
	return "devices/" + deviceID
}

// LogPublisher は通知を構造化ログとして出力するPublisher。
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher はLogPublisherを生成する。loggerがnilの場合はslog.Default()を使う。
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

// Publish はトピックとペイロードをログに出力する。
func (p *LogPublisher) Publish(ctx context.Context, deviceID, command string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", Topic(deviceID), err)
	}
	p.logger.InfoContext(ctx, "device command published",
		slog.String("topic", Topic(deviceID)),
		slog.String("payload", command),
	)
	return nil
}

var _ Publisher = (*LogPublisher)(nil)
