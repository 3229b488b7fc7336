// Package logging はゲートウェイ全体で使用する構造化ロガーを生成する。
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format はログの出力形式。
type Format string

const (
	// FormatJSON はJSON形式で出力する。
	FormatJSON Format = "json"
	// FormatConsole は人が読みやすい形式で出力する。
	FormatConsole Format = "console"
)

// New は指定されたレベルと形式のロガーを生成する。
// level には debug / info / warn / error を指定する（大文字小文字は区別しない）。
func New(level string, format Format) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("ログレベルが不正です: %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case FormatJSON, "":
		cfg = zap.NewProductionConfig()
	case FormatConsole:
		cfg = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("ログ形式が不正です: %q", format)
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("ロガーの生成に失敗: %w", err)
	}
	return logger.With(zap.String("service", "haystack")), nil
}
