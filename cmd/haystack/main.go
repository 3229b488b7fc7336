// haystackゲートウェイのエントリポイント。
// GET /hello を Authorization ヘッダーと現在のトークンの有無で保護するHTTPサーバーを起動する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nao1215/haystack/internal/gateway"
	"github.com/nao1215/haystack/pkg/logging"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "haystack: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cli, err := parseCLI(args)
	if err != nil {
		return err
	}

	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, logging.Format(cfg.Log.Format))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("haystackゲートウェイを起動します",
		zap.String("port", cfg.Port),
		zap.String("store", cfg.Store.Kind),
		zap.Bool("strict_token_match", cfg.StrictTokenMatch),
	)
	if err := gateway.Run(ctx, cfg, logger); err != nil {
		logger.Error("haystackゲートウェイが異常終了しました", zap.Error(err))
		return err
	}
	return nil
}
