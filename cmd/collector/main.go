package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/dreschagin/views-collector/internal/application/usecase"
	"github.com/dreschagin/views-collector/internal/bootstrap"
	"github.com/dreschagin/views-collector/pkg/config"
	"github.com/dreschagin/views-collector/pkg/logger"
)

func main() {
	os.Exit(run())
}

func run() int {
	// 1. Загружаем конфигурацию
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// 2. Инициализируем logger
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Daemon.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Daemon.RunTimeout)
		defer cancel()
	}

	// 3. Собираем зависимости
	collector, err := bootstrap.Build(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialize collector", err)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		collector.Close(closeCtx)
	}()

	// 4. Один запуск
	result, err := collector.Collect.Execute(ctx, usecase.CollectSnapshotCommand{
		InvocationID: uuid.NewString(),
	})
	if err != nil {
		// the use case already logged and notified
		return 1
	}

	fmt.Println(usecase.SuccessMessage(result.Summary))
	return 0
}
