package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"github.com/dreschagin/views-collector/internal/application/usecase"
	"github.com/dreschagin/views-collector/internal/bootstrap"
	"github.com/dreschagin/views-collector/pkg/config"
	"github.com/dreschagin/views-collector/pkg/logger"
)

const flushTimeout = 5 * time.Second

type response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

type handler struct {
	collector *bootstrap.Collector
}

// Handle ignores the scheduler event; every invocation collects one snapshot.
func (h *handler) Handle(ctx context.Context, _ json.RawMessage) (response, error) {
	invocationID := ""
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		invocationID = lc.AwsRequestID
	}

	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
		h.collector.Flush(flushCtx)
	}()

	result, err := h.collector.Collect.Execute(ctx, usecase.CollectSnapshotCommand{
		InvocationID: invocationID,
	})
	if err != nil {
		return response{}, err
	}

	return response{
		StatusCode: 200,
		Body:       usecase.SuccessMessage(result.Summary),
	}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)

	// Built once per execution environment and reused across warm invocations.
	collector, err := bootstrap.Build(context.Background(), cfg, log)
	if err != nil {
		log.Error("Failed to initialize collector", err)
		os.Exit(1)
	}

	h := &handler{collector: collector}
	lambda.Start(h.Handle)
}
