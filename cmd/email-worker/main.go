// Command email-worker is the Lambda that drains the notification queue the
// lifecycle engine fills when NOTIFIER_MODE=queue. Each SQS message carries
// one inactivity warning; the worker owns delivery only.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"eduplatform/internal/app"
	"eduplatform/internal/config"
)

func main() {
	logger := app.NewLogger("info")

	var provider config.SecretProvider
	if os.Getenv("APP_ENV") != "local" {
		provider = config.NewSSMProvider(os.Getenv("AWS_REGION"), os.Getenv("AWS_ENDPOINT_URL"))
	}
	cfg, err := config.LoadEmailWorkerConfig(provider)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = app.NewLogger(cfg.LogLevel)

	notifier, err := app.BuildEmailNotifier(context.Background(), cfg.Environment, cfg.Email, cfg.AWS, logger)
	if err != nil {
		logger.Error("failed to build email notifier", "error", err)
		os.Exit(1)
	}

	logger.Info("email worker initialized",
		"provider", cfg.Email.Provider,
		"version", cfg.Build.Version,
	)
	lambda.Start(NewHandler(notifier, logger).Handle)
}
