package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// LoadAWS builds the SDK config shared by the SES, SQS and CloudWatch
// clients. A non-empty EndpointURL points every client at LocalStack.
func (c AWSConfig) LoadAWS(ctx context.Context) (aws.Config, error) {
	return loadAWS(ctx, c.Region, c.EndpointURL)
}

func loadAWS(ctx context.Context, region, endpointURL string) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config (region=%s): %w", region, err)
	}
	if endpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(endpointURL)
	}
	return awsCfg, nil
}
