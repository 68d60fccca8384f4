package config

import (
	"context"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// getParametersLimit is the most names one GetParameters call accepts.
const getParametersLimit = 10

type ssmClient interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMProvider reads the decrypted parameters that cmd/ops/bootstrap wrote.
// The SDK client is created on the first lookup, so constructing one in a
// local run costs nothing.
type SSMProvider struct {
	region      string
	endpointURL string
	client      ssmClient
}

// NewSSMProvider targets region; endpointURL is only set for LocalStack.
func NewSSMProvider(region, endpointURL string) *SSMProvider {
	return &SSMProvider{region: region, endpointURL: endpointURL}
}

func newSSMProviderWithClient(region string, client ssmClient) *SSMProvider {
	return &SSMProvider{region: region, client: client}
}

func (p *SSMProvider) getClient(ctx context.Context) (ssmClient, error) {
	if p.client == nil {
		awsCfg, err := loadAWS(ctx, p.region, p.endpointURL)
		if err != nil {
			return nil, fmt.Errorf("ssm provider: %w", err)
		}
		p.client = ssm.NewFromConfig(awsCfg)
	}
	return p.client, nil
}

// GetParametersBatch looks paths up ten at a time. Names SSM reports as
// invalid are left out of the result; the loader names the variables they
// were meant to fill.
func (p *SSMProvider) GetParametersBatch(ctx context.Context, paths []string) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	if len(paths) == 0 {
		return out, nil
	}
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	unique := slices.Compact(slices.Sorted(slices.Values(paths)))
	for batch := range slices.Chunk(unique, getParametersLimit) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("resolving SSM parameters: %w", err)
		}
		resp, err := client.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          batch,
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("SSM GetParameters %v: %w", batch, err)
		}
		for _, param := range resp.Parameters {
			if param.Name != nil && param.Value != nil {
				out[*param.Name] = *param.Value
			}
		}
	}
	return out, nil
}
