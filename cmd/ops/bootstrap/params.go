package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"eduplatform/internal/config"
)

// parameterTimeout bounds each SSM call. IAM propagation on a fresh account
// makes the first calls slow.
const parameterTimeout = 15 * time.Second

type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
}

// Parameter is one value headed for Parameter Store.
type Parameter struct {
	Path      string
	Value     string
	Secure    bool
	Overwrite bool
}

func (p Parameter) ssmType() ssmtypes.ParameterType {
	if p.Secure {
		return ssmtypes.ParameterTypeSecureString
	}
	return ssmtypes.ParameterTypeString
}

// ParameterStore reads and writes the parameters of one environment.
type ParameterStore struct {
	client SSMClient
	env    string
	logger *slog.Logger
}

func NewParameterStore(client SSMClient, env string, logger *slog.Logger) *ParameterStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParameterStore{client: client, env: env, logger: logger}
}

func (s *ParameterStore) Path(key string) string {
	return config.ParameterPath(s.env, key)
}

// Exists probes path without decryption, so it needs no kms:Decrypt.
func (s *ParameterStore) Exists(ctx context.Context, path string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, parameterTimeout)
	defer cancel()

	_, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(path),
		WithDecryption: aws.Bool(false),
	})
	var notFound *ssmtypes.ParameterNotFound
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &notFound):
		return false, nil
	default:
		return false, fmt.Errorf("probing parameter %q: %w", path, err)
	}
}

// Put writes p. Secure values are never logged, only their length.
func (s *ParameterStore) Put(ctx context.Context, p Parameter) error {
	switch {
	case p.Path == "":
		return errors.New("parameter path must not be empty")
	case p.Value == "":
		return fmt.Errorf("parameter %q has an empty value", p.Path)
	}

	ctx, cancel := context.WithTimeout(ctx, parameterTimeout)
	defer cancel()

	_, err := s.client.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(p.Path),
		Value:     aws.String(p.Value),
		Type:      p.ssmType(),
		Overwrite: aws.Bool(p.Overwrite),
	})
	var exists *ssmtypes.ParameterAlreadyExists
	switch {
	case errors.As(err, &exists):
		return fmt.Errorf("parameter %q already exists and was not marked for overwrite: %w", p.Path, err)
	case err != nil:
		return fmt.Errorf("writing parameter %q: %w", p.Path, err)
	}

	attrs := []any{"path", p.Path, "type", string(p.ssmType())}
	if p.Secure {
		attrs = append(attrs, "value_length", len(p.Value))
	} else {
		attrs = append(attrs, "value", p.Value)
	}
	s.logger.Info("parameter written", attrs...)
	return nil
}
