package external

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"eduplatform/internal/config"
)

// ClientRegistry holds the external clients used by the lifecycle
// binaries. Local environments get LocalEmailProvider; everything else
// gets the provider named in EmailConfig.
type ClientRegistry struct {
	Email EmailProvider
}

// RegistryOption configures NewClientRegistry.
type RegistryOption func(*registryOptions)

type registryOptions struct {
	httpClient *http.Client
	awsConfig  *aws.Config
	sesAPI     SESAPI
	sgBaseURL  string
}

// WithHTTPClient overrides the HTTP client used for SendGrid.
func WithHTTPClient(c *http.Client) RegistryOption {
	return func(o *registryOptions) { o.httpClient = c }
}

// WithAWSConfig supplies an already loaded AWS config, skipping the
// default credential chain.
func WithAWSConfig(cfg aws.Config) RegistryOption {
	return func(o *registryOptions) { o.awsConfig = &cfg }
}

// WithSESAPI injects the SES client directly. Used in tests.
func WithSESAPI(api SESAPI) RegistryOption {
	return func(o *registryOptions) { o.sesAPI = api }
}

// WithSendGridBaseURL points the SendGrid client at another host.
func WithSendGridBaseURL(url string) RegistryOption {
	return func(o *registryOptions) { o.sgBaseURL = url }
}

// NewClientRegistry builds the email provider for the given environment.
func NewClientRegistry(
	ctx context.Context,
	environment string,
	emailCfg config.EmailConfig,
	awsCfg config.AWSConfig,
	logger *slog.Logger,
	opts ...RegistryOption,
) (*ClientRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := registryOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	if environment == "local" {
		logger.Info("using local email provider", "environment", environment)
		return &ClientRegistry{Email: NewLocalEmailProvider(logger)}, nil
	}

	switch emailCfg.Provider {
	case config.EmailProviderSendGrid:
		if !emailCfg.SendGridAPIKey.IsSet() {
			return nil, fmt.Errorf("sendgrid provider selected but SENDGRID_API_KEY is empty")
		}
		httpClient := o.httpClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: 10 * time.Second}
		}
		return &ClientRegistry{Email: NewSendGridClient(httpClient, SendGridClientConfig{
			APIKey:  emailCfg.SendGridAPIKey,
			BaseURL: o.sgBaseURL,
			Logger:  logger,
		})}, nil

	case config.EmailProviderSES:
		sesCfg := SESClientConfig{ConfigSetName: emailCfg.SESConfigSet, Logger: logger}
		if o.sesAPI != nil {
			return &ClientRegistry{Email: NewSESClientWithAPI(o.sesAPI, sesCfg)}, nil
		}
		loaded := o.awsConfig
		if loaded == nil {
			c, err := awsCfg.LoadAWS(ctx)
			if err != nil {
				return nil, err
			}
			loaded = &c
		}
		return &ClientRegistry{Email: NewSESClient(*loaded, sesCfg)}, nil

	default:
		return nil, fmt.Errorf("unknown email provider %q", emailCfg.Provider)
	}
}
