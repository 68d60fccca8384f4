// Loading order, shared by every entry point:
//  1. Pin time.Local to UTC.
//  2. Read .env through godotenv; a missing file is fine.
//  3. Outside APP_ENV=local, resolve X_SSM_PARAM pointers through the
//     SecretProvider and export the values as X.
//  4. Decode the environment with envconfig.
//  5. Validate struct tags with validator, then the cross-section rules.
//  6. Attach BuildInfo.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	// ssmParamSuffix marks pointer variables: DATABASE_URL_SSM_PARAM names
	// the parameter that holds DATABASE_URL.
	ssmParamSuffix = "_SSM_PARAM"
	localEnv       = "local"

	secretResolutionTimeout = 30 * time.Second
)

type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func configErr(typ ConfigErrorType, err error, format string, args ...any) *ConfigError {
	return &ConfigError{Type: typ, Message: fmt.Sprintf(format, args...), Err: err}
}

// SecretProvider turns parameter paths into values. Paths it cannot resolve
// are left out of the result instead of failing the batch.
type SecretProvider interface {
	GetParametersBatch(ctx context.Context, paths []string) (map[string]string, error)
}

type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
	dotenv    func() error
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
		dotenv:    func() error { return godotenv.Load() },
	}
}

// LoadConfig builds the configuration shared by the API, the lifecycle
// worker and the job runner. provider may be nil for APP_ENV=local or when
// no pointer variables are set.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	var cfg Config
	if err := load(provider, deps, &cfg); err != nil {
		return nil, err
	}
	for _, rule := range crossSectionRules {
		if err := rule(&cfg); err != nil {
			return nil, err
		}
	}
	cfg.Build = NewBuildInfo()
	return &cfg, nil
}

// LoadEmailWorkerConfig builds the reduced configuration of the email worker.
func LoadEmailWorkerConfig(provider SecretProvider) (*EmailWorkerConfig, error) {
	return loadEmailWorkerConfigWithDeps(provider, defaultDeps())
}

func loadEmailWorkerConfigWithDeps(provider SecretProvider, deps loaderDeps) (*EmailWorkerConfig, error) {
	var cfg EmailWorkerConfig
	if err := load(provider, deps, &cfg); err != nil {
		return nil, err
	}
	cfg.Build = NewBuildInfo()
	return &cfg, nil
}

func load(provider SecretProvider, deps loaderDeps, target any) error {
	time.Local = time.UTC

	// godotenv never overrides variables that are already set.
	_ = deps.dotenv()

	if env, _ := deps.lookupEnv("APP_ENV"); env != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return err
		}
	}

	if err := envconfig.Process("", target); err != nil {
		return configErr(ErrParsing, err, "failed to process environment configuration")
	}
	if err := validator.New().Struct(target); err != nil {
		return configErr(ErrValidation, err, "configuration validation failed%s", describeInvalid(err))
	}
	return nil
}

// describeInvalid lists the offending fields so the log line alone says what
// to fix.
func describeInvalid(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return ""
	}
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, fmt.Sprintf("%s (%s)", f.Namespace(), f.Tag()))
	}
	return " for " + strings.Join(names, ", ")
}

// crossSectionRules hold the checks that span sections and have no struct
// tag equivalent.
var crossSectionRules = []func(*Config) error{
	func(cfg *Config) error {
		if cfg.Notifier.Mode == NotifierQueue && cfg.AWS.NotificationQueue == "" {
			return configErr(ErrMissingEnv, nil, "SQS_NOTIFICATIONS is required when NOTIFIER_MODE=queue")
		}
		return nil
	},
	func(cfg *Config) error {
		if cfg.Lifecycle.ScheduleInterval < 0 {
			return configErr(ErrValidation, nil, "LIFECYCLE_SCHEDULE_INTERVAL must not be negative")
		}
		return nil
	},
}

// ResolveSecrets runs only the pointer resolution step, for entry points
// that read a few variables directly. No-op for APP_ENV=local.
func ResolveSecrets(provider SecretProvider) error {
	if env, _ := os.LookupEnv("APP_ENV"); env == localEnv {
		return nil
	}
	return resolveSSMParams(provider, defaultDeps())
}

// ssmPointer is one X_SSM_PARAM=/path whose X still needs a value.
type ssmPointer struct {
	target string
	path   string
}

// pendingPointers returns unresolved pointers ordered by target. A variable
// already present in the environment wins over its pointer.
func pendingPointers(deps loaderDeps) []ssmPointer {
	var out []ssmPointer
	for _, entry := range deps.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || path == "" || !strings.HasSuffix(key, ssmParamSuffix) {
			continue
		}
		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, set := deps.lookupEnv(target); set {
			continue
		}
		out = append(out, ssmPointer{target: target, path: path})
	}
	slices.SortFunc(out, func(a, b ssmPointer) int { return strings.Compare(a.target, b.target) })
	return out
}

func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	pointers := pendingPointers(deps)
	if len(pointers) == 0 {
		return nil
	}

	targets := make([]string, 0, len(pointers))
	paths := make([]string, 0, len(pointers))
	for _, p := range pointers {
		targets = append(targets, p.target)
		if !slices.Contains(paths, p.path) {
			paths = append(paths, p.path)
		}
	}
	if provider == nil {
		return configErr(ErrSSMResolution, nil,
			"SecretProvider is required for non-local environments (need to resolve: %s)", strings.Join(targets, ", "))
	}

	ctx, cancel := context.WithTimeout(context.Background(), secretResolutionTimeout)
	defer cancel()

	values, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return configErr(ErrSSMResolution, err, "failed to resolve %d SSM parameters", len(paths))
	}

	var missing []string
	for _, p := range pointers {
		value, ok := values[p.path]
		if !ok {
			missing = append(missing, p.target)
			continue
		}
		if err := deps.setEnv(p.target, value); err != nil {
			return configErr(ErrSSMResolution, err, "failed to set resolved value for %s", p.target)
		}
	}
	if len(missing) > 0 {
		return configErr(ErrSSMResolution, nil, "SSM parameters not found for: %s", strings.Join(missing, ", "))
	}
	return nil
}
