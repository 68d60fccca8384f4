package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
)

// FileProvider answers parameter lookups from a dotenv-format snapshot, so
// cmd/tools/job-runner can run against an environment without AWS
// credentials. /prod/eduplatform/database/url is looked up as DATABASE_URL,
// /prod/eduplatform/email/sendgrid_api_key as EMAIL_SENDGRID_API_KEY.
type FileProvider struct {
	values map[string]string
}

// NewFileProvider reads the snapshot at path.
func NewFileProvider(path string) (*FileProvider, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading secrets file %s: %w", path, err)
	}
	return &FileProvider{values: values}, nil
}

// GetParametersBatch omits paths the snapshot does not contain.
func (p *FileProvider) GetParametersBatch(_ context.Context, paths []string) (map[string]string, error) {
	out := make(map[string]string, len(paths))
	for _, path := range paths {
		key, ok := snapshotKey(path)
		if !ok {
			continue
		}
		if v, ok := p.values[key]; ok {
			out[path] = v
		}
	}
	return out, nil
}

func snapshotKey(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[1] != ParameterNamespace {
		return "", false
	}
	return strings.ToUpper(strings.Join(parts[2:], "_")), true
}
