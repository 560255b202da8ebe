package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/animus-labs/gluejobs/internal/platform/env"
)

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	SessionToken  string
	Region        string
	UseSSL        bool
	CreateBuckets bool
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("GLUE_S3_USE_SSL", true)
	if err != nil {
		return Config{}, err
	}
	createBuckets, err := env.Bool("GLUE_S3_CREATE_BUCKETS", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:      env.String("GLUE_S3_ENDPOINT", "s3.amazonaws.com"),
		AccessKey:     env.String("GLUE_S3_ACCESS_KEY", env.String("AWS_ACCESS_KEY_ID", "")),
		SecretKey:     env.String("GLUE_S3_SECRET_KEY", env.String("AWS_SECRET_ACCESS_KEY", "")),
		SessionToken:  env.String("GLUE_S3_SESSION_TOKEN", env.String("AWS_SESSION_TOKEN", "")),
		Region:        env.String("GLUE_S3_REGION", env.String("AWS_REGION", "us-east-1")),
		UseSSL:        useSSL,
		CreateBuckets: createBuckets,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
