package objectstore

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/ManuelReschke/LabelFox/internal/pkg/env"
)

// Config holds S3 configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	PublicURL       string // Optional public base URL of the bucket
	PathPrefix      string
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		PublicURL:       strings.TrimRight(env.GetEnv("S3_PUBLIC_URL", ""), "/"),
		PathPrefix:      strings.Trim(env.GetEnv("S3_PATH_PREFIX", ""), "/"),
	}
}

// IsConfigured returns true when bucket and credentials are set.
func (c *Config) IsConfigured() bool {
	return c.Validate() == nil
}

func (c *Config) Validate() error {
	if c.AccessKeyID == "" {
		return errors.New("S3_ACCESS_KEY_ID is required")
	}
	if c.SecretAccessKey == "" {
		return errors.New("S3_SECRET_ACCESS_KEY is required")
	}
	if c.BucketName == "" {
		return errors.New("S3_BUCKET_NAME is required")
	}
	return nil
}

// FullKey prepends the configured path prefix.
func (c *Config) FullKey(key string) string {
	if c.PathPrefix == "" {
		return key
	}
	return c.PathPrefix + "/" + key
}

// LabelKey generates the object key of an uploaded label image.
// Format: labels/<workspace>/<uuid><ext>
func LabelKey(workspaceID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("labels/%s/%s%s", workspaceID, uuid.NewString(), ext)
}

// ReportKey generates the object key of a rendered report.
// Format: reports/<workspace>/<report>.<format>
func ReportKey(workspaceID, reportID, format string) string {
	return fmt.Sprintf("reports/%s/%s.%s", workspaceID, reportID, format)
}

// ContentType returns the MIME type based on file extension
func ContentType(filename string) string {
	switch strings.ToLower(path.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}
