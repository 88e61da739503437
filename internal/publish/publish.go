// Package publish uploads built bundles to S3-compatible object storage.
package publish

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/vango-dev/hotshim/internal/config"
	"github.com/vango-dev/hotshim/internal/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Environment variables holding the upload credentials.
const (
	AccessKeyEnv    = "AWS_ACCESS_KEY_ID"
	SecretKeyEnv    = "AWS_SECRET_ACCESS_KEY"
	SessionTokenEnv = "AWS_SESSION_TOKEN"
)

// S3API is the subset of the S3 client used by the publisher.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// File is one file to upload.
type File struct {
	// Path is the slash-separated path relative to the output directory.
	Path string

	Contents []byte
}

// Object describes an uploaded object.
type Object struct {
	Key         string
	ContentType string
	Size        int
}

// Publisher uploads files under a key prefix of one bucket.
type Publisher struct {
	client S3API
	bucket string
	prefix string
	logger *slog.Logger
	tracer trace.Tracer
}

// New creates a publisher for cfg.
func New(client S3API, cfg config.PublishConfig, logger *slog.Logger) (*Publisher, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("H180").
			WithSuggestion(`Set "publish.bucket" in hotshim.json`)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
		tracer: otel.Tracer("github.com/vango-dev/hotshim/internal/publish"),
	}, nil
}

// Key returns the object key for a file path.
func (p *Publisher) Key(filePath string) string {
	filePath = strings.TrimPrefix(filepath.ToSlash(filePath), "/")
	if p.prefix == "" {
		return filePath
	}
	return path.Join(p.prefix, filePath)
}

// Publish uploads files in path order and stops at the first failure.
func (p *Publisher) Publish(ctx context.Context, files []File) ([]Object, error) {
	ctx, span := p.tracer.Start(ctx, "publish.Publish", trace.WithAttributes(
		attribute.String("publish.bucket", p.bucket),
		attribute.Int("publish.files", len(files)),
	))
	defer span.End()

	sorted := append([]File(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	objects := make([]Object, 0, len(sorted))
	for _, f := range sorted {
		obj := Object{
			Key:         p.Key(f.Path),
			ContentType: ContentType(f.Path),
			Size:        len(f.Contents),
		}

		_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:       aws.String(p.bucket),
			Key:          aws.String(obj.Key),
			Body:         bytes.NewReader(f.Contents),
			ContentType:  aws.String(obj.ContentType),
			CacheControl: aws.String("no-cache"),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "upload failed")
			return objects, errors.New("H181").
				WithDetail(fmt.Sprintf("s3://%s/%s", p.bucket, obj.Key)).
				Wrap(err)
		}

		p.logger.Debug("uploaded", "bucket", p.bucket, "key", obj.Key, "bytes", obj.Size)
		objects = append(objects, obj)
	}

	p.logger.Info("published", "bucket", p.bucket, "prefix", p.prefix, "objects", len(objects))
	return objects, nil
}

// ContentType returns the content type for a file name.
func ContentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// FilesFromDir reads every regular file under dir.
func FilesFromDir(dir string) ([]File, error) {
	var files []File
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files = append(files, File{Path: filepath.ToSlash(rel), Contents: data})
		return nil
	})
	if err != nil {
		return nil, errors.New("H181").WithDetail("reading " + dir).Wrap(err)
	}
	return files, nil
}

// NewS3Client creates an S3 client for cfg with credentials read through
// getenv (usually os.Getenv).
func NewS3Client(cfg config.PublishConfig, getenv func(string) string) (*s3.Client, error) {
	creds := aws.Credentials{
		AccessKeyID:     getenv(AccessKeyEnv),
		SecretAccessKey: getenv(SecretKeyEnv),
		SessionToken:    getenv(SessionTokenEnv),
		Source:          "environment",
	}
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return nil, errors.New("H182").
			WithSuggestion(fmt.Sprintf("Set %s and %s", AccessKeyEnv, SecretKeyEnv))
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := s3.Options{
		Region: region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(
			func(context.Context) (aws.Credentials, error) {
				return creds, nil
			},
		)),
		UsePathStyle: cfg.PathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts), nil
}
