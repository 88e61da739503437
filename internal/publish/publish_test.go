package publish

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/vango-dev/hotshim/internal/config"
	"github.com/vango-dev/hotshim/internal/errors"
)

type putCall struct {
	bucket      string
	key         string
	contentType string
	body        string
}

type fakeS3 struct {
	calls  []putCall
	failOn string
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	if key == f.failOn {
		return nil, stderrors.New("access denied")
	}
	f.calls = append(f.calls, putCall{
		bucket:      aws.ToString(in.Bucket),
		key:         key,
		contentType: aws.ToString(in.ContentType),
		body:        string(body),
	})
	return &s3.PutObjectOutput{}, nil
}

func TestPublish(t *testing.T) {
	client := &fakeS3{}
	p, err := New(client, config.PublishConfig{Bucket: "assets", Prefix: "/site/v1/"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	objects, err := p.Publish(context.Background(), []File{
		{Path: "index.html", Contents: []byte("<html></html>")},
		{Path: "bundle.js", Contents: []byte("console.log(1)")},
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(objects) != 2 || len(client.calls) != 2 {
		t.Fatalf("objects = %v, calls = %v", objects, client.calls)
	}

	js := client.calls[0]
	if js.bucket != "assets" || js.key != "site/v1/bundle.js" || js.body != "console.log(1)" {
		t.Errorf("first upload = %+v", js)
	}
	if !strings.Contains(js.contentType, "javascript") {
		t.Errorf("bundle content type = %q", js.contentType)
	}
	if html := client.calls[1]; html.key != "site/v1/index.html" || !strings.HasPrefix(html.contentType, "text/html") {
		t.Errorf("second upload = %+v", html)
	}
}

func TestPublishFailure(t *testing.T) {
	client := &fakeS3{failOn: "b.js"}
	p, err := New(client, config.PublishConfig{Bucket: "assets"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	objects, err := p.Publish(context.Background(), []File{
		{Path: "c.js"}, {Path: "a.js"}, {Path: "b.js"},
	})
	var herr *errors.Error
	if !stderrors.As(err, &herr) || herr.Code != "H181" {
		t.Fatalf("err = %v, want H181", err)
	}
	if len(objects) != 1 || objects[0].Key != "a.js" {
		t.Errorf("objects uploaded before the failure = %v", objects)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(&fakeS3{}, config.PublishConfig{}, nil)
	var herr *errors.Error
	if !stderrors.As(err, &herr) || herr.Code != "H180" {
		t.Errorf("err = %v, want H180", err)
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		prefix string
		path   string
		want   string
	}{
		{"", "bundle.js", "bundle.js"},
		{"", "/bundle.js", "bundle.js"},
		{"site", "js/bundle.js", "site/js/bundle.js"},
		{"/site/", "bundle.js", "site/bundle.js"},
	}
	for _, tt := range tests {
		p, _ := New(&fakeS3{}, config.PublishConfig{Bucket: "b", Prefix: tt.prefix}, nil)
		if got := p.Key(tt.path); got != tt.want {
			t.Errorf("Key(%q) with prefix %q = %q, want %q", tt.path, tt.prefix, got, tt.want)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := ContentType("file.unknownext"); got != "application/octet-stream" {
		t.Errorf("ContentType(unknown) = %q", got)
	}
	if got := ContentType("style.css"); !strings.HasPrefix(got, "text/css") {
		t.Errorf("ContentType(css) = %q", got)
	}
}

func TestFilesFromDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "js"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "js", "bundle.js"), []byte("y"), 0644); err != nil {
		t.Fatal(err)
	}

	files, err := FilesFromDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]string{}
	for _, f := range files {
		got[f.Path] = string(f.Contents)
	}
	if len(got) != 2 || got["index.html"] != "x" || got["js/bundle.js"] != "y" {
		t.Errorf("files = %v", got)
	}

	if _, err := FilesFromDir(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestNewS3Client(t *testing.T) {
	env := map[string]string{}
	getenv := func(k string) string { return env[k] }

	_, err := NewS3Client(config.PublishConfig{Bucket: "b"}, getenv)
	var herr *errors.Error
	if !stderrors.As(err, &herr) || herr.Code != "H182" {
		t.Fatalf("err = %v, want H182", err)
	}

	env[AccessKeyEnv] = "AKIDEXAMPLE"
	env[SecretKeyEnv] = "secret"
	client, err := NewS3Client(config.PublishConfig{
		Bucket:    "b",
		Region:    "eu-west-1",
		Endpoint:  "http://localhost:9000",
		PathStyle: true,
	}, getenv)
	if err != nil {
		t.Fatalf("NewS3Client: %v", err)
	}

	opts := client.Options()
	if opts.Region != "eu-west-1" || !opts.UsePathStyle || aws.ToString(opts.BaseEndpoint) != "http://localhost:9000" {
		t.Errorf("options = region %q pathStyle %v endpoint %q", opts.Region, opts.UsePathStyle, aws.ToString(opts.BaseEndpoint))
	}
	creds, err := opts.Credentials.Retrieve(context.Background())
	if err != nil || creds.AccessKeyID != "AKIDEXAMPLE" {
		t.Errorf("credentials = %+v, %v", creds, err)
	}
}
