// Package publish uploads report artifacts to their destination.
package publish

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/afero"
)

// Publisher uploads one local file and returns where it landed.
type Publisher interface {
	Publish(ctx context.Context, localPath string) (string, error)
}

// S3PutAPI defines the S3 operation used by the publisher.
type S3PutAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Key returns the object key of a local file under prefix.
func Key(prefix, localPath string) string {
	base := filepath.Base(localPath)
	if prefix == "" {
		return base
	}
	return path.Join(prefix, base)
}

// S3Publisher uploads into a bucket under a folder prefix.
type S3Publisher struct {
	client S3PutAPI
	fs     afero.Fs
	bucket string
	prefix string
}

// NewS3Publisher creates an S3 publisher reading local files from fs.
func NewS3Publisher(client S3PutAPI, fs afero.Fs, bucket, prefix string) *S3Publisher {
	return &S3Publisher{client: client, fs: fs, bucket: bucket, prefix: prefix}
}

// Bucket returns the destination bucket.
func (p *S3Publisher) Bucket() string {
	return p.bucket
}

// Publish makes sure the folder marker exists, then uploads the file to
// <prefix>/<base name>. Existing objects are overwritten.
func (p *S3Publisher) Publish(ctx context.Context, localPath string) (string, error) {
	if p.prefix != "" {
		if _, err := p.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(p.prefix + "/"),
		}); err != nil {
			return "", fmt.Errorf("create folder %s/: %w", p.prefix, err)
		}
	}

	f, err := p.fs.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	key := Key(p.prefix, localPath)
	if _, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("text/csv"),
	}); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	return fmt.Sprintf("s3://%s/%s", p.bucket, key), nil
}

// DirPublisher mirrors files into a local directory laid out like the
// bucket. Used for dry runs.
type DirPublisher struct {
	src    afero.Fs
	dst    afero.Fs
	dir    string
	prefix string
}

// NewDirPublisher creates a publisher copying from src into dir on dst.
func NewDirPublisher(src, dst afero.Fs, dir, prefix string) *DirPublisher {
	return &DirPublisher{src: src, dst: dst, dir: dir, prefix: prefix}
}

// Publish copies the file to <dir>/<prefix>/<base name>.
func (p *DirPublisher) Publish(_ context.Context, localPath string) (string, error) {
	target := filepath.Join(p.dir, filepath.FromSlash(Key(p.prefix, localPath)))
	if err := p.dst.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create mirror dir: %w", err)
	}

	in, err := p.src.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer in.Close()

	out, err := p.dst.Create(target)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("copy %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", target, err)
	}
	return target, nil
}

// Multi publishes to every publisher in order and stops at the first
// error. The location reported is the first publisher's.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, localPath string) (string, error) {
	var first string
	for i, p := range m {
		loc, err := p.Publish(ctx, localPath)
		if err != nil {
			return "", err
		}
		if i == 0 {
			first = loc
		}
	}
	return first, nil
}
