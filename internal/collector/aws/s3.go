package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/yairfalse/kirja/internal/derive"
	"github.com/yairfalse/kirja/pkg/inventory"
)

const errCodeNoSuchTagSet = "NoSuchTagSet"

// BucketCollector reports on S3 buckets.
type BucketCollector struct {
	client S3API
	opts   Options
}

// NewBucketCollector creates a bucket collector over client.
func NewBucketCollector(client S3API, opts Options) *BucketCollector {
	return &BucketCollector{client: client, opts: opts}
}

// Kind returns inventory.KindBucket.
func (c *BucketCollector) Kind() inventory.Kind {
	return inventory.KindBucket
}

// bucketDetail is everything looked up per bucket beyond the listing.
type bucketDetail struct {
	location    string
	tags        []inventory.Tag
	versioning  string
	objectCount int64
	totalSize   int64
}

// Collect lists every bucket. Per bucket the location is resolved first and
// the remaining calls are sent to the bucket's own region.
func (c *BucketCollector) Collect(ctx context.Context) (*inventory.Report, error) {
	logger := zerolog.Ctx(ctx)
	report := inventory.NewReport(inventory.BucketSchema, c.opts.now())

	output, err := c.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	for _, bucket := range output.Buckets {
		name := aws.ToString(bucket.Name)

		location, err := c.client.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: bucket.Name})
		if err != nil {
			return nil, fmt.Errorf("get bucket location %s: %w", name, err)
		}
		d := bucketDetail{location: string(location.LocationConstraint)}
		pin := inRegion(bucketRegion(location.LocationConstraint))

		d.tags, err = c.bucketTags(ctx, name, pin)
		if err != nil {
			return nil, err
		}
		if decision := c.opts.Filter.Evaluate(d.tags); !decision.Include {
			logger.Debug().Str("bucket", name).Str("reason", decision.Reason).Msg("bucket skipped")
			report.Skipped++
			continue
		}

		versioning, err := c.client.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{Bucket: bucket.Name}, pin)
		if err != nil {
			return nil, fmt.Errorf("get bucket versioning %s: %w", name, err)
		}
		d.versioning = string(versioning.Status)

		d.objectCount, d.totalSize, err = c.objectStats(ctx, name, pin)
		if err != nil {
			return nil, err
		}

		logger.Debug().Str("bucket", name).Int64("objects", d.objectCount).Msg("bucket described")
		if err := report.Append(convertBucket(bucket, d)); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// bucketTags returns the bucket's tag set. A bucket without one yields no
// tags; any other failure is returned.
func (c *BucketCollector) bucketTags(ctx context.Context, name string, pin func(*s3.Options)) ([]inventory.Tag, error) {
	output, err := c.client.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: aws.String(name)}, pin)
	if err != nil {
		if isErrorCode(err, errCodeNoSuchTagSet) {
			return nil, nil
		}
		return nil, fmt.Errorf("get bucket tagging %s: %w", name, err)
	}
	return convertS3Tags(output.TagSet), nil
}

// objectStats counts objects and sums their sizes in one listing pass.
func (c *BucketCollector) objectStats(ctx context.Context, name string, pin func(*s3.Options)) (int64, int64, error) {
	var count, size int64

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{Bucket: aws.String(name)})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx, pin)
		if err != nil {
			return 0, 0, fmt.Errorf("list objects %s: %w", name, err)
		}
		count += int64(len(page.Contents))
		size += lo.SumBy(page.Contents, func(o s3types.Object) int64 {
			return aws.ToInt64(o.Size)
		})
	}

	return count, size, nil
}

func convertBucket(bucket s3types.Bucket, d bucketDetail) *inventory.Record {
	name := aws.ToString(bucket.Name)
	return inventory.BucketSchema.NewRecord().
		Set(inventory.FieldIdentifier, name).
		Set(inventory.FieldBucketName, name).
		Set(inventory.FieldRegion, d.location).
		Set(inventory.FieldCreationDate, derive.OptionalDateTime(bucket.CreationDate)).
		Set(inventory.FieldStorageClass, derive.StorageClassFromVersioning(d.versioning)).
		Set(inventory.FieldObjectCount, derive.Int(d.objectCount)).
		Set(inventory.FieldTotalSize, derive.Int(d.totalSize)).
		Set(inventory.FieldTags, derive.JoinTags(d.tags))
}

func convertS3Tags(tags []s3types.Tag) []inventory.Tag {
	return lo.Map(tags, func(t s3types.Tag, _ int) inventory.Tag {
		return inventory.Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)}
	})
}

// bucketRegion maps a location constraint to the region serving the bucket.
// Buckets in us-east-1 report an empty constraint and some old eu-west-1
// buckets report "EU".
func bucketRegion(constraint s3types.BucketLocationConstraint) string {
	switch constraint {
	case "":
		return "us-east-1"
	case s3types.BucketLocationConstraintEu:
		return "eu-west-1"
	}
	return string(constraint)
}

func inRegion(region string) func(*s3.Options) {
	return func(o *s3.Options) {
		o.Region = region
	}
}

func isErrorCode(err error, code string) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == code
}
