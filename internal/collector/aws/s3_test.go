package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/kirja/internal/filter"
	"github.com/yairfalse/kirja/pkg/inventory"
)

func singleBucket(name string, created time.Time) func(context.Context, *s3.ListBucketsInput, ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	return func(_ context.Context, _ *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
		return &s3.ListBucketsOutput{Buckets: []s3types.Bucket{{Name: aws.String(name), CreationDate: aws.Time(created)}}}, nil
	}
}

func TestBucketCollector_Collect(t *testing.T) {
	created := time.Date(2022, 1, 31, 23, 59, 59, 0, time.UTC)
	var regions []string
	recordRegion := func(optFns []func(*s3.Options)) {
		regions = append(regions, appliedS3Options(optFns).Region)
	}

	mock := &mockS3Client{
		ListBucketsFunc: singleBucket("logs", created),
		GetBucketLocationFunc: func(_ context.Context, params *s3.GetBucketLocationInput, _ ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error) {
			assert.Equal(t, "logs", aws.ToString(params.Bucket))
			return &s3.GetBucketLocationOutput{LocationConstraint: s3types.BucketLocationConstraintApSouth1}, nil
		},
		GetBucketTaggingFunc: func(_ context.Context, _ *s3.GetBucketTaggingInput, optFns ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error) {
			recordRegion(optFns)
			return &s3.GetBucketTaggingOutput{TagSet: []s3types.Tag{
				{Key: aws.String("k1"), Value: aws.String("v1")},
				{Key: aws.String("k2"), Value: aws.String("v2")},
			}}, nil
		},
		GetBucketVersioningFunc: func(_ context.Context, _ *s3.GetBucketVersioningInput, optFns ...func(*s3.Options)) (*s3.GetBucketVersioningOutput, error) {
			recordRegion(optFns)
			return &s3.GetBucketVersioningOutput{Status: s3types.BucketVersioningStatusEnabled}, nil
		},
		ListObjectsV2Func: func(_ context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
			recordRegion(optFns)
			if params.ContinuationToken == nil {
				return &s3.ListObjectsV2Output{
					Contents: []s3types.Object{
						{Key: aws.String("a"), Size: aws.Int64(100)},
						{Key: aws.String("b"), Size: aws.Int64(250)},
					},
					IsTruncated:           aws.Bool(true),
					NextContinuationToken: aws.String("next"),
				}, nil
			}
			return &s3.ListObjectsV2Output{
				Contents:    []s3types.Object{{Key: aws.String("c"), Size: aws.Int64(50)}},
				IsTruncated: aws.Bool(false),
			}, nil
		},
	}

	report, err := NewBucketCollector(mock, Options{Now: fixedNow}).Collect(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, report.Len())
	assert.Equal(t, []string{
		"logs", "S3", "logs", "ap-south-1", "31-01-22 23:59:59", "Enabled", "3", "400", "k1:v1|k2:v2",
	}, report.Rows()[0])

	// tagging, versioning and two listing pages all pinned to the bucket region
	assert.Equal(t, []string{"ap-south-1", "ap-south-1", "ap-south-1", "ap-south-1"}, regions)
}

func TestBucketCollector_NoSuchTagSet(t *testing.T) {
	mock := &mockS3Client{
		ListBucketsFunc: singleBucket("untagged", fixedNow()),
		GetBucketTaggingFunc: func(_ context.Context, _ *s3.GetBucketTaggingInput, _ ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error) {
			return nil, &smithy.GenericAPIError{Code: "NoSuchTagSet", Message: "The TagSet does not exist"}
		},
	}

	report, err := NewBucketCollector(mock, Options{}).Collect(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, report.Len())
	tags, _ := report.Records[0].Get(inventory.FieldTags)
	assert.Equal(t, "", tags)
}

func TestBucketCollector_TaggingErrorPropagates(t *testing.T) {
	denied := &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}
	mock := &mockS3Client{
		ListBucketsFunc: singleBucket("secret", fixedNow()),
		GetBucketTaggingFunc: func(_ context.Context, _ *s3.GetBucketTaggingInput, _ ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error) {
			return nil, denied
		},
	}

	_, err := NewBucketCollector(mock, Options{}).Collect(context.Background())

	require.Error(t, err)
	var apiErr smithy.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "AccessDenied", apiErr.ErrorCode())
}

// The Storage Class column carries the versioning status, not a storage class.
func TestBucketCollector_StorageClassIsVersioningStatus(t *testing.T) {
	mock := &mockS3Client{
		ListBucketsFunc: singleBucket("plain", fixedNow()),
		ListObjectsV2Func: func(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
			return &s3.ListObjectsV2Output{Contents: []s3types.Object{{Key: aws.String("x"), Size: aws.Int64(1), StorageClass: s3types.ObjectStorageClassGlacier}}}, nil
		},
	}

	report, err := NewBucketCollector(mock, Options{}).Collect(context.Background())

	require.NoError(t, err)
	storageClass, _ := report.Records[0].Get(inventory.FieldStorageClass)
	region, _ := report.Records[0].Get(inventory.FieldRegion)
	assert.Equal(t, "", storageClass)
	assert.Equal(t, "", region)
}

func TestBucketCollector_Filter(t *testing.T) {
	listed := false
	mock := &mockS3Client{
		ListBucketsFunc: singleBucket("scratch", fixedNow()),
		GetBucketTaggingFunc: func(_ context.Context, _ *s3.GetBucketTaggingInput, _ ...func(*s3.Options)) (*s3.GetBucketTaggingOutput, error) {
			return &s3.GetBucketTaggingOutput{TagSet: []s3types.Tag{{Key: aws.String("env"), Value: aws.String("dev")}}}, nil
		},
		ListObjectsV2Func: func(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
			listed = true
			return &s3.ListObjectsV2Output{}, nil
		},
	}

	opts := Options{Filter: filter.New(map[string]string{"env": "prod"}, nil)}
	report, err := NewBucketCollector(mock, opts).Collect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, report.Len())
	assert.Equal(t, 1, report.Skipped)
	assert.False(t, listed, "skipped buckets are not listed")
}

func TestBucketCollector_ListBucketsError(t *testing.T) {
	mock := &mockS3Client{
		ListBucketsFunc: func(_ context.Context, _ *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
			return nil, errors.New("expired token")
		},
	}

	_, err := NewBucketCollector(mock, Options{}).Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list buckets")
}

func TestBucketRegion(t *testing.T) {
	assert.Equal(t, "us-east-1", bucketRegion(""))
	assert.Equal(t, "eu-west-1", bucketRegion(s3types.BucketLocationConstraintEu))
	assert.Equal(t, "eu-central-1", bucketRegion(s3types.BucketLocationConstraintEuCentral1))
}
