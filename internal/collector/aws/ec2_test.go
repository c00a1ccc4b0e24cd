package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/kirja/internal/filter"
	"github.com/yairfalse/kirja/pkg/inventory"
)

func ec2Tags(kv ...string) []ec2types.Tag {
	var tags []ec2types.Tag
	for i := 0; i+1 < len(kv); i += 2 {
		tags = append(tags, ec2types.Tag{Key: aws.String(kv[i]), Value: aws.String(kv[i+1])})
	}
	return tags
}

func newTestInstance() ec2types.Instance {
	return ec2types.Instance{
		InstanceId:            aws.String("i-abc123"),
		InstanceType:          ec2types.InstanceTypeT3Large,
		ImageId:               aws.String("ami-0abc"),
		Placement:             &ec2types.Placement{AvailabilityZone: aws.String("ap-south-1b")},
		LaunchTime:            aws.Time(time.Date(2024, 3, 5, 10, 15, 30, 0, time.UTC)),
		PrivateIpAddress:      aws.String("10.0.0.1"),
		RootDeviceName:        aws.String("/dev/xvda"),
		StateTransitionReason: aws.String(""),
		IamInstanceProfile:    &ec2types.IamInstanceProfile{Arn: aws.String("arn:aws:iam::123456789012:instance-profile/web-profile")},
		CpuOptions:            &ec2types.CpuOptions{CoreCount: aws.Int32(2), ThreadsPerCore: aws.Int32(2)},
		Tags:                  ec2Tags("Name", "web", "Project", "atlas", "Environment", "prod"),
	}
}

func instancesOutput(instances ...ec2types.Instance) func(context.Context, *ec2.DescribeInstancesInput, ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return func(_ context.Context, _ *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
		return &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{{Instances: instances}}}, nil
	}
}

func TestInstanceCollector_Collect(t *testing.T) {
	rootCreated := time.Date(2024, 3, 5, 10, 14, 0, 0, time.UTC)
	mock := &mockEC2Client{
		DescribeInstancesFunc: instancesOutput(newTestInstance()),
		DescribeVolumesFunc: func(_ context.Context, params *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
			require.Len(t, params.Filters, 1)
			assert.Equal(t, "attachment.instance-id", aws.ToString(params.Filters[0].Name))
			assert.Equal(t, []string{"i-abc123"}, params.Filters[0].Values)
			return &ec2.DescribeVolumesOutput{Volumes: []ec2types.Volume{
				{
					Size:        aws.Int32(8),
					CreateTime:  aws.Time(rootCreated),
					Attachments: []ec2types.VolumeAttachment{{InstanceId: aws.String("i-abc123"), Device: aws.String("/dev/xvda")}},
				},
				{
					Size:        aws.Int32(100),
					CreateTime:  aws.Time(rootCreated.Add(time.Hour)),
					Attachments: []ec2types.VolumeAttachment{{InstanceId: aws.String("i-abc123"), Device: aws.String("/dev/sdf")}},
				},
			}}, nil
		},
	}

	report, err := NewInstanceCollector(mock, Options{Now: fixedNow}).Collect(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, report.Len())
	assert.Len(t, report.Header(), 16)
	assert.Equal(t, []string{
		"atlas - prod", "EC2", "i-abc123", "ap-south-1", "t3.large",
		"05-03-24", "NA", "NA", "10.0.0.1", "", "ami-0abc",
		"web-profile", "108", "2", "large", "Name:web|Project:atlas|Environment:prod",
	}, report.Rows()[0])
}

func TestInstanceCollector_RequiresProjectAndEnvironment(t *testing.T) {
	onlyProject := newTestInstance()
	onlyProject.InstanceId = aws.String("i-project")
	onlyProject.Tags = ec2Tags("Project", "atlas")

	untagged := newTestInstance()
	untagged.InstanceId = aws.String("i-none")
	untagged.Tags = nil

	var described []string
	mock := &mockEC2Client{
		DescribeInstancesFunc: instancesOutput(onlyProject, newTestInstance(), untagged),
		DescribeVolumesFunc: func(_ context.Context, params *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
			described = append(described, params.Filters[0].Values...)
			return &ec2.DescribeVolumesOutput{}, nil
		},
	}

	report, err := NewInstanceCollector(mock, Options{}).Collect(context.Background())

	require.NoError(t, err)
	require.Equal(t, 1, report.Len())
	assert.Equal(t, 2, report.Skipped)
	id, _ := report.Records[0].Get(inventory.FieldInstanceID)
	assert.Equal(t, "i-abc123", id)
	assert.Equal(t, []string{"i-abc123"}, described)
}

func TestInstanceCollector_UserFilterAddsToRequiredTags(t *testing.T) {
	mock := &mockEC2Client{DescribeInstancesFunc: instancesOutput(newTestInstance())}

	opts := Options{Filter: filter.New(nil, map[string]string{"Environment": "prod"})}
	report, err := NewInstanceCollector(mock, opts).Collect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 0, report.Len())
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, opts.Filter.RequiredKeys())
}

func TestInstanceCollector_Pagination(t *testing.T) {
	second := newTestInstance()
	second.InstanceId = aws.String("i-second")

	callCount := 0
	mock := &mockEC2Client{
		DescribeInstancesFunc: func(_ context.Context, params *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
			callCount++
			if callCount == 1 {
				assert.Nil(t, params.NextToken)
				return &ec2.DescribeInstancesOutput{
					Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{newTestInstance()}}},
					NextToken:    aws.String("token"),
				}, nil
			}
			assert.Equal(t, "token", aws.ToString(params.NextToken))
			return &ec2.DescribeInstancesOutput{
				Reservations: []ec2types.Reservation{{Instances: []ec2types.Instance{second}}},
			}, nil
		},
	}

	report, err := NewInstanceCollector(mock, Options{}).Collect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, callCount)
	require.Equal(t, 2, report.Len())
	id, _ := report.Records[1].Get(inventory.FieldInstanceID)
	assert.Equal(t, "i-second", id)
}

func TestInstanceCollector_DescribeVolumesError(t *testing.T) {
	mock := &mockEC2Client{
		DescribeInstancesFunc: instancesOutput(newTestInstance()),
		DescribeVolumesFunc: func(_ context.Context, _ *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
			return nil, errors.New("throttled")
		},
	}

	_, err := NewInstanceCollector(mock, Options{}).Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "describe volumes i-abc123")
}

func TestConvertInstance_Optionals(t *testing.T) {
	instance := ec2types.Instance{
		InstanceId:            aws.String("i-min"),
		InstanceType:          ec2types.InstanceType("custom"),
		Platform:              ec2types.PlatformValuesWindows,
		ImageId:               aws.String("ami-1"),
		StateTransitionReason: aws.String("deleting instance (2024-03-05 10:15:30 GMT)"),
	}
	tags := []inventory.Tag{{Key: "Project", Value: "p"}, {Key: "Environment", Value: "e"}}

	rec := convertInstance(instance, tags, nil)
	get := func(field string) string {
		v, _ := rec.Get(field)
		return v
	}

	assert.Equal(t, "p - e", get(inventory.FieldIdentifier))
	assert.Equal(t, "NA", get(inventory.FieldRegion))
	assert.Equal(t, "NA", get(inventory.FieldLaunchTime))
	assert.Equal(t, "NA", get(inventory.FieldCreationTime))
	assert.Equal(t, "(2024-03-05", get(inventory.FieldDeletionTime))
	assert.Equal(t, "", get(inventory.FieldPrivateIP))
	assert.Equal(t, "", get(inventory.FieldPublicIP))
	assert.Equal(t, "windows", get(inventory.FieldOSVersion))
	assert.Equal(t, "NA", get(inventory.FieldIAMRole))
	assert.Equal(t, "0", get(inventory.FieldDiskUsage))
	assert.Equal(t, "NA", get(inventory.FieldCPU))
	assert.Equal(t, "NA", get(inventory.FieldRAM))
}

func TestConvertInstance_CreationTimeIgnoresVolumes(t *testing.T) {
	launched := newTestInstance()
	volumes := []ec2types.Volume{{
		Size:        aws.Int32(8),
		CreateTime:  aws.Time(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)),
		Attachments: []ec2types.VolumeAttachment{{InstanceId: launched.InstanceId, Device: launched.RootDeviceName}},
	}}

	rec := convertInstance(launched, convertEC2Tags(launched.Tags), volumes)

	created, _ := rec.Get(inventory.FieldCreationTime)
	launch, _ := rec.Get(inventory.FieldLaunchTime)
	disk, _ := rec.Get(inventory.FieldDiskUsage)
	assert.Equal(t, inventory.Placeholder, created)
	assert.Equal(t, "05-03-24", launch)
	assert.Equal(t, "8", disk)
}
