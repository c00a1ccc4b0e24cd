package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/yairfalse/kirja/internal/derive"
	"github.com/yairfalse/kirja/internal/filter"
	"github.com/yairfalse/kirja/pkg/inventory"
)

// Tags every reported instance must carry.
const (
	TagProject     = "Project"
	TagEnvironment = "Environment"
)

// InstanceCollector reports on EC2 instances tagged with a project and an
// environment.
type InstanceCollector struct {
	client EC2API
	opts   Options
	filter *filter.Filter
}

// NewInstanceCollector creates an instance collector over client.
func NewInstanceCollector(client EC2API, opts Options) *InstanceCollector {
	return &InstanceCollector{
		client: client,
		opts:   opts,
		filter: opts.Filter.Require(TagProject, TagEnvironment),
	}
}

// Kind returns inventory.KindInstance.
func (c *InstanceCollector) Kind() inventory.Kind {
	return inventory.KindInstance
}

// Collect walks every reservation in provider order. Instances missing a
// required tag are logged and counted as skipped.
func (c *InstanceCollector) Collect(ctx context.Context) (*inventory.Report, error) {
	logger := zerolog.Ctx(ctx)
	report := inventory.NewReport(inventory.InstanceSchema, c.opts.now())

	var nextToken *string
	for {
		output, err := c.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{NextToken: nextToken})
		if err != nil {
			return nil, fmt.Errorf("describe instances: %w", err)
		}

		for _, reservation := range output.Reservations {
			for _, instance := range reservation.Instances {
				id := aws.ToString(instance.InstanceId)
				tags := convertEC2Tags(instance.Tags)

				if d := c.filter.Evaluate(tags); !d.Include {
					logger.Debug().
						Str("instance", id).
						Strs("missing", d.Missing).
						Str("reason", d.Reason).
						Msg("instance skipped")
					report.Skipped++
					continue
				}

				volumes, err := c.attachedVolumes(ctx, id)
				if err != nil {
					return nil, err
				}
				if err := report.Append(convertInstance(instance, tags, volumes)); err != nil {
					return nil, err
				}
			}
		}

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return report, nil
}

func (c *InstanceCollector) attachedVolumes(ctx context.Context, instanceID string) ([]ec2types.Volume, error) {
	var volumes []ec2types.Volume
	var nextToken *string

	for {
		output, err := c.client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
			Filters: []ec2types.Filter{{
				Name:   aws.String("attachment.instance-id"),
				Values: []string{instanceID},
			}},
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("describe volumes %s: %w", instanceID, err)
		}

		volumes = append(volumes, output.Volumes...)

		if output.NextToken == nil {
			break
		}
		nextToken = output.NextToken
	}

	return volumes, nil
}

// convertInstance projects an instance that carries both required tags.
// DescribeInstances has no instance create time, so Creation Time stays at
// the placeholder.
func convertInstance(instance ec2types.Instance, tags []inventory.Tag, volumes []ec2types.Volume) *inventory.Record {
	project, _ := derive.TagValue(tags, TagProject)
	environment, _ := derive.TagValue(tags, TagEnvironment)
	instanceType := string(instance.InstanceType)

	r := inventory.InstanceSchema.NewRecord().
		Set(inventory.FieldIdentifier, derive.InstanceIdentifier(project, environment)).
		Set(inventory.FieldInstanceID, aws.ToString(instance.InstanceId)).
		Set(inventory.FieldInstanceType, instanceType).
		Set(inventory.FieldDeletionTime, derive.DeletionTime(aws.ToString(instance.StateTransitionReason))).
		Set(inventory.FieldPrivateIP, aws.ToString(instance.PrivateIpAddress)).
		Set(inventory.FieldPublicIP, aws.ToString(instance.PublicIpAddress)).
		Set(inventory.FieldOSVersion, derive.OSVersion(string(instance.Platform), aws.ToString(instance.ImageId))).
		Set(inventory.FieldDiskUsage, derive.Int(diskUsage(volumes))).
		Set(inventory.FieldRAM, derive.RAMFromInstanceType(instanceType)).
		Set(inventory.FieldTags, derive.JoinTags(tags))

	if instance.Placement != nil {
		r.Set(inventory.FieldRegion, derive.RegionFromAvailabilityZone(aws.ToString(instance.Placement.AvailabilityZone)))
	}
	if instance.LaunchTime != nil {
		r.Set(inventory.FieldLaunchTime, derive.FormatDate(*instance.LaunchTime))
	}
	if instance.IamInstanceProfile != nil {
		r.Set(inventory.FieldIAMRole, derive.RoleFromInstanceProfileARN(aws.ToString(instance.IamInstanceProfile.Arn)))
	}
	if instance.CpuOptions != nil && instance.CpuOptions.CoreCount != nil {
		r.Set(inventory.FieldCPU, derive.Int(*instance.CpuOptions.CoreCount))
	}

	return r
}

func convertEC2Tags(tags []ec2types.Tag) []inventory.Tag {
	return lo.Map(tags, func(t ec2types.Tag, _ int) inventory.Tag {
		return inventory.Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)}
	})
}

func diskUsage(volumes []ec2types.Volume) int32 {
	return lo.SumBy(volumes, func(v ec2types.Volume) int32 {
		return aws.ToInt32(v.Size)
	})
}
