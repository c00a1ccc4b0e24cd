package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog"

	"github.com/yairfalse/kirja/internal/derive"
	"github.com/yairfalse/kirja/pkg/inventory"
)

// FunctionCollector reports on Lambda functions.
type FunctionCollector struct {
	client LambdaAPI
	opts   Options
}

// NewFunctionCollector creates a function collector over client.
func NewFunctionCollector(client LambdaAPI, opts Options) *FunctionCollector {
	return &FunctionCollector{client: client, opts: opts}
}

// Kind returns inventory.KindFunction.
func (c *FunctionCollector) Kind() inventory.Kind {
	return inventory.KindFunction
}

// Collect lists every function and fetches its description and tags.
func (c *FunctionCollector) Collect(ctx context.Context) (*inventory.Report, error) {
	logger := zerolog.Ctx(ctx)
	report := inventory.NewReport(inventory.FunctionSchema, c.opts.now())

	functions, err := c.listFunctions(ctx)
	if err != nil {
		return nil, err
	}

	for _, fn := range functions {
		name := aws.ToString(fn.FunctionName)
		detail, err := c.client.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: fn.FunctionName})
		if err != nil {
			return nil, fmt.Errorf("get function %s: %w", name, err)
		}

		tags := derive.SortedTags(detail.Tags)
		if d := c.opts.Filter.Evaluate(tags); !d.Include {
			logger.Debug().Str("function", name).Str("reason", d.Reason).Msg("function skipped")
			report.Skipped++
			continue
		}

		var description string
		if detail.Configuration != nil {
			description = aws.ToString(detail.Configuration.Description)
		}

		rec, err := convertFunction(fn, description, tags)
		if err != nil {
			return nil, fmt.Errorf("function %s: %w", name, err)
		}
		if err := report.Append(rec); err != nil {
			return nil, err
		}
	}

	return report, nil
}

func (c *FunctionCollector) listFunctions(ctx context.Context) ([]lambdatypes.FunctionConfiguration, error) {
	var functions []lambdatypes.FunctionConfiguration
	var marker *string

	for {
		output, err := c.client.ListFunctions(ctx, &lambda.ListFunctionsInput{Marker: marker})
		if err != nil {
			return nil, fmt.Errorf("list functions: %w", err)
		}

		functions = append(functions, output.Functions...)

		if output.NextMarker == nil {
			break
		}
		marker = output.NextMarker
	}

	return functions, nil
}

func convertFunction(fn lambdatypes.FunctionConfiguration, description string, tags []inventory.Tag) (*inventory.Record, error) {
	name := aws.ToString(fn.FunctionName)
	r := inventory.FunctionSchema.NewRecord().
		Set(inventory.FieldIdentifier, name).
		Set(inventory.FieldFunctionName, name).
		Set(inventory.FieldDescription, description).
		Set(inventory.FieldRegion, derive.RegionFromARN(aws.ToString(fn.FunctionArn))).
		Set(inventory.FieldRuntime, string(fn.Runtime)).
		Set(inventory.FieldMemory, derive.Int(aws.ToInt32(fn.MemorySize))).
		Set(inventory.FieldTimeout, derive.Int(aws.ToInt32(fn.Timeout))).
		Set(inventory.FieldCodeSize, derive.Int(fn.CodeSize)).
		Set(inventory.FieldTags, derive.JoinTags(tags))

	if fn.LastModified != nil {
		modified, err := derive.ReformatTimestamp(*fn.LastModified)
		if err != nil {
			return nil, fmt.Errorf("last modified: %w", err)
		}
		r.Set(inventory.FieldLastModified, modified)
	}

	var vars map[string]string
	if fn.Environment != nil {
		vars = fn.Environment.Variables
	}
	r.Set(inventory.FieldEnvVars, derive.EnvironmentVariables(vars))

	return r, nil
}
