// Package inventory defines the tabular inventory model shared by all
// collectors: kinds, per-kind schemas, flat records and reports.
package inventory

import (
	"errors"
	"fmt"
	"strings"
)

// Placeholder is written for any field a projector never set.
const Placeholder = "NA"

// ErrUnknownKind is returned when a kind name cannot be resolved.
var ErrUnknownKind = errors.New("unknown resource kind")

// Kind identifies one resource kind. The value doubles as the file name
// token, so it must stay stable.
type Kind string

const (
	KindFunction Kind = "Lambda"
	KindBucket   Kind = "S3"
	KindInstance Kind = "EC2"
)

// Kinds lists every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindFunction, KindBucket, KindInstance}
}

// ParseKind resolves a user-supplied kind name (case-insensitive).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lambda", "function", "functions":
		return KindFunction, nil
	case "s3", "bucket", "buckets":
		return KindBucket, nil
	case "ec2", "instance", "instances":
		return KindInstance, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// String returns the kind token.
func (k Kind) String() string {
	return string(k)
}

// Schema is the fixed, ordered column list of one kind.
type Schema struct {
	Kind    Kind
	Service string
	Fields  []string

	index map[string]int
}

func newSchema(kind Kind, service string, fields ...string) *Schema {
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		idx[f] = i
	}
	return &Schema{Kind: kind, Service: service, Fields: fields, index: idx}
}

// Has reports whether field is a column of the schema.
func (s *Schema) Has(field string) bool {
	_, ok := s.index[field]
	return ok
}

// Len returns the number of columns.
func (s *Schema) Len() int {
	return len(s.Fields)
}

// Shared column names.
const (
	FieldIdentifier = "Identifier"
	FieldService    = "Service"
	FieldRegion     = "Region"
	FieldTags       = "Tags"
)

// Function columns.
const (
	FieldFunctionName = "Function Name"
	FieldDescription  = "Description"
	FieldRuntime      = "Runtime"
	FieldMemory       = "Memory (MB)"
	FieldTimeout      = "Timeout (s)"
	FieldLastModified = "Last Modified"
	FieldCodeSize     = "Code Size (bytes)"
	FieldEnvVars      = "Environment Variables"
)

// Bucket columns.
const (
	FieldBucketName   = "Bucket Name"
	FieldCreationDate = "Creation Date"
	FieldStorageClass = "Storage Class"
	FieldObjectCount  = "Object Count"
	FieldTotalSize    = "Total Size (bytes)"
)

// Instance columns.
const (
	FieldInstanceID   = "Instance ID"
	FieldInstanceType = "Instance Type"
	FieldLaunchTime   = "Launch Time"
	FieldCreationTime = "Creation Time"
	FieldDeletionTime = "Deletion Time"
	FieldPrivateIP    = "Private IP Address"
	FieldPublicIP     = "Public IP Address"
	FieldOSVersion    = "OS Version"
	FieldIAMRole      = "IAM Role"
	FieldDiskUsage    = "Disk Usage (GiB)"
	FieldCPU          = "CPU (vCPUs)"
	FieldRAM          = "RAM (GiB)"
)

var (
	// FunctionSchema is the Lambda function report layout.
	FunctionSchema = newSchema(KindFunction, "Lambda",
		FieldIdentifier, FieldService, FieldFunctionName, FieldDescription,
		FieldRegion, FieldRuntime, FieldMemory, FieldTimeout,
		FieldLastModified, FieldCodeSize, FieldEnvVars, FieldTags,
	)

	// BucketSchema is the S3 bucket report layout.
	BucketSchema = newSchema(KindBucket, "S3",
		FieldIdentifier, FieldService, FieldBucketName, FieldRegion,
		FieldCreationDate, FieldStorageClass, FieldObjectCount,
		FieldTotalSize, FieldTags,
	)

	// InstanceSchema is the EC2 instance report layout.
	InstanceSchema = newSchema(KindInstance, "EC2",
		FieldIdentifier, FieldService, FieldInstanceID, FieldRegion,
		FieldInstanceType, FieldLaunchTime, FieldCreationTime,
		FieldDeletionTime, FieldPrivateIP, FieldPublicIP, FieldOSVersion,
		FieldIAMRole, FieldDiskUsage, FieldCPU, FieldRAM, FieldTags,
	)
)

// SchemaFor returns the schema of kind.
func SchemaFor(kind Kind) (*Schema, error) {
	switch kind {
	case KindFunction:
		return FunctionSchema, nil
	case KindBucket:
		return BucketSchema, nil
	case KindInstance:
		return InstanceSchema, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
}

// Tag is one key/value pair in provider order.
type Tag struct {
	Key   string
	Value string
}
