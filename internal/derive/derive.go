// Package derive holds the field derivation rules used by the projectors.
// Each rule is a small named function so that the string heuristics the
// reports depend on can be tested and replaced one at a time.
package derive

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/yairfalse/kirja/pkg/inventory"
)

const (
	dateTimeLayout = "02-01-06 15:04:05"
	dateLayout     = "02-01-06"
)

// Provider timestamps come with either a colon offset (+05:30) or a bare
// one (+0000, as Lambda writes it). Fractional seconds are optional when
// parsing.
var timestampLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05-0700",
}

// ParseTimestamp parses an ISO-8601 provider timestamp with a zone offset.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: unsupported format", s)
}

// FormatDateTime renders t as DD-MM-YY HH:MM:SS in t's own zone.
func FormatDateTime(t time.Time) string {
	return t.Format(dateTimeLayout)
}

// FormatDate renders t as DD-MM-YY in t's own zone.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

// ReformatTimestamp parses a provider timestamp and renders it with
// FormatDateTime, keeping the wall clock of the original offset.
func ReformatTimestamp(s string) (string, error) {
	t, err := ParseTimestamp(s)
	if err != nil {
		return "", err
	}
	return FormatDateTime(t), nil
}

// OptionalDateTime renders t, or the placeholder when t is nil.
func OptionalDateTime(t *time.Time) string {
	if t == nil {
		return inventory.Placeholder
	}
	return FormatDateTime(*t)
}

// RegionFromARN returns the region segment of an ARN
// (arn:partition:service:REGION:account:...).
func RegionFromARN(arn string) string {
	parts := strings.Split(arn, ":")
	if len(parts) < 4 {
		return inventory.Placeholder
	}
	return parts[3]
}

// RegionFromAvailabilityZone drops the zone letter: us-east-1a -> us-east-1.
func RegionFromAvailabilityZone(az string) string {
	if az == "" {
		return ""
	}
	return az[:len(az)-1]
}

// JoinTags renders tags as key:value pairs joined by "|", in the given
// order. No tags renders as the empty string.
func JoinTags(tags []inventory.Tag) string {
	return strings.Join(lo.Map(tags, func(t inventory.Tag, _ int) string {
		return t.Key + ":" + t.Value
	}), "|")
}

// SortedTags turns an unordered map into tags ordered by key.
func SortedTags(m map[string]string) []inventory.Tag {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return lo.Map(keys, func(k string, _ int) inventory.Tag {
		return inventory.Tag{Key: k, Value: m[k]}
	})
}

// EnvironmentVariables renders function environment variables sorted by
// key, or the placeholder when none are configured.
func EnvironmentVariables(vars map[string]string) string {
	if s := JoinTags(SortedTags(vars)); s != "" {
		return s
	}
	return inventory.Placeholder
}

// TagValue returns the value of the first tag with key.
func TagValue(tags []inventory.Tag, key string) (string, bool) {
	t, ok := lo.Find(tags, func(t inventory.Tag) bool { return t.Key == key })
	return t.Value, ok
}

// MissingTags returns the required keys not present in tags.
func MissingTags(tags []inventory.Tag, required ...string) []string {
	return lo.Filter(required, func(k string, _ int) bool {
		_, ok := TagValue(tags, k)
		return !ok
	})
}

// InstanceIdentifier builds "{Project} - {Environment}".
func InstanceIdentifier(project, environment string) string {
	return project + " - " + environment
}

// DeletionTime extracts a deletion date from an instance state transition
// reason. When the reason mentions "deleting" the third-from-last
// whitespace token is taken. This is a best-effort heuristic over free
// text; reasons with fewer than three tokens yield the placeholder.
func DeletionTime(reason string) string {
	if !strings.Contains(reason, "deleting") {
		return inventory.Placeholder
	}
	tokens := strings.Fields(reason)
	if len(tokens) < 3 {
		return inventory.Placeholder
	}
	return tokens[len(tokens)-3]
}

// RoleFromInstanceProfileARN returns the segment after the first "/" of an
// instance profile ARN. That is the profile name, which is reported as the
// role name.
func RoleFromInstanceProfileARN(arn string) string {
	parts := strings.Split(arn, "/")
	if arn == "" || len(parts) < 2 {
		return inventory.Placeholder
	}
	return parts[1]
}

// RAMFromInstanceType returns the size token of an instance type
// (t3.large -> large).
//
// The size token is not a memory amount; the column keeps this value for
// compatibility with existing consumers of the report.
func RAMFromInstanceType(instanceType string) string {
	parts := strings.Split(instanceType, ".")
	if len(parts) < 2 {
		return inventory.Placeholder
	}
	return parts[1]
}

// StorageClassFromVersioning fills the bucket "Storage Class" column.
//
// The column has always carried the bucket versioning status (Enabled,
// Suspended, or empty when never configured), not a storage class.
func StorageClassFromVersioning(status string) string {
	return status
}

// OSVersion prefers the platform and falls back to the image ID.
func OSVersion(platform, imageID string) string {
	if platform != "" {
		return platform
	}
	return imageID
}

// Int renders an integer column.
func Int[T ~int | ~int32 | ~int64](v T) string {
	return strconv.FormatInt(int64(v), 10)
}
