// Package filter decides which listed resources make it into a report.
package filter

import (
	"fmt"
	"strings"

	"github.com/yairfalse/kirja/internal/derive"
	"github.com/yairfalse/kirja/pkg/inventory"
)

// Filter holds required tag keys plus optional include/exclude tag values.
type Filter struct {
	requireKeys []string
	includeTags map[string]string
	excludeTags map[string]string
}

// Decision is the outcome of evaluating one resource.
type Decision struct {
	Include bool
	Missing []string
	Reason  string
}

// New creates a filter from include/exclude tag values.
func New(includeTags, excludeTags map[string]string) *Filter {
	return &Filter{
		includeTags: includeTags,
		excludeTags: excludeTags,
	}
}

// Require returns a copy of f that also demands every key in keys.
func (f *Filter) Require(keys ...string) *Filter {
	if f == nil {
		f = &Filter{}
	}
	out := *f
	out.requireKeys = append(append([]string(nil), f.requireKeys...), keys...)
	return &out
}

// RequiredKeys returns the keys every included resource must carry.
func (f *Filter) RequiredKeys() []string {
	if f == nil {
		return nil
	}
	return f.requireKeys
}

// Evaluate decides whether a resource with tags is included.
func (f *Filter) Evaluate(tags []inventory.Tag) Decision {
	if f == nil {
		return Decision{Include: true}
	}

	if missing := derive.MissingTags(tags, f.requireKeys...); len(missing) > 0 {
		return Decision{
			Missing: missing,
			Reason:  "missing required tags: " + strings.Join(missing, ", "),
		}
	}

	// Include tags - ALL must match
	for k, v := range f.includeTags {
		if got, ok := derive.TagValue(tags, k); !ok || got != v {
			return Decision{Reason: fmt.Sprintf("tag %s is not %q", k, v)}
		}
	}

	// Exclude tags - ANY match excludes
	for k, v := range f.excludeTags {
		if got, ok := derive.TagValue(tags, k); ok && got == v {
			return Decision{Reason: fmt.Sprintf("excluded by tag %s=%s", k, v)}
		}
	}

	return Decision{Include: true}
}

// IsEmpty returns true if no filters are configured.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.requireKeys) == 0 && len(f.includeTags) == 0 && len(f.excludeTags) == 0)
}
