package inventory

import (
	"fmt"
	"time"
)

// Result is the completion signal of one invocation.
type Result struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`

	RunID       string        `json:"-"`
	Kind        Kind          `json:"-"`
	Records     int           `json:"-"`
	Skipped     int           `json:"-"`
	Timestamped string        `json:"-"`
	Latest      string        `json:"-"`
	Bucket      string        `json:"-"`
	Keys        []string      `json:"-"`
	Duration    time.Duration `json:"-"`
	Err         error         `json:"-"`
}

// SuccessBody renders the human-readable completion message.
func SuccessBody(kind Kind, timestamped, latest, bucket string) string {
	return fmt.Sprintf("%s Inventory files %q and %q successfully generated and uploaded to S3 bucket %q",
		kind, timestamped, latest, bucket)
}
