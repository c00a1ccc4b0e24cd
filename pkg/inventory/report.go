package inventory

import (
	"fmt"
	"time"
)

// Record is one report row. Values are positional to the schema; a field
// that was never set holds Placeholder.
type Record struct {
	schema *Schema
	values []string
}

// NewRecord returns a record with every field set to Placeholder and the
// Service column filled in.
func (s *Schema) NewRecord() *Record {
	values := make([]string, len(s.Fields))
	for i := range values {
		values[i] = Placeholder
	}
	r := &Record{schema: s, values: values}
	return r.Set(FieldService, s.Service)
}

// Set assigns a field. Setting a column the schema does not have is a
// programming error and panics.
func (r *Record) Set(field, value string) *Record {
	i, ok := r.schema.index[field]
	if !ok {
		panic(fmt.Sprintf("inventory: field %q is not part of the %s schema", field, r.schema.Kind))
	}
	r.values[i] = value
	return r
}

// Get returns a field value and whether the schema has the field.
func (r *Record) Get(field string) (string, bool) {
	i, ok := r.schema.index[field]
	if !ok {
		return "", false
	}
	return r.values[i], true
}

// Schema returns the record's schema.
func (r *Record) Schema() *Schema {
	return r.schema
}

// Values returns a copy of the values in column order.
func (r *Record) Values() []string {
	out := make([]string, len(r.values))
	copy(out, r.values)
	return out
}

// Report is the ordered set of records of one kind produced by one run.
type Report struct {
	Schema      *Schema
	Records     []*Record
	GeneratedAt time.Time

	// Skipped counts listed resources that were deliberately left out.
	Skipped int
}

// NewReport creates an empty report for schema.
func NewReport(schema *Schema, generatedAt time.Time) *Report {
	return &Report{Schema: schema, GeneratedAt: generatedAt}
}

// Append adds a record, keeping emission order.
func (r *Report) Append(rec *Record) error {
	if rec.schema != r.Schema {
		return fmt.Errorf("append %s record to %s report", rec.schema.Kind, r.Schema.Kind)
	}
	r.Records = append(r.Records, rec)
	return nil
}

// Len returns the number of records.
func (r *Report) Len() int {
	return len(r.Records)
}

// Header returns the column names.
func (r *Report) Header() []string {
	out := make([]string, len(r.Schema.Fields))
	copy(out, r.Schema.Fields)
	return out
}

// Rows returns every record's values in emission order.
func (r *Report) Rows() [][]string {
	rows := make([][]string, 0, len(r.Records))
	for _, rec := range r.Records {
		rows = append(rows, rec.Values())
	}
	return rows
}
