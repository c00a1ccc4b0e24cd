package main

import (
	"encoding/csv"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yairfalse/kirja/pkg/inventory"
)

var schemaCmd = &cobra.Command{
	Use:   "schema <kind>",
	Short: "Print the CSV header of a kind",
	Example: `  kirja schema lambda
  kirja schema s3
  kirja schema ec2`,
	Args: cobra.ExactArgs(1),
	RunE: runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	kind, err := inventory.ParseKind(args[0])
	if err != nil {
		return err
	}
	schema, err := inventory.SchemaFor(kind)
	if err != nil {
		return err
	}

	w := csv.NewWriter(cmd.OutOrStdout())
	if err := w.Write(schema.Fields); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	w.Flush()
	return w.Error()
}
