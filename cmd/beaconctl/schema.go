package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"beaconcore/pkg/domain"
	"beaconcore/pkg/schema"

	"github.com/spf13/cobra"
)

type fieldDoc struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Required bool     `json:"required"`
	Default  any      `json:"default,omitempty"`
	Enum     []string `json:"enum,omitempty"`
	Min      *float64 `json:"min,omitempty"`
	Max      *float64 `json:"max,omitempty"`
	Format   string   `json:"format,omitempty"`
}

func newSchemaCmd(g *globalOptions) *cobra.Command {
	var (
		recordType string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Describe the fields of the Beacon record types",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			types := schema.RecordTypes()
			if recordType != "" {
				rt, err := parseRecordType(recordType)
				if err != nil {
					return err
				}
				types = []domain.RecordType{rt}
			}
			docs := make(map[domain.RecordType][]fieldDoc, len(types))
			for _, rt := range types {
				fields, _ := schema.FieldsOf(rt)
				for _, f := range fields {
					docs[rt] = append(docs[rt], fieldDoc{
						Name:     f.Name,
						Type:     f.Type.String(),
						Required: f.Required,
						Default:  f.Default,
						Enum:     f.Domain.Enum,
						Min:      f.Domain.Min,
						Max:      f.Domain.Max,
						Format:   string(f.Domain.Format),
					})
				}
			}
			if asJSON {
				enc := json.NewEncoder(g.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(docs)
			}
			tw := tabwriter.NewWriter(g.stdout, 0, 4, 2, ' ', 0)
			for _, rt := range types {
				fmt.Fprintf(tw, "%s\n", rt)
				for _, d := range docs[rt] {
					req := "optional"
					if d.Required {
						req = "required"
					}
					fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", d.Name, d.Type, req, restriction(d))
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&recordType, "type", "t", "", "only this record type")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func restriction(d fieldDoc) string {
	var parts []string
	if len(d.Enum) > 0 {
		parts = append(parts, "one of "+strings.Join(d.Enum, ","))
	}
	if d.Min != nil {
		parts = append(parts, fmt.Sprintf(">= %g", *d.Min))
	}
	if d.Max != nil {
		parts = append(parts, fmt.Sprintf("<= %g", *d.Max))
	}
	if d.Format != "" {
		parts = append(parts, d.Format)
	}
	if d.Default != nil {
		parts = append(parts, fmt.Sprintf("default %v", d.Default))
	}
	return strings.Join(parts, "; ")
}
