package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/animus-labs/gluejobs/internal/catalog"
	"github.com/animus-labs/gluejobs/internal/platform/database"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and edit the table catalog",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "put-table <file|->",
			Short: "Create or replace a table from a JSON or YAML definition",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				table, err := readTableDefinition(args[0], cmd.InOrStdin())
				if err != nil {
					return configError(err)
				}
				return withCatalog(cmd.Context(), func(cat catalog.Catalog) error {
					stored, err := cat.UpsertTable(cmd.Context(), table)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), stored)
				})
			},
		},
		&cobra.Command{
			Use:   "get-table <database> <table>",
			Short: "Print a table definition and its partitions",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCatalog(cmd.Context(), func(cat catalog.Catalog) error {
					table, err := cat.GetTable(cmd.Context(), args[0], args[1])
					if err != nil {
						return err
					}
					parts, err := cat.ListPartitions(cmd.Context(), args[0], args[1])
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), struct {
						catalog.Table
						Partitions []catalog.Partition `json:"partitions"`
					}{table, parts})
				})
			},
		},
		&cobra.Command{
			Use:   "list-tables [database]",
			Short: "List tables, optionally in one database",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				database := ""
				if len(args) == 1 {
					database = args[0]
				}
				return withCatalog(cmd.Context(), func(cat catalog.Catalog) error {
					tables, err := cat.ListTables(cmd.Context(), database)
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "DATABASE\tTABLE\tFORMAT\tLOCATION\tCOLUMNS\tPARTITION KEYS")
					for _, t := range tables {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", t.Database, t.Name, t.Format, t.Location, len(t.Columns), strings.Join(t.PartitionKeyNames(), ","))
					}
					return w.Flush()
				})
			},
		},
	)
	return cmd
}

// withCatalog opens the SQL catalog for the duration of fn. Catalog commands
// need the database only, not object storage.
func withCatalog(ctx context.Context, fn func(catalog.Catalog) error) error {
	cfg, err := database.ConfigFromEnv()
	if err != nil {
		return configError(err)
	}
	db, err := database.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database unavailable: %w", err)
	}
	defer func() { _ = db.Close() }()

	cat := catalog.NewSQLCatalog(db)
	if err := cat.EnsureSchema(ctx); err != nil {
		return err
	}
	return fn(cat)
}

func readTableDefinition(path string, stdin io.Reader) (catalog.Table, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return catalog.Table{}, fmt.Errorf("read table definition: %w", err)
	}

	var table catalog.Table
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &table)
	default:
		err = json.Unmarshal(data, &table)
	}
	if err != nil {
		return catalog.Table{}, fmt.Errorf("decode table definition: %w", err)
	}
	if err := table.Validate(); err != nil {
		return catalog.Table{}, err
	}
	return table, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
