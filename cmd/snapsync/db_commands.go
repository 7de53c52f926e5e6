package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"snapsync/internal/ipc"
	"snapsync/internal/queue"
)

func newDBCommand(ctx *commandContext) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Queue database utilities",
	}

	dbCmd.AddCommand(newDBHealthCommand(ctx))

	return dbCmd
}

func newDBHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run queue database diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var health queue.DatabaseHealth
				if client != nil {
					resp, err := client.DatabaseHealth()
					if err != nil {
						return err
					}
					health = queue.DatabaseHealth{
						DBPath:           resp.DBPath,
						DatabaseExists:   resp.DatabaseExists,
						DatabaseReadable: resp.DatabaseReadable,
						SchemaVersion:    resp.SchemaVersion,
						TableExists:      resp.TableExists,
						ColumnsPresent:   resp.ColumnsPresent,
						MissingColumns:   resp.MissingColumns,
						IntegrityCheck:   resp.IntegrityCheck,
						TotalItems:       resp.TotalItems,
						Error:            resp.Error,
					}
				} else {
					var err error
					health, err = store.CheckHealth(cmd.Context())
					if err != nil && health.Error == "" {
						return err
					}
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database: %s\n", health.DBPath)
				fmt.Fprintf(out, "Exists: %s\n", yesNo(health.DatabaseExists))
				fmt.Fprintf(out, "Readable: %s\n", yesNo(health.DatabaseReadable))
				fmt.Fprintf(out, "Schema version: %s\n", health.SchemaVersion)
				fmt.Fprintf(out, "Table present: %s\n", yesNo(health.TableExists))
				fmt.Fprintf(out, "Integrity: %s\n", yesNo(health.IntegrityCheck))
				fmt.Fprintf(out, "Items: %d\n", health.TotalItems)
				if len(health.MissingColumns) > 0 {
					fmt.Fprintf(out, "Missing columns: %s\n", strings.Join(health.MissingColumns, ", "))
				}
				if health.Error != "" {
					return fmt.Errorf("database health: %s", health.Error)
				}
				return nil
			})
		},
	}
}
