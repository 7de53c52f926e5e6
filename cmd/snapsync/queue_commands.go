package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"snapsync/internal/ipc"
	"snapsync/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the upload queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueIncludeCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueuePurgeCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

var queueListHeaders = []string{"ID", "File", "Status", "Size", "Group", "Flags", "Created"}

var queueListAligns = []columnAlignment{
	alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft,
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				var items []ipc.QueueItem
				if client != nil {
					resp, err := client.QueueList(listStatuses)
					if err != nil {
						return err
					}
					items = resp.Items
				} else {
					var statuses []queue.Status
					for _, value := range listStatuses {
						if parsed, ok := queue.ParseStatus(value); ok {
							statuses = append(statuses, parsed)
						}
					}
					stored, err := store.List(cmd.Context(), statuses...)
					if err != nil {
						return err
					}
					for _, item := range stored {
						items = append(items, ipc.FromQueueItem(item))
					}
				}

				if len(items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				table := renderTable(queueListHeaders, buildQueueListRows(items, colorize), queueListAligns)
				fmt.Fprintln(out, table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by queue status (repeatable)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <itemID>",
		Short: "Show one queue item in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			id := ids[0]

			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var item ipc.QueueItem
				if client != nil {
					resp, err := client.QueueDescribe(id)
					if err != nil {
						return err
					}
					item = resp.Item
				} else {
					stored, err := store.GetByID(cmd.Context(), id)
					if err != nil {
						return err
					}
					if stored == nil {
						return fmt.Errorf("queue item %d not found", id)
					}
					item = ipc.FromQueueItem(stored)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID: %d\n", item.ID)
				fmt.Fprintf(out, "File: %s\n", item.FileName)
				fmt.Fprintf(out, "Source: %s\n", item.SourcePath)
				fmt.Fprintf(out, "Status: %s\n", item.Status)
				fmt.Fprintf(out, "Size: %s\n", formatSize(item.SizeBytes))
				fmt.Fprintf(out, "Type: %s (%dx%d)\n", item.MimeType, item.Width, item.Height)
				fmt.Fprintf(out, "Content hash: %s\n", item.ContentHash)
				fmt.Fprintf(out, "Attempts: %d\n", item.Attempts)
				if item.GroupID != nil {
					fmt.Fprintf(out, "Duplicate group: %d\n", *item.GroupID)
				}
				fmt.Fprintf(out, "Excluded from upload: %s\n", yesNo(item.ExcludedFromUpload))
				fmt.Fprintf(out, "Needs review: %s\n", yesNo(item.NeedsReview))
				if item.ReviewReason != "" {
					fmt.Fprintf(out, "Review reason: %s\n", item.ReviewReason)
				}
				if item.RemoteKey != "" {
					fmt.Fprintf(out, "Remote key: %s\n", item.RemoteKey)
				}
				if item.ErrorMessage != "" {
					fmt.Fprintf(out, "Last error: %s\n", item.ErrorMessage)
				}
				if item.NextAttemptAt != nil {
					fmt.Fprintf(out, "Next attempt: %s\n", formatTimestamp(*item.NextAttemptAt))
				}
				fmt.Fprintf(out, "Created: %s\n", formatTimestamp(item.CreatedAt))
				if item.CompletedAt != nil {
					fmt.Fprintf(out, "Completed: %s\n", formatTimestamp(*item.CompletedAt))
				}
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [itemID...]",
		Short: "Retry failed queue items",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}

			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var updated int64
				if client != nil {
					resp, err := client.QueueRetry(ids)
					if err != nil {
						return err
					}
					updated = resp.Updated
				} else {
					updated, err = store.RetryFailed(cmd.Context(), ids...)
					if err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d failed items\n", updated)
				return nil
			})
		},
	}
}

func newQueueIncludeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "include <itemID...>",
		Short: "Clear duplicate exclusions so items upload again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}

			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var included int64
				if client != nil {
					resp, err := client.QueueInclude(ids)
					if err != nil {
						return err
					}
					included = resp.Included
				} else {
					for _, id := range ids {
						item, err := store.GetByID(cmd.Context(), id)
						if err != nil {
							return err
						}
						if item == nil {
							return fmt.Errorf("queue item %d not found", id)
						}
						if !item.ExcludedFromUpload {
							continue
						}
						if err := store.SetExclusion(cmd.Context(), id, false, false, ""); err != nil {
							return err
						}
						included++
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Included %d items for upload\n", included)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <itemID...>",
		Short: "Remove queue items by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}

			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var removed int64
				if client != nil {
					resp, err := client.QueueRemove(ids)
					if err != nil {
						return err
					}
					removed = resp.Removed
				} else {
					for _, id := range ids {
						ok, err := store.Remove(cmd.Context(), id)
						if err != nil {
							return err
						}
						if ok {
							removed++
						}
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d items\n", removed)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove queue items in bulk",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				out := cmd.OutOrStdout()
				var removed int64
				var err error
				switch {
				case clearCompleted:
					if client != nil {
						var resp *ipc.QueueClearCompletedResponse
						if resp, err = client.QueueClearCompleted(); err == nil {
							removed = resp.Removed
						}
					} else {
						removed, err = store.ClearCompleted(cmd.Context())
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d completed items\n", removed)
				case clearFailed:
					if client != nil {
						var resp *ipc.QueueClearFailedResponse
						if resp, err = client.QueueClearFailed(); err == nil {
							removed = resp.Removed
						}
					} else {
						removed, err = store.ClearFailed(cmd.Context())
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d failed items\n", removed)
				default:
					if client != nil {
						var resp *ipc.QueueClearResponse
						if resp, err = client.QueueClear(); err == nil {
							removed = resp.Removed
						}
					} else {
						removed, err = store.Clear(cmd.Context())
					}
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d queue items\n", removed)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed items")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed items")
	return cmd
}

func newQueuePurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Drop completed items past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueuePurge()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d completed items\n", resp.Purged)
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show queue health summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var health queue.HealthSummary
				if client != nil {
					resp, err := client.QueueHealth()
					if err != nil {
						return err
					}
					health = queue.HealthSummary{
						Total:      resp.Total,
						Pending:    resp.Pending,
						Processing: resp.Processing,
						Completed:  resp.Completed,
						Failed:     resp.Failed,
						Excluded:   resp.Excluded,
					}
				} else {
					var err error
					health, err = store.Health(cmd.Context())
					if err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(),
					"Total: %d\nPending: %d\nProcessing: %d\nCompleted: %d\nFailed: %d\nExcluded: %d\n",
					health.Total,
					health.Pending,
					health.Processing,
					health.Completed,
					health.Failed,
					health.Excluded,
				)
				return nil
			})
		},
	}
}
