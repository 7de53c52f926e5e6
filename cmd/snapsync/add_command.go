package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"snapsync/internal/config"
	"snapsync/internal/ipc"
)

// photoExtensions lists the file types picked up when a directory is added.
var photoExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <path...>",
		Short: "Queue photos or directories of photos for upload",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := collectPhotoPaths(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				return fmt.Errorf("no photos found under the given paths")
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Enqueue(paths)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				var queued, duplicates, skipped, failed int
				rateWarned := false
				for _, outcome := range resp.Outcomes {
					switch {
					case outcome.Error != "":
						failed++
						fmt.Fprintf(out, "%s: %s\n", outcome.Path, outcome.Error)
					case outcome.AlreadyQueued:
						skipped++
					case outcome.Item != nil && outcome.Item.ExcludedFromUpload:
						duplicates++
					default:
						queued++
					}
					if outcome.RateSaturated && !rateWarned {
						rateWarned = true
						when := "soon"
						if outcome.RetryAt != nil {
							when = formatTimestamp(*outcome.RetryAt)
						}
						fmt.Fprintf(out, "Upload window is full; uploads resume around %s\n", when)
					}
				}

				fmt.Fprintf(out, "Queued %d photos", queued)
				if duplicates > 0 {
					fmt.Fprintf(out, ", %d duplicates held back", duplicates)
				}
				if skipped > 0 {
					fmt.Fprintf(out, ", %d already queued", skipped)
				}
				if failed > 0 {
					fmt.Fprintf(out, ", %d failed", failed)
				}
				fmt.Fprintln(out)
				return nil
			})
		},
	}
}

func collectPhotoPaths(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		expanded, err := config.ExpandPath(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			return nil, fmt.Errorf("inspect path %q: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, expanded)
			continue
		}
		err = filepath.WalkDir(expanded, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(entry.Name()))
			if _, ok := photoExtensions[ext]; ok {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}
