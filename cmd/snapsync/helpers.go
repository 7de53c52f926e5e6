package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"snapsync/internal/ipc"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func colorizeStatus(status string, colorize bool) string {
	if !colorize {
		return status
	}
	switch strings.ToLower(status) {
	case "completed":
		return ansiGreen + status + ansiReset
	case "failed":
		return ansiRed + status + ansiReset
	case "processing":
		return ansiYellow + status + ansiReset
	case "pending":
		return ansiBlue + status + ansiReset
	default:
		return status
	}
}

func parsePositiveIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid item id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatTimestamp(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.Local().Format("2006-01-02 15:04:05")
}

func truncatePath(path string, max int) string {
	if len(path) <= max {
		return path
	}
	return "..." + path[len(path)-max+3:]
}

func buildQueueListRows(items []ipc.QueueItem, colorize bool) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		flags := make([]string, 0, 2)
		if item.ExcludedFromUpload {
			flags = append(flags, "excluded")
		}
		if item.NeedsReview {
			flags = append(flags, "review")
		}
		group := "-"
		if item.GroupID != nil {
			group = strconv.FormatInt(*item.GroupID, 10)
		}
		rows = append(rows, []string{
			strconv.FormatInt(item.ID, 10),
			truncatePath(item.FileName, 48),
			colorizeStatus(item.Status, colorize),
			formatSize(item.SizeBytes),
			group,
			strings.Join(flags, ","),
			formatTimestamp(item.CreatedAt),
		})
	}
	return rows
}

func buildQueueStatusRows(stats map[string]int) [][]string {
	order := []string{"pending", "processing", "completed", "failed"}
	rows := make([][]string, 0, len(order))
	for _, status := range order {
		count, ok := stats[status]
		if !ok || count == 0 {
			continue
		}
		rows = append(rows, []string{status, strconv.Itoa(count)})
	}
	return rows
}
