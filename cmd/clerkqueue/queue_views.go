package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/clerk-queue/internal/domain"
)

var nowFunc = time.Now

const maxTitleWidth = 48

func buildQueueListRows(items []*domain.QueueItem, now time.Time) [][]string {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		assignee := "-"
		if item.AssignedTo != nil {
			assignee = strconv.FormatInt(*item.AssignedTo, 10)
		}
		rows = append(rows, []string{
			shortID(item.ID),
			strconv.Itoa(item.Priority),
			string(item.QueueType),
			string(item.Status),
			string(item.CurrentStep),
			assignee,
			truncate(item.Title, maxTitleWidth),
			formatAge(now.Sub(item.CreatedAt)),
		})
	}
	return rows
}

func buildStatsRows(stats *domain.QueueStats, withUser bool) [][]string {
	avg := "n/a"
	if stats.AvgProcessingMinutes != nil {
		avg = fmt.Sprintf("%.1f min", *stats.AvgProcessingMinutes)
	}

	rows := [][]string{
		{"Pending", strconv.FormatInt(stats.PendingCount, 10)},
		{"Urgent", strconv.FormatInt(stats.UrgentCount, 10)},
		{"Created today", strconv.FormatInt(stats.TodayCount, 10)},
	}
	if withUser {
		rows = append(rows, []string{"Assigned to me", strconv.FormatInt(stats.MyCount, 10)})
	}
	return append(rows, []string{"Avg processing", avg})
}

func buildItemRows(item *domain.QueueItem) [][]string {
	assignee := "-"
	if item.AssignedTo != nil {
		assignee = strconv.FormatInt(*item.AssignedTo, 10)
	}
	completed := "-"
	if item.CompletedAt != nil {
		completed = item.CompletedAt.UTC().Format(time.RFC3339)
	}

	rows := [][]string{
		{"ID", item.ID},
		{"Court", item.CourtID},
		{"Type", string(item.QueueType)},
		{"Priority", strconv.Itoa(item.Priority)},
		{"Status", string(item.Status)},
		{"Step", string(item.CurrentStep)},
		{"Assignee", assignee},
		{"Title", item.Title},
		{"Source", string(item.SourceType) + " " + item.SourceID},
		{"Created", item.CreatedAt.UTC().Format(time.RFC3339)},
		{"Completed", completed},
	}
	if reason := item.Metadata.RejectReason(); reason != "" {
		rows = append(rows, []string{"Reject reason", reason})
	}
	for _, step := range domain.PipelineSteps(item.QueueType) {
		data, ok := item.Metadata.StepData(step)
		if !ok {
			continue
		}
		rows = append(rows, []string{"Step " + string(step), formatStepData(data)})
	}
	return rows
}

func formatStepData(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, data[k]))
	}
	return strings.Join(parts, " ")
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func truncate(s string, width int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= width {
		return string(r)
	}
	return string(r[:width-1]) + "…"
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
