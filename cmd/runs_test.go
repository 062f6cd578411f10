package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/proposal-cli/internal/model"
)

func TestComputeRunStats(t *testing.T) {
	stage := 2
	runs := []model.Run{
		{Status: model.RunStatusCompleted, TotalDurationMS: 60000},
		{Status: model.RunStatusCompleted, TotalDurationMS: 30000},
		{Status: model.RunStatusPartial, TotalDurationMS: 15000, ErrorStage: &stage},
		{Status: model.RunStatusFailed},
		{Status: model.RunStatusRunning},
	}

	s := computeRunStats(runs)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 2, s.Completed)
	assert.Equal(t, 1, s.Partial)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Running)
	assert.InDelta(t, 35.0, s.AvgDurSecs, 0.01)
}

func TestComputeRunStats_Empty(t *testing.T) {
	s := computeRunStats(nil)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.AvgDurSecs)
}

func TestFormatRunsList(t *testing.T) {
	stage := 3
	runs := []model.Run{
		{
			ID:              "0193cafe-0000-0000-0000-000000000000",
			TenantID:        "tenant-1",
			MinuteID:        "minute-1",
			Status:          model.RunStatusPartial,
			ErrorStage:      &stage,
			TotalDurationMS: 95000,
			CreatedAt:       time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "0193cafe")
	assert.NotContains(t, out, "0193cafe-0000")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "3")
	assert.Contains(t, out, "2026-08-20 10:30")
	assert.Contains(t, out, "1m35s")
}

func TestFormatRunStats(t *testing.T) {
	var buf bytes.Buffer
	formatRunStats(&buf, runStats{Total: 4, Completed: 2, Partial: 1, Failed: 1, AvgDurSecs: 42.5})
	out := buf.String()

	assert.Contains(t, out, "Total runs:")
	assert.Contains(t, out, "42.5s")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abcd1234", truncateID("abcd1234-5678"))
	assert.Equal(t, "short", truncateID("short"))
}
