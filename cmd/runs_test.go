//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadharvest/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Location:  "Berlin",
			Category:  "restaurant",
			Status:    model.RunStatusCompleted,
			Counters:  model.RunCounters{TotalLeads: 42},
			CreatedAt: now,
			UpdatedAt: now.Add(3 * time.Minute),
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Location:  "Hamburg",
			Category:  "bakery",
			Status:    model.RunStatusRunning,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "LOCATION")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "Berlin")
	assert.Contains(t, output, "completed")
	assert.Contains(t, output, "42")
	assert.Contains(t, output, "Hamburg")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "2026-03-10 09:15")
	assert.Contains(t, output, "abc12345")
}

func TestFormatRunsList_LongLocation(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Location:  "Donaueschingen-Hubertshofen und Umgebung, Schwarzwald",
			Status:    model.RunStatusFailed,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "...")
	assert.NotContains(t, output, "Schwarzwald")
	assert.Contains(t, output, "failed")
}

func TestFormatLeadsList(t *testing.T) {
	leads := []model.Lead{
		{
			BusinessName:    "Café Mitte",
			Email:           "info@cafe-mitte.de",
			Phone:           "+49301234567",
			Website:         "https://cafe-mitte.de",
			Sources:         []string{"Google Places", "OpenStreetMap"},
			ConfidenceScore: 0.83,
		},
		{
			BusinessName: "Bäckerei Müller",
			Sources:      []string{"OpenStreetMap"},
		},
	}

	var buf bytes.Buffer
	formatLeadsList(&buf, leads)

	output := buf.String()
	assert.Contains(t, output, "Café Mitte")
	assert.Contains(t, output, "info@cafe-mitte.de")
	assert.Contains(t, output, "+49301234567")
	assert.Contains(t, output, "0.83")
	assert.Contains(t, output, "Bäckerei Müller")
	assert.Contains(t, output, "0.00")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789-0000-0000-000000000000"))
	assert.Equal(t, "short", truncateID("short"))
}
