package storage

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"rental-scraper/models"
)

func TestCSVExport(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	for _, u := range []string{"https://x.nl/1", "https://x.nl/2"} {
		_, err := s.Upsert(ctx, sampleListing(u, 1200, 2))
		require.NoError(t, err)
	}

	path := filepath.Join(t.TempDir(), "out", "listings.csv")
	w, err := NewCSVWriter(path)
	require.NoError(t, err)
	n, err := w.Export(s.Query(ctx, models.Filter{}))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, 2, n)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "https://x.nl/1", rows[1][1])
	assert.Equal(t, "1200", rows[1][3])
	assert.Equal(t, "20.00", rows[1][6])
}

func TestFailureReportYAML(t *testing.T) {
	r := NewFailureReport()
	r.Add("fetch_failed", FailureEntry{Source: "pararius", URL: "https://x.nl/1", Detail: "status 503"})
	r.Inspect(&models.Listing{Source: "pararius", URL: "https://x.nl/2", Title: "No price"})

	counts := r.Counts()
	assert.Equal(t, 1, counts["fetch_failed"])
	assert.Equal(t, 1, counts["missing_price"])
	assert.Equal(t, 1, counts["missing_coordinates"])

	path := filepath.Join(t.TempDir(), "failed.yaml")
	wrote, err := r.WriteYAML(path, "amsterdam")
	require.NoError(t, err)
	assert.True(t, wrote)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc failureDoc
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, "amsterdam", doc.Dataset)
	assert.Contains(t, doc.Categories, "fetch_failed")
	assert.Equal(t, "status 503", doc.Issues["fetch_failed"][0].Detail)
}

func TestFailureReportEmpty(t *testing.T) {
	wrote, err := NewFailureReport().WriteYAML(filepath.Join(t.TempDir(), "x.yaml"), "d")
	require.NoError(t, err)
	assert.False(t, wrote)
}
