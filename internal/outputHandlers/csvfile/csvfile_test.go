package csvfile

import (
	"encoding/csv"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AlfredBerg/rod-jobs/internal/outputHandlers"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCsvOutput(t *testing.T) {
	fs := afero.NewMemMapFs()

	o, err := New(fs, "golang_developer_jobs.csv")
	require.NoError(t, err)

	require.NoError(t, o.HandleListing(outputHandlers.Listing{Seq: 1, Name: "Go Developer", Description: "APIs, queues", ApplyLink: "https://example.com/1"}))
	require.NoError(t, o.HandleListing(outputHandlers.Listing{Seq: 2, Name: `Senior "Gopher"`, Description: outputHandlers.NoDescription, ApplyLink: outputHandlers.NoApplyLink}))
	require.NoError(t, o.Close())

	data, err := afero.ReadFile(fs, "golang_developer_jobs.csv")
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		outputHandlers.Header,
		{"1", "Go Developer", "APIs, queues", "https://example.com/1"},
		{"2", `Senior "Gopher"`, "Description not found.", "Apply link not found."},
	}, records)
}

func TestCsvOutput_RowsAreFlushedPerListing(t *testing.T) {
	fs := afero.NewMemMapFs()

	o, err := New(fs, "jobs.csv")
	require.NoError(t, err)
	defer o.Close()

	data, err := afero.ReadFile(fs, "jobs.csv")
	require.NoError(t, err)
	assert.Equal(t, "S.No,Name,Description,Apply Link\r\n", string(data))

	require.NoError(t, o.HandleListing(outputHandlers.Listing{Seq: 1, Name: "a", Description: "b", ApplyLink: "c"}))
	data, err = afero.ReadFile(fs, "jobs.csv")
	require.NoError(t, err)
	assert.Equal(t, "S.No,Name,Description,Apply Link\r\n1,a,b,c\r\n", string(data))
}

func TestCsvOutput_Truncates(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "jobs.csv", []byte("stale\ncontent\n"), 0o644))

	o, err := New(fs, "jobs.csv")
	require.NoError(t, err)
	require.NoError(t, o.Close())

	data, err := afero.ReadFile(fs, "jobs.csv")
	require.NoError(t, err)
	assert.Equal(t, "S.No,Name,Description,Apply Link\r\n", string(data))
}

func TestCsvOutput_MissingDirectory(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())

	_, err := New(fs, filepath.Join("nope", "jobs.csv"))
	assert.Error(t, err)
}
