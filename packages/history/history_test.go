package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/reqflow/packages/core/runner"
	"github.com/abdul-hamid-achik/reqflow/packages/report"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReport(started time.Time, path string, ok bool) *report.RunReport {
	status := runner.StatusSuccess
	if !ok {
		status = runner.StatusAssertFailure
	}
	return &report.RunReport{
		RunID:    uuid.New(),
		Started:  started,
		Duration: 42 * time.Millisecond,
		Files: []*runner.FileResult{{
			Path:     path,
			Duration: 42 * time.Millisecond,
			Entries:  []*runner.EntryResult{{Index: 1, Status: status}},
		}},
	}
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	older := testReport(base, "a.reqflow", true)
	newer := testReport(base.Add(time.Hour), "b.reqflow", false)
	require.NoError(t, s.Record(ctx, older))
	require.NoError(t, s.Record(ctx, newer))

	recent, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// Newest first.
	assert.Equal(t, newer.RunID.String(), recent[0].ID)
	assert.False(t, recent[0].Success)
	assert.Equal(t, 1, recent[0].Failed)
	assert.Equal(t, "assert", recent[0].ErrorClass)

	assert.Equal(t, older.RunID.String(), recent[1].ID)
	assert.True(t, recent[1].Success)
	assert.Equal(t, 1, recent[1].Passed)
	assert.Equal(t, 42*time.Millisecond, recent[1].Duration)
	assert.True(t, recent[1].StartedAt.Equal(base))
}

func TestStore_RecentLimit(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record(ctx, testReport(base.Add(time.Duration(i)*time.Minute), "x.reqflow", true)))
	}

	recent, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	// Non-positive limit falls back to the default.
	recent, err = s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 5)
}

func TestStore_FileHistory(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Record(ctx, testReport(base, "api.reqflow", true)))
	require.NoError(t, s.Record(ctx, testReport(base.Add(time.Minute), "api.reqflow", false)))
	require.NoError(t, s.Record(ctx, testReport(base.Add(2*time.Minute), "other.reqflow", true)))

	hist, err := s.FileHistory(ctx, "api.reqflow", 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.False(t, hist[0].Success)
	assert.True(t, hist[1].Success)

	hist, err = s.FileHistory(ctx, "missing.reqflow", 10)
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestStore_RecordsFileError(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	r := testReport(time.Now().UTC(), "broken.reqflow", true)
	r.Files[0].Entries = nil
	r.Files[0].Err = &runner.RunError{Class: runner.ClassParse, Msg: "bad syntax"}
	require.NoError(t, s.Record(ctx, r))

	hist, err := s.FileHistory(ctx, "broken.reqflow", 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.False(t, hist[0].Success)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, testReport(time.Now().UTC(), "a.reqflow", true)))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	recent, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}
