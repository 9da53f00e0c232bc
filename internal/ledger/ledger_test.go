// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperfetch/pkg/types"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLastRunEmpty(t *testing.T) {
	l := testLedger(t)
	_, err := l.LastRun(context.Background())
	assert.ErrorIs(t, err, ErrNoRuns)
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	l := testLedger(t)

	first, err := l.StartRun(ctx, "old.json", 1)
	require.NoError(t, err)
	run, err := l.StartRun(ctx, "refs.json", 3)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, run.ID)

	jobs := []types.JobResult{
		{
			Job:     types.NewDocumentJob(1, types.Identifiers{DOI: "10.1/a"}, "A", "out"),
			Status:  types.StatusConverted,
			Source:  "pmc",
			Backend: "jats",
			Elapsed: 1500 * time.Millisecond,
		},
		{
			Job:     types.NewDocumentJob(3, types.Identifiers{PMID: "42"}, "C", "out"),
			Status:  types.StatusFailed,
			Reason:  "no source produced content",
			Elapsed: 2 * time.Second,
		},
		{
			Job:    types.NewDocumentJob(2, types.Identifiers{URL: "https://x.org/b.pdf"}, "B", "out"),
			Status: types.StatusFailed,
			Reason: "empty-output",
		},
	}
	for _, j := range jobs {
		require.NoError(t, l.RecordJob(ctx, run.ID, j))
	}
	require.NoError(t, l.FinishRun(ctx, run.ID, 1, 2))

	last, err := l.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID, last.ID)
	assert.Equal(t, "refs.json", last.Manifest)
	assert.Equal(t, 3, last.Total)
	assert.Equal(t, 1, last.Succeeded)
	assert.Equal(t, 2, last.Failed)
	assert.False(t, last.FinishedAt.IsZero())

	failed, err := l.Failures(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, 2, failed[0].Job.Index)
	assert.Equal(t, "https://x.org/b.pdf", failed[0].Job.IDs.URL)
	assert.Equal(t, 3, failed[1].Job.Index)
	assert.Equal(t, "42", failed[1].Job.IDs.PMID)
	assert.Equal(t, "C", failed[1].Job.Title)
	assert.Equal(t, 2*time.Second, failed[1].Elapsed)

	none, err := l.Failures(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordJobReplaces(t *testing.T) {
	ctx := context.Background()
	l := testLedger(t)
	run, err := l.StartRun(ctx, "m.json", 1)
	require.NoError(t, err)

	job := types.NewDocumentJob(1, types.Identifiers{DOI: "10.1/a"}, "", "out")
	require.NoError(t, l.RecordJob(ctx, run.ID, types.JobResult{Job: job, Status: types.StatusFailed, Reason: "mineru"}))
	require.NoError(t, l.RecordJob(ctx, run.ID, types.JobResult{Job: job, Status: types.StatusConverted}))

	failed, err := l.Failures(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestRecordJobUnknownRun(t *testing.T) {
	l := testLedger(t)
	job := types.NewDocumentJob(1, types.Identifiers{DOI: "10.1/a"}, "", "out")
	err := l.RecordJob(context.Background(), "missing", types.JobResult{Job: job, Status: types.StatusFailed})
	assert.Error(t, err)
	assert.Error(t, l.FinishRun(context.Background(), "missing", 0, 0))
}

func TestReopenKeepsRuns(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	l, err := Open(dir)
	require.NoError(t, err)
	run, err := l.StartRun(ctx, "m.json", 0)
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l, err = Open(dir)
	require.NoError(t, err)
	defer l.Close()
	last, err := l.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID, last.ID)
}
