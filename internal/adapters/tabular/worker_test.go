package tabular

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	blobcore "silatcore/internal/blob/core"
	"silatcore/internal/core"
	blobmemory "silatcore/internal/infra/blob/memory"
	"silatcore/internal/infra/persistence/memory"
)

type captureAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAudit) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAudit) statuses() []ExportStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ExportStatus, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Status)
	}
	return out
}

func seedDirectory(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore(core.NewDefaultRulesEngine())
	rec := NewReconciler(store)
	_, err := rec.ImportMembers(context.Background(), strings.NewReader(memberSheet))
	require.NoError(t, err)
	_, err = rec.ImportBranches(context.Background(), strings.NewReader(branchSheet))
	require.NoError(t, err)
	return store
}

func waitForExport(t *testing.T, w *Worker, id string) ExportRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		record, ok := w.GetExport(id)
		require.True(t, ok)
		if record.Status == ExportStatusSucceeded || record.Status == ExportStatusFailed {
			return record
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("export %s did not finish", id)
	return ExportRecord{}
}

func TestWorkerExportsMemberSheet(t *testing.T) {
	store := seedDirectory(t)
	blobs := blobmemory.New()
	audit := &captureAudit{}

	worker := NewWorker(store, blobs, audit)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	queued, err := worker.EnqueueExport(context.Background(), ExportInput{
		Sheet:       SheetMembers,
		RequestedBy: "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, ExportStatusQueued, queued.Status)
	assert.Equal(t, []ExportFormat{FormatCSV, FormatJSON}, queued.Formats)

	record := waitForExport(t, worker, queued.ID)
	require.Equal(t, ExportStatusSucceeded, record.Status, record.Error)
	require.Len(t, record.Artifacts, 2)
	require.NotNil(t, record.CompletedAt)

	csvArtifact := record.Artifacts[0]
	assert.Equal(t, FormatCSV, csvArtifact.Format)
	assert.Equal(t, 2, csvArtifact.Rows)

	_, body, err := blobs.Get(context.Background(), csvArtifact.Key)
	require.NoError(t, err)
	payload, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())

	rows, err := ReadMemberRows(strings.NewReader(string(payload)))
	require.NoError(t, err)
	assert.Len(t, rows, 2, "stored CSV artifact re-parses as a member sheet")

	statuses := audit.statuses()
	assert.Contains(t, statuses, ExportStatusQueued)
	assert.Contains(t, statuses, ExportStatusRunning)
	assert.Contains(t, statuses, ExportStatusSucceeded)
}

func TestWorkerExportsBranchSheetJSON(t *testing.T) {
	store := seedDirectory(t)
	blobs := blobmemory.New()

	worker := NewWorker(store, blobs, nil)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	queued, err := worker.EnqueueExport(context.Background(), ExportInput{
		Sheet:   SheetBranches,
		Formats: []ExportFormat{FormatJSON, FormatJSON},
	})
	require.NoError(t, err)
	assert.Equal(t, []ExportFormat{FormatJSON}, queued.Formats, "duplicate formats collapse")

	record := waitForExport(t, worker, queued.ID)
	require.Equal(t, ExportStatusSucceeded, record.Status, record.Error)
	require.Len(t, record.Artifacts, 1)
	assert.Equal(t, "application/json", record.Artifacts[0].ContentType)
	assert.Equal(t, 3, record.Artifacts[0].Rows, "two Madiun rantings plus the Ponorogo shell row")
}

func TestWorkerRejectsUnknownSheetAndFormat(t *testing.T) {
	worker := NewWorker(memory.NewStore(nil), blobmemory.New(), nil)

	_, err := worker.EnqueueExport(context.Background(), ExportInput{Sheet: "payments"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sheet")

	_, err = worker.EnqueueExport(context.Background(), ExportInput{
		Sheet:   SheetMembers,
		Formats: []ExportFormat{"xlsx"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestWorkerQueueFull(t *testing.T) {
	// Never started, so nothing drains the queue.
	worker := NewWorker(memory.NewStore(nil), blobmemory.New(), nil)

	var err error
	for i := 0; i < 33; i++ {
		_, err = worker.EnqueueExport(context.Background(), ExportInput{Sheet: SheetMembers})
		if err != nil {
			break
		}
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export queue full")
}

type failingBlobStore struct {
	blobcore.Store
}

func (f failingBlobStore) Put(context.Context, string, io.Reader, blobcore.PutOptions) (blobcore.Info, error) {
	return blobcore.Info{}, fmt.Errorf("disk full")
}

func TestWorkerMarksFailedOnStorageError(t *testing.T) {
	store := seedDirectory(t)
	audit := &captureAudit{}

	worker := NewWorker(store, failingBlobStore{Store: blobmemory.New()}, audit)
	worker.Start()
	defer func() { _ = worker.Stop(context.Background()) }()

	queued, err := worker.EnqueueExport(context.Background(), ExportInput{Sheet: SheetMembers})
	require.NoError(t, err)

	record := waitForExport(t, worker, queued.ID)
	assert.Equal(t, ExportStatusFailed, record.Status)
	assert.Contains(t, record.Error, "store artifact")
	assert.Contains(t, audit.statuses(), ExportStatusFailed)
}

func TestWorkerStopWaitsForCompletion(t *testing.T) {
	worker := NewWorker(memory.NewStore(nil), blobmemory.New(), nil)
	worker.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, worker.Stop(ctx))
}
