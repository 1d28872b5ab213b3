package tabular

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	blobcore "silatcore/internal/blob/core"
	"silatcore/pkg/domain"
)

// ExportFormat identifies an artifact encoding.
type ExportFormat string

// Supported export encodings.
const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ExportStatus describes the lifecycle stage of an export request.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "queued"
	ExportStatusRunning   ExportStatus = "running"
	ExportStatusSucceeded ExportStatus = "succeeded"
	ExportStatusFailed    ExportStatus = "failed"
)

// ExportArtifact captures a stored sheet artifact.
type ExportArtifact struct {
	ID          string       `json:"id"`
	Key         string       `json:"key"`
	Format      ExportFormat `json:"format"`
	ContentType string       `json:"content_type"`
	SizeBytes   int64        `json:"size_bytes"`
	URL         string       `json:"url,omitempty"`
	Rows        int          `json:"rows"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ExportRecord tracks an export request and resulting artifacts.
type ExportRecord struct {
	ID          string           `json:"id"`
	Sheet       string           `json:"sheet"`
	Formats     []ExportFormat   `json:"formats"`
	Status      ExportStatus     `json:"status"`
	Error       string           `json:"error,omitempty"`
	Artifacts   []ExportArtifact `json:"artifacts,omitempty"`
	RequestedBy string           `json:"requested_by"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

func (r ExportRecord) copy() ExportRecord {
	cp := r
	cp.Formats = append([]ExportFormat(nil), r.Formats...)
	cp.Artifacts = append([]ExportArtifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return cp
}

// ExportInput represents an enqueue request for the worker.
type ExportInput struct {
	Sheet       string
	Formats     []ExportFormat
	RequestedBy string
}

// ExportScheduler queues sheet export requests and exposes status.
type ExportScheduler interface {
	EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error)
	GetExport(id string) (ExportRecord, bool)
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for exports.
type AuditEntry struct {
	ID         string       `json:"id"`
	Action     string       `json:"action"`
	Actor      string       `json:"actor"`
	Sheet      string       `json:"sheet"`
	Status     ExportStatus `json:"status"`
	Note       string       `json:"note,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// Worker renders sheet exports asynchronously into blob storage.
type Worker struct {
	source domain.PersistentStore
	blobs  blobcore.Store
	audit  AuditLogger

	queue chan exportTask
	mu    sync.RWMutex
	jobs  map[string]*ExportRecord

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type exportTask struct {
	id    string
	input ExportInput
}

type renderedArtifact struct {
	artifact ExportArtifact
	payload  []byte
}

// NewWorker constructs an export worker over the directory store.
func NewWorker(source domain.PersistentStore, blobs blobcore.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		source: source,
		blobs:  blobs,
		audit:  audit,
		queue:  make(chan exportTask, 32),
		jobs:   make(map[string]*ExportRecord),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case task := <-w.queue:
			w.process(task)
		}
	}
}

// EnqueueExport schedules an export job and returns the queued record.
func (w *Worker) EnqueueExport(ctx context.Context, input ExportInput) (ExportRecord, error) {
	switch input.Sheet {
	case SheetMembers, SheetBranches:
	default:
		return ExportRecord{}, fmt.Errorf("unknown sheet %q", input.Sheet)
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []ExportFormat{FormatCSV, FormatJSON}
	}
	uniqFormats := make([]ExportFormat, 0, len(formats))
	seen := make(map[ExportFormat]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		if format != FormatCSV && format != FormatJSON {
			return ExportRecord{}, fmt.Errorf("unsupported format %q", format)
		}
		uniqFormats = append(uniqFormats, format)
		seen[format] = struct{}{}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	record := ExportRecord{
		ID:          id,
		Sheet:       input.Sheet,
		Formats:     uniqFormats,
		Status:      ExportStatusQueued,
		RequestedBy: input.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queuedSnapshot := record.copy()
	w.mu.Unlock()

	w.recordAudit(ctx, id, ExportStatusQueued, "")

	select {
	case w.queue <- exportTask{id: id, input: input}:
	default:
		return ExportRecord{}, fmt.Errorf("export queue full")
	}

	return queuedSnapshot, nil
}

// GetExport returns a snapshot of the export record.
func (w *Worker) GetExport(id string) (ExportRecord, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return ExportRecord{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(task exportTask) {
	record, ok := w.GetExport(task.id)
	if !ok {
		return
	}

	w.updateStatus(task.id, ExportStatusRunning, "")

	rendered, err := w.render(record.Sheet, record.Formats)
	if err != nil {
		w.fail(task.id, err.Error())
		return
	}

	artifacts := make([]ExportArtifact, 0, len(rendered))
	for _, r := range rendered {
		info, err := w.blobs.Put(w.ctx, r.artifact.Key, bytes.NewReader(r.payload), blobcore.PutOptions{
			ContentType: r.artifact.ContentType,
			Metadata:    map[string]string{"sheet": record.Sheet},
		})
		if err != nil {
			w.fail(task.id, fmt.Sprintf("store artifact: %v", err))
			return
		}
		r.artifact.SizeBytes = info.Size
		r.artifact.URL = info.URL
		artifacts = append(artifacts, r.artifact)
	}

	w.complete(task.id, artifacts)
}

// render reads one consistent view of the directory and materializes every
// requested format from it, so a concurrent import cannot split an export.
func (w *Worker) render(sheet string, formats []ExportFormat) ([]renderedArtifact, error) {
	var memberRows []MemberRow
	var branchRows []BranchRow
	err := w.source.View(w.ctx, func(view domain.TransactionView) error {
		switch sheet {
		case SheetMembers:
			memberRows = MemberRows(view.ListMembers())
		case SheetBranches:
			branchRows = BranchRows(view.ListBranches())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	rendered := make([]renderedArtifact, 0, len(formats))
	for _, format := range formats {
		var payload []byte
		var contentType string
		var rows int
		switch format {
		case FormatCSV:
			var buf bytes.Buffer
			if sheet == SheetMembers {
				err = WriteMemberRows(&buf, memberRows)
				rows = len(memberRows)
			} else {
				err = WriteBranchRows(&buf, branchRows)
				rows = len(branchRows)
			}
			if err != nil {
				return nil, fmt.Errorf("render csv: %w", err)
			}
			payload = buf.Bytes()
			contentType = "text/csv"
		case FormatJSON:
			if sheet == SheetMembers {
				payload, err = json.Marshal(memberRows)
				rows = len(memberRows)
			} else {
				payload, err = json.Marshal(branchRows)
				rows = len(branchRows)
			}
			if err != nil {
				return nil, fmt.Errorf("render json: %w", err)
			}
			contentType = "application/json"
		}
		id := uuid.NewString()
		rendered = append(rendered, renderedArtifact{
			artifact: ExportArtifact{
				ID:          id,
				Key:         fmt.Sprintf("exports/%s/%s.%s", sheet, id, format),
				Format:      format,
				ContentType: contentType,
				SizeBytes:   int64(len(payload)),
				Rows:        rows,
				CreatedAt:   time.Now().UTC(),
			},
			payload: payload,
		})
	}
	return rendered, nil
}

func (w *Worker) updateStatus(id string, status ExportStatus, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, status, message)
}

func (w *Worker) complete(id string, artifacts []ExportArtifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, ExportStatusSucceeded, "")
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = ExportStatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, ExportStatusFailed, reason)
}

func (w *Worker) recordAudit(ctx context.Context, id string, status ExportStatus, note string) {
	if w.audit == nil {
		return
	}
	w.mu.RLock()
	actor, sheet := "", ""
	if record, ok := w.jobs[id]; ok {
		actor = record.RequestedBy
		sheet = record.Sheet
	}
	w.mu.RUnlock()
	w.audit.Record(ctx, AuditEntry{
		ID:         uuid.NewString(),
		Action:     "sheet_export",
		Actor:      actor,
		Sheet:      sheet,
		Status:     status,
		Note:       note,
		OccurredAt: time.Now().UTC(),
	})
}

var _ ExportScheduler = (*Worker)(nil)
