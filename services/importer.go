package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"auction-importer/events"
	"auction-importer/metrics"
	"auction-importer/models"
	"auction-importer/session"
	"auction-importer/storage"
	"auction-importer/utils"
)

// ImportLockKey names the lock held for the duration of a replace.
const ImportLockKey = "auction-import"

// DefaultLockTTL bounds how long a crashed import can block the next one.
const DefaultLockTTL = 10 * time.Minute

// RawAuditor keeps a copy of the records of each run as received.
type RawAuditor interface {
	WriteRaw(runID string, receivedAt time.Time, records []models.RawRecord) error
}

// ImporterDeps wires an Importer. Writer is required; nil collaborators get
// in-process defaults.
type ImporterDeps struct {
	Writer     *storage.BulkWriter
	Validator  *Validator
	Normalizer *Normalizer
	Lock       session.Lock
	LockTTL    time.Duration
	Audit      RawAuditor
	Publisher  events.Publisher
	Metrics    *metrics.Registry
	MaxBytes   int64
}

// Importer runs one import end to end: limits, decode, validation,
// normalisation, then a full replace of the stored dataset. Nothing is
// written unless every earlier stage succeeded.
type Importer struct {
	logger     *utils.Logger
	writer     *storage.BulkWriter
	validator  *Validator
	normalizer *Normalizer
	lock       session.Lock
	lockTTL    time.Duration
	audit      RawAuditor
	publisher  events.Publisher
	metrics    *metrics.Registry
	maxBytes   int64
	tracer     trace.Tracer
	now        func() time.Time
	newRunID   func() string
}

func NewImporter(logger *utils.Logger, deps ImporterDeps) *Importer {
	im := &Importer{
		logger:     logger,
		writer:     deps.Writer,
		validator:  deps.Validator,
		normalizer: deps.Normalizer,
		lock:       deps.Lock,
		lockTTL:    deps.LockTTL,
		audit:      deps.Audit,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		maxBytes:   deps.MaxBytes,
		tracer:     otel.Tracer("importer"),
		now:        time.Now,
		newRunID:   uuid.NewString,
	}
	if im.validator == nil {
		im.validator = NewValidator(logger, 0)
	}
	if im.normalizer == nil {
		im.normalizer = NewNormalizer(logger, NormalizerOptions{})
	}
	if im.lock == nil {
		im.lock = session.NewLocalLock()
	}
	if im.lockTTL <= 0 {
		im.lockTTL = DefaultLockTTL
	}
	if im.publisher == nil {
		im.publisher = events.NopPublisher{}
	}
	return im
}

// ImportFile imports a JSON document from disk.
func (im *Importer) ImportFile(ctx context.Context, path string) (*models.ImportReport, error) {
	source := filepath.Base(path)
	info, err := os.Stat(path)
	if err != nil {
		return nil, im.failed(source, im.now(), 0, 0, inputErr("open", err))
	}
	if err := CheckPayloadSize(info.Size(), im.maxBytes); err != nil {
		return nil, im.failed(source, im.now(), 0, 0, inputErr("size", err))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, im.failed(source, im.now(), 0, 0, inputErr("open", err))
	}
	return im.importDocument(ctx, source, data)
}

// ImportJSON imports a JSON document from r. size is the declared length,
// or -1 when unknown; either way no more than the limit is read.
func (im *Importer) ImportJSON(ctx context.Context, r io.Reader, size int64) (*models.ImportReport, error) {
	const source = "upload"
	if err := CheckPayloadSize(size, im.maxBytes); err != nil {
		return nil, im.failed(source, im.now(), 0, 0, inputErr("size", err))
	}
	if im.maxBytes > 0 {
		r = io.LimitReader(r, im.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, im.failed(source, im.now(), 0, 0, inputErr("read", err))
	}
	if err := CheckPayloadSize(int64(len(data)), im.maxBytes); err != nil {
		return nil, im.failed(source, im.now(), 0, 0, inputErr("size", err))
	}
	return im.importDocument(ctx, source, data)
}

func (im *Importer) importDocument(ctx context.Context, source string, data []byte) (*models.ImportReport, error) {
	raws, err := models.DecodeRawRecords(data)
	if err != nil {
		snippet := string(bytes.TrimSpace(data))
		if len(snippet) > 40 {
			snippet = snippet[:40] + "..."
		}
		return nil, im.failed(source, im.now(), 0, 0, inputErr("decode", &InputError{
			Field:   "document",
			Value:   snippet,
			Wrapped: fmt.Errorf("%w: %v", ErrMalformedInput, err),
		}))
	}
	return im.ImportRaw(ctx, raws, source)
}

// ImportRaw validates, normalises and persists raws, replacing every stored
// auction. On error the stored dataset is unchanged unless the error is a
// persistence error from a backend without transactions.
func (im *Importer) ImportRaw(ctx context.Context, raws []models.RawRecord, source string) (*models.ImportReport, error) {
	start := im.now()
	report := &models.ImportReport{
		RunID:     im.newRunID(),
		Source:    source,
		Received:  len(raws),
		StartedAt: start,
	}

	ctx, span := im.tracer.Start(ctx, "importer.Import", trace.WithAttributes(
		attribute.String("import.run_id", report.RunID),
		attribute.String("import.source", source),
		attribute.Int("import.received", len(raws)),
	))
	defer span.End()

	err := im.run(ctx, span, report, raws)
	report.FinishedAt = im.now()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, im.failed(source, start, report.Received, report.Skipped, err)
	}

	im.metrics.ObserveImport("ok", report.Received, report.Skipped, report.Inserted, report.PriceScaled, report.FinishedAt.Sub(start))
	im.logger.Info("[importer] run %s from %s: %d received, %d skipped, %d duplicates, %d inserted",
		report.RunID, source, report.Received, report.Skipped, report.Duplicates, report.Inserted)
	return report, nil
}

func (im *Importer) run(ctx context.Context, span trace.Span, report *models.ImportReport, raws []models.RawRecord) error {
	res, err := im.validator.Validate(raws)
	report.Skipped = res.SkippedCount
	if err != nil {
		return inputErr("validate", err)
	}
	span.AddEvent("validated", trace.WithAttributes(attribute.Int("import.skipped", res.SkippedCount)))

	cars, scaled := im.normalizer.NormalizeAll(res.Valid)
	cars, dups := dedupeByExternalID(cars)
	report.PriceScaled = scaled
	report.Duplicates = dups
	if dups > 0 {
		im.logger.Warn("[importer] run %s: %d records share an external id; the last one wins", report.RunID, dups)
	}

	release, err := im.lock.Acquire(ctx, ImportLockKey, im.lockTTL)
	if err != nil {
		if errors.Is(err, session.ErrLocked) {
			return &ImportError{Stage: "lock", Kind: KindConflict, Err: ErrImportInProgress}
		}
		return persistenceErr("lock", err)
	}
	defer release()

	if im.audit != nil {
		if err := im.audit.WriteRaw(report.RunID, report.StartedAt, raws); err != nil {
			im.logger.Warn("[importer] raw audit for run %s failed: %v", report.RunID, err)
		}
	}

	wctx, wspan := im.tracer.Start(ctx, "importer.ReplaceAll", trace.WithAttributes(attribute.Int("import.rows", len(cars))))
	n, err := im.writer.ReplaceAll(wctx, cars)
	wspan.End()
	if err != nil {
		return persistenceErr("replace", err)
	}
	report.Inserted = n

	ev := models.ImportCompleted{
		RunID:      report.RunID,
		Source:     report.Source,
		Inserted:   n,
		Skipped:    report.Skipped,
		FinishedAt: im.now(),
	}
	if err := im.publisher.Publish(ctx, ev); err != nil {
		im.logger.Warn("[importer] publish import.completed for run %s: %v", report.RunID, err)
	}
	return nil
}

func (im *Importer) failed(source string, start time.Time, received, skipped int, err error) error {
	kind := KindApplication
	var ie *ImportError
	if errors.As(err, &ie) {
		kind = ie.Kind
	}
	im.metrics.ObserveImport(string(kind), received, skipped, 0, 0, im.now().Sub(start))
	im.logger.Error("[importer] import from %s failed: %v", source, err)
	return err
}

// dedupeByExternalID keeps one car per external id. The last occurrence
// wins but takes the slot of the first.
func dedupeByExternalID(cars []models.AuctionCar) ([]models.AuctionCar, int) {
	seen := make(map[string]int, len(cars))
	out := make([]models.AuctionCar, 0, len(cars))
	dups := 0
	for _, c := range cars {
		if i, ok := seen[c.ExternalID]; ok {
			out[i] = c
			dups++
			continue
		}
		seen[c.ExternalID] = len(out)
		out = append(out, c)
	}
	return out, dups
}
