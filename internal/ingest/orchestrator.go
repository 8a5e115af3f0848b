// Package ingest sequences detection, extraction, assembly, deduplication,
// persistence and mapping for uploaded bills, one state machine per document.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/telcoingest/invoice-pipeline/internal/application/port"
	"github.com/telcoingest/invoice-pipeline/internal/assemble"
	"github.com/telcoingest/invoice-pipeline/internal/detect"
	"github.com/telcoingest/invoice-pipeline/internal/domain/ingesterr"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/domain/workflow"
	"github.com/telcoingest/invoice-pipeline/internal/extract"
	"github.com/telcoingest/invoice-pipeline/internal/fingerprint"
)

// Config holds the orchestrator settings
type Config struct {
	Tolerance           decimal.Decimal
	MinVendorConfidence float64
	DedupKey            fingerprint.Strategy
	PersistMode         port.PersistMode
	PersistTimeout      time.Duration
	PersistAttempts     int
	MapTimeout          time.Duration
	Workers             int
	CacheSize           int
	Fuzzy               bool
}

// DefaultConfig returns the settings used when nothing is configured
func DefaultConfig() Config {
	return Config{
		Tolerance:           assemble.DefaultTolerance,
		MinVendorConfidence: detect.DefaultOptions().MinConfidence,
		DedupKey:            fingerprint.StrategyRaw,
		PersistMode:         port.PersistDefault,
		PersistTimeout:      10 * time.Second,
		PersistAttempts:     3,
		MapTimeout:          10 * time.Second,
		Workers:             4,
		CacheSize:           1024,
		Fuzzy:               true,
	}
}

// Orchestrator runs the ingestion pipeline. It is safe for concurrent use.
type Orchestrator struct {
	cfg       Config
	registry  *extract.Registry
	detector  *detect.Detector
	assembler *assemble.Assembler
	persister port.Persister
	mapper    port.Mapper
	logger    *zap.Logger

	// fingerprint -> persisted id; an optimisation in front of Persister.Lookup
	seen   *lru.Cache[string, string]
	schema *jsonschema.Schema
}

// Option adjusts a single call
type Option func(*options)

type options struct {
	mode    port.PersistMode
	batchID string
}

// WithPersistMode overrides the configured persist mode for one call
func WithPersistMode(mode port.PersistMode) Option {
	return func(o *options) {
		o.mode = mode
	}
}

func withBatch(id string) Option {
	return func(o *options) {
		o.batchID = id
	}
}

// New creates an orchestrator. The mapper may be nil, in which case mapping is skipped.
func New(cfg Config, registry *extract.Registry, persister port.Persister, mapper port.Mapper, logger *zap.Logger) (*Orchestrator, error) {
	if registry == nil {
		return nil, fmt.Errorf("extractor registry is required")
	}
	if persister == nil {
		return nil, fmt.Errorf("persister is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	def := DefaultConfig()
	if cfg.PersistMode == "" {
		cfg.PersistMode = def.PersistMode
	}
	if cfg.DedupKey == "" {
		cfg.DedupKey = def.DedupKey
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = def.PersistTimeout
	}
	if cfg.PersistAttempts <= 0 {
		cfg.PersistAttempts = 1
	}
	if cfg.MapTimeout <= 0 {
		cfg.MapTimeout = def.MapTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}

	seen, err := lru.New[string, string](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create fingerprint cache: %w", err)
	}
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}

	detectOpts := detect.DefaultOptions()
	detectOpts.Fuzzy = cfg.Fuzzy
	if cfg.MinVendorConfidence > 0 {
		detectOpts.MinConfidence = cfg.MinVendorConfidence
	}

	return &Orchestrator{
		cfg:       cfg,
		registry:  registry,
		detector:  detect.New(detectOpts),
		assembler: assemble.New(cfg.Tolerance, logger),
		persister: persister,
		mapper:    mapper,
		logger:    logger,
		seen:      seen,
		schema:    schema,
	}, nil
}

// Config returns the effective settings
func (o *Orchestrator) Config() Config {
	return o.cfg
}

// DetectOnly classifies a document without running the pipeline
func (o *Orchestrator) DetectOnly(ctx context.Context, doc invoice.RawDocument) detect.Result {
	var pages []string
	if d, err := extract.Load(doc.Filename, doc.Content); err == nil {
		pages = d.Pages
	}
	res := o.detector.Detect(doc.Filename, pages)
	o.logger.Debug("Vendor detected",
		zap.String("filename", doc.Filename),
		zap.String("vendor", res.Vendor.String()),
		zap.Float64("confidence", res.Confidence),
		zap.Strings("matches", res.SortedMatches()))
	return res
}

// IngestOne runs one document through the pipeline
func (o *Orchestrator) IngestOne(ctx context.Context, doc invoice.RawDocument, opts ...Option) *Result {
	r := o.newRun(doc.Filename, workflow.NewIngestMachine(), opts)
	r.execute(ctx, func(ctx context.Context) *ingesterr.Error {
		return o.ingest(ctx, r, doc)
	})
	return r.res
}

func (o *Orchestrator) ingest(ctx context.Context, r *run, doc invoice.RawDocument) *ingesterr.Error {
	loaded, loadErr := extract.Load(doc.Filename, doc.Content)

	// an unreadable document can still be attributed by its filename
	var pages []string
	if loadErr == nil {
		pages = loaded.Pages
	}
	detection := o.detector.Detect(doc.Filename, pages)
	if !detection.Vendor.IsKnown() {
		return ingesterr.DetectionFailed(detection.Reason)
	}
	r.res.Vendor = detection.Vendor
	if err := r.advance(ctx, workflow.TriggerDetect); err != nil {
		return err
	}

	if loadErr != nil {
		return ingesterr.ParseWrap("document", loadErr)
	}
	ex, err := o.registry.Lookup(detection.Vendor)
	if err != nil {
		return ingesterr.ParseWrap("vendor", err)
	}
	partial, err := extract.Run(ex, loaded)
	if err != nil {
		return classify(err)
	}
	if err := r.advance(ctx, workflow.TriggerExtract); err != nil {
		return err
	}

	return o.land(ctx, r, partial, doc.Content)
}

// land runs the shared tail: assemble, deduplicate, persist and map
func (o *Orchestrator) land(ctx context.Context, r *run, partial *extract.Partial, raw []byte) *ingesterr.Error {
	assembly, err := o.assembler.Assemble(partial)
	if err != nil {
		return classify(err)
	}
	r.res.Package = assembly.Package
	r.res.Vendor = assembly.Package.Invoice.Vendor
	r.res.Warnings = append(r.res.Warnings, assembly.Warnings...)
	if err := r.advance(ctx, workflow.TriggerAssemble); err != nil {
		return err
	}

	fp, err := fingerprint.Compute(o.cfg.DedupKey, raw, assembly.Package)
	if err != nil {
		return ingesterr.ParseWrap("fingerprint", err)
	}
	r.res.Fingerprint = fp

	var (
		existing string
		found    bool
	)
	if r.opts.mode != port.PersistOverwrite {
		existing, found, err = o.lookup(ctx, fp)
		if err != nil {
			return ingesterr.Persistence("fingerprint lookup failed", err)
		}
	}
	if err := r.advance(ctx, workflow.TriggerDeduplicate); err != nil {
		return err
	}
	if found {
		return r.duplicate(ctx, existing)
	}

	id, perr := o.persist(ctx, &port.PersistRequest{
		Package:       assembly.Package,
		Fingerprint:   fp,
		Filename:      r.res.Filename,
		ParserVersion: extract.ParserVersion,
		Warnings:      r.res.Warnings,
		Mode:          r.opts.mode,
	})
	if errors.Is(perr, port.ErrDuplicate) {
		if id != "" {
			o.seen.Add(fp, id)
		}
		return r.duplicate(ctx, id)
	}
	if perr != nil {
		return classify(perr)
	}
	r.res.PersistedID = id
	o.seen.Add(fp, id)
	if err := r.advance(ctx, workflow.TriggerPersist); err != nil {
		return err
	}

	if err := o.mapPackage(ctx, id, assembly.Package.Invoice.Vendor); err != nil {
		o.logger.Warn("Mapping failed; package stays persisted",
			zap.String("filename", r.res.Filename),
			zap.String("persisted_id", id),
			zap.Error(err))
		r.res.Warnings = append(r.res.Warnings, ingesterr.MappingWarning(err))
	}
	if err := r.advance(ctx, workflow.TriggerMap); err != nil {
		return err
	}
	return r.advance(ctx, workflow.TriggerComplete)
}

func (o *Orchestrator) lookup(ctx context.Context, fp string) (string, bool, error) {
	if id, ok := o.seen.Get(fp); ok {
		return id, true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.PersistTimeout)
	defer cancel()

	type hit struct {
		id    string
		found bool
	}
	got, err := bounded(ctx, func(ctx context.Context) (hit, error) {
		id, found, err := o.persister.Lookup(ctx, fp)
		return hit{id, found}, err
	})
	if err != nil {
		return "", false, err
	}
	id, found := got.id, got.found
	if found {
		o.seen.Add(fp, id)
	}
	return id, found, nil
}

func (o *Orchestrator) mapPackage(ctx context.Context, id string, vendor invoice.Vendor) error {
	if o.mapper == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.MapTimeout)
	defer cancel()

	_, err := bounded(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.mapper.Map(ctx, id, vendor)
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("timeout after %s: %w", o.cfg.MapTimeout, err)
	}
	return err
}

// classify keeps typed pipeline errors and wraps anything else as a parse failure
func classify(err error) *ingesterr.Error {
	var ie *ingesterr.Error
	if errors.As(err, &ie) {
		return ie
	}
	return ingesterr.ParseWrap("document", err)
}

// run is the state of one document's pass through the pipeline
type run struct {
	o       *Orchestrator
	machine workflow.StateMachine
	opts    options
	res     *Result
	started time.Time
}

func (o *Orchestrator) newRun(filename string, machine workflow.StateMachine, opts []Option) *run {
	cfg := options{mode: o.cfg.PersistMode}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &run{
		o:       o,
		machine: machine,
		opts:    cfg,
		started: time.Now(),
		res: &Result{
			IngestID: uuid.NewString(),
			BatchID:  cfg.batchID,
			Filename: filename,
			Vendor:   invoice.VendorUnknown,
			Stage:    machine.State(),
			Warnings: []ingesterr.Warning{},
		},
	}
}

// execute runs fn, converting panics and returned errors into a FAILED result
func (r *run) execute(ctx context.Context, fn func(ctx context.Context) *ingesterr.Error) {
	var failure *ingesterr.Error
	func() {
		defer func() {
			if p := recover(); p != nil {
				failure = r.panicError(p)
			}
		}()
		failure = fn(ctx)
	}()

	if failure != nil {
		r.fail(ctx, failure)
	}
	r.finish()
}

func (r *run) panicError(p any) *ingesterr.Error {
	err := fmt.Errorf("panic: %v", p)
	if r.machine.State().Next() == workflow.StatePersisted {
		return ingesterr.Persistence("unexpected failure", err)
	}
	return ingesterr.ParseWrap("document", err)
}

// advance fires a happy-path trigger
func (r *run) advance(ctx context.Context, trigger workflow.Trigger) *ingesterr.Error {
	if err := r.machine.Fire(ctx, trigger); err != nil {
		return &ingesterr.Error{Kind: ingesterr.KindParseError, Message: "pipeline out of order", Err: err}
	}
	return nil
}

// duplicate ends the run as a skipped duplicate of persistedID
func (r *run) duplicate(ctx context.Context, persistedID string) *ingesterr.Error {
	r.res.Duplicate = true
	r.res.PersistedID = persistedID
	r.res.Warnings = append(r.res.Warnings, ingesterr.DuplicateNotice(persistedID))
	return r.advance(ctx, workflow.TriggerSkipDuplicate)
}

// fail records err against the stage the run was trying to reach
func (r *run) fail(ctx context.Context, err *ingesterr.Error) {
	target := r.machine.State().Next()
	r.res.FailedStage = target
	r.res.Error = err.WithStage(target.String())
	if !r.machine.State().IsTerminal() {
		_ = r.machine.Fire(ctx, workflow.TriggerFail)
	}
}

func (r *run) finish() {
	res := r.res
	res.Stage = r.machine.State()
	res.History = r.machine.History()

	switch {
	case res.Stage == workflow.StateDone && res.Duplicate:
		res.Outcome = OutcomeDuplicate
		res.Success = true
	case res.Stage == workflow.StateDone:
		res.Outcome = OutcomeDone
		res.Success = true
	default:
		res.Outcome = OutcomeFailed
	}

	fields := []zap.Field{
		zap.String("ingest_id", res.IngestID),
		zap.String("filename", res.Filename),
		zap.String("vendor", res.Vendor.String()),
		zap.String("fingerprint", res.Fingerprint),
		zap.String("stage", res.Stage.String()),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("warnings", len(res.Warnings)),
		zap.Duration("elapsed", time.Since(r.started)),
	}
	if res.Error != nil {
		r.o.logger.Warn("Document ingestion failed", append(fields, zap.Error(res.Error))...)
		return
	}
	r.o.logger.Info("Document ingested", append(fields, zap.String("persisted_id", res.PersistedID))...)
}
