package darkrecon

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// EngineOptions configure an enrichment engine.
type EngineOptions struct {
	// Max number of provider units in flight across all targets, default
	// 50. Units waiting on the rate limiter do not hold a slot.
	MaxWorkers int64

	// Overall per-target deadline, default 60s.
	TargetDeadline time.Duration

	// Per-provider call deadline used when a provider's descriptor does
	// not set one, default 30s.
	ProviderTimeout time.Duration

	// Retry policy applied around every fetch.
	Retry RetryPolicy

	// Disable the cache entirely (no reads, no writes).
	NoCache bool

	// Bypass cache reads but still write fresh results.
	RefreshCache bool

	// Result cache. A default in-memory cache is created if nil and
	// NoCache is false.
	Cache *Cache

	// Rate limiter. Created and populated from the registry's descriptors
	// if nil.
	Limiter *RateLimiter

	// Credential lookup, default os.Getenv.
	Credentials func(name string) string

	// Optional per-call audit trail.
	ScanLog *ScanLog
}

// Engine orchestrates scans: it fans out per-target provider calls with
// bounded parallelism, applies the cache, rate-limit and retry policies
// around each call, and merges the per-provider records.
type Engine struct {
	registry *Registry
	cache    *Cache
	limiter  *RateLimiter
	opt      EngineOptions
	workers  *semaphore.Weighted
	metrics  *engineMetrics
}

type engineMetrics struct {
	targets  *expvar.Int
	units    *expvar.Int
	failures *expvar.Map
}

// NewEngine returns an engine over the given registry. The registry must
// not be modified afterwards.
func NewEngine(registry *Registry, opt EngineOptions) *Engine {
	if opt.MaxWorkers == 0 {
		opt.MaxWorkers = 50
	}
	if opt.TargetDeadline == 0 {
		opt.TargetDeadline = 60 * time.Second
	}
	if opt.ProviderTimeout == 0 {
		opt.ProviderTimeout = DefaultProviderTimeout
	}
	opt.Retry = opt.Retry.withDefaults()
	if opt.Credentials == nil {
		opt.Credentials = os.Getenv
	}
	if opt.Cache == nil && !opt.NoCache {
		opt.Cache = NewCache(CacheOptions{})
	}
	if opt.Limiter == nil {
		opt.Limiter = NewRateLimiter()
		for _, name := range registry.Names() {
			if d, ok := registry.Descriptor(name); ok {
				opt.Limiter.Set(name, d.Rate)
			}
		}
	}
	return &Engine{
		registry: registry,
		cache:    opt.Cache,
		limiter:  opt.Limiter,
		opt:      opt,
		workers:  semaphore.NewWeighted(opt.MaxWorkers),
		metrics: &engineMetrics{
			targets:  getVarInt("engine", "scan", "targets"),
			units:    getVarInt("engine", "scan", "units"),
			failures: getVarMap("engine", "scan", "failures"),
		},
	}
}

// Query describes one scan request.
type Query struct {
	// Targets to enrich, all of the same type.
	Targets []string

	Type TargetType

	// Provider subset by name; empty means all providers supporting the
	// target type.
	Providers []string

	// Per-call cache overrides, OR-ed with the engine options.
	NoCache      bool
	RefreshCache bool

	// Max acceptable age of a cached record; zero means the entry TTL.
	MaxAge time.Duration
}

// ProviderStatus reports the outcome of a single provider unit.
type ProviderStatus struct {
	Provider  string `json:"provider"`
	OK        bool   `json:"ok"`
	FromCache bool   `json:"from_cache"`
	Attempts  int    `json:"attempts,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
	Error     string `json:"error,omitempty"`

	// Err holds the typed error for programmatic inspection.
	Err error `json:"-"`
}

// Skipped reports whether the provider was skipped for missing
// credentials rather than failing.
func (s ProviderStatus) Skipped() bool {
	var ce *CredentialsError
	return errors.As(s.Err, &ce)
}

// ScanResult is the per-target outcome: the merged record plus the
// per-provider status map.
type ScanResult struct {
	ScanID    string           `json:"scan_id"`
	Target    string           `json:"target"`
	Type      TargetType       `json:"type"`
	Record    *Record          `json:"record"`
	Statuses  []ProviderStatus `json:"per_provider_status"`
	ElapsedMS int64            `json:"elapsed_ms"`
	Error     string           `json:"error,omitempty"`

	// Err is set for target-level failures (invalid target, cancellation)
	// that prevented providers from running.
	Err error `json:"-"`
}

// HasData reports whether at least one provider contributed to the
// merged record.
func (r *ScanResult) HasData() bool {
	return r.Record != nil && len(r.Record.Raw) > 0
}

// CacheHits returns the names of providers served from the cache.
func (r *ScanResult) CacheHits() []string {
	var hits []string
	for _, s := range r.Statuses {
		if s.FromCache {
			hits = append(hits, s.Provider)
		}
	}
	return hits
}

// Errors returns all provider errors plus the target-level error, if any.
func (r *ScanResult) Errors() []error {
	var errs []error
	if r.Err != nil {
		errs = append(errs, r.Err)
	}
	for _, s := range r.Statuses {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	return errs
}

// Enrich runs the query and returns one result per target, in input
// order. Provider failures never abort a scan; they are reported in the
// per-target status. The returned error covers request-level problems
// only: no targets, an unknown type, or an unknown provider name.
func (e *Engine) Enrich(ctx context.Context, q Query) ([]*ScanResult, error) {
	if len(q.Targets) == 0 {
		return nil, errors.New("no targets")
	}
	switch q.Type {
	case TypeDomain, TypeIP, TypeURL, TypeEmail:
	default:
		return nil, fmt.Errorf("unknown target type %q", q.Type)
	}
	providers, err := e.registry.Select(q.Type, q.Providers)
	if err != nil {
		return nil, err
	}

	results := make([]*ScanResult, len(q.Targets))
	var wg sync.WaitGroup
	for i, target := range q.Targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			results[i] = e.enrichTarget(ctx, target, q, providers)
		}(i, target)
	}
	wg.Wait()
	return results, nil
}

// EnrichTarget runs a single-target scan.
func (e *Engine) EnrichTarget(ctx context.Context, target string, typ TargetType, providerNames []string) (*ScanResult, error) {
	results, err := e.Enrich(ctx, Query{Targets: []string{target}, Type: typ, Providers: providerNames})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

func (e *Engine) enrichTarget(ctx context.Context, target string, q Query, providers []Provider) *ScanResult {
	e.metrics.targets.Add(1)
	start := time.Now()
	res := &ScanResult{
		ScanID: uuid.NewString(),
		Target: target,
		Type:   q.Type,
	}
	defer func() {
		res.ElapsedMS = time.Since(start).Milliseconds()
		if res.Err != nil {
			res.Error = res.Err.Error()
		}
	}()

	if !validTarget(target, q.Type) {
		res.Err = &TargetError{Target: target, Type: q.Type}
		res.Record = Merge(target, q.Type, nil)
		return res
	}

	tctx, cancel := context.WithTimeout(ctx, e.opt.TargetDeadline)
	defer cancel()

	type unit struct {
		record *Record
		status ProviderStatus
	}
	units := make([]unit, len(providers))
	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()
			rec, status := e.runProvider(tctx, res.ScanID, target, q, p)
			units[i] = unit{record: rec, status: status}
		}(i, p)
	}
	wg.Wait()

	// Assemble in registry order: Select returns providers in that order
	// and unit i corresponds to provider i, so single-value merge ties
	// break deterministically.
	var records []*Record
	for _, u := range units {
		res.Statuses = append(res.Statuses, u.status)
		if u.record != nil {
			records = append(records, u.record)
		}
	}
	res.Record = Merge(target, q.Type, records)
	if err := ctx.Err(); err != nil {
		res.Err = &CancelledError{Reason: err.Error()}
	}
	return res
}

// runProvider executes one provider unit: cache probe, rate acquire,
// retry-wrapped fetch, normalize, cache write.
func (e *Engine) runProvider(ctx context.Context, scanID, target string, q Query, p Provider) (*Record, ProviderStatus) {
	name := p.Name()
	log := logger(name, target).WithField("scan", scanID)
	start := time.Now()
	status := ProviderStatus{Provider: name}
	e.metrics.units.Add(1)
	defer func() {
		status.ElapsedMS = time.Since(start).Milliseconds()
		if status.Err != nil {
			status.Error = status.Err.Error()
			e.metrics.failures.Add(name, 1)
		}
		e.logCall(scanID, target, status)
	}()

	var missing []string
	for _, cred := range p.RequiredCredentials() {
		if e.opt.Credentials(cred) == "" {
			missing = append(missing, cred)
		}
	}
	if len(missing) > 0 {
		status.Err = &CredentialsError{Provider: name, Missing: missing}
		log.WithField("missing", missing).Warn("provider skipped, credentials not configured")
		return nil, status
	}

	useCache := e.cache != nil && !e.opt.NoCache && !q.NoCache
	readCache := useCache && !e.opt.RefreshCache && !q.RefreshCache
	if readCache {
		if rec, ok := e.cache.Get(target, name, q.MaxAge); ok {
			log.Debug("cache-hit")
			status.OK = true
			status.FromCache = true
			return rec, status
		}
		log.Debug("cache-miss")
	}

	// Block on the bucket before taking a worker slot, so waiting on the
	// rate limiter doesn't consume in-flight capacity.
	if err := e.limiter.Acquire(ctx, name); err != nil {
		status.Err = err
		return nil, status
	}
	if err := e.workers.Acquire(ctx, 1); err != nil {
		status.Err = &CancelledError{Reason: err.Error()}
		return nil, status
	}
	defer e.workers.Release(1)

	timeout := e.opt.ProviderTimeout
	if d, ok := e.registry.Descriptor(name); ok && d.Timeout > 0 {
		timeout = d.Timeout
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, attempts, err := e.opt.Retry.Do(pctx, log, func(ctx context.Context) (map[string]interface{}, error) {
		return p.Fetch(ctx, target, q.Type)
	})
	status.Attempts = attempts
	if err != nil {
		status.Err = e.classify(name, target, timeout, ctx, pctx, err, attempts)
		log.WithError(status.Err).Debug("provider failed")
		return nil, status
	}

	rec, err := p.Normalize(payload, target, q.Type)
	if err != nil {
		status.Err = &InternalError{Cause: err}
		return nil, status
	}
	rec.Source = name
	if verr := rec.Validate(); verr != nil {
		status.Err = &InternalError{Cause: verr}
		return nil, status
	}

	if useCache {
		e.cache.Put(target, name, rec)
	}
	status.OK = true
	return rec, status
}

// classify maps a unit failure onto the error taxonomy surfaced to
// callers.
func (e *Engine) classify(provider, target string, timeout time.Duration, parent, pctx context.Context, err error, attempts int) error {
	var ce *CancelledError
	if errors.As(err, &ce) {
		return err
	}
	var cred *CredentialsError
	if errors.As(err, &cred) {
		return err
	}
	if errors.Is(parent.Err(), context.Canceled) {
		return &CancelledError{Reason: parent.Err().Error()}
	}
	if errors.Is(pctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Provider: provider, Target: target, After: timeout}
	}
	if isTransient(err) {
		return &TransientError{Provider: provider, Target: target, Attempts: attempts, Cause: err}
	}
	return &PermanentError{Provider: provider, Target: target, Cause: err}
}

func (e *Engine) logCall(scanID, target string, status ProviderStatus) {
	if e.opt.ScanLog == nil {
		return
	}
	e.opt.ScanLog.Write(ScanLogEntry{
		Time:      time.Now().UTC(),
		ScanID:    scanID,
		Provider:  status.Provider,
		Target:    target,
		OK:        status.OK,
		FromCache: status.FromCache,
		Attempts:  status.Attempts,
		ElapsedMS: status.ElapsedMS,
		Error:     status.Error,
	})
}

// Close releases the engine's cache resources.
func (e *Engine) Close() error {
	if e.cache != nil {
		return e.cache.Close()
	}
	return nil
}
