// Package pipeline exports matches through validation, de-duplication and batched writers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/sellerwatch/config"
	"github.com/aluiziolira/sellerwatch/models"
	"github.com/aluiziolira/sellerwatch/parser"
)

const (
	// dedupeSize bounds how many offers are remembered for de-duplication.
	dedupeSize = 100_000

	exportReportInterval = 5 * time.Second
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when workers do not drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

var drainTimeout = 30 * time.Second

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(matches []*models.SellerMatch) error
	Close() error
	Validate() error
}

// offerKey identifies a seller's offer of a release at one grade and price.
// Repeated offers are exported once.
type offerKey struct {
	seller    string
	releaseID int
	condition string
	price     int64
	currency  string
}

func offerOf(m *models.SellerMatch) offerKey {
	return offerKey{
		seller:    m.SellerID,
		releaseID: m.ReleaseID,
		condition: m.Condition,
		price:     int64(m.Price*100 + 0.5),
		currency:  m.Currency,
	}
}

type job struct {
	seq   uint64
	match *models.SellerMatch
}

// Pipeline validates and normalizes matches on a worker pool and writes them in
// submission order from a single writer goroutine.
type Pipeline struct {
	ctx       context.Context
	writer    OutputWriter
	jobs      chan job
	results   chan job
	batchSize int
	logger    *slog.Logger

	workers    sync.WaitGroup
	writerDone chan struct{}
	started    bool

	offers *lru.Cache[offerKey, struct{}]

	metrics metrics

	submitMu sync.Mutex // serializes sequence assignment and sends on jobs
	nextSeq  uint64

	mu     sync.Mutex // guards closed/err/started
	closed bool
	err    error

	closeJobs    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline with a modest in-memory buffer.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config) *Pipeline {
	batchSize := cfg.ExportBatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	offers, err := lru.New[offerKey, struct{}](dedupeSize)
	if err != nil {
		panic(err)
	}
	return &Pipeline{
		ctx:        ctx,
		writer:     writer,
		jobs:       make(chan job, 512),
		results:    make(chan job, 512),
		batchSize:  batchSize,
		logger:     slog.Default().With(slog.String("component", "pipeline")),
		writerDone: make(chan struct{}),
		offers:     offers,
		metrics:    newMetrics(),
		shutdown:   make(chan struct{}),
	}
}

// Start launches the preparation workers and the ordered writer.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed || p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.workers.Add(1)
		go p.worker()
	}
	go p.write()
}

// Process enqueues matches for downstream processing.
func (p *Pipeline) Process(matches ...*models.SellerMatch) error {
	if len(matches) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	p.submitMu.Lock()
	defer p.submitMu.Unlock()
	for _, match := range matches {
		if match == nil {
			continue
		}
		if err := p.enqueue(job{seq: p.nextSeq, match: match}); err != nil {
			return err
		}
		p.nextSeq++
	}
	return nil
}

// Close waits for queued matches to be written and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	started := p.started
	p.mu.Unlock()

	p.signalShutdown()
	p.submitMu.Lock()
	p.closeJobs.Do(func() { close(p.jobs) })
	p.submitMu.Unlock()

	if !started {
		return p.Err()
	}

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(p.results)
		<-p.writerDone
		close(done)
	}()

	select {
	case <-done:
		return p.Err()
	case <-time.After(drainTimeout):
		return ErrPipelineCloseTimeout
	}
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				p.logger.Info("export progress",
					slog.Int64("processed", metrics["processed_matches"].(int64)),
					slog.Any("skipped", metrics["validation_errors"]),
				)
			case <-p.writerDone:
				return
			case <-p.ctx.Done():
				return
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.workers.Done()
	for j := range p.jobs {
		p.results <- job{seq: j.seq, match: p.prepare(j.match)}
	}
}

// write restores submission order, drops repeated offers and flushes full batches.
func (p *Pipeline) write() {
	defer close(p.writerDone)

	pending := make(map[uint64]*models.SellerMatch)
	var next uint64
	batch := make([]*models.SellerMatch, 0, p.batchSize)
	failed := false

	flush := func() {
		if len(batch) == 0 || failed {
			return
		}
		if err := p.writer.Write(batch); err != nil {
			failed = true
			p.setErr(fmt.Errorf("write batch: %w", err))
			return
		}
		p.metrics.addProcessed(len(batch))
		batch = batch[:0]
	}

	for r := range p.results {
		pending[r.seq] = r.match
		for {
			match, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if match == nil || failed {
				continue
			}
			if ok, _ := p.offers.ContainsOrAdd(offerOf(match), struct{}{}); ok {
				p.metrics.addValidation("duplicate_offer")
				continue
			}
			batch = append(batch, match)
			if len(batch) >= p.batchSize {
				flush()
			}
		}
	}
	flush()
}

// prepare validates and normalizes a copy of match; nil means it is skipped.
func (p *Pipeline) prepare(match *models.SellerMatch) *models.SellerMatch {
	if err := parser.ValidateMatch(match); err != nil {
		p.metrics.addValidation("invalid_record")
		p.logger.Debug("skipping invalid match", slog.String("id", match.ID), slog.Any("error", err))
		return nil
	}

	out := *match
	out.Condition = parser.NormalizeCondition(out.Condition)
	out.Currency = strings.ToUpper(strings.TrimSpace(out.Currency))
	return &out
}

func (p *Pipeline) enqueue(j job) error {
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case <-p.shutdown:
		return ErrPipelineClosed
	case p.jobs <- j:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err == nil {
		return
	}

	p.mu.Lock()
	if p.err == nil {
		p.err = err
	}
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) addProcessed(n int) {
	m.mu.Lock()
	m.processed += int64(n)
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_matches": m.processed,
		"validation_errors": copyValidation,
	}
}

// Export streams matches through a pipeline into writer and closes it. The
// written order is the order of matches. It returns how many matches were written.
func Export(ctx context.Context, cfg *config.Config, writer OutputWriter, matches []models.SellerMatch) (int64, error) {
	p := NewPipeline(ctx, writer, cfg)
	p.Start(cfg.ExportWorkers)
	p.StartMetricsReporting(exportReportInterval)

	var processErr error
	for i := range matches {
		if err := p.Process(&matches[i]); err != nil {
			processErr = err
			break
		}
	}
	closeErr := p.Close()
	written := p.GetMetrics()["processed_matches"].(int64)
	if closeErr == nil && processErr == nil && written > 0 {
		closeErr = writer.Validate()
	}
	if err := writer.Close(); err != nil && closeErr == nil {
		closeErr = fmt.Errorf("close writer: %w", err)
	}

	if processErr != nil {
		return written, processErr
	}
	return written, closeErr
}
