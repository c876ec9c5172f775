package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/sellerwatch/config"
	"github.com/aluiziolira/sellerwatch/models"
)

type mockWriter struct {
	mu          sync.Mutex
	batches     [][]*models.SellerMatch
	closed      bool
	validateErr error
}

func (mw *mockWriter) Write(matches []*models.SellerMatch) error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	copyBatch := make([]*models.SellerMatch, len(matches))
	copy(copyBatch, matches)
	mw.batches = append(mw.batches, copyBatch)
	return nil
}

func (mw *mockWriter) Close() error {
	mw.mu.Lock()
	mw.closed = true
	mw.mu.Unlock()
	return nil
}

func (mw *mockWriter) Validate() error {
	return mw.validateErr
}

func (mw *mockWriter) totalWritten() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	total := 0
	for _, batch := range mw.batches {
		total += len(batch)
	}
	return total
}

func (mw *mockWriter) batchSizes() []int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	sizes := make([]int, 0, len(mw.batches))
	for _, batch := range mw.batches {
		sizes = append(sizes, len(batch))
	}
	return sizes
}

type blockingWriter struct {
	blockCh chan struct{}
}

func (bw *blockingWriter) Write([]*models.SellerMatch) error {
	<-bw.blockCh
	return nil
}

func (bw *blockingWriter) Close() error {
	return nil
}

func (bw *blockingWriter) Validate() error {
	return nil
}

func match(listingID int64) *models.SellerMatch {
	return &models.SellerMatch{
		ID:         models.MatchID(listingID),
		SellerID:   "vinylshop",
		ListingID:  listingID,
		ReleaseID:  int(listingID) + 1000,
		MasterID:   77,
		Artist:     "Can",
		Title:      "Tago Mago",
		Format:     []string{"LP", "Album"},
		Condition:  " Very Good Plus (VG+) ",
		Price:      20,
		Currency:   "eur",
		ListingURL: "https://www.discogs.com/sell/item/1",
		Status:     models.MatchActive,
		DateFound:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPipelineProcessValidationAndDedup(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	valid := match(1)
	invalid := match(2)
	invalid.ID = "3"
	duplicate := match(1)

	if err := p.Process(valid, invalid, duplicate); err != nil {
		t.Fatalf("process: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 1 {
		t.Fatalf("written matches = %d, want 1", got)
	}
	written := writer.batches[0][0]
	if written.Currency != "EUR" || written.Condition != "Very Good Plus (VG+)" {
		t.Fatalf("match not normalized: %+v", written)
	}
	if valid.Currency != "eur" {
		t.Fatal("input match was mutated")
	}

	metrics := p.GetMetrics()
	validation, ok := metrics["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("expected validation errors map")
	}
	if validation["invalid_record"] == 0 {
		t.Fatalf("expected invalid_record validation error")
	}
	if validation["duplicate_offer"] == 0 {
		t.Fatalf("expected duplicate_offer validation error")
	}
}

func TestPipelineDropsRepeatedOffers(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(2)

	newest := match(5)
	older := match(6)
	older.ReleaseID = newest.ReleaseID
	older.Condition = "Very Good Plus (VG+)"
	otherPrice := match(7)
	otherPrice.ReleaseID = newest.ReleaseID
	otherPrice.Price = 25

	if err := p.Process(newest, older, otherPrice); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var ids []int64
	for _, batch := range writer.batches {
		for _, m := range batch {
			ids = append(ids, m.ListingID)
		}
	}
	if len(ids) != 2 || ids[0] != 5 || ids[1] != 7 {
		t.Fatalf("written listings = %v, want [5 7]", ids)
	}
	if got := p.GetMetrics()["validation_errors"].(map[string]int)["duplicate_offer"]; got != 1 {
		t.Fatalf("duplicate_offer = %d, want 1", got)
	}
}

func TestPipelineKeepsSubmissionOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ExportBatchSize = 7
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(4)

	const total = 300
	for i := total; i > 0; i-- {
		if err := p.Process(match(int64(i))); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := int64(total)
	for _, batch := range writer.batches {
		for _, m := range batch {
			if m.ListingID != want {
				t.Fatalf("listing %d written where %d was expected", m.ListingID, want)
			}
			want--
		}
	}
	if want != 0 {
		t.Fatalf("%d matches missing", want)
	}
}

func TestPipelineBatchFlushThreshold(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ExportBatchSize = 64
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	for i := 0; i < 65; i++ {
		if err := p.Process(match(int64(i + 1))); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	sizes := writer.batchSizes()
	if len(sizes) != 2 {
		t.Fatalf("batch writes = %d, want 2", len(sizes))
	}
	if sizes[0] != 64 || sizes[1] != 1 {
		t.Fatalf("batch sizes = %v, want [64 1]", sizes)
	}
}

func TestPipelineCloseDrainsPendingItems(t *testing.T) {
	cfg := config.DefaultConfig()
	writer := &mockWriter{}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(2)

	for i := 0; i < 100; i++ {
		if err := p.Process(match(int64(i + 200))); err != nil {
			t.Fatalf("process: %v", err)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := writer.totalWritten(); got != 100 {
		t.Fatalf("written matches = %d, want 100", got)
	}
	if err := p.Process(match(999)); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("process after close err = %v", err)
	}
}

func TestPipelineCloseTimeout(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ExportBatchSize = 1

	writer := &blockingWriter{blockCh: make(chan struct{})}
	p := NewPipeline(context.Background(), writer, cfg)
	p.Start(1)

	if err := p.Process(match(1)); err != nil {
		t.Fatalf("process: %v", err)
	}

	previousTimeout := drainTimeout
	drainTimeout = 25 * time.Millisecond
	t.Cleanup(func() {
		drainTimeout = previousTimeout
		close(writer.blockCh)
	})

	if err := p.Close(); err == nil || !errors.Is(err, ErrPipelineCloseTimeout) {
		t.Fatalf("expected close timeout error, got %v", err)
	}
}

func TestPipelineCancelledContext(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ExportBatchSize = 1
	writer := &blockingWriter{blockCh: make(chan struct{})}
	t.Cleanup(func() { close(writer.blockCh) })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPipeline(ctx, writer, cfg)

	// Without workers the buffer fills and enqueue must observe cancellation.
	var err error
	for i := 0; i < 600 && err == nil; i++ {
		err = p.Process(match(int64(i + 1)))
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("process err = %v, want context.Canceled", err)
	}
}

func TestExport(t *testing.T) {
	cfg := config.DefaultConfig()
	base := filepath.Join(t.TempDir(), "export", "matches")
	writer, err := NewWriter("dual", base)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}

	matches := []models.SellerMatch{*match(1), *match(2), *match(2)}
	written, err := Export(context.Background(), cfg, writer, matches)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if written != 2 {
		t.Fatalf("written = %d, want 2", written)
	}
}

func TestNewWriterUnknownFormat(t *testing.T) {
	if _, err := NewWriter("xml", filepath.Join(t.TempDir(), "out")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
