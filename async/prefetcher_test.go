package async

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Ingram66/C2-NET/tensor"
)

// fakeSource yields numbered single-sample batches with configurable load
// delays, to force out-of-order completion across workers
type fakeSource struct {
	batches int
	delays  []time.Duration
	failAt  int // Batch index that fails to load, -1 for none

	claimed int
	mu      sync.Mutex
}

func newFakeSource(batches int, delays []time.Duration, failAt int) *fakeSource {
	return &fakeSource{batches: batches, delays: delays, failAt: failAt}
}

func (fs *fakeSource) NextIndices() ([]int, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.claimed >= fs.batches {
		return nil, false
	}
	idx := fs.claimed
	fs.claimed++
	return []int{idx}, true
}

func (fs *fakeSource) LoadIndices(indices []int) (*tensor.Tensor, *tensor.Tensor, error) {
	idx := indices[0]

	if idx < len(fs.delays) {
		time.Sleep(fs.delays[idx])
	}
	if idx == fs.failAt {
		return nil, nil, fmt.Errorf("simulated load failure for batch %d", idx)
	}

	data, err := tensor.NewTensor([]int{1}, tensor.Float32, tensor.CPU, []float32{float32(idx)})
	if err != nil {
		return nil, nil, err
	}
	labels, err := tensor.NewTensor([]int{1}, tensor.Int32, tensor.CPU, []int32{0})
	if err != nil {
		return nil, nil, err
	}
	return data, labels, nil
}

func TestPrefetcherPreservesOrder(t *testing.T) {
	// Earlier batches load slower, so workers finish them out of order
	delays := []time.Duration{
		50 * time.Millisecond,
		30 * time.Millisecond,
		10 * time.Millisecond,
		0, 0, 0,
	}
	source := newFakeSource(6, delays, -1)

	p, err := NewPrefetcher(source, PrefetcherConfig{Depth: 2, Workers: 3})
	if err != nil {
		t.Fatalf("Failed to create prefetcher: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Failed to start prefetcher: %v", err)
	}
	defer p.Stop()

	for expected := 0; expected < 6; expected++ {
		batch, err := p.GetBatch()
		if err != nil {
			t.Fatalf("GetBatch failed at position %d: %v", expected, err)
		}
		if batch == nil {
			t.Fatalf("Epoch ended early at position %d", expected)
		}

		if batch.Seq != expected {
			t.Errorf("Expected sequence %d, got %d", expected, batch.Seq)
		}
		value := batch.Data.Data.([]float32)[0]
		if value != float32(expected) {
			t.Errorf("Expected batch value %d, got %v", expected, value)
		}
	}

	// Stream must report a clean end of epoch
	batch, err := p.GetBatch()
	if err != nil {
		t.Fatalf("GetBatch after epoch failed: %v", err)
	}
	if batch != nil {
		t.Errorf("Expected nil batch at end of epoch, got seq %d", batch.Seq)
	}
}

func TestPrefetcherEmptySource(t *testing.T) {
	source := newFakeSource(0, nil, -1)

	p, err := NewPrefetcher(source, PrefetcherConfig{})
	if err != nil {
		t.Fatalf("Failed to create prefetcher: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Failed to start prefetcher: %v", err)
	}
	defer p.Stop()

	batch, err := p.GetBatch()
	if err != nil {
		t.Fatalf("GetBatch failed: %v", err)
	}
	if batch != nil {
		t.Error("Expected immediate end of epoch for empty source")
	}
}

func TestPrefetcherPropagatesLoadErrors(t *testing.T) {
	source := newFakeSource(5, nil, 2)

	p, err := NewPrefetcher(source, PrefetcherConfig{Depth: 2, Workers: 2})
	if err != nil {
		t.Fatalf("Failed to create prefetcher: %v", err)
	}
	if err := p.Start(); err != nil {
		t.Fatalf("Failed to start prefetcher: %v", err)
	}
	defer p.Stop()

	// Batches before the failure may still arrive, but the failure must
	// surface before the stream reports a clean end
	for i := 0; i < 5; i++ {
		batch, err := p.GetBatch()
		if err != nil {
			if !strings.Contains(err.Error(), "worker") {
				t.Errorf("Expected worker error, got: %v", err)
			}
			return
		}
		if batch == nil {
			t.Fatal("Stream ended cleanly despite a load failure")
		}
	}
	t.Fatal("Load failure never surfaced")
}

func TestPrefetcherLifecycle(t *testing.T) {
	t.Run("Double start", func(t *testing.T) {
		source := newFakeSource(1, nil, -1)
		p, _ := NewPrefetcher(source, PrefetcherConfig{})

		if err := p.Start(); err != nil {
			t.Fatalf("First start failed: %v", err)
		}
		if err := p.Start(); err == nil {
			t.Error("Expected error for second start")
		}
		p.Stop()
	})

	t.Run("Stop is idempotent", func(t *testing.T) {
		source := newFakeSource(1, nil, -1)
		p, _ := NewPrefetcher(source, PrefetcherConfig{})

		if err := p.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		p.Stop()
		p.Stop()
	})

	t.Run("GetBatch after mid-run stop", func(t *testing.T) {
		delays := []time.Duration{200 * time.Millisecond, 200 * time.Millisecond}
		source := newFakeSource(2, delays, -1)
		p, _ := NewPrefetcher(source, PrefetcherConfig{Workers: 1})

		if err := p.Start(); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
		p.Stop()

		if _, err := p.GetBatch(); err == nil {
			t.Error("Expected error from GetBatch after stop")
		}
	})

	t.Run("Nil source", func(t *testing.T) {
		if _, err := NewPrefetcher(nil, PrefetcherConfig{}); err == nil {
			t.Error("Expected error for nil source")
		}
	})
}
