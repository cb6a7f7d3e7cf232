// Package async overlaps batch preparation with training compute. A
// Prefetcher runs a pool of loader goroutines ahead of the consumer and
// reassembles their output in claim order, so downstream bookkeeping that
// depends on iteration order (prediction dumps, metric accumulation) sees
// batches exactly as a synchronous loop would.
package async

import (
	"context"
	"fmt"
	"sync"

	"github.com/Ingram66/C2-NET/tensor"
)

// Batch is one unit of prefetched work
type Batch struct {
	Data   *tensor.Tensor
	Labels *tensor.Tensor
	Seq    int // Claim-order sequence number, starting at 0
}

// Source describes a batch provider that separates cheap index claiming from
// expensive sample loading, so several workers can load concurrently.
type Source interface {
	// NextIndices claims the next batch's sample indices, returning false
	// when the epoch is exhausted. Must be safe for concurrent use.
	NextIndices() ([]int, bool)

	// LoadIndices assembles the batch for previously claimed indices. Must
	// be safe for concurrent use.
	LoadIndices(indices []int) (data, labels *tensor.Tensor, err error)
}

// PrefetcherConfig holds configuration for a Prefetcher
type PrefetcherConfig struct {
	Depth   int // Number of batches to buffer ahead (default: 3)
	Workers int // Number of loader goroutines (default: 2)
}

// Prefetcher drains a Source in the background and yields batches in claim
// order. One Prefetcher serves one pass over the source: create it after
// resetting the loader, consume until GetBatch returns nil, then Stop.
type Prefetcher struct {
	source  Source
	depth   int
	workers int

	batchChannel chan *Batch // Ordered output
	errorChannel chan error

	ctx    context.Context
	cancel context.CancelFunc

	workerWG      sync.WaitGroup
	collectorDone chan struct{}

	seqCounter int
	seqMutex   sync.Mutex

	isRunning bool
	mutex     sync.Mutex
}

// NewPrefetcher creates a new Prefetcher over the given source
func NewPrefetcher(source Source, config PrefetcherConfig) (*Prefetcher, error) {
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}

	if config.Depth <= 0 {
		config.Depth = 3
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Prefetcher{
		source:        source,
		depth:         config.Depth,
		workers:       config.Workers,
		batchChannel:  make(chan *Batch, config.Depth),
		errorChannel:  make(chan error, config.Workers),
		ctx:           ctx,
		cancel:        cancel,
		collectorDone: make(chan struct{}),
	}, nil
}

// Start launches the loader workers and the ordering collector
func (p *Prefetcher) Start() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.isRunning {
		return fmt.Errorf("prefetcher is already running")
	}

	results := make(chan *Batch, p.workers)

	for i := 0; i < p.workers; i++ {
		p.workerWG.Add(1)
		go p.worker(i, results)
	}

	// Close the results channel once every worker has drained the source, so
	// the collector can flush its pending batches and signal end of epoch
	go func() {
		p.workerWG.Wait()
		close(results)
	}()

	go p.collect(results)

	p.isRunning = true
	return nil
}

// Stop aborts any in-flight loading and waits for the pipeline to wind down.
// It is safe to call after the source is exhausted and safe to call twice.
func (p *Prefetcher) Stop() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.isRunning {
		return
	}

	p.cancel()
	p.workerWG.Wait()
	<-p.collectorDone

	p.isRunning = false
}

// GetBatch returns the next batch in claim order. It blocks until a batch is
// ready and returns (nil, nil) once the epoch is complete.
func (p *Prefetcher) GetBatch() (*Batch, error) {
	// Report pending worker errors before anything else
	select {
	case err := <-p.errorChannel:
		return nil, err
	default:
	}

	select {
	case batch, ok := <-p.batchChannel:
		if !ok {
			return nil, nil // Epoch complete
		}
		return batch, nil
	case err := <-p.errorChannel:
		return nil, err
	case <-p.ctx.Done():
		select {
		case err := <-p.errorChannel:
			return nil, err
		default:
		}
		return nil, fmt.Errorf("prefetcher has been stopped")
	}
}

// nextJob claims indices and a sequence number atomically, so sequence order
// always matches source order even with concurrent workers
func (p *Prefetcher) nextJob() (indices []int, seq int, ok bool) {
	p.seqMutex.Lock()
	defer p.seqMutex.Unlock()

	indices, ok = p.source.NextIndices()
	if !ok {
		return nil, 0, false
	}

	seq = p.seqCounter
	p.seqCounter++
	return indices, seq, true
}

// worker loads claimed batches until the source is exhausted
func (p *Prefetcher) worker(workerID int, results chan<- *Batch) {
	defer p.workerWG.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		indices, seq, ok := p.nextJob()
		if !ok {
			return
		}

		data, labels, err := p.source.LoadIndices(indices)
		if err != nil {
			select {
			case p.errorChannel <- fmt.Errorf("worker %d: %v", workerID, err):
			case <-p.ctx.Done():
			}
			// A failed batch leaves a hole in the sequence, so tear the
			// pipeline down rather than let the collector wait forever
			p.cancel()
			return
		}

		select {
		case results <- &Batch{Data: data, Labels: labels, Seq: seq}:
		case <-p.ctx.Done():
			return
		}
	}
}

// collect reorders worker output by sequence number and forwards it to the
// output channel. The output channel is closed only on a clean end of epoch.
func (p *Prefetcher) collect(results <-chan *Batch) {
	defer close(p.collectorDone)

	pending := make(map[int]*Batch)
	next := 0

	emit := func() bool {
		for {
			batch, exists := pending[next]
			if !exists {
				return true
			}
			delete(pending, next)
			select {
			case p.batchChannel <- batch:
				next++
			case <-p.ctx.Done():
				return false
			}
		}
	}

	for {
		select {
		case batch, ok := <-results:
			if !ok {
				// Workers finished. Flush what remains, then signal end of
				// epoch unless the run was cancelled mid-sequence.
				if emit() && p.ctx.Err() == nil {
					close(p.batchChannel)
				}
				return
			}
			pending[batch.Seq] = batch
			if !emit() {
				return
			}
		case <-p.ctx.Done():
			return
		}
	}
}
