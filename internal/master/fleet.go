package master

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"evoswarm/internal/evo"
	"evoswarm/internal/wire"
)

// fleet tracks which workers are live, which ones already hold a member of
// the current generation, and the elite individuals fetched for breeding.
type fleet[T evo.Evolvable[T]] struct {
	workers []*workerConn[T]
	logger  *slog.Logger

	mu      sync.Mutex
	alive   []bool
	claimed []bool
	live    int
	parents map[int]T
}

func newFleet[T evo.Evolvable[T]](workers []*workerConn[T], logger *slog.Logger) *fleet[T] {
	f := &fleet[T]{
		workers: workers,
		logger:  logger,
		alive:   make([]bool, len(workers)),
		claimed: make([]bool, len(workers)),
		live:    len(workers),
		parents: make(map[int]T),
	}
	for i := range f.alive {
		f.alive[i] = true
	}
	workersConnected.Set(float64(f.live))
	return f
}

func (f *fleet[T]) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live
}

func (f *fleet[T]) isAlive(i int) bool {
	if i < 0 || i >= len(f.workers) {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive[i]
}

// drop closes a worker after a failed request. It is never contacted again.
func (f *fleet[T]) drop(i int, cause error) {
	f.mu.Lock()
	if !f.alive[i] {
		f.mu.Unlock()
		return
	}
	f.alive[i] = false
	f.live--
	live := f.live
	delete(f.parents, i)
	f.mu.Unlock()

	_ = f.workers[i].close()
	workersDropped.Inc()
	workersConnected.Set(float64(live))
	f.logger.Warn("dropping worker", "worker", i, "addr", f.workers[i].addr, "live", live, "error", cause)
}

// claim reserves a live worker that holds no member of the current
// generation yet.
func (f *fleet[T]) claim() (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.workers {
		if f.alive[i] && !f.claimed[i] {
			f.claimed[i] = true
			return i, true
		}
	}
	return -1, false
}

// beginGeneration releases every worker except the elites' and fetches the
// elite individuals that children will be bred from.
func (f *fleet[T]) beginGeneration(elites ...int) {
	f.mu.Lock()
	for i := range f.claimed {
		f.claimed[i] = false
	}
	for _, i := range elites {
		if i >= 0 {
			f.claimed[i] = true
		}
	}
	f.parents = make(map[int]T, len(elites))
	f.mu.Unlock()

	for _, i := range elites {
		if !f.isAlive(i) {
			continue
		}
		individual, ok, err := f.workers[i].get()
		if err != nil {
			f.drop(i, err)
			continue
		}
		if !ok {
			f.logger.Warn("elite worker holds no individual", "worker", i)
			continue
		}
		f.mu.Lock()
		f.parents[i] = individual
		f.mu.Unlock()
	}
}

func (f *fleet[T]) parent(i int) (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	individual, ok := f.parents[i]
	return individual, ok
}

// breed crosses the fetched individuals of workers a and b. A missing parent
// is replaced by the other one; ok is false when neither was fetched.
func (f *fleet[T]) breed(a, b int) (child T, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pa, okA := f.parents[a]
	pb, okB := f.parents[b]
	switch {
	case okA && okB:
		return pa.CrossOver(pb), true
	case okA:
		return pa.CrossOver(pa), true
	case okB:
		return pb.CrossOver(pb), true
	default:
		return child, false
	}
}

func (f *fleet[T]) train(i int) (float64, error) {
	if !f.isAlive(i) {
		return 0, errWorkerGone
	}
	fitness, err := f.workers[i].train()
	if err != nil {
		f.drop(i, err)
		return 0, err
	}
	return fitness, nil
}

func (f *fleet[T]) set(i int, individual T) error {
	if !f.isAlive(i) {
		return errWorkerGone
	}
	body, err := wire.EncodeIndividual(individual)
	if err != nil {
		return err
	}
	if err := f.workers[i].set(body); err != nil {
		f.drop(i, err)
		return err
	}
	return nil
}

func (f *fleet[T]) get(i int) (T, bool, error) {
	var zero T
	if !f.isAlive(i) {
		return zero, false, errWorkerGone
	}
	individual, ok, err := f.workers[i].get()
	if err != nil {
		f.drop(i, err)
		return zero, false, err
	}
	return individual, ok, nil
}

// broadcast pushes an encoded individual to every live worker except skip
// and returns how many received it. Workers that fail are dropped; the first
// failure is returned after every push has finished.
func (f *fleet[T]) broadcast(body []byte, skip int, limit int) (int, error) {
	var sent atomic.Int64
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range f.workers {
		if i == skip || !f.isAlive(i) {
			continue
		}
		g.Go(func() error {
			if err := f.workers[i].set(body); err != nil {
				f.drop(i, err)
				return fmt.Errorf("worker %d: %w", i, err)
			}
			sent.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return int(sent.Load()), err
}

func (f *fleet[T]) closeAll() {
	for _, w := range f.workers {
		_ = w.close()
	}
	workersConnected.Set(0)
}
