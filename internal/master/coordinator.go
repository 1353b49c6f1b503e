// Package master accepts worker connections, drives the evolution engine
// over remote individuals and collects the winner.
package master

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"evoswarm/internal/evo"
	"evoswarm/internal/wire"
)

const (
	DefaultPort       = 1337
	defaultAcceptPoll = 100 * time.Millisecond
)

var (
	ErrNotEnoughWorkers = errors.New("not enough workers")
	// ErrFleetExhausted aborts a run once fewer than MinWorkers remain live.
	ErrFleetExhausted = errors.New("fleet exhausted")
)

type Config struct {
	Addr  string
	Start StartCondition
	Sync  SyncCondition
	Stop  evo.StopRule
	// Threads bounds concurrent requests to workers. Zero means NumCPU.
	Threads int
	// RequestTimeout applies to every request/response exchange. Zero
	// disables it.
	RequestTimeout time.Duration
	// AcceptPoll is how often a quiet-period start condition is rechecked.
	AcceptPoll time.Duration
	Logger     *slog.Logger
}

// Result is the outcome of a distributed run.
type Result[T any] struct {
	Best             T
	Found            bool
	Fitness          float64
	Generations      int
	BestByGeneration []float64
	Workers          int
	LiveWorkers      int
}

type Coordinator[T evo.Evolvable[T]] struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	ln      net.Listener
	conns   []net.Conn
	started bool
}

func NewCoordinator[T evo.Evolvable[T]](cfg Config) (*Coordinator[T], error) {
	if cfg.Addr == "" {
		cfg.Addr = fmt.Sprintf(":%d", DefaultPort)
	}
	if err := cfg.Start.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Sync.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Stop.Validate(); err != nil {
		return nil, err
	}
	if cfg.Threads <= 0 {
		cfg.Threads = runtime.NumCPU()
	}
	if cfg.AcceptPoll <= 0 {
		cfg.AcceptPoll = defaultAcceptPoll
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator[T]{cfg: cfg, logger: logger.With("component", "master"), now: time.Now}, nil
}

func (c *Coordinator[T]) Listen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln != nil {
		return fmt.Errorf("already listening on %s", c.ln.Addr())
	}
	ln, err := net.Listen("tcp", c.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", c.cfg.Addr, err)
	}
	c.ln = ln
	c.logger.Info("listening for workers", "addr", ln.Addr().String(), "start", c.cfg.Start.String())
	return nil
}

// Addr is the bound listener address, nil before Listen.
func (c *Coordinator[T]) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln == nil {
		return nil
	}
	return c.ln.Addr()
}

type deadliner interface {
	SetDeadline(time.Time) error
}

// AcceptWorkers accepts connections until the start condition holds and
// returns the number of connected workers. Failed accepts are logged and
// retried at a bounded rate.
func (c *Coordinator[T]) AcceptWorkers(ctx context.Context) (int, error) {
	c.mu.Lock()
	ln := c.ln
	c.mu.Unlock()
	if ln == nil {
		return 0, fmt.Errorf("accept workers: not listening")
	}

	limiter := rate.NewLimiter(rate.Every(50*time.Millisecond), 1)
	lastConnect := c.now()
	for {
		if err := ctx.Err(); err != nil {
			return c.workerCount(), err
		}
		if c.startReady(lastConnect) {
			break
		}

		if dl, ok := ln.(deadliner); ok {
			_ = dl.SetDeadline(c.now().Add(c.cfg.AcceptPoll))
		}
		conn, err := ln.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return c.workerCount(), fmt.Errorf("accept workers: %w", err)
			}
			c.logger.Warn("failed to accept worker", "error", err)
			if err := limiter.Wait(ctx); err != nil {
				return c.workerCount(), err
			}
			continue
		}

		c.mu.Lock()
		c.conns = append(c.conns, conn)
		n := len(c.conns)
		c.mu.Unlock()
		lastConnect = c.now()
		workersConnected.Set(float64(n))
		c.logger.Info("worker connected", "worker", n-1, "addr", conn.RemoteAddr().String(), "connected", n)
	}

	if dl, ok := ln.(deadliner); ok {
		_ = dl.SetDeadline(time.Time{})
	}
	n := c.workerCount()
	c.logger.Info("start condition reached", "workers", n)
	return n, nil
}

func (c *Coordinator[T]) startReady(lastConnect time.Time) bool {
	n := c.workerCount()
	switch c.cfg.Start.Kind {
	case StartAmountClients:
		return n >= c.cfg.Start.Clients
	case StartQuietPeriod:
		return n >= MinWorkers && c.now().Sub(lastConnect) >= c.cfg.Start.Quiet
	default:
		return false
	}
}

func (c *Coordinator[T]) workerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// Run broadcasts START to every accepted worker, closes the listener and
// evolves the fleet until the stop rule holds. The winner is fetched from
// its worker before returning.
func (c *Coordinator[T]) Run(ctx context.Context) (Result[T], error) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return Result[T]{}, fmt.Errorf("run already started")
	}
	c.started = true
	conns := append([]net.Conn(nil), c.conns...)
	c.mu.Unlock()

	if len(conns) < MinWorkers {
		return Result[T]{}, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughWorkers, len(conns), MinWorkers)
	}

	workers := make([]*workerConn[T], len(conns))
	for i, conn := range conns {
		workers[i] = newWorkerConn[T](i, conn, c.cfg.RequestTimeout)
	}
	f := newFleet(workers, c.logger)
	defer f.closeAll()
	stopOnCancel := context.AfterFunc(ctx, f.closeAll)
	defer stopOnCancel()

	initial := c.broadcastStart(f)
	c.closeListener()

	if len(initial) < MinWorkers {
		return Result[T]{}, fmt.Errorf("%w: %d workers answered start", ErrNotEnoughWorkers, len(initial))
	}
	c.logger.Info("fleet initialized", "workers", len(initial))

	next := 0
	factory := func() (*Proxy[T], error) {
		p := initial[next]
		next++
		return p, nil
	}
	fitness := func(p *Proxy[T]) (float64, error) {
		if f.liveCount() < MinWorkers {
			return 0, ErrFleetExhausted
		}
		if !f.isAlive(p.worker) {
			return math.Inf(-1), nil
		}
		return p.fitness, nil
	}

	syncer := newSyncTracker(c.cfg.Sync, c.now)
	hook := func(_ context.Context, gen evo.Generation[*Proxy[T]]) error {
		generationsTotal.Inc()
		bestFitness.Set(gen.BestFitness)
		f.beginGeneration(gen.Best.worker, gen.Second.worker)
		if syncer.due(gen.Number) {
			c.synchronize(f, gen)
		}
		if f.liveCount() < MinWorkers {
			return ErrFleetExhausted
		}
		return nil
	}

	res, err := evo.Evolve(ctx, evo.Config[*Proxy[T]]{
		PopulationSize: len(initial),
		Stop:           c.cfg.Stop,
		Factory:        factory,
		Fitness:        fitness,
		Options: evo.Options[*Proxy[T]]{
			Threads:      c.cfg.Threads,
			Logger:       c.logger,
			OnGeneration: hook,
		},
	})
	if err != nil {
		return Result[T]{}, err
	}

	out := Result[T]{
		Fitness:          res.Fitness,
		Generations:      res.Generations,
		BestByGeneration: res.BestByGeneration,
		Workers:          len(workers),
		LiveWorkers:      f.liveCount(),
	}
	out.Best, out.Found = c.fetchWinner(f, res.Best.worker)
	c.logger.Info("evolution finished",
		"generations", res.Generations,
		"best_fitness", res.Fitness,
		"winner", res.Best.worker,
		"live_workers", out.LiveWorkers,
	)
	return out, nil
}

// broadcastStart initializes every worker concurrently. Workers that fail
// are dropped; the rest get one proxy each, in connection order.
func (c *Coordinator[T]) broadcastStart(f *fleet[T]) []*Proxy[T] {
	proxies := make([]*Proxy[T], len(f.workers))
	var g errgroup.Group
	g.SetLimit(c.cfg.Threads)
	for i, w := range f.workers {
		g.Go(func() error {
			_, fitness, err := w.start()
			if err != nil {
				f.drop(i, fmt.Errorf("start: %w", err))
				return nil
			}
			proxies[i] = &Proxy[T]{fleet: f, worker: i, fitness: fitness, crossWith: unplaced}
			return nil
		})
	}
	_ = g.Wait()

	initial := make([]*Proxy[T], 0, len(proxies))
	for _, p := range proxies {
		if p != nil {
			initial = append(initial, p)
		}
	}
	return initial
}

// synchronize copies the best individual onto every other live worker. The
// second elite now holds the same individual, so it inherits the best
// fitness.
func (c *Coordinator[T]) synchronize(f *fleet[T], gen evo.Generation[*Proxy[T]]) {
	owner := gen.Best.worker
	best, ok := f.parent(owner)
	if !ok {
		c.logger.Warn("skipping sync, best individual unavailable", "generation", gen.Number, "worker", owner)
		return
	}
	body, err := wire.EncodeIndividual(best)
	if err != nil {
		c.logger.Error("sync failed", "generation", gen.Number, "error", err)
		return
	}
	sent, err := f.broadcast(body, owner, c.cfg.Threads)
	if err != nil {
		c.logger.Warn("sync missed some workers", "generation", gen.Number, "error", err)
	}
	if sent == 0 {
		return
	}
	if gen.Second.worker != owner && f.isAlive(gen.Second.worker) {
		gen.Second.fitness = gen.BestFitness
	}
	syncsTotal.Inc()
	c.logger.Info("synchronized best individual", "generation", gen.Number, "workers", sent, "fitness", gen.BestFitness)
}

// fetchWinner reads the winning individual back from its worker, falling
// back to the copy fetched during the last generation.
func (c *Coordinator[T]) fetchWinner(f *fleet[T], worker int) (T, bool) {
	individual, ok, err := f.get(worker)
	if err == nil && ok {
		return individual, true
	}
	if err != nil {
		c.logger.Warn("could not fetch winner", "worker", worker, "error", err)
	}
	return f.parent(worker)
}

// Serve listens, waits for the start condition and runs to completion.
func (c *Coordinator[T]) Serve(ctx context.Context) (Result[T], error) {
	if c.Addr() == nil {
		if err := c.Listen(); err != nil {
			return Result[T]{}, err
		}
	}
	if _, err := c.AcceptWorkers(ctx); err != nil {
		c.Close()
		return Result[T]{}, err
	}
	return c.Run(ctx)
}

func (c *Coordinator[T]) closeListener() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln != nil {
		_ = c.ln.Close()
	}
}

// Close releases the listener and any connection not yet handed to a run.
func (c *Coordinator[T]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.ln != nil {
		err = c.ln.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	}
	if !c.started {
		for _, conn := range c.conns {
			_ = conn.Close()
		}
	}
	return err
}
