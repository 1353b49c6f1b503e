// Package worker terminates the master protocol on one connection and keeps
// a single local individual that the master can initialize, train, read and
// replace.
package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"evoswarm/internal/evo"
	"evoswarm/internal/wire"
)

// ErrNotInitialized is returned when TRAIN arrives before any START or SET.
// It means the master got the protocol order wrong and the connection is
// abandoned.
var ErrNotInitialized = errors.New("train requested before the individual was initialized")

// InitFunc creates a fresh individual together with its fitness.
type InitFunc[T any] func(ctx context.Context) (T, float64, error)

// TrainFunc improves an already mutated individual in place and returns its
// new fitness.
type TrainFunc[T any] func(ctx context.Context, individual T) (float64, error)

// AcceptFunc vets an individual pushed by SET before it replaces the held
// one. A non-nil error rejects the push.
type AcceptFunc[T any] func(individual T) error

type Config[T any] struct {
	Init  InitFunc[T]
	Train TrainFunc[T]
	// Accept is optional; without it every decodable SET is taken.
	Accept AcceptFunc[T]
	// MaxSetSize bounds a SET body. Zero means wire.MaxIndividualSize.
	MaxSetSize int
	Logger     *slog.Logger
}

type Agent[T evo.Evolvable[T]] struct {
	init   InitFunc[T]
	train  TrainFunc[T]
	accept AcceptFunc[T]
	maxSet int
	logger *slog.Logger

	mu      sync.Mutex
	current T
	held    bool
}

func NewAgent[T evo.Evolvable[T]](cfg Config[T]) (*Agent[T], error) {
	if cfg.Init == nil {
		return nil, fmt.Errorf("init function is required")
	}
	if cfg.Train == nil {
		return nil, fmt.Errorf("train function is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxSet := cfg.MaxSetSize
	if maxSet <= 0 {
		maxSet = wire.MaxIndividualSize
	}
	return &Agent[T]{
		init:   cfg.Init,
		train:  cfg.Train,
		accept: cfg.Accept,
		maxSet: maxSet,
		logger: logger.With("component", "worker"),
	}, nil
}

// Current returns the held individual, if any.
func (a *Agent[T]) Current() (T, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current, a.held
}

// Serve handles requests until the peer closes the connection, which is
// reported as a nil error. Requests are processed strictly one at a time.
func (a *Agent[T]) Serve(ctx context.Context, conn io.ReadWriter) error {
	if closer, ok := conn.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stop()
	}

	rd := bufio.NewReader(conn)
	wr := bufio.NewWriter(conn)
	for {
		cmd, err := wire.ReadOpcode(rd)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("read opcode: %w", err)
		}
		recordRequest(cmd)

		switch cmd {
		case wire.CmdStart:
			err = a.handleStart(ctx, wr)
		case wire.CmdTrain:
			err = a.handleTrain(ctx, wr)
		case wire.CmdGet:
			err = a.handleGet(wr)
		case wire.CmdSet:
			err = a.handleSet(rd)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
	}
}

func (a *Agent[T]) handleStart(ctx context.Context, wr *bufio.Writer) error {
	a.logger.Info("received init request")
	individual, fitness, err := a.init(ctx)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	a.store(individual)

	if err := wire.WriteOpcode(wr, wire.CmdStart); err != nil {
		return err
	}
	if err := wire.WriteFitness(wr, fitness); err != nil {
		return err
	}
	if err := wire.WriteIndividual(wr, individual); err != nil {
		return err
	}
	return wr.Flush()
}

func (a *Agent[T]) handleTrain(ctx context.Context, wr *bufio.Writer) error {
	individual, ok := a.Current()
	if !ok {
		a.logger.Error("train requested without an individual")
		return ErrNotInitialized
	}

	start := time.Now()
	individual.Mutate()
	fitness, err := a.train(ctx, individual)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	a.logger.Debug("trained", "fitness", fitness, "elapsed", time.Since(start))

	if err := wire.WriteOpcode(wr, wire.CmdTrain); err != nil {
		return err
	}
	if err := wire.WriteFitness(wr, fitness); err != nil {
		return err
	}
	return wr.Flush()
}

func (a *Agent[T]) handleGet(wr *bufio.Writer) error {
	individual, ok := a.Current()
	if err := wire.WriteOpcode(wr, wire.CmdGet); err != nil {
		return err
	}
	var err error
	if ok {
		err = wire.WriteIndividual(wr, individual)
	} else {
		err = wire.WriteEmpty(wr)
	}
	if err != nil {
		return err
	}
	return wr.Flush()
}

// handleSet swaps in the pushed individual. A body that is oversized, does
// not decode or is refused by Accept is dropped and the previous individual
// kept.
func (a *Agent[T]) handleSet(rd *bufio.Reader) error {
	individual, ok, err := wire.ReadIndividualLimit[T](rd, a.maxSet)
	var tooLarge *wire.SizeError
	switch {
	case errors.As(err, &tooLarge):
		if _, err := io.CopyN(io.Discard, rd, int64(tooLarge.Size)); err != nil {
			return fmt.Errorf("skip oversized body: %w", err)
		}
		a.rejectSet("set request exceeds size limit, ignoring it", "size", tooLarge.Size, "limit", tooLarge.Limit)
		return nil
	case errors.Is(err, wire.ErrMalformedIndividual):
		a.rejectSet("could not decode set request, ignoring it", "error", err)
		return nil
	case err != nil:
		return err
	}
	if !ok {
		a.rejectSet("set request carried no individual, ignoring it")
		return nil
	}
	if a.accept != nil {
		if err := a.accept(individual); err != nil {
			a.rejectSet("set request refused, ignoring it", "error", err)
			return nil
		}
	}
	a.store(individual)
	a.logger.Info("replaced current individual")
	return nil
}

func (a *Agent[T]) rejectSet(msg string, args ...any) {
	a.logger.Warn(msg, args...)
	recordRejectedSet()
}

func (a *Agent[T]) store(individual T) {
	a.mu.Lock()
	a.current = individual
	a.held = true
	a.mu.Unlock()
}

// Dial connects to a master and serves it until the connection ends.
func Dial[T evo.Evolvable[T]](ctx context.Context, addr string, agent *Agent[T]) error {
	conn, err := connect(ctx, addr)
	if err != nil {
		return err
	}
	return agent.serveConn(ctx, conn)
}

func connect(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to master %s: %w", addr, err)
	}
	return conn, nil
}

func (a *Agent[T]) serveConn(ctx context.Context, conn net.Conn) error {
	defer conn.Close()
	a.logger.Info("connected to master", "addr", conn.RemoteAddr().String())
	return a.Serve(ctx, conn)
}
