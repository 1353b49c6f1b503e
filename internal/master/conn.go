package master

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"evoswarm/internal/wire"
)

var errWorkerGone = errors.New("worker connection is closed")

// workerConn serializes request/response exchanges with one worker. Every
// exchange runs under the connection's deadline when a timeout is set.
type workerConn[T any] struct {
	index   int
	addr    string
	conn    net.Conn
	rd      *bufio.Reader
	wr      *bufio.Writer
	timeout time.Duration

	mu     sync.Mutex
	closed atomic.Bool
}

func newWorkerConn[T any](index int, conn net.Conn, timeout time.Duration) *workerConn[T] {
	return &workerConn[T]{
		index:   index,
		addr:    conn.RemoteAddr().String(),
		conn:    conn,
		rd:      bufio.NewReader(conn),
		wr:      bufio.NewWriter(conn),
		timeout: timeout,
	}
}

func (w *workerConn[T]) exchange(cmd wire.Command, fn func() error) (err error) {
	start := time.Now()
	defer func() { observeRequest(cmd, start, err) }()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed.Load() {
		return errWorkerGone
	}
	if w.timeout > 0 {
		if err := w.conn.SetDeadline(time.Now().Add(w.timeout)); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}
		defer w.conn.SetDeadline(time.Time{})
	}
	if err := wire.WriteOpcode(w.wr, cmd); err != nil {
		return err
	}
	return fn()
}

func (w *workerConn[T]) start() (T, float64, error) {
	var (
		individual T
		fitness    float64
	)
	err := w.exchange(wire.CmdStart, func() error {
		if err := w.wr.Flush(); err != nil {
			return err
		}
		if err := wire.ExpectOpcode(w.rd, wire.CmdStart); err != nil {
			return err
		}
		var err error
		if fitness, err = wire.ReadFitness(w.rd); err != nil {
			return err
		}
		var ok bool
		individual, ok, err = wire.ReadIndividual[T](w.rd)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("start reply carried no individual")
		}
		return nil
	})
	return individual, fitness, err
}

func (w *workerConn[T]) train() (float64, error) {
	var fitness float64
	err := w.exchange(wire.CmdTrain, func() error {
		if err := w.wr.Flush(); err != nil {
			return err
		}
		if err := wire.ExpectOpcode(w.rd, wire.CmdTrain); err != nil {
			return err
		}
		var err error
		fitness, err = wire.ReadFitness(w.rd)
		return err
	})
	return fitness, err
}

func (w *workerConn[T]) get() (T, bool, error) {
	var (
		individual T
		ok         bool
	)
	err := w.exchange(wire.CmdGet, func() error {
		if err := w.wr.Flush(); err != nil {
			return err
		}
		if err := wire.ExpectOpcode(w.rd, wire.CmdGet); err != nil {
			return err
		}
		var err error
		individual, ok, err = wire.ReadIndividual[T](w.rd)
		return err
	})
	return individual, ok, err
}

// set pushes an already encoded individual. There is no reply.
func (w *workerConn[T]) set(body []byte) error {
	return w.exchange(wire.CmdSet, func() error {
		if err := wire.WriteBody(w.wr, body); err != nil {
			return err
		}
		return w.wr.Flush()
	})
}

// close does not wait for an exchange in flight; the pending read fails
// instead.
func (w *workerConn[T]) close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	return w.conn.Close()
}
