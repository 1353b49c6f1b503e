package master

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinWorkers is the smallest fleet an evolution run can use.
const MinWorkers = 2

type StartKind int

const (
	StartAmountClients StartKind = iota + 1
	StartQuietPeriod
)

// StartCondition decides when the coordinator stops accepting workers.
type StartCondition struct {
	Kind    StartKind
	Clients int
	Quiet   time.Duration
}

// AmountClientsReady stops accepting exactly when n workers are connected.
func AmountClientsReady(n int) StartCondition {
	return StartCondition{Kind: StartAmountClients, Clients: n}
}

// NoConnectsSince stops accepting once d passed without a new connection
// and at least MinWorkers are connected.
func NoConnectsSince(d time.Duration) StartCondition {
	return StartCondition{Kind: StartQuietPeriod, Quiet: d}
}

func (c StartCondition) Validate() error {
	switch c.Kind {
	case StartAmountClients:
		if c.Clients < MinWorkers {
			return fmt.Errorf("start condition needs at least %d clients, got %d", MinWorkers, c.Clients)
		}
	case StartQuietPeriod:
		if c.Quiet <= 0 {
			return fmt.Errorf("start condition quiet period must be > 0")
		}
	default:
		return fmt.Errorf("unsupported start condition kind %d", c.Kind)
	}
	return nil
}

func (c StartCondition) String() string {
	switch c.Kind {
	case StartAmountClients:
		return fmt.Sprintf("clients:%d", c.Clients)
	case StartQuietPeriod:
		return "quiet:" + c.Quiet.String()
	default:
		return "unknown"
	}
}

// ParseStartCondition accepts "clients:<n>" or "quiet:<duration>".
func ParseStartCondition(raw string) (StartCondition, error) {
	kind, value, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return StartCondition{}, fmt.Errorf("parse start condition %q: expected <kind>:<value>", raw)
	}
	var cond StartCondition
	switch strings.ToLower(kind) {
	case "clients":
		n, err := strconv.Atoi(value)
		if err != nil {
			return StartCondition{}, fmt.Errorf("parse start condition %q: %w", raw, err)
		}
		cond = AmountClientsReady(n)
	case "quiet":
		d, err := time.ParseDuration(value)
		if err != nil {
			return StartCondition{}, fmt.Errorf("parse start condition %q: %w", raw, err)
		}
		cond = NoConnectsSince(d)
	default:
		return StartCondition{}, fmt.Errorf("parse start condition %q: unknown kind %q", raw, kind)
	}
	if err := cond.Validate(); err != nil {
		return StartCondition{}, err
	}
	return cond, nil
}

type SyncKind int

const (
	SyncOff SyncKind = iota
	SyncGenerations
	SyncInterval
)

// SyncCondition decides when the best individual is pushed to the rest of
// the fleet.
type SyncCondition struct {
	Kind        SyncKind
	Generations int
	Interval    time.Duration
}

func NoSync() SyncCondition { return SyncCondition{Kind: SyncOff} }

func AfterGenerationsAdvanced(n int) SyncCondition {
	return SyncCondition{Kind: SyncGenerations, Generations: n}
}

func AfterTime(d time.Duration) SyncCondition {
	return SyncCondition{Kind: SyncInterval, Interval: d}
}

func (c SyncCondition) Validate() error {
	switch c.Kind {
	case SyncOff:
	case SyncGenerations:
		if c.Generations <= 0 {
			return fmt.Errorf("sync generations must be > 0")
		}
	case SyncInterval:
		if c.Interval <= 0 {
			return fmt.Errorf("sync interval must be > 0")
		}
	default:
		return fmt.Errorf("unsupported sync condition kind %d", c.Kind)
	}
	return nil
}

func (c SyncCondition) String() string {
	switch c.Kind {
	case SyncGenerations:
		return fmt.Sprintf("generations:%d", c.Generations)
	case SyncInterval:
		return "every:" + c.Interval.String()
	default:
		return "off"
	}
}

// ParseSyncCondition accepts "generations:<n>", "every:<duration>" or "off".
func ParseSyncCondition(raw string) (SyncCondition, error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "off") || raw == "" {
		return NoSync(), nil
	}
	kind, value, ok := strings.Cut(raw, ":")
	if !ok {
		return SyncCondition{}, fmt.Errorf("parse sync condition %q: expected <kind>:<value>", raw)
	}
	var cond SyncCondition
	switch strings.ToLower(kind) {
	case "generations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return SyncCondition{}, fmt.Errorf("parse sync condition %q: %w", raw, err)
		}
		cond = AfterGenerationsAdvanced(n)
	case "every":
		d, err := time.ParseDuration(value)
		if err != nil {
			return SyncCondition{}, fmt.Errorf("parse sync condition %q: %w", raw, err)
		}
		cond = AfterTime(d)
	default:
		return SyncCondition{}, fmt.Errorf("parse sync condition %q: unknown kind %q", raw, kind)
	}
	if err := cond.Validate(); err != nil {
		return SyncCondition{}, err
	}
	return cond, nil
}

type syncTracker struct {
	cond SyncCondition
	now  func() time.Time
	last time.Time
}

func newSyncTracker(cond SyncCondition, now func() time.Time) *syncTracker {
	if now == nil {
		now = time.Now
	}
	return &syncTracker{cond: cond, now: now, last: now()}
}

// due reports whether a push should happen after the given generation and
// records it when it does.
func (s *syncTracker) due(generation int) bool {
	switch s.cond.Kind {
	case SyncGenerations:
		return generation > 0 && generation%s.cond.Generations == 0
	case SyncInterval:
		now := s.now()
		if now.Sub(s.last) < s.cond.Interval {
			return false
		}
		s.last = now
		return true
	default:
		return false
	}
}
