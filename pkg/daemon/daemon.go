package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/fluxcd/fhdeploy/pkg/deploy"
	fhmetrics "github.com/fluxcd/fhdeploy/pkg/metrics"
	"github.com/fluxcd/fhdeploy/pkg/state"
)

type runner interface {
	Run(ctx context.Context) deploy.Result
}

// Daemon is the long-running deployment agent: it runs cycles when
// triggered, and reports on what it has done.
type Daemon struct {
	V      string
	Target deploy.Target
	Runner runner
	State  state.Store
	Logger log.Logger
	// bookkeeping
	*LoopVars

	mu        sync.Mutex
	lastCycle *Cycle
}

// Cycle is what the daemon remembers about the last cycle it ran.
type Cycle struct {
	Trigger  Trigger       `json:"trigger"`
	Result   deploy.Result `json:"result"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
}

// Status is the answer to "what's going on?".
type Status struct {
	Version   string       `json:"version"`
	Target    string       `json:"target"`
	Operation string       `json:"operation"`
	Record    state.Record `json:"record"`
	LastCycle *Cycle       `json:"lastCycle,omitempty"`
}

func (d *Daemon) Version(ctx context.Context) (string, error) {
	return d.V, nil
}

func (d *Daemon) Status(ctx context.Context) (Status, error) {
	d.mu.Lock()
	var last *Cycle
	if d.lastCycle != nil {
		c := *d.lastCycle
		last = &c
	}
	d.mu.Unlock()

	return Status{
		Version:   d.V,
		Target:    d.Target.String(),
		Operation: string(d.Target.Operation),
		Record:    d.State.Read(ctx),
		LastCycle: last,
	}, nil
}

func (d *Daemon) recordCycle(c Cycle) {
	lastCycleTimestamp.With(fhmetrics.LabelResult, string(c.Result)).Set(float64(c.Finished.Unix()))
	d.mu.Lock()
	d.lastCycle = &c
	d.mu.Unlock()
}
