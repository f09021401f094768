package deploy

import (
	"context"

	"github.com/go-kit/kit/log"

	"github.com/fluxcd/fhdeploy/pkg/lock"
)

type cycler interface {
	RunCycle(ctx context.Context) Result
}

// Guard runs cycles under a lock, so that however many triggers
// arrive, at most one cycle runs at a time. A cycle that finds the
// lock held doesn't wait for it: by the time it got the lock, the
// version it would have deployed may already be stale.
type Guard struct {
	Cycler cycler
	Lock   lock.Locker
	Logger log.Logger
}

func (g *Guard) Run(ctx context.Context) Result {
	release, ok, err := g.Lock.TryLock()
	if err != nil {
		g.Logger.Log("err", err, "msg", "unable to acquire deployment lock; not running cycle")
		return ResultLockFailed
	}
	if !ok {
		g.Logger.Log("info", "deployment cycle already in progress; not starting another")
		return ResultBusy
	}
	defer release()
	return g.Cycler.RunCycle(ctx)
}
