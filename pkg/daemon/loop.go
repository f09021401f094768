package daemon

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/fluxcd/fhdeploy/pkg/deploy"
	fhmetrics "github.com/fluxcd/fhdeploy/pkg/metrics"
)

// Trigger says what asked for a deployment cycle.
type Trigger string

const (
	TriggerBoot    Trigger = "boot"
	TriggerTimer   Trigger = "timer"
	TriggerWebhook Trigger = "webhook"
)

type LoopVars struct {
	PollInterval time.Duration

	initOnce   sync.Once
	deploySoon chan Trigger
}

func (loop *LoopVars) ensureInit() {
	loop.initOnce.Do(func() {
		loop.deploySoon = make(chan Trigger, 1)
	})
}

func (d *Daemon) Loop(stop chan struct{}, wg *sync.WaitGroup, logger log.Logger) {
	defer wg.Done()
	d.ensureInit()

	// We want to check for a new version at least every
	// `PollInterval`. Being asked to deploy may intervene, in which
	// case, reschedule the next poll.
	pollTimer := time.NewTimer(d.PollInterval)

	// A host that has just booted may have missed any number of
	// webhooks while it was down.
	d.AskForDeploy(TriggerBoot)

	for {
		select {
		case <-stop:
			logger.Log("stopping", "true")
			return
		case trigger := <-d.deploySoon:
			if !pollTimer.Stop() {
				select {
				case <-pollTimer.C:
				default:
				}
			}
			d.runCycle(trigger, logger)
			pollTimer.Reset(d.PollInterval)
		case <-pollTimer.C:
			d.AskForDeploy(TriggerTimer)
		}
	}
}

func (d *Daemon) runCycle(trigger Trigger, logger log.Logger) {
	// No deadline: a cycle that has started applying must get to
	// record and roll back. Bounding it is the supervisor's job.
	ctx := context.Background()

	started := time.Now().UTC()
	logger.Log("event", "cycle", "trigger", trigger, "state", "started")
	result := d.Runner.Run(ctx)
	finished := time.Now().UTC()
	logger.Log("event", "cycle", "trigger", trigger, "state", "done", "result", result, "took", finished.Sub(started))

	// A cycle that didn't get to run has nothing to report.
	if result == deploy.ResultBusy {
		return
	}
	d.recordCycle(Cycle{
		Trigger:  trigger,
		Result:   result,
		Started:  started,
		Finished: finished,
	})
}

// AskForDeploy asks for a deployment cycle, or if there's one
// waiting, lets that happen. It never blocks.
func (d *LoopVars) AskForDeploy(trigger Trigger) {
	d.ensureInit()
	select {
	case d.deploySoon <- trigger:
		triggers.With(LabelTrigger, string(trigger), fhmetrics.LabelSuccess, "true").Add(1)
	default:
		triggers.With(LabelTrigger, string(trigger), fhmetrics.LabelSuccess, "false").Add(1)
	}
}
