package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/fhdeploy/pkg/notify"
	"github.com/fluxcd/fhdeploy/pkg/state"
)

// Collaborators that do whatever their Func says and count calls.

type mockResolver struct {
	ResolveFunc func(ref string) (string, error)
	calls       int
}

func (m *mockResolver) Resolve(_ context.Context, ref string) (string, error) {
	m.calls++
	return m.ResolveFunc(ref)
}

type mockApplier struct {
	ApplyFunc func(ref, configuration string, op Operation) error
	mu        sync.Mutex
	calls     int
}

func (m *mockApplier) Apply(_ context.Context, ref, configuration string, op Operation) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	return m.ApplyFunc(ref, configuration, op)
}

func (m *mockApplier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockRollbacker struct {
	RollbackFunc func() error
	calls        int
}

func (m *mockRollbacker) Rollback(context.Context) error {
	m.calls++
	return m.RollbackFunc()
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var titles []string
	for _, n := range r.sent {
		titles = append(titles, n.Title)
	}
	return titles
}

// Collaborators that note whether the context they were given was
// still live.

type cancellableApplier struct{}

func (cancellableApplier) Apply(ctx context.Context, _, _ string, _ Operation) error {
	<-ctx.Done()
	return ctx.Err()
}

type liveRollbacker struct {
	calls int
	err   error
}

func (r *liveRollbacker) Rollback(ctx context.Context) error {
	r.calls++
	r.err = ctx.Err()
	return r.err
}

type liveNotifier struct {
	mu   sync.Mutex
	seen []string
}

func (l *liveNotifier) Notify(ctx context.Context, n notify.Notification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = append(l.seen, fmt.Sprintf("%s: %v", n.Title, ctx.Err()))
	return ctx.Err()
}

type brokenNotifier struct{}

func (brokenNotifier) Notify(context.Context, notify.Notification) error {
	return errors.New("discord is down")
}

type failingStore struct {
	state.Store
}

func (failingStore) Write(context.Context, state.Record) error {
	return errors.New("read-only file system")
}

var (
	errApply    = errors.New("activation failed")
	errRollback = errors.New("no previous generation")
	testNow     = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
)

type fixture struct {
	o          *Orchestrator
	resolver   *mockResolver
	applier    *mockApplier
	rollbacker *mockRollbacker
	notifier   *recordingNotifier
	store      *state.FileStore
	logs       *bytes.Buffer
}

func setup(t *testing.T, resolved string) (*fixture, func()) {
	dir, err := ioutil.TempDir("", "fhdeploy-deploy")
	require.NoError(t, err)

	logs := &bytes.Buffer{}
	logger := log.NewLogfmtLogger(log.NewSyncWriter(logs))
	f := &fixture{
		resolver: &mockResolver{ResolveFunc: func(string) (string, error) { return resolved, nil }},
		applier: &mockApplier{ApplyFunc: func(string, string, Operation) error {
			return nil
		}},
		rollbacker: &mockRollbacker{RollbackFunc: func() error { return nil }},
		notifier:   &recordingNotifier{},
		store:      state.NewFileStore(filepath.Join(dir, state.DefaultName), logger),
		logs:       logs,
	}
	f.o = &Orchestrator{
		Target: Target{
			Reference:       "myorg/infra/0.1.*",
			Configuration:   "host1",
			Operation:       OperationSwitch,
			RollbackEnabled: true,
			Hostname:        "host1",
		},
		Resolver:   f.resolver,
		Applier:    f.applier,
		Rollbacker: f.rollbacker,
		State:      f.store,
		Notifier:   f.notifier,
		Logger:     logger,
		Now:        func() time.Time { return testNow },
	}
	return f, func() { os.RemoveAll(dir) }
}

func (f *fixture) given(t *testing.T, r state.Record) {
	require.NoError(t, f.store.Write(context.Background(), r))
}

func (f *fixture) record() state.Record {
	return f.store.Read(context.Background())
}

func TestUpToDateDoesNothing(t *testing.T) {
	f, cleanup := setup(t, "v2")
	defer cleanup()
	f.given(t, state.Empty().Success("v2", testNow))

	assert.Equal(t, ResultUpToDate, f.o.RunCycle(context.Background()))
	assert.Equal(t, 1, f.resolver.calls)
	assert.Equal(t, 0, f.applier.Calls())
	assert.Equal(t, 0, f.rollbacker.calls)
	assert.Empty(t, f.notifier.Titles())
	assert.True(t, f.record().Succeeded("v2"))
}

func TestKnownFailureIsNotRetried(t *testing.T) {
	f, cleanup := setup(t, "v2")
	defer cleanup()
	f.given(t, state.Empty().Success("v1", testNow).Failure("v2", testNow))

	for i := 0; i < 3; i++ {
		assert.Equal(t, ResultSkippedKnownFailure, f.o.RunCycle(context.Background()))
	}
	assert.Equal(t, 0, f.applier.Calls())
	assert.Equal(t, 0, f.rollbacker.calls)
	assert.True(t, f.record().Failed("v2"))
}

func TestNewVersionIsAppliedOnce(t *testing.T) {
	for _, prior := range []state.Record{
		state.Empty(),
		state.Empty().Success("v1", testNow),
		state.Empty().Failure("v1", testNow),
	} {
		f, cleanup := setup(t, "v2")
		if prior.Outcome != state.OutcomeNone {
			f.given(t, prior)
		}

		assert.Equal(t, ResultDeployed, f.o.RunCycle(context.Background()), "prior outcome %s", prior.Outcome)
		assert.Equal(t, 1, f.applier.Calls(), "prior outcome %s", prior.Outcome)
		cleanup()
	}
}

func TestApplyGetsTarget(t *testing.T) {
	f, cleanup := setup(t, "v2")
	defer cleanup()
	f.o.Target.Operation = OperationBoot

	var gotRef, gotConfig string
	var gotOp Operation
	f.applier.ApplyFunc = func(ref, configuration string, op Operation) error {
		gotRef, gotConfig, gotOp = ref, configuration, op
		return nil
	}
	f.o.RunCycle(context.Background())
	assert.Equal(t, "myorg/infra/0.1.*", gotRef)
	assert.Equal(t, "host1", gotConfig)
	assert.Equal(t, OperationBoot, gotOp)
}

func TestDeployedFromScratch(t *testing.T) {
	f, cleanup := setup(t, "v2")
	defer cleanup()

	assert.Equal(t, ResultDeployed, f.o.RunCycle(context.Background()))
	assert.Equal(t, state.Record{
		LastAttemptedVersion: "v2",
		Outcome:              state.OutcomeSucceeded,
		LastGoodVersion:      "v2",
		UpdatedAt:            testNow,
	}, f.record())
	assert.Equal(t, []string{"Deployment Starting", "Deployment Succeeded"}, f.notifier.Titles())
	assert.Equal(t, 0, f.rollbacker.calls)
}

func TestFailedDeployRolledBack(t *testing.T) {
	f, cleanup := setup(t, "v3")
	defer cleanup()
	f.given(t, state.Empty().Success("v2", testNow))
	f.applier.ApplyFunc = func(string, string, Operation) error { return errApply }

	assert.Equal(t, ResultRolledBack, f.o.RunCycle(context.Background()))
	assert.Equal(t, 1, f.rollbacker.calls)

	rec := f.record()
	assert.True(t, rec.Failed("v3"))
	assert.Equal(t, "v2", rec.LastGoodVersion)
	assert.Equal(t, []string{"Deployment Starting", "Deployment Failed", "Rollback Succeeded"}, f.notifier.Titles())
}

func TestFailedRollbackIsEscalated(t *testing.T) {
	f, cleanup := setup(t, "v3")
	defer cleanup()
	f.given(t, state.Empty().Success("v2", testNow))
	f.applier.ApplyFunc = func(string, string, Operation) error { return errApply }
	f.rollbacker.RollbackFunc = func() error { return errRollback }

	assert.Equal(t, ResultRollbackFailed, f.o.RunCycle(context.Background()))
	assert.Equal(t, 1, f.rollbacker.calls)
	assert.True(t, f.record().Failed("v3"))

	require.Len(t, f.notifier.sent, 3)
	applyFailure, rollbackFailure := f.notifier.sent[1], f.notifier.sent[2]
	assert.Equal(t, "Rollback Failed", rollbackFailure.Title)
	assert.Equal(t, notify.Critical, rollbackFailure.Severity)
	assert.NotEqual(t, applyFailure.Severity, rollbackFailure.Severity)
	assert.Contains(t, rollbackFailure.Message, "manual intervention required")
	assert.Contains(t, rollbackFailure.Message, "v2")
	assert.NotContains(t, applyFailure.Message, "manual intervention")

	// and the next trigger leaves it alone
	assert.Equal(t, ResultSkippedKnownFailure, f.o.RunCycle(context.Background()))
	assert.Equal(t, 1, f.applier.Calls())
}

func TestFailedDeployWithoutRollback(t *testing.T) {
	f, cleanup := setup(t, "v2")
	defer cleanup()
	f.o.Target.RollbackEnabled = false
	f.applier.ApplyFunc = func(string, string, Operation) error { return errApply }

	assert.Equal(t, ResultDeployFailed, f.o.RunCycle(context.Background()))
	assert.Equal(t, 0, f.rollbacker.calls)
	assert.True(t, f.record().Failed("v2"))
	assert.Equal(t, []string{"Deployment Starting", "Deployment Failed"}, f.notifier.Titles())
}

func TestResolveFailure(t *testing.T) {
	f, cleanup := setup(t, "")
	defer cleanup()
	f.given(t, state.Empty().Success("v1", testNow))
	f.resolver.ResolveFunc = func(string) (string, error) {
		return "", errors.New("could not reach api.flakehub.com")
	}

	assert.Equal(t, ResultResolveFailed, f.o.RunCycle(context.Background()))
	assert.Equal(t, 1, f.resolver.calls, "not retried within the cycle")
	assert.Equal(t, 0, f.applier.Calls())
	assert.True(t, f.record().Succeeded("v1"), "record untouched")

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, notify.Error, f.notifier.sent[0].Severity)
	assert.Contains(t, f.notifier.sent[0].Message, "could not reach api.flakehub.com")
}

func TestNotifierFailureDoesNotAbortCycle(t *testing.T) {
	f, cleanup := setup(t, "v2")
	defer cleanup()
	f.o.Notifier = brokenNotifier{}

	assert.Equal(t, ResultDeployed, f.o.RunCycle(context.Background()))
	assert.True(t, f.record().Succeeded("v2"))
	assert.Contains(t, f.logs.String(), "discord is down")
}

func TestStateWriteFailureAfterSuccessIsAnAnomaly(t *testing.T) {
	f, cleanup := setup(t, "v2")
	defer cleanup()
	f.o.State = failingStore{f.store}

	assert.Equal(t, ResultDeployed, f.o.RunCycle(context.Background()))
	assert.Equal(t, []string{"Deployment Starting", "Deployment Succeeded"}, f.notifier.Titles())
	assert.Contains(t, f.logs.String(), "anomaly=state-not-recorded")
}

func TestCorruptRecordIsTreatedAsNoRecord(t *testing.T) {
	f, cleanup := setup(t, "v2")
	defer cleanup()
	require.NoError(t, ioutil.WriteFile(f.store.Path(), []byte("FAILED:v2"), 0644))

	assert.Equal(t, ResultDeployed, f.o.RunCycle(context.Background()))
	assert.Equal(t, 1, f.applier.Calls())
}

func TestNewVersionAfterFailureIsDeployed(t *testing.T) {
	f, cleanup := setup(t, "v3")
	defer cleanup()
	f.given(t, state.Empty().Success("v1", testNow).Failure("v2", testNow))

	assert.Equal(t, ResultDeployed, f.o.RunCycle(context.Background()))
	rec := f.record()
	assert.True(t, rec.Succeeded("v3"))
	assert.Equal(t, "v3", rec.LastGoodVersion)
}

func TestNotificationsNameHostAndVersion(t *testing.T) {
	f, cleanup := setup(t, "myorg/infra/0.1.42")
	defer cleanup()

	f.o.RunCycle(context.Background())
	require.Len(t, f.notifier.sent, 2)
	for _, n := range f.notifier.sent {
		assert.True(t, strings.Contains(n.Message, "host1"), n.Message)
		assert.True(t, strings.Contains(n.Message, "myorg/infra/0.1.42"), n.Message)
	}
	assert.Contains(t, f.notifier.sent[0].Message, "via switch")
}

func TestRollbackOutlivesCancelledApply(t *testing.T) {
	f, cleanup := setup(t, "v2")
	defer cleanup()
	rollbacker, notifier := &liveRollbacker{}, &liveNotifier{}
	f.o.Applier = cancellableApplier{}
	f.o.Rollbacker = rollbacker
	f.o.Notifier = notifier

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.Equal(t, ResultRolledBack, f.o.RunCycle(ctx))

	assert.Equal(t, 1, rollbacker.calls)
	assert.NoError(t, rollbacker.err)
	assert.Equal(t, []string{
		"Deployment Starting: <nil>",
		"Deployment Failed: <nil>",
		"Rollback Succeeded: <nil>",
	}, notifier.seen)
	assert.True(t, f.record().Failed("v2"))
}

func TestResolveFailureIsReportedAfterCancellation(t *testing.T) {
	f, cleanup := setup(t, "v2")
	defer cleanup()
	notifier := &liveNotifier{}
	f.o.Notifier = notifier
	f.resolver.ResolveFunc = func(string) (string, error) { return "", context.DeadlineExceeded }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, ResultResolveFailed, f.o.RunCycle(ctx))
	assert.Equal(t, []string{"Deployment Failed: <nil>"}, notifier.seen)
}
