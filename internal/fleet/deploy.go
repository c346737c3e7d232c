// Package fleet implements the Deploy Fleet use case (spec §4.8):
// build -> fan-out sync -> fan-out execute, publishing lifecycle events
// throughout.
package fleet

import (
	"context"
	"fmt"
	"sync"

	"github.com/chimerahq/chimera/internal/domain"
	"github.com/chimerahq/chimera/internal/ports"
)

// NodeOutcome is one target's final result, always present for every
// requested target regardless of where in the pipeline it dropped out.
type NodeOutcome struct {
	Node   domain.Node
	OK     bool
	Stage  string // "sync" | "exec" | "" (ok, or the build failed before any node was reached)
	Reason string
}

// Result is Deploy Fleet's return value: the terminal Deployment plus a
// per-node outcome map covering every requested target.
type Result struct {
	Deployment domain.Deployment
	Outcomes   map[string]NodeOutcome
}

// AnySucceeded reports whether at least one node reached a fully successful
// outcome — this is what spec §4.8 step 6 keys the final status on.
func (r Result) AnySucceeded() bool {
	for _, o := range r.Outcomes {
		if o.OK {
			return true
		}
	}
	return false
}

// Fleet implements Deploy Fleet.
type Fleet struct {
	build    ports.BuildPort
	remote   ports.RemoteExecutorPort
	session  ports.SessionPort
	bus      ports.EventBusPort
	timeouts Timeouts
}

// New constructs a Fleet use case from its port dependencies.
func New(build ports.BuildPort, remote ports.RemoteExecutorPort, session ports.SessionPort, bus ports.EventBusPort, timeouts Timeouts) *Fleet {
	return &Fleet{build: build, remote: remote, session: session, bus: bus, timeouts: timeouts}
}

// Execute runs the full deploy pipeline against targets, per spec §4.8.
func (f *Fleet) Execute(ctx context.Context, sessionName string, configPath domain.ConfigPath, command string, targets []domain.Node) (Result, error) {
	sessionID, err := domain.NewSessionId(sessionName)
	if err != nil {
		return Result{}, err
	}

	dep := domain.NewDeployment(sessionID, configPath)
	dep, err = dep.Start()
	if err != nil {
		return Result{}, err
	}
	dep, events := dep.DrainEvents()
	f.bus.Publish(ctx, events...)

	outcomes := make(map[string]NodeOutcome, len(targets))
	for _, n := range targets {
		outcomes[n.ID()] = NodeOutcome{Node: n}
	}

	buildCtx, cancel := context.WithTimeout(ctx, f.timeouts.Build)
	fp, err := f.build.Build(buildCtx, configPath)
	cancel()
	if err != nil {
		dep, failErr := dep.Fail(fmt.Sprintf("build failed: %v", err))
		if failErr != nil {
			return Result{}, failErr
		}
		dep, events = dep.DrainEvents()
		f.bus.Publish(ctx, events...)
		for id, o := range outcomes {
			o.Reason = "build failed"
			outcomes[id] = o
		}
		return Result{Deployment: dep, Outcomes: outcomes}, nil
	}

	dep, err = dep.BuildSucceeded(fp)
	if err != nil {
		return Result{}, err
	}
	dep, events = dep.DrainEvents()
	f.bus.Publish(ctx, events...)

	dep, err = dep.BeginDeploying()
	if err != nil {
		return Result{}, err
	}

	syncOK := f.syncAll(ctx, fp, targets, outcomes)

	if len(syncOK) == 0 {
		dep, failErr := dep.Fail("sync failed on all nodes")
		if failErr != nil {
			return Result{}, failErr
		}
		dep, events = dep.DrainEvents()
		f.bus.Publish(ctx, events...)
		return Result{Deployment: dep, Outcomes: outcomes}, nil
	}

	f.execAll(ctx, sessionID, command, syncOK, outcomes)

	var succeeded, failed []string
	for id, o := range outcomes {
		if o.OK {
			succeeded = append(succeeded, id)
		} else {
			failed = append(failed, id)
		}
	}

	if len(succeeded) == 0 {
		dep, failErr := dep.Fail("no node completed deployment")
		if failErr != nil {
			return Result{}, failErr
		}
		dep, events = dep.DrainEvents()
		f.bus.Publish(ctx, events...)
		return Result{Deployment: dep, Outcomes: outcomes}, nil
	}

	dep, err = dep.Complete(succeeded, failed)
	if err != nil {
		return Result{}, err
	}
	dep, events = dep.DrainEvents()
	f.bus.Publish(ctx, events...)

	return Result{Deployment: dep, Outcomes: outcomes}, nil
}

// syncAll fans SyncClosure out across targets concurrently and returns the
// subset that succeeded, updating outcomes in place for failures.
func (f *Fleet) syncAll(ctx context.Context, fp domain.Fingerprint, targets []domain.Node, outcomes map[string]NodeOutcome) []domain.Node {
	var mu sync.Mutex
	var ok []domain.Node
	var wg sync.WaitGroup
	wg.Add(len(targets))

	for _, n := range targets {
		n := n
		go func() {
			defer wg.Done()
			syncCtx, cancel := context.WithTimeout(ctx, f.timeouts.Sync)
			err := f.remote.SyncClosure(syncCtx, n, fp)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				outcomes[n.ID()] = NodeOutcome{Node: n, OK: false, Stage: "sync", Reason: err.Error()}
				return
			}
			ok = append(ok, n)
		}()
	}
	wg.Wait()
	return ok
}

// execAll ensures a session named sessionID exists and runs command inside
// it, concurrently across the surviving nodes.
func (f *Fleet) execAll(ctx context.Context, sessionID domain.SessionId, command string, targets []domain.Node, outcomes map[string]NodeOutcome) {
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(len(targets))

	for _, n := range targets {
		n := n
		go func() {
			defer wg.Done()
			execCtx, cancel := context.WithTimeout(ctx, f.timeouts.Exec)
			defer cancel()

			if _, err := f.session.Create(execCtx, sessionID); err != nil {
				mu.Lock()
				outcomes[n.ID()] = NodeOutcome{Node: n, OK: false, Stage: "exec", Reason: "create session: " + err.Error()}
				mu.Unlock()
				return
			}
			ok, err := f.session.Run(execCtx, sessionID, command)
			mu.Lock()
			defer mu.Unlock()
			if err != nil || !ok {
				reason := "run failed"
				if err != nil {
					reason = err.Error()
				}
				outcomes[n.ID()] = NodeOutcome{Node: n, OK: false, Stage: "exec", Reason: reason}
				return
			}
			outcomes[n.ID()] = NodeOutcome{Node: n, OK: true}
		}()
	}
	wg.Wait()
}
