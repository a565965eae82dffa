// Package deploy drives mesh and gateway provisioning: it maps an entity's
// backend type to a manifest generator, pushes the artifact through an
// Applier, and walks the entity's status machine.
//
// Deploys of different entities run concurrently; deploys of the same entity
// are serialized through a per-id lock so concurrent calls never race status
// writes.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vaporform/meshgate/internal/manifest"
	"github.com/vaporform/meshgate/internal/registry"
	"github.com/vaporform/meshgate/models"
)

var (
	// ErrUnsupportedBackend is returned when no generator exists for an
	// entity's declared type.
	ErrUnsupportedBackend = errors.New("unsupported backend")

	// ErrDeploymentFailure wraps generation or apply errors that leave the
	// entity in error status.
	ErrDeploymentFailure = errors.New("deployment failure")
)

// TimeoutDetail is the status detail recorded when a deploy exceeds its
// configured deadline.
const TimeoutDetail = "deployment timeout"

// StatusHook observes status transitions, e.g. to fan out websocket events.
// Hooks run on the deploy goroutine and must not block.
type StatusHook func(kind, id string, status models.MeshStatus, detail string)

// MetricsRecorder receives the outcome of every finished deploy.
type MetricsRecorder interface {
	ObserveDeployment(backend, result string, elapsed time.Duration)
}

// Dispatcher owns deployment execution for meshes and gateways.
type Dispatcher struct {
	store      *registry.Store
	generators map[string]manifest.Generator
	applier    Applier
	timeout    time.Duration

	hook    StatusHook
	metrics MetricsRecorder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	wg    sync.WaitGroup
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithStatusHook registers a transition observer.
func WithStatusHook(hook StatusHook) Option {
	return func(d *Dispatcher) { d.hook = hook }
}

// WithMetrics registers a deploy-outcome recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher returns a dispatcher deploying through applier with the
// given per-deploy timeout.
func NewDispatcher(store *registry.Store, applier Applier, timeout time.Duration, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		generators: manifest.Generators(),
		applier:    applier,
		timeout:    timeout,
		locks:      make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Supported reports whether a generator exists for the backend type.
func (d *Dispatcher) Supported(backend string) bool {
	_, ok := d.generators[backend]
	return ok
}

// DeployMesh starts an asynchronous deploy of the mesh. The caller observes
// progress through the mesh's status: creating or updating while the deploy
// runs, then active or error.
func (d *Dispatcher) DeployMesh(meshID string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.RunMeshDeploy(meshID)
	}()
}

// DeployGateway starts an asynchronous deploy of the gateway.
func (d *Dispatcher) DeployGateway(gatewayID string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.RunGatewayDeploy(gatewayID)
	}()
}

// Wait blocks until all in-flight deploys finish. Called on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// RunMeshDeploy executes one mesh deploy synchronously, serialized against
// other deploys of the same mesh.
func (d *Dispatcher) RunMeshDeploy(meshID string) {
	lock := d.entityLock(meshID)
	lock.Lock()
	defer lock.Unlock()

	mesh, err := d.store.GetMesh(meshID)
	if err != nil {
		// Deleted before the deploy ran; nothing to do.
		return
	}

	start := time.Now()
	backend := string(mesh.Type)

	if err := d.markInProgress("mesh", meshID, mesh.Status); err != nil {
		return
	}

	gen, ok := d.generators[backend]
	if !ok {
		d.fail("mesh", meshID, backend, start, fmt.Errorf("%w: %s", ErrUnsupportedBackend, backend))
		return
	}

	art, err := gen.Mesh(mesh)
	if err != nil {
		d.fail("mesh", meshID, backend, start, fmt.Errorf("%w: %s", ErrDeploymentFailure, err.Error()))
		return
	}

	if err := d.apply(art); err != nil {
		d.fail("mesh", meshID, backend, start, err)
		return
	}

	d.succeed("mesh", meshID, backend, start)
}

// RunGatewayDeploy executes one gateway deploy synchronously.
func (d *Dispatcher) RunGatewayDeploy(gatewayID string) {
	lock := d.entityLock(gatewayID)
	lock.Lock()
	defer lock.Unlock()

	gw, err := d.store.GetGateway(gatewayID)
	if err != nil {
		return
	}

	start := time.Now()
	backend := string(gw.Type)

	if err := d.markInProgress("gateway", gatewayID, gw.Status); err != nil {
		return
	}

	gen, ok := d.generators[backend]
	if !ok {
		d.fail("gateway", gatewayID, backend, start, fmt.Errorf("%w: %s", ErrUnsupportedBackend, backend))
		return
	}

	art, err := gen.Gateway(gw, d.store.ListRoutes(gatewayID), d.store.ListUpstreams(gatewayID))
	if err != nil {
		d.fail("gateway", gatewayID, backend, start, fmt.Errorf("%w: %s", ErrDeploymentFailure, err.Error()))
		return
	}

	if err := d.apply(art); err != nil {
		d.fail("gateway", gatewayID, backend, start, err)
		return
	}

	d.succeed("gateway", gatewayID, backend, start)
}

// markInProgress moves an already-active entity to updating; entities still
// in creating keep that status for the duration of the deploy.
func (d *Dispatcher) markInProgress(kind, id string, current models.MeshStatus) error {
	if current != models.StatusActive && current != models.StatusError {
		return nil
	}
	return d.setStatus(kind, id, models.StatusUpdating, "")
}

// apply pushes the artifact with the configured deadline. A deadline
// overrun is reported distinctly from an apply failure.
func (d *Dispatcher) apply(art *manifest.Artifact) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err := d.applier.Apply(ctx, art)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return fmt.Errorf("%w: %s", ErrDeploymentFailure, TimeoutDetail)
	}
	return fmt.Errorf("%w: %s", ErrDeploymentFailure, err.Error())
}

func (d *Dispatcher) succeed(kind, id, backend string, start time.Time) {
	if err := d.setStatus(kind, id, models.StatusActive, ""); err != nil {
		return
	}
	if d.metrics != nil {
		d.metrics.ObserveDeployment(backend, "success", time.Since(start))
	}
	log.Printf("Deploy: %s %s is active on %s", kind, id, backend)
}

// fail leaves the entity visible in error status so the caller can inspect,
// retry, or delete it.
func (d *Dispatcher) fail(kind, id, backend string, start time.Time, err error) {
	if setErr := d.setStatus(kind, id, models.StatusError, err.Error()); setErr != nil {
		return
	}
	if d.metrics != nil {
		d.metrics.ObserveDeployment(backend, "error", time.Since(start))
	}
	log.Printf("Deploy: %s %s failed on %s: %v", kind, id, backend, err)
}

func (d *Dispatcher) setStatus(kind, id string, status models.MeshStatus, detail string) error {
	var err error
	switch kind {
	case "gateway":
		err = d.store.SetGatewayStatus(id, status, detail)
	default:
		err = d.store.SetMeshStatus(id, status, detail)
	}
	if err != nil {
		return err
	}
	if d.hook != nil {
		d.hook(kind, id, status, detail)
	}
	return nil
}

func (d *Dispatcher) entityLock(id string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()

	lock, ok := d.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[id] = lock
	}
	return lock
}
