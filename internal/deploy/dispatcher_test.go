package deploy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaporform/meshgate/internal/manifest"
	"github.com/vaporform/meshgate/internal/registry"
	"github.com/vaporform/meshgate/models"
)

type fakeApplier struct {
	mu      sync.Mutex
	applied []*manifest.Artifact
	err     error
	block   bool
}

func (f *fakeApplier) Apply(ctx context.Context, art *manifest.Artifact) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	f.applied = append(f.applied, art)
	f.mu.Unlock()
	return f.err
}

func (f *fakeApplier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.applied)
}

func storeWithMesh(t *testing.T, meshType models.MeshType) (*registry.Store, *models.ServiceMesh) {
	t.Helper()

	store := registry.NewStore()
	mesh := &models.ServiceMesh{
		ID:        "mesh:demo",
		ProjectID: "project:test",
		Name:      "demo",
		Type:      meshType,
		Status:    models.StatusCreating,
	}
	require.NoError(t, store.CreateMesh(mesh))
	return store, mesh
}

func meshStatus(t *testing.T, store *registry.Store, id string) (models.MeshStatus, string) {
	t.Helper()

	m, err := store.GetMesh(id)
	require.NoError(t, err)
	return m.Status, m.StatusDetail
}

func TestRunMeshDeploySuccess(t *testing.T) {
	store, mesh := storeWithMesh(t, models.MeshTypeNginx)
	applier := &fakeApplier{}
	d := NewDispatcher(store, applier, time.Second)

	d.RunMeshDeploy(mesh.ID)

	status, detail := meshStatus(t, store, mesh.ID)
	assert.Equal(t, models.StatusActive, status)
	assert.Empty(t, detail)
	assert.Equal(t, 1, applier.count())
}

func TestRunMeshDeployGenerationFailure(t *testing.T) {
	store, mesh := storeWithMesh(t, models.MeshTypeLinkerd)
	// Linkerd cannot express disabled mutual TLS; generation must fail and
	// nothing may reach the applier.
	applier := &fakeApplier{}
	d := NewDispatcher(store, applier, time.Second)

	d.RunMeshDeploy(mesh.ID)

	status, detail := meshStatus(t, store, mesh.ID)
	assert.Equal(t, models.StatusError, status)
	assert.Contains(t, detail, "unsupported")
	assert.Zero(t, applier.count())
}

func TestRunMeshDeployApplyFailure(t *testing.T) {
	store, mesh := storeWithMesh(t, models.MeshTypeNginx)
	applier := &fakeApplier{err: errors.New("control plane rejected manifest")}
	d := NewDispatcher(store, applier, time.Second)

	d.RunMeshDeploy(mesh.ID)

	status, detail := meshStatus(t, store, mesh.ID)
	assert.Equal(t, models.StatusError, status)
	assert.Contains(t, detail, "control plane rejected manifest")
}

func TestRunMeshDeployTimeout(t *testing.T) {
	store, mesh := storeWithMesh(t, models.MeshTypeNginx)
	applier := &fakeApplier{block: true}
	d := NewDispatcher(store, applier, 30*time.Millisecond)

	d.RunMeshDeploy(mesh.ID)

	status, detail := meshStatus(t, store, mesh.ID)
	assert.Equal(t, models.StatusError, status)
	assert.Contains(t, detail, TimeoutDetail)
}

func TestRunMeshDeployUnsupportedBackend(t *testing.T) {
	store, mesh := storeWithMesh(t, models.MeshType("consul"))
	d := NewDispatcher(store, &fakeApplier{}, time.Second)

	d.RunMeshDeploy(mesh.ID)

	status, detail := meshStatus(t, store, mesh.ID)
	assert.Equal(t, models.StatusError, status)
	assert.Contains(t, detail, "unsupported backend")
}

func TestRedeployActiveMeshStaysActive(t *testing.T) {
	store, mesh := storeWithMesh(t, models.MeshTypeNginx)
	applier := &fakeApplier{}
	d := NewDispatcher(store, applier, time.Second)

	d.RunMeshDeploy(mesh.ID)
	d.RunMeshDeploy(mesh.ID)

	status, _ := meshStatus(t, store, mesh.ID)
	assert.Equal(t, models.StatusActive, status)
	assert.Equal(t, 2, applier.count())
}

func TestRetryAfterFailure(t *testing.T) {
	store, mesh := storeWithMesh(t, models.MeshTypeNginx)
	applier := &fakeApplier{err: errors.New("transient")}
	d := NewDispatcher(store, applier, time.Second)

	d.RunMeshDeploy(mesh.ID)
	status, _ := meshStatus(t, store, mesh.ID)
	require.Equal(t, models.StatusError, status)

	applier.err = nil
	d.RunMeshDeploy(mesh.ID)
	status, detail := meshStatus(t, store, mesh.ID)
	assert.Equal(t, models.StatusActive, status)
	assert.Empty(t, detail)
}

func TestDeployMeshAsync(t *testing.T) {
	store, mesh := storeWithMesh(t, models.MeshTypeNginx)
	d := NewDispatcher(store, &fakeApplier{}, time.Second)

	d.DeployMesh(mesh.ID)
	d.Wait()

	status, _ := meshStatus(t, store, mesh.ID)
	assert.Equal(t, models.StatusActive, status)
}

func TestDeployDeletedMeshIsNoop(t *testing.T) {
	store, mesh := storeWithMesh(t, models.MeshTypeNginx)
	require.NoError(t, store.DeleteMesh(mesh.ID))

	d := NewDispatcher(store, &fakeApplier{}, time.Second)
	d.RunMeshDeploy(mesh.ID)
}

func TestConcurrentDeploysSameMeshSerialized(t *testing.T) {
	store, mesh := storeWithMesh(t, models.MeshTypeNginx)
	applier := &fakeApplier{}
	d := NewDispatcher(store, applier, time.Second)

	for i := 0; i < 8; i++ {
		d.DeployMesh(mesh.ID)
	}
	d.Wait()

	status, detail := meshStatus(t, store, mesh.ID)
	assert.Equal(t, models.StatusActive, status)
	assert.Empty(t, detail)
	assert.Equal(t, 8, applier.count())
}

func TestStatusHookObservesTransitions(t *testing.T) {
	store, mesh := storeWithMesh(t, models.MeshTypeNginx)

	var mu sync.Mutex
	var transitions []models.MeshStatus
	hook := func(kind, id string, status models.MeshStatus, detail string) {
		mu.Lock()
		transitions = append(transitions, status)
		mu.Unlock()
	}

	d := NewDispatcher(store, &fakeApplier{}, time.Second, WithStatusHook(hook))
	d.RunMeshDeploy(mesh.ID)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 1)
	assert.Equal(t, models.StatusActive, transitions[0])
}

func TestRunGatewayDeploy(t *testing.T) {
	store := registry.NewStore()
	gw := &models.APIGateway{
		ID:        "gateway:edge",
		ProjectID: "project:test",
		Name:      "edge",
		Type:      models.GatewayEnvoy,
		Status:    models.StatusCreating,
		Listeners: []models.Listener{{Name: "web", Port: 8080}},
	}
	require.NoError(t, store.CreateGateway(gw))
	require.NoError(t, store.AddUpstream(&models.Upstream{
		ID:        "upstream:orders",
		GatewayID: gw.ID,
		Name:      "orders",
		Targets:   []models.Target{{Host: "10.0.0.1", Port: 9000}},
	}))
	require.NoError(t, store.AddRoute(&models.APIRoute{
		ID:         "route:orders",
		GatewayID:  gw.ID,
		Name:       "orders",
		PathPrefix: "/orders",
		UpstreamID: "upstream:orders",
	}))

	applier := &fakeApplier{}
	d := NewDispatcher(store, applier, time.Second)
	d.RunGatewayDeploy(gw.ID)

	got, err := store.GetGateway(gw.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	require.Equal(t, 1, applier.count())
	assert.Equal(t, "envoy", applier.applied[0].Backend)
}
