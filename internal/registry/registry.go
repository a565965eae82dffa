// Package registry provides process-lifetime storage for mesh and gateway
// entities. The store is an injected object with an explicit lifecycle:
// constructed once per process and passed to every component that needs it,
// so tests get isolation from fresh instances.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vaporform/meshgate/models"
)

var (
	// ErrNotFound is returned when a referenced entity id is absent.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when creating an entity whose id already exists.
	ErrConflict = errors.New("already exists")

	// ErrInvalidPolicy is returned when a policy's rules are inconsistent
	// with its declared type.
	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrDanglingUpstream is returned when a route references an upstream
	// that does not exist under its gateway.
	ErrDanglingUpstream = errors.New("upstream does not exist")
)

// Store holds the keyed collections for every entity type. All collections
// share one lock so that cascade operations and owned-collection updates
// (mesh.Services, gateway.Routes) stay atomic with respect to concurrent
// readers.
type Store struct {
	mu sync.RWMutex

	meshes    map[string]*models.ServiceMesh
	services  map[string]*models.MeshService
	policies  map[string]*models.NetworkPolicy
	gateways  map[string]*models.APIGateway
	routes    map[string]*models.APIRoute
	upstreams map[string]*models.Upstream
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		meshes:    make(map[string]*models.ServiceMesh),
		services:  make(map[string]*models.MeshService),
		policies:  make(map[string]*models.NetworkPolicy),
		gateways:  make(map[string]*models.APIGateway),
		routes:    make(map[string]*models.APIRoute),
		upstreams: make(map[string]*models.Upstream),
	}
}

// CreateMesh stores a new mesh. Ids are generated by callers; the conflict
// check guards against collisions anyway.
func (s *Store) CreateMesh(m *models.ServiceMesh) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meshes[m.ID]; ok {
		return fmt.Errorf("mesh %s: %w", m.ID, ErrConflict)
	}

	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	s.meshes[m.ID] = copyMesh(m)
	return nil
}

// GetMesh returns a copy of the mesh with derived counts refreshed.
func (s *Store) GetMesh(id string) (*models.ServiceMesh, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.meshes[id]
	if !ok {
		return nil, fmt.Errorf("mesh %s: %w", id, ErrNotFound)
	}
	out := copyMesh(m)
	out.ServiceCount = len(m.Services)
	out.PolicyCount = len(m.Policies)
	return out, nil
}

// ListMeshes returns all meshes, optionally filtered by project id.
// Iteration order of the backing map is unspecified and callers must not
// assume any ordering.
func (s *Store) ListMeshes(projectID string) []*models.ServiceMesh {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ServiceMesh, 0, len(s.meshes))
	for _, m := range s.meshes {
		if projectID != "" && m.ProjectID != projectID {
			continue
		}
		c := copyMesh(m)
		c.ServiceCount = len(m.Services)
		c.PolicyCount = len(m.Policies)
		out = append(out, c)
	}
	return out
}

// UpdateMesh replaces a stored mesh in place and bumps UpdatedAt.
func (s *Store) UpdateMesh(m *models.ServiceMesh) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.meshes[m.ID]
	if !ok {
		return fmt.Errorf("mesh %s: %w", m.ID, ErrNotFound)
	}
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()
	s.meshes[m.ID] = copyMesh(m)
	return nil
}

// SetMeshStatus transitions a mesh's lifecycle status. Detail is stored
// alongside error states and cleared otherwise.
func (s *Store) SetMeshStatus(id string, status models.MeshStatus, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.meshes[id]
	if !ok {
		return fmt.Errorf("mesh %s: %w", id, ErrNotFound)
	}
	if !m.Status.CanTransition(status) {
		return fmt.Errorf("mesh %s: invalid status transition %s -> %s", id, m.Status, status)
	}
	m.Status = status
	m.StatusDetail = detail
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteMesh removes a mesh and cascades to its owned services and policies.
// No orphaned child entries remain retrievable afterwards.
func (s *Store) DeleteMesh(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meshes[id]; !ok {
		return fmt.Errorf("mesh %s: %w", id, ErrNotFound)
	}
	for sid, svc := range s.services {
		if svc.MeshID == id {
			delete(s.services, sid)
		}
	}
	for pid, pol := range s.policies {
		if pol.MeshID == id {
			delete(s.policies, pid)
		}
	}
	delete(s.meshes, id)
	return nil
}

// AddService registers a service into its mesh and records the ownership on
// the mesh's Services collection.
func (s *Store) AddService(svc *models.MeshService) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mesh, ok := s.meshes[svc.MeshID]
	if !ok {
		return fmt.Errorf("mesh %s: %w", svc.MeshID, ErrNotFound)
	}
	if _, ok := s.services[svc.ID]; ok {
		return fmt.Errorf("service %s: %w", svc.ID, ErrConflict)
	}

	now := time.Now().UTC()
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = now
	}
	svc.UpdatedAt = now
	s.services[svc.ID] = copyService(svc)
	mesh.Services = append(mesh.Services, svc.ID)
	mesh.UpdatedAt = now
	return nil
}

// GetService returns a copy of the service.
func (s *Store) GetService(id string) (*models.MeshService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	svc, ok := s.services[id]
	if !ok {
		return nil, fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	return copyService(svc), nil
}

// ListServices returns all services, optionally filtered by mesh id or
// namespace.
func (s *Store) ListServices(meshID, namespace string) []*models.MeshService {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.MeshService, 0, len(s.services))
	for _, svc := range s.services {
		if meshID != "" && svc.MeshID != meshID {
			continue
		}
		if namespace != "" && svc.Namespace != namespace {
			continue
		}
		out = append(out, copyService(svc))
	}
	return out
}

// DeleteService removes a service and detaches it from its mesh.
func (s *Store) DeleteService(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[id]
	if !ok {
		return fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	if mesh, ok := s.meshes[svc.MeshID]; ok {
		mesh.Services = removeID(mesh.Services, id)
		mesh.UpdatedAt = time.Now().UTC()
	}
	delete(s.services, id)
	return nil
}

// SetServiceEndpoints replaces a service's derived endpoint list. Only
// discovery and the health prober call this; endpoints are never hand-set
// through the API.
func (s *Store) SetServiceEndpoints(id string, endpoints []models.Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	svc, ok := s.services[id]
	if !ok {
		return fmt.Errorf("service %s: %w", id, ErrNotFound)
	}
	svc.Endpoints = append([]models.Endpoint(nil), endpoints...)
	svc.UpdatedAt = time.Now().UTC()
	return nil
}

// AddPolicy stores a network policy after checking that every rule direction
// is consistent with the policy's declared type.
func (s *Store) AddPolicy(p *models.NetworkPolicy) error {
	if err := p.CheckRuleDirections(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPolicy, err.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mesh, ok := s.meshes[p.MeshID]
	if !ok {
		return fmt.Errorf("mesh %s: %w", p.MeshID, ErrNotFound)
	}
	if _, ok := s.policies[p.ID]; ok {
		return fmt.Errorf("policy %s: %w", p.ID, ErrConflict)
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.policies[p.ID] = copyPolicy(p)
	mesh.Policies = append(mesh.Policies, p.ID)
	mesh.UpdatedAt = now
	return nil
}

// GetPolicy returns a copy of the policy.
func (s *Store) GetPolicy(id string) (*models.NetworkPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[id]
	if !ok {
		return nil, fmt.Errorf("policy %s: %w", id, ErrNotFound)
	}
	return copyPolicy(p), nil
}

// ListPolicies returns all policies, optionally filtered by mesh id or
// namespace.
func (s *Store) ListPolicies(meshID, namespace string) []*models.NetworkPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.NetworkPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		if meshID != "" && p.MeshID != meshID {
			continue
		}
		if namespace != "" && p.Namespace != namespace {
			continue
		}
		out = append(out, copyPolicy(p))
	}
	return out
}

// DeletePolicy removes a policy and detaches it from its mesh.
func (s *Store) DeletePolicy(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.policies[id]
	if !ok {
		return fmt.Errorf("policy %s: %w", id, ErrNotFound)
	}
	if mesh, ok := s.meshes[p.MeshID]; ok {
		mesh.Policies = removeID(mesh.Policies, id)
		mesh.UpdatedAt = time.Now().UTC()
	}
	delete(s.policies, id)
	return nil
}

// CreateGateway stores a new API gateway.
func (s *Store) CreateGateway(g *models.APIGateway) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.gateways[g.ID]; ok {
		return fmt.Errorf("gateway %s: %w", g.ID, ErrConflict)
	}

	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
	s.gateways[g.ID] = copyGateway(g)
	return nil
}

// GetGateway returns a copy of the gateway.
func (s *Store) GetGateway(id string) (*models.APIGateway, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.gateways[id]
	if !ok {
		return nil, fmt.Errorf("gateway %s: %w", id, ErrNotFound)
	}
	return copyGateway(g), nil
}

// ListGateways returns all gateways, optionally filtered by project id.
func (s *Store) ListGateways(projectID string) []*models.APIGateway {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.APIGateway, 0, len(s.gateways))
	for _, g := range s.gateways {
		if projectID != "" && g.ProjectID != projectID {
			continue
		}
		out = append(out, copyGateway(g))
	}
	return out
}

// SetGatewayStatus transitions a gateway's lifecycle status.
func (s *Store) SetGatewayStatus(id string, status models.MeshStatus, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.gateways[id]
	if !ok {
		return fmt.Errorf("gateway %s: %w", id, ErrNotFound)
	}
	if !g.Status.CanTransition(status) {
		return fmt.Errorf("gateway %s: invalid status transition %s -> %s", id, g.Status, status)
	}
	g.Status = status
	g.StatusDetail = detail
	g.UpdatedAt = time.Now().UTC()
	return nil
}

// DeleteGateway removes a gateway and cascades to its routes and upstreams.
func (s *Store) DeleteGateway(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.gateways[id]; !ok {
		return fmt.Errorf("gateway %s: %w", id, ErrNotFound)
	}
	for rid, r := range s.routes {
		if r.GatewayID == id {
			delete(s.routes, rid)
		}
	}
	for uid, u := range s.upstreams {
		if u.GatewayID == id {
			delete(s.upstreams, uid)
		}
	}
	delete(s.gateways, id)
	return nil
}

// AddUpstream registers an upstream pool under its gateway.
func (s *Store) AddUpstream(u *models.Upstream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gw, ok := s.gateways[u.GatewayID]
	if !ok {
		return fmt.Errorf("gateway %s: %w", u.GatewayID, ErrNotFound)
	}
	if _, ok := s.upstreams[u.ID]; ok {
		return fmt.Errorf("upstream %s: %w", u.ID, ErrConflict)
	}

	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	s.upstreams[u.ID] = copyUpstream(u)
	gw.Upstreams = append(gw.Upstreams, u.ID)
	gw.UpdatedAt = now
	return nil
}

// GetUpstream returns a copy of the upstream.
func (s *Store) GetUpstream(id string) (*models.Upstream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.upstreams[id]
	if !ok {
		return nil, fmt.Errorf("upstream %s: %w", id, ErrNotFound)
	}
	return copyUpstream(u), nil
}

// ListUpstreams returns all upstreams under a gateway.
func (s *Store) ListUpstreams(gatewayID string) []*models.Upstream {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Upstream, 0)
	for _, u := range s.upstreams {
		if gatewayID != "" && u.GatewayID != gatewayID {
			continue
		}
		out = append(out, copyUpstream(u))
	}
	return out
}

// AddRoute registers a route under its gateway. The referenced upstream must
// exist under the same gateway; a dangling reference is rejected rather than
// silently accepted.
func (s *Store) AddRoute(r *models.APIRoute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	gw, ok := s.gateways[r.GatewayID]
	if !ok {
		return fmt.Errorf("gateway %s: %w", r.GatewayID, ErrNotFound)
	}
	if _, ok := s.routes[r.ID]; ok {
		return fmt.Errorf("route %s: %w", r.ID, ErrConflict)
	}
	up, ok := s.upstreams[r.UpstreamID]
	if !ok || up.GatewayID != r.GatewayID {
		return fmt.Errorf("route %s references upstream %s: %w", r.Name, r.UpstreamID, ErrDanglingUpstream)
	}

	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	s.routes[r.ID] = copyRoute(r)
	gw.Routes = append(gw.Routes, r.ID)
	gw.UpdatedAt = now
	return nil
}

// GetRoute returns a copy of the route.
func (s *Store) GetRoute(id string) (*models.APIRoute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.routes[id]
	if !ok {
		return nil, fmt.Errorf("route %s: %w", id, ErrNotFound)
	}
	return copyRoute(r), nil
}

// ListRoutes returns all routes under a gateway.
func (s *Store) ListRoutes(gatewayID string) []*models.APIRoute {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.APIRoute, 0)
	for _, r := range s.routes {
		if gatewayID != "" && r.GatewayID != gatewayID {
			continue
		}
		out = append(out, copyRoute(r))
	}
	return out
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// The copy helpers isolate callers from the store's backing memory so that
// no entity is mutated outside the lock.

func copyMesh(m *models.ServiceMesh) *models.ServiceMesh {
	c := *m
	c.Services = append([]string(nil), m.Services...)
	c.Policies = append([]string(nil), m.Policies...)
	c.Gateways = append([]string(nil), m.Gateways...)
	c.Configuration.SidecarNamespaces = append([]string(nil), m.Configuration.SidecarNamespaces...)
	return &c
}

func copyService(s *models.MeshService) *models.MeshService {
	c := *s
	c.Ports = append([]models.ServicePort(nil), s.Ports...)
	c.Endpoints = append([]models.Endpoint(nil), s.Endpoints...)
	return &c
}

func copyPolicy(p *models.NetworkPolicy) *models.NetworkPolicy {
	c := *p
	c.Rules = append([]models.PolicyRule(nil), p.Rules...)
	if p.PodSelector != nil {
		c.PodSelector = make(map[string]string, len(p.PodSelector))
		for k, v := range p.PodSelector {
			c.PodSelector[k] = v
		}
	}
	return &c
}

func copyGateway(g *models.APIGateway) *models.APIGateway {
	c := *g
	c.Listeners = append([]models.Listener(nil), g.Listeners...)
	c.Routes = append([]string(nil), g.Routes...)
	c.Upstreams = append([]string(nil), g.Upstreams...)
	return &c
}

func copyUpstream(u *models.Upstream) *models.Upstream {
	c := *u
	c.Targets = append([]models.Target(nil), u.Targets...)
	return &c
}

func copyRoute(r *models.APIRoute) *models.APIRoute {
	c := *r
	return &c
}
