// Package loadbalancer picks one healthy endpoint of a service according to
// the service's configured algorithm.
package loadbalancer

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"

	"github.com/vaporform/meshgate/models"
)

// ErrNoHealthyEndpoint is returned when a service has no endpoint in healthy
// state at selection time.
var ErrNoHealthyEndpoint = errors.New("no healthy endpoint")

// Selector holds the per-service state the algorithms need: a rotation
// cursor for round_robin and in-flight counters for least_conn. Selection
// state is keyed by service id and survives endpoint churn; counters for
// endpoints that disappear simply stop being consulted.
type Selector struct {
	mu       sync.Mutex
	cursors  map[string]int
	inflight map[string]map[string]int
}

// NewSelector returns an empty selector.
func NewSelector() *Selector {
	return &Selector{
		cursors:  make(map[string]int),
		inflight: make(map[string]map[string]int),
	}
}

// Pick selects one healthy endpoint for the service. clientIP is only
// consulted by ip_hash. For least_conn the pick acquires an in-flight slot
// that the caller must give back with Release once the proxied request
// finishes.
func (s *Selector) Pick(serviceID string, algo models.LBAlgorithm, endpoints []models.Endpoint, clientIP string) (models.Endpoint, error) {
	healthy := make([]models.Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep.Status == models.EndpointHealthy {
			healthy = append(healthy, ep)
		}
	}
	if len(healthy) == 0 {
		return models.Endpoint{}, fmt.Errorf("%w: service %s", ErrNoHealthyEndpoint, serviceID)
	}

	switch algo {
	case models.LBRandom:
		return healthy[rand.Intn(len(healthy))], nil
	case models.LBIPHash:
		h := fnv.New32a()
		h.Write([]byte(clientIP))
		return healthy[int(h.Sum32())%len(healthy)], nil
	case models.LBLeastConn:
		return s.pickLeastConn(serviceID, healthy), nil
	default:
		// round_robin, also the fallback for unset algorithms.
		return s.pickRoundRobin(serviceID, healthy), nil
	}
}

func (s *Selector) pickRoundRobin(serviceID string, healthy []models.Endpoint) models.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	cursor := s.cursors[serviceID]
	ep := healthy[cursor%len(healthy)]
	s.cursors[serviceID] = cursor + 1
	return ep
}

func (s *Selector) pickLeastConn(serviceID string, healthy []models.Endpoint) models.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := s.inflight[serviceID]
	if counts == nil {
		counts = make(map[string]int)
		s.inflight[serviceID] = counts
	}

	best := healthy[0]
	bestCount := counts[best.Key()]
	for _, ep := range healthy[1:] {
		if c := counts[ep.Key()]; c < bestCount {
			best, bestCount = ep, c
		}
	}
	counts[best.Key()]++
	return best
}

// Release gives back the in-flight slot acquired by a least_conn pick. It is
// a no-op for endpoints the selector never handed out.
func (s *Selector) Release(serviceID string, ep models.Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := s.inflight[serviceID]
	if counts == nil {
		return
	}
	if counts[ep.Key()] > 0 {
		counts[ep.Key()]--
	}
}

// Forget drops all selection state for a service. Called when the service is
// removed from its mesh.
func (s *Selector) Forget(serviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cursors, serviceID)
	delete(s.inflight, serviceID)
}
