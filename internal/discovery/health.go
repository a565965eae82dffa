package discovery

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/vaporform/meshgate/internal/metrics"
	"github.com/vaporform/meshgate/internal/registry"
	"github.com/vaporform/meshgate/models"
)

const (
	defaultProbePath     = "/health"
	defaultProbeInterval = 10 * time.Second
	defaultProbeTimeout  = 2 * time.Second
)

// Prober runs one health-check loop per watched service and writes status
// changes back to the store. Loops are cancellable individually so deleting
// a service stops its probes immediately.
type Prober struct {
	store  *registry.Store
	client *http.Client

	defaultInterval time.Duration
	defaultTimeout  time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewProber returns a prober writing probe results into store.
func NewProber(store *registry.Store) *Prober {
	return &Prober{
		store: store,
		// Timeout here is a backstop; each probe also carries its own
		// context deadline from the health-check policy.
		client:          &http.Client{Timeout: 30 * time.Second},
		defaultInterval: defaultProbeInterval,
		defaultTimeout:  defaultProbeTimeout,
		cancels:         make(map[string]context.CancelFunc),
	}
}

// SetDefaults overrides the fallback interval and timeout used when a
// service's health-check policy leaves them unset. Loops already running
// keep their current schedule.
func (p *Prober) SetDefaults(interval, timeout time.Duration) {
	if interval > 0 {
		p.defaultInterval = interval
	}
	if timeout > 0 {
		p.defaultTimeout = timeout
	}
}

// Watch starts the probe loop for a service. Probing is skipped entirely
// when the service's health check is disabled; endpoints then keep the
// optimistic status discovery assigned. Watching an already-watched service
// restarts its loop with the current policy.
func (p *Prober) Watch(svc *models.MeshService) {
	if !svc.HealthCheck.Enabled {
		return
	}

	p.mu.Lock()
	if cancel, ok := p.cancels[svc.ID]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancels[svc.ID] = cancel
	p.mu.Unlock()

	interval := parseDuration(svc.HealthCheck.Interval, p.defaultInterval)
	timeout := parseDuration(svc.HealthCheck.Timeout, p.defaultTimeout)
	path := svc.HealthCheck.Path
	if path == "" {
		path = defaultProbePath
	}

	p.wg.Add(1)
	go p.loop(ctx, svc.ID, path, interval, timeout)
}

// Stop cancels the probe loop for a service, if one is running.
func (p *Prober) Stop(serviceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cancel, ok := p.cancels[serviceID]; ok {
		cancel()
		delete(p.cancels, serviceID)
	}
}

// Shutdown cancels every probe loop and waits for them to exit.
func (p *Prober) Shutdown() {
	p.mu.Lock()
	for id, cancel := range p.cancels {
		cancel()
		delete(p.cancels, id)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Prober) loop(ctx context.Context, serviceID, path string, interval, timeout time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeService(ctx, serviceID, path, timeout)
		}
	}
}

// probeService probes every endpoint of the service and persists the
// refreshed set. A service that disappeared from the store ends the loop on
// the next store write.
func (p *Prober) probeService(ctx context.Context, serviceID, path string, timeout time.Duration) {
	svc, err := p.store.GetService(serviceID)
	if err != nil {
		p.Stop(serviceID)
		return
	}

	updated := make([]models.Endpoint, len(svc.Endpoints))
	for i, ep := range svc.Endpoints {
		updated[i] = p.CheckHealth(ctx, ep, path, timeout)
		if updated[i].Status != ep.Status {
			log.Printf("Health: endpoint %s of service %s is now %s", ep.Key(), serviceID, updated[i].Status)
		}
	}

	if err := p.store.SetServiceEndpoints(serviceID, updated); err != nil {
		p.Stop(serviceID)
	}
}

// CheckHealth performs one bounded probe against the endpoint. Any failure
// mode (connection refused, timeout, non-2xx) marks the endpoint unhealthy;
// LastCheck is updated unconditionally, success or failure.
func (p *Prober) CheckHealth(ctx context.Context, ep models.Endpoint, path string, timeout time.Duration) models.Endpoint {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ep.LastCheck = time.Now().UTC()

	url := fmt.Sprintf("http://%s%s", ep.Key(), path)
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		ep.Status = models.EndpointUnhealthy
		metrics.RecordHealthProbe(false)
		return ep
	}

	resp, err := p.client.Do(req)
	if err != nil {
		ep.Status = models.EndpointUnhealthy
		metrics.RecordHealthProbe(false)
		return ep
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		ep.Status = models.EndpointHealthy
	} else {
		ep.Status = models.EndpointUnhealthy
	}
	metrics.RecordHealthProbe(ep.Status == models.EndpointHealthy)
	return ep
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
