// Package discovery resolves live network endpoints for mesh services from
// their backing containers and keeps endpoint health current.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/go-connections/nat"

	"github.com/vaporform/meshgate/models"
)

// ContainerInspector is the slice of the container-runtime client discovery
// needs. The Docker client satisfies it directly; tests supply fakes.
type ContainerInspector interface {
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
}

// Resolver resolves service endpoints against a shared container-runtime
// client. The client is stateless and safe for concurrent use, so one
// Resolver serves all services.
type Resolver struct {
	runtime ContainerInspector
}

// NewResolver returns a resolver backed by the given runtime client.
func NewResolver(runtime ContainerInspector) *Resolver {
	return &Resolver{runtime: runtime}
}

// DiscoverEndpoints resolves the current endpoints of a service. A container
// that is not running yields zero endpoints, not an error; the endpoint set
// legitimately shrinks to empty. One endpoint is produced per declared
// service port, all sharing the container's resolved address, and all start
// out healthy until a probe says otherwise.
func (r *Resolver) DiscoverEndpoints(ctx context.Context, svc *models.MeshService) ([]models.Endpoint, error) {
	if svc.ContainerID == "" {
		return []models.Endpoint{}, nil
	}

	inspect, err := r.runtime.ContainerInspect(ctx, svc.ContainerID)
	if err != nil {
		return nil, fmt.Errorf("inspect container %s: %w", svc.ContainerID, err)
	}
	if inspect.State == nil || !inspect.State.Running {
		return []models.Endpoint{}, nil
	}

	addr := containerAddress(inspect)
	now := time.Now().UTC()

	endpoints := make([]models.Endpoint, 0, len(svc.Ports))
	for _, p := range svc.Ports {
		port := p.TargetPort
		if port == 0 {
			port = p.Port
		}

		epAddr, epPort := addr, port
		if epAddr == "" {
			// No routable container address; fall back to the published
			// host binding for this port.
			epAddr, epPort = hostBinding(inspect, port)
			if epAddr == "" {
				continue
			}
		}

		endpoints = append(endpoints, models.Endpoint{
			Address:   epAddr,
			Port:      epPort,
			Status:    models.EndpointHealthy,
			Weight:    1,
			LastCheck: now,
		})
	}

	return endpoints, nil
}

// containerAddress returns the container's primary IP: the default bridge
// address when set, otherwise the first attached network in name order.
func containerAddress(inspect types.ContainerJSON) string {
	if inspect.NetworkSettings == nil {
		return ""
	}
	if inspect.NetworkSettings.IPAddress != "" {
		return inspect.NetworkSettings.IPAddress
	}

	names := make([]string, 0, len(inspect.NetworkSettings.Networks))
	for name := range inspect.NetworkSettings.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if ip := inspect.NetworkSettings.Networks[name].IPAddress; ip != "" {
			return ip
		}
	}
	return ""
}

// hostBinding looks up the published host address/port for a container port.
func hostBinding(inspect types.ContainerJSON, port int) (string, int) {
	if inspect.NetworkSettings == nil {
		return "", 0
	}

	natPort, err := nat.NewPort("tcp", strconv.Itoa(port))
	if err != nil {
		return "", 0
	}
	for _, binding := range inspect.NetworkSettings.Ports[natPort] {
		hostPort, err := strconv.Atoi(binding.HostPort)
		if err != nil || hostPort == 0 {
			continue
		}
		hostIP := binding.HostIP
		if hostIP == "" || hostIP == "0.0.0.0" {
			hostIP = "127.0.0.1"
		}
		return hostIP, hostPort
	}
	return "", 0
}
