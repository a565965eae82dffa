package models

import (
	"net"
	"strconv"
	"time"
)

// Protocol is the application protocol exposed on a service port.
type Protocol string

const (
	ProtocolHTTP  Protocol = "HTTP"
	ProtocolHTTPS Protocol = "HTTPS"
	ProtocolGRPC  Protocol = "GRPC"
	ProtocolTCP   Protocol = "TCP"
)

// Valid reports whether the protocol is one of the supported values.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolGRPC, ProtocolTCP:
		return true
	}
	return false
}

// MeshService is a workload registered into exactly one mesh. It is backed by
// a container runtime unit; Endpoints is derived state refreshed only by
// service discovery and must never be hand-set by callers.
type MeshService struct {
	ID        string `json:"id"`
	MeshID    string `json:"meshId"`
	Name      string `json:"name" validate:"required"`
	Namespace string `json:"namespace"`

	// ContainerID references the container runtime unit backing this service.
	ContainerID string `json:"containerId" validate:"required"`

	Ports []ServicePort `json:"ports" validate:"required,min=1,dive"`

	// Endpoints is computed by discovery. It legitimately shrinks to empty
	// when the backing container is not running.
	Endpoints []Endpoint `json:"endpoints"`

	HealthCheck    HealthCheckPolicy    `json:"healthCheck"`
	LoadBalancer   LoadBalancerPolicy   `json:"loadBalancer"`
	CircuitBreaker CircuitBreakerPolicy `json:"circuitBreaker"`
	Retry          RetryPolicy          `json:"retry"`
	Timeout        TimeoutPolicy        `json:"timeout"`
	RateLimit      RateLimitPolicy      `json:"rateLimit"`
	Security       SecuritySettings     `json:"security"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ServicePort declares one exposed port of a mesh service.
type ServicePort struct {
	Name       string   `json:"name"`
	Port       int      `json:"port" validate:"min=1,max=65535"`
	TargetPort int      `json:"targetPort" validate:"min=1,max=65535"`
	Protocol   Protocol `json:"protocol"`
}

// EndpointStatus is the health state of a single resolved endpoint.
type EndpointStatus string

const (
	EndpointHealthy   EndpointStatus = "healthy"
	EndpointUnhealthy EndpointStatus = "unhealthy"
)

// Endpoint is one resolved network address of a service. Discovery assigns
// the optimistic default of healthy; the prober flips status based on probe
// outcomes and updates LastCheck on every attempt.
type Endpoint struct {
	Address   string         `json:"address"`
	Port      int            `json:"port"`
	Status    EndpointStatus `json:"status"`
	Weight    int            `json:"weight"`
	LastCheck time.Time      `json:"lastCheck"`
}

// Key returns a stable identifier for the endpoint within a service.
func (e Endpoint) Key() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(e.Port))
}

// HealthCheckPolicy configures active endpoint probing for a service.
type HealthCheckPolicy struct {
	Enabled  bool   `json:"enabled"`
	Path     string `json:"path,omitempty"`
	Interval string `json:"interval,omitempty"`
	Timeout  string `json:"timeout,omitempty"`

	HealthyThreshold   int `json:"healthyThreshold,omitempty"`
	UnhealthyThreshold int `json:"unhealthyThreshold,omitempty"`
}

// LBAlgorithm selects how requests are spread over healthy endpoints.
type LBAlgorithm string

const (
	LBRoundRobin LBAlgorithm = "round_robin"
	LBRandom     LBAlgorithm = "random"
	LBIPHash     LBAlgorithm = "ip_hash"
	LBLeastConn  LBAlgorithm = "least_conn"
)

// Valid reports whether the algorithm is one of the supported values.
func (a LBAlgorithm) Valid() bool {
	switch a {
	case LBRoundRobin, LBRandom, LBIPHash, LBLeastConn:
		return true
	}
	return false
}

// LoadBalancerPolicy configures endpoint selection for a service.
type LoadBalancerPolicy struct {
	Algorithm LBAlgorithm `json:"algorithm"`
}

// CircuitBreakerPolicy stops routing to an endpoint after a threshold of
// consecutive errors.
type CircuitBreakerPolicy struct {
	Enabled           bool   `json:"enabled"`
	ConsecutiveErrors int    `json:"consecutiveErrors,omitempty"`
	Interval          string `json:"interval,omitempty"`
	BaseEjectionTime  string `json:"baseEjectionTime,omitempty"`
}

// RetryPolicy configures request retries toward a service.
type RetryPolicy struct {
	Attempts      int    `json:"attempts,omitempty"`
	PerTryTimeout string `json:"perTryTimeout,omitempty"`
	RetryOn       string `json:"retryOn,omitempty"`
}

// TimeoutPolicy bounds the total request duration toward a service.
type TimeoutPolicy struct {
	Request string `json:"request,omitempty"`
	Idle    string `json:"idle,omitempty"`
}

// RateLimitPolicy caps the request rate toward a service.
type RateLimitPolicy struct {
	Enabled           bool `json:"enabled"`
	RequestsPerSecond int  `json:"requestsPerSecond,omitempty"`
	Burst             int  `json:"burst,omitempty"`
}

// SecuritySettings holds per-service authentication and TLS configuration.
type SecuritySettings struct {
	AuthnEnabled bool   `json:"authnEnabled"`
	AuthzEnabled bool   `json:"authzEnabled"`
	TLSMode      string `json:"tlsMode,omitempty"`
}
