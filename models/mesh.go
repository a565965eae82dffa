package models

import "time"

// MeshType identifies the backend technology a service mesh is provisioned with.
type MeshType string

const (
	MeshTypeIstio   MeshType = "istio"
	MeshTypeLinkerd MeshType = "linkerd"
	MeshTypeEnvoy   MeshType = "envoy"
	MeshTypeNginx   MeshType = "nginx"
	MeshTypeTraefik MeshType = "traefik"
)

// MeshTypes lists every supported mesh backend.
var MeshTypes = []MeshType{MeshTypeIstio, MeshTypeLinkerd, MeshTypeEnvoy, MeshTypeNginx, MeshTypeTraefik}

// Valid reports whether the mesh type is part of the supported enumeration.
func (t MeshType) Valid() bool {
	for _, known := range MeshTypes {
		if t == known {
			return true
		}
	}
	return false
}

// MeshStatus is the lifecycle state of a mesh or gateway.
//
// Transitions are monotonic except for "error", which is reachable from
// "creating" and "updating". "destroyed" is terminal and entered only by an
// explicit delete, never by a failed deploy.
type MeshStatus string

const (
	StatusCreating  MeshStatus = "creating"
	StatusActive    MeshStatus = "active"
	StatusUpdating  MeshStatus = "updating"
	StatusError     MeshStatus = "error"
	StatusDestroyed MeshStatus = "destroyed"
)

// CanTransition reports whether the status machine permits moving to next.
func (s MeshStatus) CanTransition(next MeshStatus) bool {
	if s == StatusDestroyed {
		return false
	}
	switch next {
	case StatusActive:
		return s == StatusCreating || s == StatusUpdating || s == StatusActive
	case StatusError:
		return s == StatusCreating || s == StatusUpdating
	case StatusUpdating:
		return s == StatusActive || s == StatusError
	case StatusDestroyed:
		return true
	case StatusCreating:
		return false
	}
	return false
}

// ServiceMesh is a named, typed collection of services, policies, and gateways
// under unified traffic and security configuration.
//
// Owned collections hold identifiers into the registry; the registry is the
// single source of truth for the child entities themselves.
type ServiceMesh struct {
	ID        string   `json:"id"`
	ProjectID string   `json:"projectId" validate:"required"`
	Name      string   `json:"name" validate:"required"`
	Type      MeshType `json:"type" validate:"required"`

	Status MeshStatus `json:"status"`

	// StatusDetail carries the failure detail when Status is "error",
	// e.g. a manifest generation message or "deployment timeout".
	StatusDetail string `json:"statusDetail,omitempty"`

	Configuration MeshConfiguration `json:"configuration"`

	// ServiceCount and PolicyCount are derived metrics refreshed on read.
	ServiceCount int `json:"serviceCount"`
	PolicyCount  int `json:"policyCount"`

	Services []string `json:"services"`
	Policies []string `json:"policies"`
	Gateways []string `json:"gateways"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MeshConfiguration holds the traffic, security, and observability settings
// applied mesh-wide. Defaults are filled in by the create handler.
type MeshConfiguration struct {
	MTLSEnabled    bool `json:"mtlsEnabled"`
	TracingEnabled bool `json:"tracingEnabled"`
	MetricsEnabled bool `json:"metricsEnabled"`
	LoggingEnabled bool `json:"loggingEnabled"`

	IngressGateway GatewaySettings `json:"ingressGateway"`
	EgressGateway  GatewaySettings `json:"egressGateway"`

	// SidecarNamespaces lists namespaces to enable sidecar injection for.
	// Applied as a namespace-labeling step, not embedded in manifests.
	SidecarNamespaces []string `json:"sidecarNamespaces,omitempty"`

	RBACEnabled bool `json:"rbacEnabled"`

	TracingProvider string `json:"tracingProvider,omitempty"`
	MetricsProvider string `json:"metricsProvider,omitempty"`
}

// GatewaySettings configures a mesh-owned ingress or egress gateway.
type GatewaySettings struct {
	Enabled  bool   `json:"enabled"`
	Port     int    `json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	TLSMode  string `json:"tlsMode,omitempty"`
	Hostname string `json:"hostname,omitempty"`
}
