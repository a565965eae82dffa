package models

import "time"

// GatewayType identifies the proxy technology an API gateway runs on.
// Gateways are provisioned on proxy backends only; control-plane-only mesh
// types (istio, linkerd) are not valid gateway types.
type GatewayType string

const (
	GatewayEnvoy   GatewayType = "envoy"
	GatewayNginx   GatewayType = "nginx"
	GatewayTraefik GatewayType = "traefik"
)

// GatewayTypes lists every supported gateway backend.
var GatewayTypes = []GatewayType{GatewayEnvoy, GatewayNginx, GatewayTraefik}

// Valid reports whether the gateway type is part of the supported enumeration.
func (t GatewayType) Valid() bool {
	for _, known := range GatewayTypes {
		if t == known {
			return true
		}
	}
	return false
}

// APIGateway terminates client traffic on its listeners and forwards matched
// requests to upstream target pools via its routes.
type APIGateway struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"projectId" validate:"required"`
	Name      string      `json:"name" validate:"required"`
	Type      GatewayType `json:"type" validate:"required"`

	Status       MeshStatus `json:"status"`
	StatusDetail string     `json:"statusDetail,omitempty"`

	Listeners []Listener      `json:"listeners" validate:"dive"`
	RateLimit RateLimitPolicy `json:"rateLimit"`
	CORS      CORSSettings    `json:"cors"`
	Auth      AuthSettings    `json:"auth"`

	Routes    []string `json:"routes"`
	Upstreams []string `json:"upstreams"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Listener is one bound address/port a gateway accepts traffic on.
type Listener struct {
	Name     string   `json:"name"`
	Port     int      `json:"port" validate:"min=1,max=65535"`
	Protocol Protocol `json:"protocol"`
	TLS      bool     `json:"tls"`
	CertRef  string   `json:"certRef,omitempty"`
}

// CORSSettings configures cross-origin request handling at the gateway.
type CORSSettings struct {
	Enabled        bool     `json:"enabled"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
	AllowedMethods []string `json:"allowedMethods,omitempty"`
	AllowedHeaders []string `json:"allowedHeaders,omitempty"`
	MaxAge         int      `json:"maxAge,omitempty"`
}

// AuthSettings configures caller authentication at the gateway edge.
type AuthSettings struct {
	Enabled bool   `json:"enabled"`
	Mode    string `json:"mode,omitempty"` // "jwt", "api_key", "basic"
	Issuer  string `json:"issuer,omitempty"`
}

// APIRoute maps method+host+path to an upstream. UpstreamID must reference an
// upstream registered under the same gateway; dangling references are a
// validation error at create time.
type APIRoute struct {
	ID        string `json:"id"`
	GatewayID string `json:"gatewayId"`
	Name      string `json:"name" validate:"required"`

	Method     string `json:"method,omitempty"`
	Host       string `json:"host,omitempty"`
	PathPrefix string `json:"pathPrefix" validate:"required,startswith=/"`

	UpstreamID string `json:"upstreamId" validate:"required"`

	Timeout TimeoutPolicy `json:"timeout"`
	Retry   RetryPolicy   `json:"retry"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Upstream is a named, weighted pool of backend targets routes forward to.
type Upstream struct {
	ID        string `json:"id"`
	GatewayID string `json:"gatewayId"`
	Name      string `json:"name" validate:"required"`

	Targets     []Target          `json:"targets" validate:"required,min=1,dive"`
	HealthCheck HealthCheckPolicy `json:"healthCheck"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Target is one weighted backend address of an upstream.
type Target struct {
	Host   string `json:"host" validate:"required"`
	Port   int    `json:"port" validate:"min=1,max=65535"`
	Weight int    `json:"weight" validate:"min=0"`
}
