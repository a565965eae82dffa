package api

import (
	"github.com/vaporform/meshgate/models"
)

// MessageResponse represents a simple message response.
type MessageResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// PaginatedMeshesResponse represents a paginated list of service meshes.
type PaginatedMeshesResponse struct {
	Count  int                   `json:"count"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
	Meshes []*models.ServiceMesh `json:"meshes"`
}

// PaginatedGatewaysResponse represents a paginated list of API gateways.
type PaginatedGatewaysResponse struct {
	Count    int                  `json:"count"`
	Total    int                  `json:"total"`
	Limit    int                  `json:"limit"`
	Offset   int                  `json:"offset"`
	Gateways []*models.APIGateway `json:"gateways"`
}

// ServicesResponse represents a list of mesh services.
type ServicesResponse struct {
	Count    int                   `json:"count"`
	Services []*models.MeshService `json:"services"`
}

// PoliciesResponse represents a list of network policies.
type PoliciesResponse struct {
	Count    int                     `json:"count"`
	Policies []*models.NetworkPolicy `json:"policies"`
}

// RoutesResponse represents a list of API routes.
type RoutesResponse struct {
	Count  int                `json:"count"`
	Routes []*models.APIRoute `json:"routes"`
}

// UpstreamsResponse represents a list of upstreams.
type UpstreamsResponse struct {
	Count     int                `json:"count"`
	Upstreams []*models.Upstream `json:"upstreams"`
}

// EndpointResponse represents a load-balancer selection result.
type EndpointResponse struct {
	ServiceID string          `json:"serviceId"`
	Algorithm string          `json:"algorithm"`
	Endpoint  models.Endpoint `json:"endpoint"`
}
