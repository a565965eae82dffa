package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vaporform/meshgate/internal/loadbalancer"
	"github.com/vaporform/meshgate/internal/metrics"
	"github.com/vaporform/meshgate/models"
)

// listServices handles GET /api/v1/service-mesh/:id/services
func (s *Server) listServices(c echo.Context) error {
	meshID := c.Param("id")

	if _, err := s.store.GetMesh(meshID); err != nil {
		return domainError("mesh", err)
	}

	services := s.store.ListServices(meshID, c.QueryParam("namespace"))

	return c.JSON(http.StatusOK, ServicesResponse{
		Count:    len(services),
		Services: services,
	})
}

// registerService handles POST /api/v1/service-mesh/:id/services
//
// Registration resolves the service's endpoints from the container runtime
// immediately and starts the health probing loop. A service whose container
// is not running registers with an empty endpoint list; discovery refreshes
// it once probing observes the container.
func (s *Server) registerService(c echo.Context) error {
	meshID := c.Param("id")

	if _, err := s.store.GetMesh(meshID); err != nil {
		return domainError("mesh", err)
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	result, err := s.validator.ValidateService(body)
	if err != nil {
		return InternalError("Validation failed", err.Error())
	}
	if !result.Valid {
		return ValidationError("Service validation failed", fieldErrors(result))
	}

	var svc models.MeshService
	if err := json.Unmarshal(body, &svc); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	svc.MeshID = meshID
	if svc.ID == "" {
		svc.ID = models.GenerateID("service")
	}

	// Resolve initial endpoints from the container runtime
	endpoints, err := s.resolver.DiscoverEndpoints(c.Request().Context(), &svc)
	if err != nil {
		return NewAPIError(http.StatusBadGateway, "Container runtime query failed", err.Error())
	}
	svc.Endpoints = endpoints

	if err := s.store.AddService(&svc); err != nil {
		return domainError("service", err)
	}

	// Start the health probing loop (no-op when health checks are disabled)
	s.prober.Watch(&svc)

	// Broadcast WebSocket event
	s.BroadcastLifecycleEvent(EventServiceRegistered, svc)

	return c.JSON(http.StatusCreated, svc)
}

// deleteService handles DELETE /api/v1/service-mesh/:id/services/:serviceId
func (s *Server) deleteService(c echo.Context) error {
	meshID := c.Param("id")
	serviceID := c.Param("serviceId")

	svc, err := s.store.GetService(serviceID)
	if err != nil {
		return domainError("service", err)
	}
	if svc.MeshID != meshID {
		return NotFoundError("service", serviceID)
	}

	if err := s.store.DeleteService(serviceID); err != nil {
		return domainError("service", err)
	}

	s.prober.Stop(serviceID)
	s.selector.Forget(serviceID)

	// Broadcast WebSocket event
	s.BroadcastLifecycleEvent(EventServiceRemoved, map[string]string{"id": serviceID})

	return c.JSON(http.StatusOK, MessageResponse{
		Message: "service deleted successfully",
		ID:      serviceID,
	})
}

// selectEndpoint handles GET /api/v1/service-mesh/:id/services/:serviceId/endpoint
//
// Picks one healthy endpoint using the service's configured load-balancing
// algorithm. The optional client query parameter feeds ip_hash; it defaults
// to the caller's address.
func (s *Server) selectEndpoint(c echo.Context) error {
	meshID := c.Param("id")
	serviceID := c.Param("serviceId")

	svc, err := s.store.GetService(serviceID)
	if err != nil {
		return domainError("service", err)
	}
	if svc.MeshID != meshID {
		return NotFoundError("service", serviceID)
	}

	client := c.QueryParam("client")
	if client == "" {
		client = c.RealIP()
	}

	algo := svc.LoadBalancer.Algorithm
	ep, err := s.selector.Pick(svc.ID, algo, svc.Endpoints, client)
	metrics.RecordSelection(string(algo), err == nil)
	if err != nil {
		if errors.Is(err, loadbalancer.ErrNoHealthyEndpoint) {
			return domainError("endpoint", err)
		}
		return InternalError("Endpoint selection failed", err.Error())
	}

	return c.JSON(http.StatusOK, EndpointResponse{
		ServiceID: svc.ID,
		Algorithm: string(algo),
		Endpoint:  ep,
	})
}
