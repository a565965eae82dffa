package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vaporform/meshgate/models"
)

// listGateways handles GET /api/v1/api-gateway
func (s *Server) listGateways(c echo.Context) error {
	projectID := c.QueryParam("projectId")

	// Parse pagination parameters
	limit, offset := parsePagination(c)

	gateways := s.store.ListGateways(projectID)

	// Get total count before pagination
	total := len(gateways)

	// Apply pagination
	gateways = paginateSliceGateways(gateways, limit, offset)

	return c.JSON(http.StatusOK, PaginatedGatewaysResponse{
		Count:    len(gateways),
		Total:    total,
		Limit:    limit,
		Offset:   offset,
		Gateways: gateways,
	})
}

// getGateway handles GET /api/v1/api-gateway/:id
func (s *Server) getGateway(c echo.Context) error {
	id := c.Param("id")

	gateway, err := s.store.GetGateway(id)
	if err != nil {
		return domainError("gateway", err)
	}

	return c.JSON(http.StatusOK, gateway)
}

// createGateway handles POST /api/v1/api-gateway
//
// Standalone gateways run on proxy backends only (envoy, nginx, traefik);
// control-plane mesh technologies are rejected by validation.
func (s *Server) createGateway(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	result, err := s.validator.ValidateGateway(body)
	if err != nil {
		return InternalError("Validation failed", err.Error())
	}
	if !result.Valid {
		return ValidationError("Gateway validation failed", fieldErrors(result))
	}

	var gateway models.APIGateway
	if err := json.Unmarshal(body, &gateway); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	// Generate ID if not provided
	if gateway.ID == "" {
		gateway.ID = models.GenerateID("gateway")
	}
	gateway.Status = models.StatusCreating
	gateway.StatusDetail = ""
	if gateway.Routes == nil {
		gateway.Routes = []string{}
	}
	if gateway.Upstreams == nil {
		gateway.Upstreams = []string{}
	}

	if err := s.store.CreateGateway(&gateway); err != nil {
		return domainError("gateway", err)
	}

	// Kick off the asynchronous deploy
	s.dispatcher.DeployGateway(gateway.ID)

	// Broadcast WebSocket event
	s.BroadcastLifecycleEvent(EventGatewayCreated, gateway)

	return c.JSON(http.StatusCreated, gateway)
}

// deleteGateway handles DELETE /api/v1/api-gateway/:id
//
// Deletion cascades to the gateway's routes and upstreams.
func (s *Server) deleteGateway(c echo.Context) error {
	id := c.Param("id")

	if err := s.store.DeleteGateway(id); err != nil {
		return domainError("gateway", err)
	}

	// Broadcast WebSocket event
	s.BroadcastLifecycleEvent(EventGatewayRemoved, map[string]string{"id": id})

	return c.JSON(http.StatusOK, MessageResponse{
		Message: "gateway deleted successfully",
		ID:      id,
	})
}

// listUpstreams handles GET /api/v1/api-gateway/:id/upstreams
func (s *Server) listUpstreams(c echo.Context) error {
	gatewayID := c.Param("id")

	if _, err := s.store.GetGateway(gatewayID); err != nil {
		return domainError("gateway", err)
	}

	upstreams := s.store.ListUpstreams(gatewayID)

	return c.JSON(http.StatusOK, UpstreamsResponse{
		Count:     len(upstreams),
		Upstreams: upstreams,
	})
}

// createUpstream handles POST /api/v1/api-gateway/:id/upstreams
func (s *Server) createUpstream(c echo.Context) error {
	gatewayID := c.Param("id")

	gateway, err := s.store.GetGateway(gatewayID)
	if err != nil {
		return domainError("gateway", err)
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	result, err := s.validator.ValidateUpstream(body)
	if err != nil {
		return InternalError("Validation failed", err.Error())
	}
	if !result.Valid {
		return ValidationError("Upstream validation failed", fieldErrors(result))
	}

	var upstream models.Upstream
	if err := json.Unmarshal(body, &upstream); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	upstream.GatewayID = gatewayID
	if upstream.ID == "" {
		upstream.ID = models.GenerateID("upstream")
	}

	if err := s.store.AddUpstream(&upstream); err != nil {
		return domainError("upstream", err)
	}

	// Re-deploy the gateway so the new upstream reaches the proxy
	if gateway.Status != models.StatusCreating {
		s.dispatcher.DeployGateway(gatewayID)
	}

	return c.JSON(http.StatusCreated, upstream)
}

// listRoutes handles GET /api/v1/api-gateway/:id/routes
func (s *Server) listRoutes(c echo.Context) error {
	gatewayID := c.Param("id")

	if _, err := s.store.GetGateway(gatewayID); err != nil {
		return domainError("gateway", err)
	}

	routes := s.store.ListRoutes(gatewayID)

	return c.JSON(http.StatusOK, RoutesResponse{
		Count:  len(routes),
		Routes: routes,
	})
}

// createRoute handles POST /api/v1/api-gateway/:id/routes
//
// A route referencing an upstream that does not exist under this gateway is
// rejected; dangling references are never accepted silently.
func (s *Server) createRoute(c echo.Context) error {
	gatewayID := c.Param("id")

	gateway, err := s.store.GetGateway(gatewayID)
	if err != nil {
		return domainError("gateway", err)
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	result, err := s.validator.ValidateRoute(body)
	if err != nil {
		return InternalError("Validation failed", err.Error())
	}
	if !result.Valid {
		return ValidationError("Route validation failed", fieldErrors(result))
	}

	var route models.APIRoute
	if err := json.Unmarshal(body, &route); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	route.GatewayID = gatewayID
	if route.ID == "" {
		route.ID = models.GenerateID("route")
	}

	if err := s.store.AddRoute(&route); err != nil {
		return domainError("route", err)
	}

	// Re-deploy the gateway so the new route reaches the proxy
	if gateway.Status != models.StatusCreating {
		s.dispatcher.DeployGateway(gatewayID)
	}

	return c.JSON(http.StatusCreated, route)
}
