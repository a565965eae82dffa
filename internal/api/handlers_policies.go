package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vaporform/meshgate/models"
)

// listPolicies handles GET /api/v1/service-mesh/:id/policies
func (s *Server) listPolicies(c echo.Context) error {
	meshID := c.Param("id")

	if _, err := s.store.GetMesh(meshID); err != nil {
		return domainError("mesh", err)
	}

	policies := s.store.ListPolicies(meshID, c.QueryParam("namespace"))

	return c.JSON(http.StatusOK, PoliciesResponse{
		Count:    len(policies),
		Policies: policies,
	})
}

// listAllPolicies handles GET /api/v1/network-policies
func (s *Server) listAllPolicies(c echo.Context) error {
	policies := s.store.ListPolicies("", c.QueryParam("namespace"))

	return c.JSON(http.StatusOK, PoliciesResponse{
		Count:    len(policies),
		Policies: policies,
	})
}

// createPolicy handles POST /api/v1/service-mesh/:id/policies
//
// A rule whose direction contradicts the policy type (an egress rule in an
// ingress policy) is rejected with the offending rule named. Accepting a
// policy re-deploys the owning mesh so the new rules reach the backend.
func (s *Server) createPolicy(c echo.Context) error {
	meshID := c.Param("id")

	mesh, err := s.store.GetMesh(meshID)
	if err != nil {
		return domainError("mesh", err)
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	result, err := s.validator.ValidatePolicy(body)
	if err != nil {
		return InternalError("Validation failed", err.Error())
	}
	if !result.Valid {
		return ValidationError("Policy validation failed", fieldErrors(result))
	}

	var policy models.NetworkPolicy
	if err := json.Unmarshal(body, &policy); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	policy.MeshID = meshID
	if policy.ID == "" {
		policy.ID = models.GenerateID("policy")
	}

	if err := s.store.AddPolicy(&policy); err != nil {
		return domainError("policy", err)
	}

	// Re-deploy the owning mesh with the new policy in place
	if mesh.Status != models.StatusCreating {
		s.dispatcher.DeployMesh(meshID)
	}

	// Broadcast WebSocket event
	s.BroadcastLifecycleEvent(EventPolicyCreated, policy)

	return c.JSON(http.StatusCreated, policy)
}
