package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vaporform/meshgate/internal/deploy"
	"github.com/vaporform/meshgate/internal/manifest"
	"github.com/vaporform/meshgate/internal/validation"
	"github.com/vaporform/meshgate/models"
)

// fieldErrors converts a validation result into the APIError field map.
func fieldErrors(result *validation.ValidationResult) map[string]string {
	out := make(map[string]string, len(result.Errors))
	for _, e := range result.Errors {
		out[e.Field] = e.Message
	}
	return out
}

// listMeshes handles GET /api/v1/service-mesh
func (s *Server) listMeshes(c echo.Context) error {
	projectID := c.QueryParam("projectId")

	// Parse pagination parameters
	limit, offset := parsePagination(c)

	meshes := s.store.ListMeshes(projectID)

	// Optional status filter
	if status := c.QueryParam("status"); status != "" {
		filtered := meshes[:0]
		for _, m := range meshes {
			if string(m.Status) == status {
				filtered = append(filtered, m)
			}
		}
		meshes = filtered
	}

	// Get total count before pagination
	total := len(meshes)

	// Apply pagination
	meshes = paginateSliceMeshes(meshes, limit, offset)

	return c.JSON(http.StatusOK, PaginatedMeshesResponse{
		Count:  len(meshes),
		Total:  total,
		Limit:  limit,
		Offset: offset,
		Meshes: meshes,
	})
}

// getMesh handles GET /api/v1/service-mesh/:id
func (s *Server) getMesh(c echo.Context) error {
	id := c.Param("id")

	mesh, err := s.store.GetMesh(id)
	if err != nil {
		return domainError("mesh", err)
	}

	return c.JSON(http.StatusOK, mesh)
}

// createMesh handles POST /api/v1/service-mesh
//
// The mesh is persisted in "creating" status and handed to the deployment
// dispatcher; the response returns immediately while the deploy runs in the
// background.
func (s *Server) createMesh(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	var mesh models.ServiceMesh
	if err := json.Unmarshal(body, &mesh); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	// Reject unknown backends before anything is persisted. There is no
	// default backend to fall back to.
	if mesh.Type != "" && !s.dispatcher.Supported(string(mesh.Type)) {
		return domainError("mesh", fmt.Errorf("%w: %s", deploy.ErrUnsupportedBackend, mesh.Type))
	}

	result, err := s.validator.ValidateMesh(body)
	if err != nil {
		return InternalError("Validation failed", err.Error())
	}
	if !result.Valid {
		return ValidationError("Mesh validation failed", fieldErrors(result))
	}

	// Generate ID if not provided
	if mesh.ID == "" {
		mesh.ID = models.GenerateID("mesh")
	}
	mesh.Status = models.StatusCreating
	mesh.StatusDetail = ""
	if mesh.Services == nil {
		mesh.Services = []string{}
	}
	if mesh.Policies == nil {
		mesh.Policies = []string{}
	}
	if mesh.Gateways == nil {
		mesh.Gateways = []string{}
	}

	if err := s.store.CreateMesh(&mesh); err != nil {
		return domainError("mesh", err)
	}

	// Kick off the asynchronous deploy
	s.dispatcher.DeployMesh(mesh.ID)

	// Broadcast WebSocket event
	s.BroadcastLifecycleEvent(EventMeshCreated, mesh)

	return c.JSON(http.StatusCreated, mesh)
}

// deleteMesh handles DELETE /api/v1/service-mesh/:id
//
// Deletion cascades to owned services and policies; health probing for the
// mesh's services is stopped so destroyed entities are never probed.
func (s *Server) deleteMesh(c echo.Context) error {
	id := c.Param("id")

	// Collect owned services before the cascade removes them
	services := s.store.ListServices(id, "")

	if err := s.store.DeleteMesh(id); err != nil {
		return domainError("mesh", err)
	}

	for _, svc := range services {
		s.prober.Stop(svc.ID)
		s.selector.Forget(svc.ID)
	}

	// Broadcast WebSocket event
	s.BroadcastLifecycleEvent(EventMeshRemoved, map[string]string{"id": id})

	return c.JSON(http.StatusOK, MessageResponse{
		Message: "mesh deleted successfully",
		ID:      id,
	})
}

// getMeshManifest handles GET /api/v1/service-mesh/:id/manifest
//
// Renders the deployment artifact for the mesh without applying it, so
// operators can diff what a deploy would push.
func (s *Server) getMeshManifest(c echo.Context) error {
	id := c.Param("id")

	mesh, err := s.store.GetMesh(id)
	if err != nil {
		return domainError("mesh", err)
	}

	gen, ok := manifest.Generators()[string(mesh.Type)]
	if !ok {
		return domainError("mesh", fmt.Errorf("%w: %s", deploy.ErrUnsupportedBackend, mesh.Type))
	}

	art, err := gen.Mesh(mesh)
	if err != nil {
		return BadRequestError("Manifest generation failed", err.Error())
	}

	return c.JSON(http.StatusOK, art)
}
