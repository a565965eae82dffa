package api

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/vaporform/meshgate/models"
)

// parsePagination parses limit and offset from query parameters.
// Default limit is 100, default offset is 0.
// Maximum limit is 1000 to prevent excessive memory usage.
func parsePagination(c echo.Context) (limit, offset int) {
	// Parse limit with default of 100
	limit = 100
	if limitParam := c.QueryParam("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
			// Cap at 1000
			if limit > 1000 {
				limit = 1000
			}
		}
	}

	// Parse offset with default of 0
	offset = 0
	if offsetParam := c.QueryParam("offset"); offsetParam != "" {
		if parsed, err := strconv.Atoi(offsetParam); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return limit, offset
}

// paginateSliceMeshes applies pagination to a slice of service meshes.
func paginateSliceMeshes(meshes []*models.ServiceMesh, limit, offset int) []*models.ServiceMesh {
	// Handle edge cases
	if offset >= len(meshes) {
		return []*models.ServiceMesh{}
	}

	end := offset + limit
	if end > len(meshes) {
		end = len(meshes)
	}

	return meshes[offset:end]
}

// paginateSliceGateways applies pagination to a slice of API gateways.
func paginateSliceGateways(gateways []*models.APIGateway, limit, offset int) []*models.APIGateway {
	// Handle edge cases
	if offset >= len(gateways) {
		return []*models.APIGateway{}
	}

	end := offset + limit
	if end > len(gateways) {
		end = len(gateways)
	}

	return gateways[offset:end]
}
