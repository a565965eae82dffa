package api

import (
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/vaporform/meshgate/models"
)

func TestParsePagination(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{
			name:       "no parameters - use defaults",
			query:      "",
			wantLimit:  100,
			wantOffset: 0,
		},
		{
			name:       "custom limit and offset",
			query:      "limit=50&offset=25",
			wantLimit:  50,
			wantOffset: 25,
		},
		{
			name:       "limit exceeds max - cap at 1000",
			query:      "limit=5000",
			wantLimit:  1000,
			wantOffset: 0,
		},
		{
			name:       "negative limit - use default",
			query:      "limit=-10",
			wantLimit:  100,
			wantOffset: 0,
		},
		{
			name:       "negative offset - use default",
			query:      "offset=-5",
			wantLimit:  100,
			wantOffset: 0,
		},
		{
			name:       "invalid limit - use default",
			query:      "limit=abc",
			wantLimit:  100,
			wantOffset: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest("GET", "/?"+tt.query, nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			limit, offset := parsePagination(c)
			if limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", limit, tt.wantLimit)
			}
			if offset != tt.wantOffset {
				t.Errorf("offset = %d, want %d", offset, tt.wantOffset)
			}
		})
	}
}

func makeMeshes(n int) []*models.ServiceMesh {
	meshes := make([]*models.ServiceMesh, n)
	for i := range meshes {
		meshes[i] = &models.ServiceMesh{ID: fmt.Sprintf("mesh:%d", i)}
	}
	return meshes
}

func TestPaginateSliceMeshes(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		limit     int
		offset    int
		wantCount int
		wantFirst string
	}{
		{name: "first page", total: 10, limit: 3, offset: 0, wantCount: 3, wantFirst: "mesh:0"},
		{name: "middle page", total: 10, limit: 3, offset: 3, wantCount: 3, wantFirst: "mesh:3"},
		{name: "last partial page", total: 10, limit: 3, offset: 9, wantCount: 1, wantFirst: "mesh:9"},
		{name: "offset beyond end", total: 10, limit: 3, offset: 20, wantCount: 0},
		{name: "limit beyond end", total: 2, limit: 100, offset: 0, wantCount: 2, wantFirst: "mesh:0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := paginateSliceMeshes(makeMeshes(tt.total), tt.limit, tt.offset)
			if len(got) != tt.wantCount {
				t.Fatalf("len = %d, want %d", len(got), tt.wantCount)
			}
			if tt.wantCount > 0 && got[0].ID != tt.wantFirst {
				t.Errorf("first = %s, want %s", got[0].ID, tt.wantFirst)
			}
		})
	}
}

func TestPaginateSliceGateways(t *testing.T) {
	gateways := []*models.APIGateway{
		{ID: "gw:0"}, {ID: "gw:1"}, {ID: "gw:2"},
	}

	got := paginateSliceGateways(gateways, 2, 1)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "gw:1" {
		t.Errorf("first = %s, want gw:1", got[0].ID)
	}

	if got := paginateSliceGateways(gateways, 2, 5); len(got) != 0 {
		t.Errorf("offset beyond end returned %d items, want 0", len(got))
	}
}
