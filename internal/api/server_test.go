package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaporform/meshgate/internal/auth"
	"github.com/vaporform/meshgate/internal/config"
	"github.com/vaporform/meshgate/internal/deploy"
	"github.com/vaporform/meshgate/internal/discovery"
	"github.com/vaporform/meshgate/internal/metrics"
	"github.com/vaporform/meshgate/internal/registry"
	"github.com/vaporform/meshgate/models"
)

// fakeRuntime is a canned container-runtime client for handler tests.
type fakeRuntime struct {
	containers map[string]types.ContainerJSON
}

func (f *fakeRuntime) ContainerInspect(_ context.Context, id string) (types.ContainerJSON, error) {
	c, ok := f.containers[id]
	if !ok {
		return types.ContainerJSON{}, errors.New("no such container")
	}
	return c, nil
}

func container(ip string, running bool) types.ContainerJSON {
	return types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			State: &types.ContainerState{Running: running},
		},
		NetworkSettings: &types.NetworkSettings{
			DefaultNetworkSettings: types.DefaultNetworkSettings{IPAddress: ip},
		},
	}
}

func testCfg() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 8095},
		Deploy: config.DeployConfig{Timeout: time.Second},
		Security: config.SecurityConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *registry.Store) {
	t.Helper()

	store := registry.NewStore()
	dispatcher := deploy.NewDispatcher(store, deploy.LogApplier{}, cfg.Deploy.Timeout,
		deploy.WithMetrics(metrics.Recorder{}))
	runtime := &fakeRuntime{containers: map[string]types.ContainerJSON{
		"c-run":  container("172.17.0.9", true),
		"c-stop": container("172.17.0.9", false),
	}}
	prober := discovery.NewProber(store)

	srv := New(cfg, store, dispatcher, discovery.NewResolver(runtime), prober, NewHub())

	t.Cleanup(func() {
		dispatcher.Wait()
		prober.Shutdown()
	})

	return srv, store
}

func doJSON(t *testing.T, srv *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), target))
}

func TestCreateMeshDeploysToActive(t *testing.T) {
	srv, _ := newTestServer(t, testCfg())

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/service-mesh",
		`{"projectId":"p1","name":"edge","type":"nginx"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created models.ServiceMesh
	decode(t, rec, &created)
	assert.Equal(t, models.StatusCreating, created.Status)
	assert.NotEmpty(t, created.ID)

	srv.dispatcher.Wait()

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/service-mesh/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched models.ServiceMesh
	decode(t, rec, &fetched)
	assert.Equal(t, models.StatusActive, fetched.Status)
}

func TestCreateMeshUnsupportedBackend(t *testing.T) {
	srv, store := newTestServer(t, testCfg())

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/service-mesh",
		`{"projectId":"p1","name":"edge","type":"consul"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var apiErr APIError
	decode(t, rec, &apiErr)
	assert.Contains(t, apiErr.Message, "Unsupported backend")

	// Nothing must be persisted for a rejected backend
	assert.Empty(t, store.ListMeshes(""))
}

func TestCreateMeshValidation(t *testing.T) {
	srv, _ := newTestServer(t, testCfg())

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/service-mesh", `{"name":"edge"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var apiErr APIError
	decode(t, rec, &apiErr)
	assert.Contains(t, apiErr.FieldError, "projectId")
	assert.Contains(t, apiErr.FieldError, "type")
}

func TestFailedDeployLeavesMeshInspectable(t *testing.T) {
	srv, _ := newTestServer(t, testCfg())

	// Linkerd requires mutual TLS; generation fails and the mesh lands in
	// error status but stays visible.
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/service-mesh",
		`{"projectId":"p1","name":"plain","type":"linkerd"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created models.ServiceMesh
	decode(t, rec, &created)

	srv.dispatcher.Wait()

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/service-mesh/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched models.ServiceMesh
	decode(t, rec, &fetched)
	assert.Equal(t, models.StatusError, fetched.Status)
	assert.Contains(t, fetched.StatusDetail, "unsupported")
}

func TestGetMeshNotFound(t *testing.T) {
	srv, _ := newTestServer(t, testCfg())

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/service-mesh/mesh:missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func createMesh(t *testing.T, srv *Server, meshType string) models.ServiceMesh {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/service-mesh",
		`{"projectId":"p1","name":"edge","type":"`+meshType+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var mesh models.ServiceMesh
	decode(t, rec, &mesh)
	srv.dispatcher.Wait()
	return mesh
}

func TestRegisterServiceRunningContainer(t *testing.T) {
	srv, _ := newTestServer(t, testCfg())
	mesh := createMesh(t, srv, "nginx")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/service-mesh/"+mesh.ID+"/services",
		`{"name":"orders","containerId":"c-run","ports":[
			{"name":"http","port":80,"targetPort":8080,"protocol":"HTTP"},
			{"name":"grpc","port":81,"targetPort":9090,"protocol":"GRPC"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var svc models.MeshService
	decode(t, rec, &svc)
	require.Len(t, svc.Endpoints, 2)
	assert.Equal(t, "172.17.0.9", svc.Endpoints[0].Address)
	assert.Equal(t, 8080, svc.Endpoints[0].Port)
	assert.Equal(t, models.EndpointHealthy, svc.Endpoints[0].Status)
}

func TestRegisterServiceStoppedContainer(t *testing.T) {
	srv, _ := newTestServer(t, testCfg())
	mesh := createMesh(t, srv, "nginx")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/service-mesh/"+mesh.ID+"/services",
		`{"name":"orders","containerId":"c-stop","ports":[{"name":"http","port":80,"targetPort":8080,"protocol":"HTTP"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// A stopped container yields zero endpoints, not an error
	var svc models.MeshService
	decode(t, rec, &svc)
	assert.NotNil(t, svc.Endpoints)
	assert.Empty(t, svc.Endpoints)
}

func TestCreatePolicyDirectionMismatch(t *testing.T) {
	srv, _ := newTestServer(t, testCfg())
	mesh := createMesh(t, srv, "nginx")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/service-mesh/"+mesh.ID+"/policies",
		`{"name":"bad","type":"ingress","rules":[{"direction":"egress","action":"allow"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var apiErr APIError
	decode(t, rec, &apiErr)
	require.Contains(t, apiErr.FieldError, "rules[0].direction")
	assert.Contains(t, apiErr.FieldError["rules[0].direction"], "egress rule not allowed")
}

func TestCreatePolicyValid(t *testing.T) {
	srv, store := newTestServer(t, testCfg())
	mesh := createMesh(t, srv, "nginx")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/service-mesh/"+mesh.ID+"/policies",
		`{"name":"allow-web","type":"ingress","rules":[{"direction":"ingress","action":"allow","ports":[80]}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Len(t, store.ListPolicies(mesh.ID, ""), 1)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/network-policies", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list PoliciesResponse
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Count)
}

func createGateway(t *testing.T, srv *Server) models.APIGateway {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/api-gateway",
		`{"projectId":"p1","name":"edge-gw","type":"envoy","listeners":[{"name":"http","port":8443,"protocol":"HTTP"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var gw models.APIGateway
	decode(t, rec, &gw)
	srv.dispatcher.Wait()
	return gw
}

func TestCreateRouteDanglingUpstream(t *testing.T) {
	srv, _ := newTestServer(t, testCfg())
	gw := createGateway(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/api-gateway/"+gw.ID+"/routes",
		`{"name":"orders","pathPrefix":"/orders","upstreamId":"upstream:missing"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestCreateRouteWithUpstream(t *testing.T) {
	srv, _ := newTestServer(t, testCfg())
	gw := createGateway(t, srv)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/api-gateway/"+gw.ID+"/upstreams",
		`{"name":"orders","targets":[{"host":"10.0.0.1","port":8080,"weight":1}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var up models.Upstream
	decode(t, rec, &up)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/api-gateway/"+gw.ID+"/routes",
		`{"name":"orders","pathPrefix":"/orders","upstreamId":"`+up.ID+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/api-gateway/"+gw.ID+"/routes", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var routes RoutesResponse
	decode(t, rec, &routes)
	assert.Equal(t, 1, routes.Count)
}

func TestGatewayRejectsControlPlaneType(t *testing.T) {
	srv, _ := newTestServer(t, testCfg())

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/api-gateway",
		`{"projectId":"p1","name":"edge-gw","type":"istio","listeners":[{"name":"http","port":8443,"protocol":"HTTP"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSelectEndpointRoundRobin(t *testing.T) {
	srv, _ := newTestServer(t, testCfg())
	mesh := createMesh(t, srv, "nginx")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/service-mesh/"+mesh.ID+"/services",
		`{"name":"orders","containerId":"c-run","loadBalancer":{"algorithm":"round_robin"},"ports":[
			{"name":"a","port":80,"targetPort":8080,"protocol":"HTTP"},
			{"name":"b","port":81,"targetPort":9090,"protocol":"HTTP"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var svc models.MeshService
	decode(t, rec, &svc)

	seen := map[int]bool{}
	for i := 0; i < 2; i++ {
		rec = doJSON(t, srv, http.MethodGet,
			"/api/v1/service-mesh/"+mesh.ID+"/services/"+svc.ID+"/endpoint?client=10.1.1.1", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp EndpointResponse
		decode(t, rec, &resp)
		seen[resp.Endpoint.Port] = true
	}
	assert.Len(t, seen, 2, "round robin should visit both endpoints in two calls")
}

func TestSelectEndpointNoHealthy(t *testing.T) {
	srv, _ := newTestServer(t, testCfg())
	mesh := createMesh(t, srv, "nginx")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/service-mesh/"+mesh.ID+"/services",
		`{"name":"orders","containerId":"c-stop","ports":[{"name":"http","port":80,"targetPort":8080,"protocol":"HTTP"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var svc models.MeshService
	decode(t, rec, &svc)

	rec = doJSON(t, srv, http.MethodGet,
		"/api/v1/service-mesh/"+mesh.ID+"/services/"+svc.ID+"/endpoint", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDeleteMeshCascades(t *testing.T) {
	srv, store := newTestServer(t, testCfg())
	mesh := createMesh(t, srv, "nginx")

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/service-mesh/"+mesh.ID+"/services",
		`{"name":"orders","containerId":"c-run","ports":[{"name":"http","port":80,"targetPort":8080,"protocol":"HTTP"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/service-mesh/"+mesh.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/service-mesh/"+mesh.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, store.ListServices(mesh.ID, ""))
}

func TestListMeshesFilters(t *testing.T) {
	srv, _ := newTestServer(t, testCfg())
	createMesh(t, srv, "nginx")

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/service-mesh?status=active", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var list PaginatedMeshesResponse
	decode(t, rec, &list)
	assert.Equal(t, 1, list.Total)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/service-mesh?status=error", "")
	decode(t, rec, &list)
	assert.Equal(t, 0, list.Total)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/service-mesh?status=banana", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeshManifestEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, testCfg())
	mesh := createMesh(t, srv, "nginx")

	rec := doJSON(t, srv, http.MethodGet, "/api/v1/service-mesh/"+mesh.ID+"/manifest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "nginx.conf")
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t, testCfg())
	createMesh(t, srv, "nginx")

	rec := doJSON(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "meshgate")

	rec = doJSON(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "meshgate_")
}

func authCfg(t *testing.T) *config.Config {
	t.Helper()

	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)

	cfg := testCfg()
	cfg.Security.AuthEnabled = true
	cfg.Security.JWTSecret = "test-secret"
	cfg.Security.JWTExpiration = time.Hour
	cfg.Security.RefreshTokenExpiration = 24 * time.Hour
	cfg.Security.Users = map[string]config.UserConfig{
		"operator": {PasswordHash: hash, Role: "write"},
	}
	return cfg
}

func TestLoginAndMe(t *testing.T) {
	srv, _ := newTestServer(t, authCfg(t))

	// Unauthenticated writes are rejected
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/service-mesh",
		`{"projectId":"p1","name":"edge","type":"nginx"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/auth/login",
		`{"username":"operator","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/auth/login",
		`{"username":"operator","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var login LoginResponse
	decode(t, rec, &login)
	require.NotEmpty(t, login.AccessToken)

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/auth/me", "",
		"Authorization", "Bearer "+login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "operator")

	// Token grants write access
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/service-mesh",
		`{"projectId":"p1","name":"edge","type":"nginx"}`,
		"Authorization", "Bearer "+login.AccessToken)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRefreshRotatesToken(t *testing.T) {
	srv, _ := newTestServer(t, authCfg(t))

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/auth/login",
		`{"username":"operator","password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var login LoginResponse
	decode(t, rec, &login)

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/auth/refresh",
		`{"username":"operator","refresh_token":"`+login.RefreshToken+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var refreshed LoginResponse
	decode(t, rec, &refreshed)
	assert.NotEmpty(t, refreshed.AccessToken)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The old refresh token is burned
	rec = doJSON(t, srv, http.MethodPost, "/api/v1/auth/refresh",
		`{"username":"operator","refresh_token":"`+login.RefreshToken+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
