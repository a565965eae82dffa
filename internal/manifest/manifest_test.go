package manifest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaporform/meshgate/models"
)

func testMesh(t models.MeshType, cfg models.MeshConfiguration) *models.ServiceMesh {
	return &models.ServiceMesh{
		ID:            "mesh:test",
		ProjectID:     "project:test",
		Name:          "payments-mesh",
		Type:          t,
		Configuration: cfg,
	}
}

func testGateway() (*models.APIGateway, []*models.APIRoute, []*models.Upstream) {
	gw := &models.APIGateway{
		ID:        "gateway:test",
		ProjectID: "project:test",
		Name:      "edge",
		Listeners: []models.Listener{
			{Name: "web", Port: 8080, Protocol: models.ProtocolHTTP},
		},
	}
	upstreams := []*models.Upstream{
		{
			ID:        "upstream:orders",
			GatewayID: gw.ID,
			Name:      "orders",
			Targets: []models.Target{
				{Host: "10.0.0.1", Port: 9000, Weight: 2},
				{Host: "10.0.0.2", Port: 9000, Weight: 1},
			},
		},
		{
			ID:        "upstream:billing",
			GatewayID: gw.ID,
			Name:      "billing",
			Targets: []models.Target{
				{Host: "10.0.1.1", Port: 9100},
			},
		},
	}
	routes := []*models.APIRoute{
		{
			ID:         "route:orders",
			GatewayID:  gw.ID,
			Name:       "orders",
			Method:     "GET",
			PathPrefix: "/orders",
			UpstreamID: "upstream:orders",
			Timeout:    models.TimeoutPolicy{Request: "2s"},
			Retry:      models.RetryPolicy{Attempts: 3},
		},
		{
			ID:         "route:billing",
			GatewayID:  gw.ID,
			Name:       "billing",
			PathPrefix: "/billing",
			UpstreamID: "upstream:billing",
		},
	}
	return gw, routes, upstreams
}

func TestGeneratorsCoverAllBackends(t *testing.T) {
	gens := Generators()
	assert.Len(t, gens, len(models.MeshTypes))
	for _, mt := range models.MeshTypes {
		g, ok := gens[string(mt)]
		require.True(t, ok, "missing generator for %s", mt)
		assert.Equal(t, string(mt), g.Backend())
	}
}

func TestMeshGenerationIsDeterministic(t *testing.T) {
	configs := map[models.MeshType]models.MeshConfiguration{
		models.MeshTypeIstio: {
			MTLSEnabled:       true,
			TracingEnabled:    true,
			MetricsEnabled:    true,
			LoggingEnabled:    true,
			RBACEnabled:       true,
			IngressGateway:    models.GatewaySettings{Enabled: true, Port: 443, TLSMode: "SIMPLE"},
			EgressGateway:     models.GatewaySettings{Enabled: true},
			SidecarNamespaces: []string{"default", "payments"},
		},
		models.MeshTypeLinkerd: {
			MTLSEnabled:       true,
			TracingEnabled:    true,
			TracingProvider:   "jaeger",
			SidecarNamespaces: []string{"default"},
		},
		models.MeshTypeEnvoy: {
			MTLSEnabled:    true,
			RBACEnabled:    true,
			IngressGateway: models.GatewaySettings{Enabled: true, Port: 8443, TLSMode: "SIMPLE"},
			EgressGateway:  models.GatewaySettings{Enabled: true},
		},
		models.MeshTypeNginx: {
			LoggingEnabled: true,
			MetricsEnabled: true,
			IngressGateway: models.GatewaySettings{Enabled: true, Port: 80, Hostname: "api.example.com"},
		},
		models.MeshTypeTraefik: {
			LoggingEnabled: true,
			MetricsEnabled: true,
			TracingEnabled: true,
			IngressGateway: models.GatewaySettings{Enabled: true, Port: 80},
		},
	}

	gens := Generators()
	for mt, cfg := range configs {
		t.Run(string(mt), func(t *testing.T) {
			g := gens[string(mt)]
			m := testMesh(mt, cfg)

			first, err := g.Mesh(m)
			require.NoError(t, err)
			require.NotEmpty(t, first.Documents)

			second, err := g.Mesh(m)
			require.NoError(t, err)
			require.Len(t, second.Documents, len(first.Documents))
			for i := range first.Documents {
				assert.Equal(t, first.Documents[i].Name, second.Documents[i].Name)
				assert.Equal(t, first.Documents[i].Data, second.Documents[i].Data)
			}
			assert.Equal(t, first.NamespaceLabels, second.NamespaceLabels)
		})
	}
}

func TestIstioConditionalDocuments(t *testing.T) {
	g := IstioGenerator{}

	t.Run("operator only", func(t *testing.T) {
		art, err := g.Mesh(testMesh(models.MeshTypeIstio, models.MeshConfiguration{MTLSEnabled: true}))
		require.NoError(t, err)
		require.Len(t, art.Documents, 1)
		assert.Equal(t, "istio-operator.yaml", art.Documents[0].Name)
		assert.Empty(t, art.NamespaceLabels)
	})

	t.Run("ingress adds gateway document", func(t *testing.T) {
		art, err := g.Mesh(testMesh(models.MeshTypeIstio, models.MeshConfiguration{
			IngressGateway: models.GatewaySettings{Enabled: true, Port: 443, TLSMode: "SIMPLE"},
		}))
		require.NoError(t, err)
		require.Len(t, art.Documents, 2)
		assert.Equal(t, "istio-gateway.yaml", art.Documents[1].Name)
		assert.Contains(t, string(art.Documents[1].Data), "number: 443")
		assert.Contains(t, string(art.Documents[1].Data), "mode: SIMPLE")
	})

	t.Run("rbac adds authorization policy", func(t *testing.T) {
		art, err := g.Mesh(testMesh(models.MeshTypeIstio, models.MeshConfiguration{RBACEnabled: true}))
		require.NoError(t, err)
		require.Len(t, art.Documents, 2)
		assert.Equal(t, "istio-authorization-policy.yaml", art.Documents[1].Name)
	})

	t.Run("sidecar namespaces become labels", func(t *testing.T) {
		art, err := g.Mesh(testMesh(models.MeshTypeIstio, models.MeshConfiguration{
			SidecarNamespaces: []string{"default", "payments"},
		}))
		require.NoError(t, err)
		require.Len(t, art.NamespaceLabels, 2)
		assert.Equal(t, NamespaceLabel{Namespace: "default", Key: "istio-injection", Value: "enabled"}, art.NamespaceLabels[0])
	})
}

func TestUnsupportedConfigurations(t *testing.T) {
	cases := []struct {
		name string
		mt   models.MeshType
		cfg  models.MeshConfiguration
	}{
		{"linkerd without mtls", models.MeshTypeLinkerd, models.MeshConfiguration{MTLSEnabled: false}},
		{"linkerd egress", models.MeshTypeLinkerd, models.MeshConfiguration{MTLSEnabled: true, EgressGateway: models.GatewaySettings{Enabled: true}}},
		{"linkerd rbac", models.MeshTypeLinkerd, models.MeshConfiguration{MTLSEnabled: true, RBACEnabled: true}},
		{"nginx mtls", models.MeshTypeNginx, models.MeshConfiguration{MTLSEnabled: true}},
		{"nginx egress", models.MeshTypeNginx, models.MeshConfiguration{EgressGateway: models.GatewaySettings{Enabled: true}}},
		{"nginx rbac", models.MeshTypeNginx, models.MeshConfiguration{RBACEnabled: true}},
		{"traefik mtls", models.MeshTypeTraefik, models.MeshConfiguration{MTLSEnabled: true}},
		{"traefik egress", models.MeshTypeTraefik, models.MeshConfiguration{EgressGateway: models.GatewaySettings{Enabled: true}}},
		{"traefik rbac", models.MeshTypeTraefik, models.MeshConfiguration{RBACEnabled: true}},
	}

	gens := Generators()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := gens[string(tc.mt)].Mesh(testMesh(tc.mt, tc.cfg))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
}

func TestControlPlaneBackendsRejectGateways(t *testing.T) {
	gw, routes, upstreams := testGateway()

	for _, g := range []Generator{IstioGenerator{}, LinkerdGenerator{}} {
		_, err := g.Gateway(gw, routes, upstreams)
		assert.ErrorIs(t, err, ErrUnsupported, "backend %s", g.Backend())
	}
}

func TestEnvoyGateway(t *testing.T) {
	gw, routes, upstreams := testGateway()

	art, err := EnvoyGenerator{}.Gateway(gw, routes, upstreams)
	require.NoError(t, err)
	require.Len(t, art.Documents, 1)

	conf := string(art.Documents[0].Data)
	// Routes and clusters are name-sorted regardless of input order.
	assert.Less(t, strings.Index(conf, `"name": "billing"`), strings.Index(conf, `"name": "orders"`))
	assert.Contains(t, conf, `"cluster": "orders"`)
	assert.Contains(t, conf, `"timeoutMs": 2000`)
	assert.Contains(t, conf, `"retries": 3`)
	assert.Contains(t, conf, `"port": 8080`)
}

func TestEnvoyGatewayDanglingUpstream(t *testing.T) {
	gw, routes, upstreams := testGateway()
	routes[0].UpstreamID = "upstream:missing"

	_, err := EnvoyGenerator{}.Gateway(gw, routes, upstreams)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown upstream")
}

func TestNginxGateway(t *testing.T) {
	gw, routes, upstreams := testGateway()
	gw.RateLimit = models.RateLimitPolicy{Enabled: true, RequestsPerSecond: 100, Burst: 20}

	art, err := NginxGenerator{}.Gateway(gw, routes, upstreams)
	require.NoError(t, err)
	require.Len(t, art.Documents, 1)

	conf := string(art.Documents[0].Data)
	assert.Contains(t, conf, "upstream billing {")
	assert.Contains(t, conf, "upstream orders {")
	assert.Contains(t, conf, "server 10.0.0.1:9000 weight=2;")
	assert.Contains(t, conf, "listen 8080;")
	assert.Contains(t, conf, "location /orders {")
	assert.Contains(t, conf, "proxy_pass http://orders;")
	assert.Contains(t, conf, "limit_req_zone $binary_remote_addr zone=edge:10m rate=100r/s;")
	assert.Contains(t, conf, "proxy_read_timeout 2000ms;")
}

func TestTraefikGateway(t *testing.T) {
	gw, routes, upstreams := testGateway()

	art, err := TraefikGenerator{}.Gateway(gw, routes, upstreams)
	require.NoError(t, err)
	require.Len(t, art.Documents, 2)
	assert.Equal(t, "traefik.yaml", art.Documents[0].Name)
	assert.Equal(t, "dynamic.yaml", art.Documents[1].Name)

	static := string(art.Documents[0].Data)
	assert.Contains(t, static, "address: :8080")

	dynamic := string(art.Documents[1].Data)
	assert.Contains(t, dynamic, "rule: PathPrefix(`/billing`)")
	assert.Contains(t, dynamic, "rule: PathPrefix(`/orders`) && Method(`GET`)")
	assert.Contains(t, dynamic, "url: http://10.0.0.1:9000")
	assert.Contains(t, dynamic, "orders-retry")
}

func TestGatewayGenerationIsDeterministic(t *testing.T) {
	gw, routes, upstreams := testGateway()

	for _, g := range []Generator{EnvoyGenerator{}, NginxGenerator{}, TraefikGenerator{}} {
		t.Run(g.Backend(), func(t *testing.T) {
			first, err := g.Gateway(gw, routes, upstreams)
			require.NoError(t, err)

			// Reverse input order; output must not change.
			reversedRoutes := []*models.APIRoute{routes[1], routes[0]}
			reversedUpstreams := []*models.Upstream{upstreams[1], upstreams[0]}
			second, err := g.Gateway(gw, reversedRoutes, reversedUpstreams)
			require.NoError(t, err)

			require.Len(t, second.Documents, len(first.Documents))
			for i := range first.Documents {
				assert.Equal(t, first.Documents[i].Data, second.Documents[i].Data)
			}
		})
	}
}
