package manifest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vaporform/meshgate/models"
)

// EnvoyGenerator emits a structured listener+cluster configuration object in
// the shape the target proxy expects, serialized as indented JSON. Unlike
// the YAML backends the artifact stays a structured document so callers can
// feed it to an xDS-style management endpoint without re-parsing text.
type EnvoyGenerator struct{}

func (EnvoyGenerator) Backend() string { return string(models.MeshTypeEnvoy) }

// envoyConfig mirrors the proxy's static bootstrap shape. Only structs are
// used so the serialized form is stable.
type envoyConfig struct {
	Node      envoyNode       `json:"node"`
	Listeners []envoyListener `json:"listeners"`
	Clusters  []envoyCluster  `json:"clusters"`
}

type envoyNode struct {
	ID      string `json:"id"`
	Cluster string `json:"cluster"`
}

type envoyListener struct {
	Name    string       `json:"name"`
	Address string       `json:"address"`
	Port    int          `json:"port"`
	Routes  []envoyRoute `json:"routes"`
	TLS     bool         `json:"tls,omitempty"`
	RBAC    *envoyRBAC   `json:"rbac,omitempty"`
}

type envoyRoute struct {
	Name       string `json:"name"`
	Host       string `json:"host,omitempty"`
	Method     string `json:"method,omitempty"`
	PathPrefix string `json:"pathPrefix"`
	Cluster    string `json:"cluster"`
	TimeoutMs  int    `json:"timeoutMs,omitempty"`
	Retries    int    `json:"retries,omitempty"`
}

type envoyRBAC struct {
	Action string `json:"action"`
}

type envoyCluster struct {
	Name            string          `json:"name"`
	ConnectTimeout  string          `json:"connectTimeout"`
	LBPolicy        string          `json:"lbPolicy"`
	Endpoints       []envoyEndpoint `json:"endpoints"`
	TLSMode         string          `json:"tlsMode,omitempty"`
	OutlierEjection bool            `json:"outlierEjection,omitempty"`
}

type envoyEndpoint struct {
	Address string `json:"address"`
	Port    int    `json:"port"`
	Weight  int    `json:"weight,omitempty"`
}

// Mesh renders an ingress/egress proxy bootstrap for the mesh.
func (g EnvoyGenerator) Mesh(m *models.ServiceMesh) (*Artifact, error) {
	cfg := m.Configuration

	conf := envoyConfig{
		Node: envoyNode{
			ID:      m.Name,
			Cluster: m.ProjectID,
		},
		Listeners: []envoyListener{},
		Clusters:  []envoyCluster{},
	}

	if cfg.IngressGateway.Enabled {
		l := envoyListener{
			Name:    "ingress",
			Address: "0.0.0.0",
			Port:    ingressPort(cfg.IngressGateway, 8080),
			Routes: []envoyRoute{
				{Name: "default", PathPrefix: "/", Cluster: "local_service"},
			},
			TLS: cfg.IngressGateway.TLSMode != "",
		}
		if cfg.RBACEnabled {
			l.RBAC = &envoyRBAC{Action: "ALLOW"}
		}
		conf.Listeners = append(conf.Listeners, l)
		conf.Clusters = append(conf.Clusters, envoyCluster{
			Name:           "local_service",
			ConnectTimeout: "5s",
			LBPolicy:       "ROUND_ROBIN",
			Endpoints:      []envoyEndpoint{{Address: "127.0.0.1", Port: 8000}},
			TLSMode:        meshTLSMode(cfg),
		})
	}

	if cfg.EgressGateway.Enabled {
		conf.Listeners = append(conf.Listeners, envoyListener{
			Name:    "egress",
			Address: "127.0.0.1",
			Port:    ingressPort(cfg.EgressGateway, 8443),
			Routes: []envoyRoute{
				{Name: "passthrough", PathPrefix: "/", Cluster: "egress_passthrough"},
			},
		})
		conf.Clusters = append(conf.Clusters, envoyCluster{
			Name:           "egress_passthrough",
			ConnectTimeout: "5s",
			LBPolicy:       "ROUND_ROBIN",
			Endpoints:      []envoyEndpoint{},
		})
	}

	return envoyArtifact(g.Backend(), "envoy-config.json", conf)
}

// Gateway renders listeners from the gateway's listener set and one cluster
// per upstream; routes become listener route entries pointing at their
// upstream's cluster.
func (g EnvoyGenerator) Gateway(gw *models.APIGateway, routes []*models.APIRoute, upstreams []*models.Upstream) (*Artifact, error) {
	byID := upstreamByID(upstreams)

	conf := envoyConfig{
		Node: envoyNode{
			ID:      gw.Name,
			Cluster: gw.ProjectID,
		},
	}

	var routeEntries []envoyRoute
	for _, r := range sortRoutes(routes) {
		up, ok := byID[r.UpstreamID]
		if !ok {
			return nil, fmt.Errorf("route %s references unknown upstream %s", r.Name, r.UpstreamID)
		}
		routeEntries = append(routeEntries, envoyRoute{
			Name:       r.Name,
			Host:       r.Host,
			Method:     r.Method,
			PathPrefix: r.PathPrefix,
			Cluster:    clusterName(up.Name),
			TimeoutMs:  timeoutMillis(r.Timeout.Request),
			Retries:    r.Retry.Attempts,
		})
	}

	for _, l := range gw.Listeners {
		conf.Listeners = append(conf.Listeners, envoyListener{
			Name:    l.Name,
			Address: "0.0.0.0",
			Port:    l.Port,
			Routes:  routeEntries,
			TLS:     l.TLS,
		})
	}

	for _, u := range sortUpstreams(upstreams) {
		cluster := envoyCluster{
			Name:            clusterName(u.Name),
			ConnectTimeout:  "5s",
			LBPolicy:        "ROUND_ROBIN",
			OutlierEjection: u.HealthCheck.Enabled,
		}
		for _, t := range u.Targets {
			cluster.Endpoints = append(cluster.Endpoints, envoyEndpoint{
				Address: t.Host,
				Port:    t.Port,
				Weight:  t.Weight,
			})
		}
		conf.Clusters = append(conf.Clusters, cluster)
	}

	return envoyArtifact(g.Backend(), "envoy-gateway.json", conf)
}

func envoyArtifact(backend, name string, conf envoyConfig) (*Artifact, error) {
	data, err := json.MarshalIndent(conf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal envoy config: %w", err)
	}
	data = append(data, '\n')

	return &Artifact{
		Backend: backend,
		Documents: []Document{
			{Name: name, ContentType: "application/json", Data: data},
		},
	}, nil
}

func clusterName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

func meshTLSMode(cfg models.MeshConfiguration) string {
	if cfg.MTLSEnabled {
		return "MUTUAL"
	}
	return ""
}

// timeoutMillis parses a Go duration string into milliseconds, returning
// zero for empty or malformed values so a bad policy never breaks rendering.
func timeoutMillis(d string) int {
	if d == "" {
		return 0
	}
	parsed, err := time.ParseDuration(d)
	if err != nil {
		return 0
	}
	return int(parsed.Milliseconds())
}
