package manifest

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vaporform/meshgate/models"
)

// TraefikGenerator emits a static configuration (entry points, providers)
// plus a dynamic configuration (routers, services, middlewares) as two YAML
// documents. Mutual TLS, egress gateways and RBAC fail generation.
type TraefikGenerator struct{}

func (TraefikGenerator) Backend() string { return string(models.MeshTypeTraefik) }

type traefikStatic struct {
	EntryPoints map[string]traefikEntryPoint `yaml:"entryPoints"`
	Providers   traefikProviders             `yaml:"providers"`
	Log         traefikLog                   `yaml:"log"`
	AccessLog   *traefikAccessLog            `yaml:"accessLog,omitempty"`
	Metrics     *traefikMetrics              `yaml:"metrics,omitempty"`
	Tracing     *traefikTracing              `yaml:"tracing,omitempty"`
}

type traefikEntryPoint struct {
	Address string `yaml:"address"`
}

type traefikProviders struct {
	File traefikFileProvider `yaml:"file"`
}

type traefikFileProvider struct {
	Filename string `yaml:"filename"`
}

type traefikLog struct {
	Level string `yaml:"level"`
}

type traefikAccessLog struct{}

type traefikMetrics struct {
	Prometheus traefikPrometheus `yaml:"prometheus"`
}

type traefikPrometheus struct {
	AddEntryPointsLabels bool `yaml:"addEntryPointsLabels"`
}

type traefikTracing struct {
	ServiceName string `yaml:"serviceName"`
}

type traefikDynamic struct {
	HTTP traefikHTTP `yaml:"http"`
}

type traefikHTTP struct {
	Routers     map[string]traefikRouter     `yaml:"routers,omitempty"`
	Services    map[string]traefikService    `yaml:"services,omitempty"`
	Middlewares map[string]traefikMiddleware `yaml:"middlewares,omitempty"`
}

type traefikRouter struct {
	Rule        string      `yaml:"rule"`
	EntryPoints []string    `yaml:"entryPoints"`
	Service     string      `yaml:"service"`
	Middlewares []string    `yaml:"middlewares,omitempty"`
	TLS         *traefikTLS `yaml:"tls,omitempty"`
}

type traefikTLS struct{}

type traefikService struct {
	LoadBalancer traefikLoadBalancer `yaml:"loadBalancer"`
}

type traefikLoadBalancer struct {
	Servers     []traefikServer     `yaml:"servers"`
	HealthCheck *traefikHealthCheck `yaml:"healthCheck,omitempty"`
}

type traefikServer struct {
	URL    string `yaml:"url"`
	Weight int    `yaml:"weight,omitempty"`
}

type traefikHealthCheck struct {
	Path     string `yaml:"path"`
	Interval string `yaml:"interval,omitempty"`
	Timeout  string `yaml:"timeout,omitempty"`
}

type traefikMiddleware struct {
	RateLimit *traefikRateLimit `yaml:"rateLimit,omitempty"`
	Retry     *traefikRetry     `yaml:"retry,omitempty"`
}

type traefikRateLimit struct {
	Average int `yaml:"average"`
	Burst   int `yaml:"burst,omitempty"`
}

type traefikRetry struct {
	Attempts int `yaml:"attempts"`
}

// Mesh renders an ingress-only static configuration.
func (g TraefikGenerator) Mesh(m *models.ServiceMesh) (*Artifact, error) {
	cfg := m.Configuration

	if cfg.MTLSEnabled {
		return nil, unsupported(g.Backend(), "mutual TLS")
	}
	if cfg.EgressGateway.Enabled {
		return nil, unsupported(g.Backend(), "egress gateways")
	}
	if cfg.RBACEnabled {
		return nil, unsupported(g.Backend(), "RBAC authorization policies")
	}

	static := traefikStatic{
		EntryPoints: map[string]traefikEntryPoint{},
		Providers: traefikProviders{
			File: traefikFileProvider{Filename: "/etc/traefik/dynamic.yaml"},
		},
		Log: traefikLog{Level: traefikLogLevel(cfg.LoggingEnabled)},
	}
	if cfg.IngressGateway.Enabled {
		static.EntryPoints["web"] = traefikEntryPoint{
			Address: fmt.Sprintf(":%d", ingressPort(cfg.IngressGateway, 80)),
		}
	}
	if cfg.LoggingEnabled {
		static.AccessLog = &traefikAccessLog{}
	}
	if cfg.MetricsEnabled {
		static.Metrics = &traefikMetrics{
			Prometheus: traefikPrometheus{AddEntryPointsLabels: true},
		}
	}
	if cfg.TracingEnabled {
		static.Tracing = &traefikTracing{ServiceName: m.Name}
	}

	data, err := yaml.Marshal(static)
	if err != nil {
		return nil, fmt.Errorf("marshal traefik static config: %w", err)
	}

	return &Artifact{
		Backend: g.Backend(),
		Documents: []Document{
			{Name: "traefik.yaml", ContentType: "application/yaml", Data: data},
		},
	}, nil
}

// Gateway renders static entry points per listener and a dynamic
// configuration with one router per route and one service per upstream.
//
// The dynamic maps are keyed by entity name; yaml.v3 sorts map keys on
// marshal, so output stays deterministic.
func (g TraefikGenerator) Gateway(gw *models.APIGateway, routes []*models.APIRoute, upstreams []*models.Upstream) (*Artifact, error) {
	byID := upstreamByID(upstreams)

	static := traefikStatic{
		EntryPoints: map[string]traefikEntryPoint{},
		Providers: traefikProviders{
			File: traefikFileProvider{Filename: "/etc/traefik/dynamic.yaml"},
		},
		Log:       traefikLog{Level: "INFO"},
		AccessLog: &traefikAccessLog{},
	}
	var entryPoints []string
	for _, l := range gw.Listeners {
		static.EntryPoints[l.Name] = traefikEntryPoint{
			Address: fmt.Sprintf(":%d", l.Port),
		}
		entryPoints = append(entryPoints, l.Name)
	}

	dynamic := traefikDynamic{
		HTTP: traefikHTTP{
			Routers:  map[string]traefikRouter{},
			Services: map[string]traefikService{},
		},
	}

	for _, u := range sortUpstreams(upstreams) {
		svc := traefikService{}
		for _, t := range u.Targets {
			svc.LoadBalancer.Servers = append(svc.LoadBalancer.Servers, traefikServer{
				URL:    fmt.Sprintf("http://%s:%d", t.Host, t.Port),
				Weight: t.Weight,
			})
		}
		if u.HealthCheck.Enabled {
			svc.LoadBalancer.HealthCheck = &traefikHealthCheck{
				Path:     u.HealthCheck.Path,
				Interval: u.HealthCheck.Interval,
				Timeout:  u.HealthCheck.Timeout,
			}
		}
		dynamic.HTTP.Services[clusterName(u.Name)] = svc
	}

	if gw.RateLimit.Enabled {
		dynamic.HTTP.Middlewares = map[string]traefikMiddleware{
			"ratelimit": {
				RateLimit: &traefikRateLimit{
					Average: gw.RateLimit.RequestsPerSecond,
					Burst:   gw.RateLimit.Burst,
				},
			},
		}
	}

	for _, r := range sortRoutes(routes) {
		up, ok := byID[r.UpstreamID]
		if !ok {
			return nil, fmt.Errorf("route %s references unknown upstream %s", r.Name, r.UpstreamID)
		}
		router := traefikRouter{
			Rule:        traefikRule(r),
			EntryPoints: entryPoints,
			Service:     clusterName(up.Name),
		}
		if gw.RateLimit.Enabled {
			router.Middlewares = append(router.Middlewares, "ratelimit")
		}
		if r.Retry.Attempts > 0 {
			mwName := clusterName(r.Name) + "-retry"
			if dynamic.HTTP.Middlewares == nil {
				dynamic.HTTP.Middlewares = map[string]traefikMiddleware{}
			}
			dynamic.HTTP.Middlewares[mwName] = traefikMiddleware{
				Retry: &traefikRetry{Attempts: r.Retry.Attempts},
			}
			router.Middlewares = append(router.Middlewares, mwName)
		}
		for _, l := range gw.Listeners {
			if l.TLS {
				router.TLS = &traefikTLS{}
				break
			}
		}
		dynamic.HTTP.Routers[clusterName(r.Name)] = router
	}

	staticData, err := yaml.Marshal(static)
	if err != nil {
		return nil, fmt.Errorf("marshal traefik static config: %w", err)
	}
	dynamicData, err := yaml.Marshal(dynamic)
	if err != nil {
		return nil, fmt.Errorf("marshal traefik dynamic config: %w", err)
	}

	return &Artifact{
		Backend: g.Backend(),
		Documents: []Document{
			{Name: "traefik.yaml", ContentType: "application/yaml", Data: staticData},
			{Name: "dynamic.yaml", ContentType: "application/yaml", Data: dynamicData},
		},
	}, nil
}

// traefikRule builds the router match rule from the route's method, host and
// path in a fixed clause order.
func traefikRule(r *models.APIRoute) string {
	var clauses []string
	if r.Host != "" {
		clauses = append(clauses, fmt.Sprintf("Host(`%s`)", r.Host))
	}
	clauses = append(clauses, fmt.Sprintf("PathPrefix(`%s`)", r.PathPrefix))
	if r.Method != "" {
		clauses = append(clauses, fmt.Sprintf("Method(`%s`)", r.Method))
	}
	return strings.Join(clauses, " && ")
}

func traefikLogLevel(verbose bool) string {
	if verbose {
		return "INFO"
	}
	return "WARN"
}
