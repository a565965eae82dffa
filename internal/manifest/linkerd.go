package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/vaporform/meshgate/models"
)

// LinkerdGenerator emits a Linkerd control-plane values document. Linkerd
// enables mutual TLS unconditionally, so the mTLS toggle only fails when
// explicitly switched off. Egress gateways and RBAC authorization policies
// are outside what this generator can express.
type LinkerdGenerator struct{}

func (LinkerdGenerator) Backend() string { return string(models.MeshTypeLinkerd) }

type linkerdValues struct {
	ClusterDomain    string           `yaml:"clusterDomain"`
	IdentityTrust    string           `yaml:"identityTrustDomain"`
	ProxyInit        linkerdProxyInit `yaml:"proxyInit"`
	Proxy            linkerdProxy     `yaml:"proxy"`
	Tracing          linkerdTracing   `yaml:"tracing"`
	PrometheusURL    string           `yaml:"prometheusUrl,omitempty"`
	DisableHeartbeat bool             `yaml:"disableHeartBeat"`
}

type linkerdProxyInit struct {
	IgnoreInboundPorts string `yaml:"ignoreInboundPorts"`
}

type linkerdProxy struct {
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

type linkerdTracing struct {
	Enabled   bool   `yaml:"enabled"`
	Collector string `yaml:"collector,omitempty"`
}

// Mesh renders the control-plane values for a Linkerd installation.
func (g LinkerdGenerator) Mesh(m *models.ServiceMesh) (*Artifact, error) {
	cfg := m.Configuration

	if !cfg.MTLSEnabled {
		return nil, unsupported(g.Backend(), "disabling mutual TLS")
	}
	if cfg.EgressGateway.Enabled {
		return nil, unsupported(g.Backend(), "egress gateways")
	}
	if cfg.RBACEnabled {
		return nil, unsupported(g.Backend(), "RBAC authorization policies")
	}

	values := linkerdValues{
		ClusterDomain: "cluster.local",
		IdentityTrust: "cluster.local",
		ProxyInit:     linkerdProxyInit{IgnoreInboundPorts: "4567,4568"},
		Proxy: linkerdProxy{
			LogLevel:  proxyLogLevel(cfg.LoggingEnabled),
			LogFormat: "plain",
		},
		Tracing: linkerdTracing{Enabled: cfg.TracingEnabled},
	}
	if cfg.TracingEnabled && cfg.TracingProvider != "" {
		values.Tracing.Collector = cfg.TracingProvider
	}
	if cfg.MetricsEnabled && cfg.MetricsProvider != "" {
		values.PrometheusURL = cfg.MetricsProvider
	}

	data, err := yaml.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("marshal linkerd values: %w", err)
	}

	art := &Artifact{
		Backend: g.Backend(),
		Documents: []Document{
			{
				Name:        "linkerd-values.yaml",
				ContentType: "application/yaml",
				Data:        data,
			},
		},
	}

	for _, ns := range cfg.SidecarNamespaces {
		art.NamespaceLabels = append(art.NamespaceLabels, NamespaceLabel{
			Namespace: ns,
			Key:       "linkerd.io/inject",
			Value:     "enabled",
		})
	}

	return art, nil
}

// Gateway is not implemented for Linkerd.
func (g LinkerdGenerator) Gateway(_ *models.APIGateway, _ []*models.APIRoute, _ []*models.Upstream) (*Artifact, error) {
	return nil, unsupported(g.Backend(), "standalone API gateways")
}

func proxyLogLevel(verbose bool) string {
	if verbose {
		return "info"
	}
	return "warn"
}
