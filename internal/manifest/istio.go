package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/vaporform/meshgate/models"
)

// IstioGenerator emits Istio operator manifests. The operator document is
// always produced; a gateway document is added when the ingress gateway is
// enabled and an authorization-policy document when RBAC is enabled.
// Sidecar injection is expressed as namespace-labeling steps, never embedded
// in the manifests themselves.
type IstioGenerator struct{}

func (IstioGenerator) Backend() string { return string(models.MeshTypeIstio) }

type istioOperator struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   istioMetadata     `yaml:"metadata"`
	Spec       istioOperatorSpec `yaml:"spec"`
}

type istioMetadata struct {
	Name      string `yaml:"name"`
	Namespace string `yaml:"namespace"`
}

type istioOperatorSpec struct {
	Profile    string          `yaml:"profile"`
	MeshConfig istioMeshConfig `yaml:"meshConfig"`
	Components istioComponents `yaml:"components"`
}

type istioMeshConfig struct {
	EnableTracing      bool   `yaml:"enableTracing"`
	AccessLogFile      string `yaml:"accessLogFile,omitempty"`
	EnableAutoMtls     bool   `yaml:"enableAutoMtls"`
	DefaultTracer      string `yaml:"defaultTracer,omitempty"`
	PrometheusScraping bool   `yaml:"enablePrometheusMerge"`
}

type istioComponents struct {
	IngressGateways []istioGatewayComponent `yaml:"ingressGateways,omitempty"`
	EgressGateways  []istioGatewayComponent `yaml:"egressGateways,omitempty"`
}

type istioGatewayComponent struct {
	Name    string `yaml:"name"`
	Enabled bool   `yaml:"enabled"`
}

type istioGateway struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   istioMetadata    `yaml:"metadata"`
	Spec       istioGatewaySpec `yaml:"spec"`
}

type istioGatewaySpec struct {
	Selector istioSelector `yaml:"selector"`
	Servers  []istioServer `yaml:"servers"`
}

type istioSelector struct {
	Istio string `yaml:"istio"`
}

type istioServer struct {
	Port  istioServerPort `yaml:"port"`
	Hosts []string        `yaml:"hosts"`
	TLS   *istioTLS       `yaml:"tls,omitempty"`
}

type istioServerPort struct {
	Number   int    `yaml:"number"`
	Name     string `yaml:"name"`
	Protocol string `yaml:"protocol"`
}

type istioTLS struct {
	Mode string `yaml:"mode"`
}

type istioAuthzPolicy struct {
	APIVersion string         `yaml:"apiVersion"`
	Kind       string         `yaml:"kind"`
	Metadata   istioMetadata  `yaml:"metadata"`
	Spec       istioAuthzSpec `yaml:"spec"`
}

type istioAuthzSpec struct {
	Action string `yaml:"action"`
}

// Mesh renders the operator manifest plus conditional gateway and RBAC
// documents.
func (g IstioGenerator) Mesh(m *models.ServiceMesh) (*Artifact, error) {
	cfg := m.Configuration

	op := istioOperator{
		APIVersion: "install.istio.io/v1alpha1",
		Kind:       "IstioOperator",
		Metadata: istioMetadata{
			Name:      m.Name,
			Namespace: "istio-system",
		},
		Spec: istioOperatorSpec{
			Profile: "default",
			MeshConfig: istioMeshConfig{
				EnableTracing:      cfg.TracingEnabled,
				EnableAutoMtls:     cfg.MTLSEnabled,
				PrometheusScraping: cfg.MetricsEnabled,
			},
		},
	}
	if cfg.LoggingEnabled {
		op.Spec.MeshConfig.AccessLogFile = "/dev/stdout"
	}
	if cfg.TracingEnabled && cfg.TracingProvider != "" {
		op.Spec.MeshConfig.DefaultTracer = cfg.TracingProvider
	}
	if cfg.IngressGateway.Enabled {
		op.Spec.Components.IngressGateways = []istioGatewayComponent{
			{Name: "istio-ingressgateway", Enabled: true},
		}
	}
	if cfg.EgressGateway.Enabled {
		op.Spec.Components.EgressGateways = []istioGatewayComponent{
			{Name: "istio-egressgateway", Enabled: true},
		}
	}

	art := &Artifact{Backend: g.Backend()}

	data, err := yaml.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("marshal operator manifest: %w", err)
	}
	art.Documents = append(art.Documents, Document{
		Name:        "istio-operator.yaml",
		ContentType: "application/yaml",
		Data:        data,
	})

	if cfg.IngressGateway.Enabled {
		gw := istioGateway{
			APIVersion: "networking.istio.io/v1beta1",
			Kind:       "Gateway",
			Metadata: istioMetadata{
				Name:      m.Name + "-gateway",
				Namespace: "istio-system",
			},
			Spec: istioGatewaySpec{
				Selector: istioSelector{Istio: "ingressgateway"},
				Servers: []istioServer{
					{
						Port: istioServerPort{
							Number:   ingressPort(cfg.IngressGateway, 80),
							Name:     "http",
							Protocol: "HTTP",
						},
						Hosts: []string{ingressHost(cfg.IngressGateway)},
					},
				},
			},
		}
		if cfg.IngressGateway.TLSMode != "" {
			gw.Spec.Servers[0].TLS = &istioTLS{Mode: cfg.IngressGateway.TLSMode}
		}

		data, err := yaml.Marshal(gw)
		if err != nil {
			return nil, fmt.Errorf("marshal gateway manifest: %w", err)
		}
		art.Documents = append(art.Documents, Document{
			Name:        "istio-gateway.yaml",
			ContentType: "application/yaml",
			Data:        data,
		})
	}

	if cfg.RBACEnabled {
		authz := istioAuthzPolicy{
			APIVersion: "security.istio.io/v1",
			Kind:       "AuthorizationPolicy",
			Metadata: istioMetadata{
				Name:      m.Name + "-rbac",
				Namespace: "istio-system",
			},
			Spec: istioAuthzSpec{Action: "ALLOW"},
		}

		data, err := yaml.Marshal(authz)
		if err != nil {
			return nil, fmt.Errorf("marshal authorization policy: %w", err)
		}
		art.Documents = append(art.Documents, Document{
			Name:        "istio-authorization-policy.yaml",
			ContentType: "application/yaml",
			Data:        data,
		})
	}

	for _, ns := range m.Configuration.SidecarNamespaces {
		art.NamespaceLabels = append(art.NamespaceLabels, NamespaceLabel{
			Namespace: ns,
			Key:       "istio-injection",
			Value:     "enabled",
		})
	}

	return art, nil
}

// Gateway is not implemented for Istio; standalone API gateways run on proxy
// backends only.
func (g IstioGenerator) Gateway(_ *models.APIGateway, _ []*models.APIRoute, _ []*models.Upstream) (*Artifact, error) {
	return nil, unsupported(g.Backend(), "standalone API gateways")
}

func ingressPort(gw models.GatewaySettings, def int) int {
	if gw.Port > 0 {
		return gw.Port
	}
	return def
}

func ingressHost(gw models.GatewaySettings) string {
	if gw.Hostname != "" {
		return gw.Hostname
	}
	return "*"
}
