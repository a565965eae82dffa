package manifest

import (
	"fmt"
	"strings"

	"github.com/vaporform/meshgate/models"
)

// NginxGenerator emits a complete nginx.conf. Output is plain text built in a
// fixed order so regenerating from the same configuration yields identical
// bytes. Mutual TLS, egress gateways and RBAC are beyond what a plain nginx
// deployment expresses and fail generation.
type NginxGenerator struct{}

func (NginxGenerator) Backend() string { return string(models.MeshTypeNginx) }

// Mesh renders an ingress-only proxy configuration.
func (g NginxGenerator) Mesh(m *models.ServiceMesh) (*Artifact, error) {
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

	var b strings.Builder
	writeNginxPreamble(&b, cfg.LoggingEnabled)

	b.WriteString("http {\n")
	writeNginxHTTPDefaults(&b, cfg.LoggingEnabled)
	if cfg.MetricsEnabled {
		b.WriteString("    server {\n")
		b.WriteString("        listen 127.0.0.1:8080;\n")
		b.WriteString("        location /stub_status {\n")
		b.WriteString("            stub_status;\n")
		b.WriteString("        }\n")
		b.WriteString("    }\n")
	}
	if cfg.IngressGateway.Enabled {
		port := ingressPort(cfg.IngressGateway, 80)
		b.WriteString("    server {\n")
		fmt.Fprintf(&b, "        listen %d;\n", port)
		fmt.Fprintf(&b, "        server_name %s;\n", ingressHost(cfg.IngressGateway))
		b.WriteString("        location / {\n")
		b.WriteString("            proxy_pass http://127.0.0.1:8000;\n")
		b.WriteString("            proxy_set_header Host $host;\n")
		b.WriteString("            proxy_set_header X-Real-IP $remote_addr;\n")
		b.WriteString("        }\n")
		b.WriteString("    }\n")
	}
	b.WriteString("}\n")

	return nginxArtifact(g.Backend(), "nginx.conf", b.String()), nil
}

// Gateway renders one upstream block per upstream and one server block per
// listener, with a location per route.
func (g NginxGenerator) Gateway(gw *models.APIGateway, routes []*models.APIRoute, upstreams []*models.Upstream) (*Artifact, error) {
	byID := upstreamByID(upstreams)
	for _, r := range routes {
		if _, ok := byID[r.UpstreamID]; !ok {
			return nil, fmt.Errorf("route %s references unknown upstream %s", r.Name, r.UpstreamID)
		}
	}

	var b strings.Builder
	writeNginxPreamble(&b, true)

	b.WriteString("http {\n")
	writeNginxHTTPDefaults(&b, true)

	for _, u := range sortUpstreams(upstreams) {
		fmt.Fprintf(&b, "    upstream %s {\n", clusterName(u.Name))
		for _, t := range u.Targets {
			if t.Weight > 0 {
				fmt.Fprintf(&b, "        server %s:%d weight=%d;\n", t.Host, t.Port, t.Weight)
			} else {
				fmt.Fprintf(&b, "        server %s:%d;\n", t.Host, t.Port)
			}
		}
		b.WriteString("    }\n")
	}

	if gw.RateLimit.Enabled {
		fmt.Fprintf(&b, "    limit_req_zone $binary_remote_addr zone=%s:10m rate=%dr/s;\n",
			clusterName(gw.Name), gw.RateLimit.RequestsPerSecond)
	}

	for _, l := range gw.Listeners {
		b.WriteString("    server {\n")
		if l.TLS {
			fmt.Fprintf(&b, "        listen %d ssl;\n", l.Port)
			if l.CertRef != "" {
				fmt.Fprintf(&b, "        ssl_certificate /etc/nginx/certs/%s.crt;\n", l.CertRef)
				fmt.Fprintf(&b, "        ssl_certificate_key /etc/nginx/certs/%s.key;\n", l.CertRef)
			}
		} else {
			fmt.Fprintf(&b, "        listen %d;\n", l.Port)
		}
		if gw.RateLimit.Enabled {
			fmt.Fprintf(&b, "        limit_req zone=%s burst=%d;\n",
				clusterName(gw.Name), gw.RateLimit.Burst)
		}

		for _, r := range sortRoutes(routes) {
			up := byID[r.UpstreamID]
			fmt.Fprintf(&b, "        location %s {\n", r.PathPrefix)
			if r.Method != "" {
				fmt.Fprintf(&b, "            limit_except %s { deny all; }\n", r.Method)
			}
			fmt.Fprintf(&b, "            proxy_pass http://%s;\n", clusterName(up.Name))
			b.WriteString("            proxy_set_header Host $host;\n")
			b.WriteString("            proxy_set_header X-Real-IP $remote_addr;\n")
			if ms := timeoutMillis(r.Timeout.Request); ms > 0 {
				fmt.Fprintf(&b, "            proxy_read_timeout %dms;\n", ms)
			}
			if r.Retry.Attempts > 0 {
				fmt.Fprintf(&b, "            proxy_next_upstream_tries %d;\n", r.Retry.Attempts)
			}
			b.WriteString("        }\n")
		}
		b.WriteString("    }\n")
	}
	b.WriteString("}\n")

	return nginxArtifact(g.Backend(), "nginx-gateway.conf", b.String()), nil
}

func writeNginxPreamble(b *strings.Builder, logging bool) {
	b.WriteString("worker_processes auto;\n")
	if logging {
		b.WriteString("error_log /dev/stderr info;\n")
	} else {
		b.WriteString("error_log /dev/stderr error;\n")
	}
	b.WriteString("events {\n")
	b.WriteString("    worker_connections 1024;\n")
	b.WriteString("}\n")
}

func writeNginxHTTPDefaults(b *strings.Builder, logging bool) {
	if logging {
		b.WriteString("    access_log /dev/stdout;\n")
	} else {
		b.WriteString("    access_log off;\n")
	}
	b.WriteString("    sendfile on;\n")
	b.WriteString("    keepalive_timeout 65;\n")
}

func nginxArtifact(backend, name, conf string) *Artifact {
	return &Artifact{
		Backend: backend,
		Documents: []Document{
			{Name: name, ContentType: "text/plain", Data: []byte(conf)},
		},
	}
}
