// Package manifest turns validated mesh and gateway configurations into
// backend-specific deployable artifacts.
//
// Generators are pure: the same input configuration always produces
// byte-identical output. Nothing here embeds timestamps, generated ids, or
// randomness, so artifacts can be diffed and re-applied idempotently. All
// serialized structures are built from structs (never bare maps) to keep
// field order stable across runs.
//
// Configuration combinations a backend cannot express fail generation with
// ErrUnsupported instead of silently dropping the setting.
package manifest

import (
	"errors"
	"fmt"
	"sort"

	"github.com/vaporform/meshgate/models"
)

// ErrUnsupported is returned when a configuration requests a capability the
// target backend cannot express.
var ErrUnsupported = errors.New("unsupported configuration")

// Document is one deployable unit of an artifact. Apply steps consume
// documents in order; a failure part-way leaves the owning entity in error.
type Document struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// NamespaceLabel is a namespace-labeling step applied alongside the
// documents, e.g. enabling sidecar injection. It is deliberately not part of
// any manifest document.
type NamespaceLabel struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
}

// Artifact is the full output of a generation pass for one entity.
type Artifact struct {
	Backend         string           `json:"backend"`
	Documents       []Document       `json:"documents"`
	NamespaceLabels []NamespaceLabel `json:"namespaceLabels,omitempty"`
}

// Generator produces deployable artifacts for one backend technology.
type Generator interface {
	// Backend names the technology this generator emits artifacts for.
	Backend() string

	// Mesh renders the control-plane artifact for a service mesh.
	Mesh(m *models.ServiceMesh) (*Artifact, error)

	// Gateway renders the proxy configuration for an API gateway together
	// with its resolved routes and upstreams.
	Gateway(g *models.APIGateway, routes []*models.APIRoute, upstreams []*models.Upstream) (*Artifact, error)
}

// Generators returns one generator per supported backend, keyed by backend
// name.
func Generators() map[string]Generator {
	gens := []Generator{
		IstioGenerator{},
		LinkerdGenerator{},
		EnvoyGenerator{},
		NginxGenerator{},
		TraefikGenerator{},
	}
	out := make(map[string]Generator, len(gens))
	for _, g := range gens {
		out[g.Backend()] = g
	}
	return out
}

func unsupported(backend, what string) error {
	return fmt.Errorf("%w: %s does not support %s", ErrUnsupported, backend, what)
}

// sortRoutes orders routes by name so gateway artifacts do not depend on
// registry iteration order.
func sortRoutes(routes []*models.APIRoute) []*models.APIRoute {
	out := append([]*models.APIRoute(nil), routes...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// sortUpstreams orders upstreams by name for the same reason.
func sortUpstreams(upstreams []*models.Upstream) []*models.Upstream {
	out := append([]*models.Upstream(nil), upstreams...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// upstreamByID indexes a resolved upstream set.
func upstreamByID(upstreams []*models.Upstream) map[string]*models.Upstream {
	idx := make(map[string]*models.Upstream, len(upstreams))
	for _, u := range upstreams {
		idx[u.ID] = u
	}
	return idx
}
