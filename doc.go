// Package meshgate provisions service meshes and API gateways over
// container workloads.
//
// # Overview
//
// Meshgate models meshes, services, network policies, and gateways as typed
// entities in an in-memory registry, renders backend-specific deployment
// manifests for them, and keeps service endpoints fresh through container
// runtime discovery and active health probing.
//
// The platform consists of four main components:
//   - API Server: REST API and WebSocket lifecycle events
//   - Deployment Dispatcher: drives entities through the creating/active/
//     updating/error status machine against a control plane
//   - Manifest Generators: deterministic Istio, Linkerd, Envoy, NGINX, and
//     Traefik artifact rendering
//   - Service Discovery: Docker-backed endpoint resolution plus HTTP health
//     probing and load-balanced endpoint selection
//
// # Architecture
//
//	┌─────────────────┐
//	│  API Server     │
//	│  (Echo REST)    │
//	└────────┬────────┘
//	         │
//	┌────────▼────────┐       ┌─────────────────┐
//	│  Registry       │◄──────┤  Dispatcher     │
//	│  (in-memory)    │       │  (deploys)      │
//	└────────┬────────┘       └────────┬────────┘
//	         │                         │
//	┌────────▼────────┐       ┌────────▼────────┐
//	│  Discovery      │       │  Manifest       │
//	│  (Docker/probe) │       │  Generators     │
//	└─────────────────┘       └─────────────────┘
//
// # Getting Started
//
// Start the server with:
//
//	meshgate server --config config.yaml
//
// Then create a mesh:
//
//	curl -X POST http://localhost:8095/api/v1/service-mesh \
//	  -H 'Content-Type: application/json' \
//	  -d '{"projectId":"p1","name":"edge","type":"istio"}'
package meshgate
