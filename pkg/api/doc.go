// Package api provides the ambient HTTP /health, /ready, /metrics endpoints
// and a standard grpc_health_v1 service, so container schedulers and
// orchestrators can probe daemon liveness over either transport.
//
// The outward port operations (reserve, release, suggest, validate, ...)
// are a thin adapter the core treats as external: spec §1 lists "HTTP/REST
// transport" among the out-of-scope collaborators, and §6 calls it "the
// HTTP transport, kept external". That adapter is wired in cmd/portguardd,
// not here; this package only carries the ambient ops surface every
// long-running portguard daemon needs regardless of which transport calls
// the core.
package api
