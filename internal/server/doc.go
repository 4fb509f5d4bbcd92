// Package server wires the Mobile Core API behind a single HTTP server.
//
// Every request passes the same middleware chain of logging, request IDs,
// security headers, CORS, metrics, rate limiting, and authentication so the
// handlers all share common protections and instrumentation.
package server
