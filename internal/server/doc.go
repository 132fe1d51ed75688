// Package server assembles the SessionHub HTTP surface behind one multiplexer.
//
// The server builds a consistent middleware chain of request IDs, logging,
// metrics, security headers, CORS, and bearer-token authentication so
// handlers all share common protections and instrumentation.
package server
