// Package observability provides structured logging, Prometheus metrics and
// health check endpoints shared by every component of the service.
package observability
