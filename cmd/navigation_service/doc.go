// Package navigationservice runs the navigation HTTP/WebSocket API together
// with its RabbitMQ consumer, Prometheus endpoint and gRPC health service.
package navigationservice
