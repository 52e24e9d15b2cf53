package messaging

import (
	"context"
	"fmt"
	"time"
)

// healthSubject has no responders; the request exists only to prove the
// round trip to the broker works.
const healthSubject = "_RELAYWIRE.health"

// HealthStatus is the result of probing a broker connection.
type HealthStatus struct {
	// Connected reports client-side connectivity.
	Connected bool `json:"connected"`

	// Latency is the probe round-trip time.
	Latency time.Duration `json:"latency_ms"`

	// Error is set when the connection is unusable.
	Error string `json:"error,omitempty"`
}

// CheckClientHealth probes a broker connection for readiness checks. A
// no-responders error still counts as healthy: the broker answered, nothing
// subscribes to the probe subject.
func CheckClientHealth(ctx context.Context, client Client) HealthStatus {
	if client == nil {
		return HealthStatus{Error: "client is nil"}
	}
	if !client.IsConnected() {
		return HealthStatus{Error: "not connected to message broker"}
	}

	status := HealthStatus{Connected: true}
	start := time.Now()
	_, err := client.Request(ctx, healthSubject, []byte("ping"), 2*time.Second)
	status.Latency = time.Since(start)
	if err != nil && !client.IsConnected() {
		status.Connected = false
		status.Error = fmt.Sprintf("health check failed: %v", err)
	}
	return status
}
