// Package metrics wraps github.com/s21platform/metrics-lib, built once per process
// exactly like the teacher's Kafka worker (cmd/workers/kafka/user/main.go) and used here
// to emit counters around connection lifecycle and fan-out.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/s21platform/metrics-lib/pkg"
)

type Metrics struct {
	m *pkg.Metrics
}

func New(host, port, service, env string) (*Metrics, error) {
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("metrics: parse port: %w", err)
	}
	m, err := pkg.NewMetrics(host, portNum, service, env)
	if err != nil {
		return nil, fmt.Errorf("metrics: connect graphite: %w", err)
	}
	return &Metrics{m: m}, nil
}

// Raw exposes the underlying metrics-lib handle for collaborators that take it
// directly, e.g. internal/loadbus.NewConsumer.
func (m *Metrics) Raw() *pkg.Metrics { return m.m }

func (m *Metrics) ConnectionOpened(peerType string) {
	if m == nil || m.m == nil {
		return
	}
	m.m.Increment(fmt.Sprintf("connections.opened.%s", peerType))
}

func (m *Metrics) ConnectionClosed(peerType string) {
	if m == nil || m.m == nil {
		return
	}
	m.m.Increment(fmt.Sprintf("connections.closed.%s", peerType))
}

func (m *Metrics) DispatchFailure(route string) {
	if m == nil || m.m == nil {
		return
	}
	m.m.Increment(fmt.Sprintf("dispatch.failure.%s", route))
}

func (m *Metrics) FanoutLatency(route string, durationMs int64) {
	if m == nil || m.m == nil {
		return
	}
	m.m.Duration(durationMs, fmt.Sprintf("fanout.latency.%s", route))
}
