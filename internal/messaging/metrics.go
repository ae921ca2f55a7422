package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	acceptCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messaging_accept_total",
		Help: "Accept calls per channel variant and outcome",
	}, []string{"channel", "outcome"})
	drainCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messaging_drained_messages_total",
		Help: "Messages removed from channel queues by drains",
	}, []string{"channel"})
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "messaging_queue_depth",
		Help: "Messages currently queued per channel variant",
	}, []string{"channel"})
	pendingRetries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "messaging_pending_retries",
		Help: "Retry entries currently held per channel variant",
	}, []string{"channel"})
	sendCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messaging_router_sends_total",
		Help: "Router send and broadcast calls by kind and outcome",
	}, []string{"kind", "outcome"})
)
