package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	opGenerate = "generate"
	opPredict  = "predict"

	outcomeRemote   = "remote"
	outcomeFallback = "fallback"
)

var (
	gatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "segpaint",
		Name:      "gateway_calls_total",
		Help:      "Segmentation gateway calls by operation and whether the remote result or the fallback was served.",
	}, []string{"op", "outcome"})

	gatewayRemoteSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "segpaint",
		Name:      "gateway_remote_seconds",
		Help:      "Latency of remote segmentation attempts.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"op"})

	compositesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "segpaint",
		Name:      "composites_total",
		Help:      "Colored images produced.",
	})
)
