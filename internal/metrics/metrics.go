package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	RESULT_OK    = "ok"
	RESULT_ERROR = "error"
)

var (
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "motion2mqtt",
		Name:      "commands_total",
		Help:      "Cover commands sent to the gateways.",
	}, []string{"gateway", "command", "result"})

	PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "motion2mqtt",
		Name:      "polls_total",
		Help:      "Gateway status refreshes.",
	}, []string{"gateway", "result"})

	GatewayCallSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "motion2mqtt",
		Name:      "gateway_call_seconds",
		Help:      "Time spent holding the gateway lock.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"gateway", "operation"})

	GatewayAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "motion2mqtt",
		Name:      "gateway_available",
		Help:      "Whether the last refresh reached the gateway.",
	}, []string{"gateway"})
)

func Result(err error) string {
	if err != nil {
		return RESULT_ERROR
	}
	return RESULT_OK
}
