package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "putioarr",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "putioarr",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	}, []string{"method", "path"})

	TransfersTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "putioarr",
		Name:      "transfers_total",
		Help:      "Transfers that reached a pipeline stage.",
	}, []string{"stage"})

	TransferRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "putioarr",
		Name:      "transfer_retries_total",
		Help:      "Transfers requeued after a partial download failure.",
	})

	PlanningFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "putioarr",
		Name:      "planning_failures_total",
		Help:      "Target planning attempts aborted by a remote query failure.",
	})

	TargetsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "putioarr",
		Name:      "targets_total",
		Help:      "Download targets processed by kind and outcome.",
	}, []string{"kind", "outcome"})

	DownloadedBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "putioarr",
		Name:      "downloaded_bytes_total",
		Help:      "Bytes written to local storage.",
	})

	ActiveWatchers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "putioarr",
		Name:      "active_watchers",
		Help:      "Number of running import and seeding watchers.",
	}, []string{"kind"})

	RemoteTransfers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "putioarr",
		Name:      "remote_transfers",
		Help:      "Transfers listed by the remote service on the last poll.",
	})

	RemoteListFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "putioarr",
		Name:      "remote_list_failures_total",
		Help:      "Failed remote transfer list polls.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TransfersTotal,
		TransferRetriesTotal,
		PlanningFailuresTotal,
		TargetsTotal,
		DownloadedBytesTotal,
		ActiveWatchers,
		RemoteTransfers,
		RemoteListFailuresTotal,
	)
}
