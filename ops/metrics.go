package ops

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collectors for the fabric's observable queue depths and
// pending counts. Registered
// lazily via Register so tests can construct fabric components without
// needing a live registry.
var (
	MessengerOutstandingRequests = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "xrlfabric",
		Subsystem: "messenger",
		Name:      "outstanding_requests",
		Help:      "Number of outbound requests awaiting a reply or timeout, per remote target.",
	}, []string{"remote"})

	FinderEventQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xrlfabric",
		Subsystem: "finder",
		Name:      "event_queue_depth",
		Help:      "Number of pending BIRTH/DEATH events awaiting broadcast.",
	})

	XrlRouterPendingResolves = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xrlfabric",
		Subsystem: "xrlrouter",
		Name:      "pending_resolves",
		Help:      "Number of outbound sends blocked on a Finder resolve_xrl round trip.",
	})

	XrlRouterPendingSends = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xrlfabric",
		Subsystem: "xrlrouter",
		Name:      "pending_sends",
		Help:      "Number of outbound sends awaiting a reply from a resolved target.",
	})

	FanoutQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "xrlfabric",
		Subsystem: "bgp",
		Name:      "fanout_queue_depth",
		Help:      "Pending message count per Fanout subscriber (inserts minus gets since last flush).",
	}, []string{"subscriber"})
)

// Register adds all collectors to the default Prometheus registry. Safe to
// call more than once; duplicate-registration errors are swallowed since
// daemons may call it from multiple init paths.
func Register() {
	for _, c := range []prometheus.Collector{
		MessengerOutstandingRequests,
		FinderEventQueueDepth,
		XrlRouterPendingResolves,
		XrlRouterPendingSends,
		FanoutQueueDepth,
	} {
		if err := prometheus.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}
