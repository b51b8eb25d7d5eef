package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric the bot exports.
const Namespace = "speechflow_"

var (
	mu         sync.Mutex
	collectors []prometheus.Collector
	registered = map[prometheus.Registerer]bool{}
)

// register queues collectors; every metrics file calls it from init.
func register(cs ...prometheus.Collector) {
	mu.Lock()
	collectors = append(collectors, cs...)
	mu.Unlock()
}

// MustRegister exposes the queued collectors on the default registry that
// /metrics serves.
func MustRegister() { MustRegisterOn(prometheus.DefaultRegisterer) }

// MustRegisterOn registers the queued collectors on reg under Namespace.
// A second call for the same registerer does nothing.
func MustRegisterOn(reg prometheus.Registerer) {
	mu.Lock()
	defer mu.Unlock()
	if registered[reg] {
		return
	}
	prometheus.WrapRegistererWithPrefix(Namespace, reg).MustRegister(collectors...)
	registered[reg] = true
}
