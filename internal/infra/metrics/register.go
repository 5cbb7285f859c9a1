package metrics

import (
	"errors"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu         sync.Mutex
	collectors []prometheus.Collector
)

// register is called from init() in each metrics file.
func register(cs ...prometheus.Collector) {
	mu.Lock()
	collectors = append(collectors, cs...)
	mu.Unlock()
}

// Register adds every collector to reg, or to the default registerer when reg
// is nil. Collectors already present are skipped, so calling it twice is safe.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	mu.Lock()
	defer mu.Unlock()
	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MustRegister registers with the default registerer and panics on conflict.
func MustRegister() {
	if err := Register(nil); err != nil {
		panic(err)
	}
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
