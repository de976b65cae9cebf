package obs

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "trailwatch",
			Name:      "build_info",
			Help:      "Constant 1 labelled with the running binary's version, commit and Go toolchain.",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// InitBuildInfo publishes trailwatch_build_info for this process. Calling it
// again replaces the previous series so exactly one is exported.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	if version == "" {
		version = "dev"
	}
	if commit == "" {
		commit = "unknown"
	}
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}
