package api

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	reg      *prometheus.Registry
	commands *prometheus.CounterVec
	probes   *prometheus.CounterVec
	alarms   prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		reg: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zprobe",
			Name:      "commands_total",
			Help:      "Console commands executed, by result.",
		}, []string{"result"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zprobe",
			Name:      "probes_total",
			Help:      "Completed probe moves, by whether the probe triggered.",
		}, []string{"triggered"}),
		alarms: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zprobe",
			Name:      "alarms_total",
			Help:      "Strict probes that failed and halted the machine.",
		}),
	}
	m.reg.MustRegister(m.commands, m.probes, m.alarms)
	return m
}

// observe counts the results reported in the output of one console line.
func (m *metrics) observe(output string) {
	result := "ok"
	for _, l := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(l, "error:"):
			result = "error"
		case strings.HasPrefix(l, "ALARM:"):
			m.alarms.Inc()
		case strings.HasPrefix(l, "[PRB:"):
			if strings.HasSuffix(l, ":1]") {
				m.probes.WithLabelValues("true").Inc()
			} else {
				m.probes.WithLabelValues("false").Inc()
			}
		case strings.HasPrefix(l, "Z:"):
			m.probes.WithLabelValues("true").Inc()
		case l == "ZProbe not triggered":
			m.probes.WithLabelValues("false").Inc()
		}
	}
	m.commands.WithLabelValues(result).Inc()
}
