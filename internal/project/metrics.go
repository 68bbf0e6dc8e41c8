package project

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registryLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "onedev",
		Subsystem: "project",
		Name:      "registry_lookups_total",
		Help:      "Name lookups against the in-memory project registry.",
	}, []string{"result"})

	repositoryOpens = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "onedev",
		Subsystem: "project",
		Name:      "repository_opens_total",
		Help:      "Repository handles opened on handle-cache misses.",
	})
)
