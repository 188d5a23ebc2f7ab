package marking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "classtrack_redemptions_total",
	Help: "Marking attempts by outcome.",
}, []string{"outcome"})
