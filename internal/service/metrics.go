package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const resultSuccess = "success"

var operationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cart_operations_total",
		Help: "Total number of cart operations by outcome.",
	},
	[]string{"operation", "result"},
)
