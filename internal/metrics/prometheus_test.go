package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestIncRequestsIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegisterer(reg)

	m.IncRequests("GET")
	m.IncRequests("GET")

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() != "requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			if metric.GetCounter().GetValue() == 2 {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("expected requests_total{method=\"GET\"} to equal 2")
	}
}

func TestSetBreakerStateRecordsLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegisterer(reg)
	m.SetBreakerState("b1", "r1", 1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var gauge *dto.Metric
	for _, f := range families {
		if f.GetName() == "circuit_breaker_state" {
			gauge = f.GetMetric()[0]
		}
	}
	if gauge == nil || gauge.GetGauge().GetValue() != 1 {
		t.Fatal("expected circuit_breaker_state to be set to 1")
	}
}
