package telemetry

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.viam.com/test"

	"go.viam.com/gbpplanner/factorgraph"
)

func TestObserveTick(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	test.That(t, err, test.ShouldBeNil)

	counts := factorgraph.MessageCounts{
		Internal: factorgraph.MessageCount{Sent: 10, Received: 8},
		External: factorgraph.MessageCount{Sent: 3, Received: 2},
	}
	metrics.ObserveTick(counts, 4, 1, 5*time.Millisecond)
	metrics.ObserveTick(counts, 3, 0, 5*time.Millisecond)

	test.That(t, testutil.ToFloat64(metrics.MessagesSent.WithLabelValues("internal")), test.ShouldEqual, 20.)
	test.That(t, testutil.ToFloat64(metrics.MessagesReceived.WithLabelValues("external")), test.ShouldEqual, 4.)
	test.That(t, testutil.ToFloat64(metrics.Robots), test.ShouldEqual, 3.)
	test.That(t, testutil.ToFloat64(metrics.InvalidVariables), test.ShouldEqual, 0.)

	families, err := reg.Gather()
	test.That(t, err, test.ShouldBeNil)
	var samples uint64
	for _, family := range families {
		if family.GetName() == "gbp_tick_seconds" {
			samples = family.GetMetric()[0].GetHistogram().GetSampleCount()
		}
	}
	test.That(t, samples, test.ShouldEqual, uint64(2))

	var none *Metrics
	none.ObserveTick(counts, 1, 1, time.Second)
}

func TestRegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	test.That(t, err, test.ShouldBeNil)
	second, err := NewMetrics(reg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second.MessagesSent, test.ShouldEqual, first.MessagesSent)
}

func TestRegisterIncompatible(t *testing.T) {
	reg := prometheus.NewRegistry()
	opts := prometheus.GaugeOpts{Name: "gbp_robots", Help: "Robots currently simulated."}
	_, err := register(reg, prometheus.NewGauge(opts))
	test.That(t, err, test.ShouldBeNil)

	_, err = register(reg, prometheus.NewGaugeVec(opts, nil))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "incompatible type")
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	test.That(t, err, test.ShouldBeNil)
	metrics.ObserveTick(factorgraph.MessageCounts{}, 2, 0, time.Millisecond)

	server := httptest.NewServer(metrics.Handler())
	defer server.Close()
	resp, err := server.Client().Get(server.URL)
	test.That(t, err, test.ShouldBeNil)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(body), test.ShouldContainSubstring, "gbp_robots 2")
}
