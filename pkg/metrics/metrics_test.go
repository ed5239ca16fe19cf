package metrics

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 5, 10}),
				WithRefreshInterval(time.Second),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(m.namespace, ShouldEqual, "test")
				So(m.subsystem, ShouldEqual, "unit")
				So(m.histogramBuckets, ShouldResemble, []float64{1, 5, 10})
				So(m.refreshInterval, ShouldEqual, time.Second)
				So(m.constLabels["env"], ShouldEqual, "test")
			})

			Convey("Then collectors are registered under the namespace", func() {
				m.guessesDuplicate.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var found bool
				for _, f := range families {
					if f.GetName() == "test_unit_guesses_duplicate_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty options are passed", func() {
			m := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithRefreshInterval(0),
				WithPrometheusRegistry(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(m.namespace, ShouldEqual, "huishype")
				So(m.subsystem, ShouldEqual, "fmv")
				So(m.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
				So(m.refreshInterval, ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When guess intake is recorded", func() {
			before := testutil.ToFloat64(globalManager.guessesReceived.WithLabelValues("submit"))
			RecordGuessReceived("submit")
			RecordGuessDuplicate()
			RecordGuessRejected("backpressure")
			RecordGuessApplied("retract")

			Convey("Then the counters move", func() {
				So(testutil.ToFloat64(globalManager.guessesReceived.WithLabelValues("submit")), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.guessesRejected.WithLabelValues("backpressure")), ShouldBeGreaterThanOrEqualTo, 1)
				So(testutil.ToFloat64(globalManager.guessesApplied.WithLabelValues("retract")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When an estimate with outliers is recorded", func() {
			before := testutil.ToFloat64(globalManager.outliersTrimmed)
			RecordEstimate("high", 2, 1.5)
			RecordEstimate("low", 0, 0.5)

			Convey("Then outliers are added and tiers counted", func() {
				So(testutil.ToFloat64(globalManager.outliersTrimmed), ShouldEqual, before+2)
				So(testutil.ToFloat64(globalManager.estimates.WithLabelValues("high")), ShouldBeGreaterThanOrEqualTo, 1)
			})
		})

		Convey("When gauges are updated", func() {
			UpdateBoardSize(42)
			UpdateQueueSize(3)
			UpdateQueueCapacity(100)
			UpdateWorkerCount(4)
			UpdateWSClients(2)

			Convey("Then they hold the last value", func() {
				So(testutil.ToFloat64(globalManager.boardSize), ShouldEqual, 42)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 100)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 4)
				So(testutil.ToFloat64(globalManager.wsClients), ShouldEqual, 2)
			})
		})

		Convey("When a worker is marked busy", func() {
			done := WorkerBusy()
			busy := testutil.ToFloat64(globalManager.workerActive)
			done()

			Convey("Then the active gauge returns to its previous value", func() {
				So(testutil.ToFloat64(globalManager.workerActive), ShouldEqual, busy-1)
			})
		})

		Convey("When the remaining recorders are called", func() {
			So(func() {
				RecordEstimateError()
				RecordRecompute()
				RecordStoreLatency("active_guesses", 0.3)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueRejected()
				RecordQueueWait(1)
				RecordWorkerLatency(2)
				RecordWorkerError()
				RecordHTTPRequest("/divergence", "GET", "200")
				RecordHTTPRequestDuration("/divergence", "GET", "200", 3)
				RecordWSMessage()
				RecordError("store", "timeout")
				RecordConfigReload("ok")
			}, ShouldNotPanic)
		})
	})
}

func TestSystemMetrics(t *testing.T) {
	Convey("Given a sampled runtime", t, func() {
		runtime.GC()
		UpdateSystemMetrics()

		Convey("Then goroutines and memory are reported", func() {
			So(testutil.ToFloat64(globalManager.systemGoroutines), ShouldBeGreaterThan, 0)
			So(testutil.ToFloat64(globalManager.systemMemoryMB), ShouldBeGreaterThan, 0)
			So(globalManager.lastGCCount, ShouldBeGreaterThan, 0)
		})

		Convey("When the collector runs until cancelled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				RunSystemCollector(ctx)
				close(done)
			}()
			cancel()

			Convey("Then it returns", func() {
				select {
				case <-done:
				case <-time.After(time.Second):
					t.Fatal("collector did not stop")
				}
			})
		})
	})
}

func TestRegistryExposition(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordGuessDuplicate()

		Convey("Then it exposes the service metrics and no default Go collectors", func() {
			n, err := testutil.GatherAndCount(GetRegistry(), "huishype_fmv_guesses_duplicate_total")
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			for _, f := range families {
				So(strings.HasPrefix(f.GetName(), "go_"), ShouldBeFalse)
			}
		})
	})
}
