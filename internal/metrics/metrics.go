package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PeriodsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cyclebook", Name: "periods_started_total", Help: "Periods opened",
	})
	PeriodsClosed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cyclebook", Name: "periods_closed_total", Help: "Periods closed",
	})
	DayEventsDerived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cyclebook", Name: "day_events_derived_total", Help: "Day events appended to event lists",
	})
	LifecycleRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cyclebook", Name: "lifecycle_rejections_total", Help: "Rejected start/end requests by reason",
	}, []string{"reason"})
	SyncSaves = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cyclebook", Name: "sync_saves_total", Help: "Period entry saves by result",
	}, []string{"result"})
	SyncDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cyclebook", Name: "sync_dropped_total", Help: "Period changes dropped because the sync queue was full or closed",
	})
	CurrentDayNumber = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cyclebook", Name: "current_day_number", Help: "Day number of the open period, 0 when none is open",
	}, []string{"owner"})
	Sessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cyclebook", Name: "sessions", Help: "Loaded session stores",
	})
)

func init() {
	prometheus.MustRegister(
		PeriodsStarted, PeriodsClosed, DayEventsDerived, LifecycleRejections,
		SyncSaves, SyncDropped, CurrentDayNumber, Sessions,
	)
}

func Handler() http.Handler { return promhttp.Handler() }
