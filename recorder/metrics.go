package recorder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	trackVideo = "video"
	trackAudio = "audio"

	reasonPartial      = "partial"
	reasonBackPressure = "backpressure"
	reasonNotAnchored  = "not_anchored"
	reasonFinalized    = "finalized"
	reasonError        = "error"
)

var (
	samplesAppendedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screenrec_samples_appended_total",
		Help: "Samples handed to the writer, by track.",
	}, []string{"track"})

	samplesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screenrec_samples_dropped_total",
		Help: "Samples dropped before reaching the writer, by track and reason.",
	}, []string{"track", "reason"})

	compositeFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "screenrec_composite_fallback_total",
		Help: "Screen frames written without the camera overlay although it was enabled.",
	})

	callbackPanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screenrec_callback_panics_total",
		Help: "Producer callbacks that panicked, by source.",
	}, []string{"source"})

	recordingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screenrec_recordings_total",
		Help: "Finished recording attempts, by outcome.",
	}, []string{"outcome"})

	finalizeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "screenrec_finalize_seconds",
		Help:    "Time spent flushing and closing the output container.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	recordingActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "screenrec_recording_active",
		Help: "1 while a recording is in progress.",
	})
)
