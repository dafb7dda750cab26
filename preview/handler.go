package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"go2tv.app/screenrec/capture"
	"go2tv.app/screenrec/recorder"
)

// Recorder is the part of *recorder.Controller the handler drives.
type Recorder interface {
	StartRecording(ctx context.Context, req recorder.StartRequest) error
	StopRecording(ctx context.Context) (recorder.Result, error)
	Status() recorder.Status
}

type HandlerOptions struct {
	Recorder Recorder
	Slot     *Slot
	// DefaultTarget is recorded when a start request names no target.
	DefaultTarget capture.Target
	// JPEGQuality defaults to 70.
	JPEGQuality int
	// ControlLimit caps start/stop requests per client and minute. Defaults
	// to 30.
	ControlLimit int
	Logger       zerolog.Logger
	Debug        bool
}

type handler struct {
	opts HandlerOptions
	log  zerolog.Logger
}

// NewHandler routes:
//
//	GET  /api/status
//	POST /api/recordings       start, optional JSON body
//	POST /api/recordings/stop  stop and wait for the file
//	GET  /preview.jpg
//	GET  /metrics
func NewHandler(opts HandlerOptions) http.Handler {
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 70
	}
	if opts.ControlLimit <= 0 {
		opts.ControlLimit = 30
	}
	h := &handler{opts: opts, log: opts.Logger.With().Str("component", "preview").Logger()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.requestLog)

	r.Get("/api/status", h.handleStatus)
	r.Group(func(r chi.Router) {
		r.Use(controlRateLimit(opts.ControlLimit, time.Minute))
		r.Post("/api/recordings", h.handleStart)
		r.Post("/api/recordings/stop", h.handleStop)
	})
	r.Get("/preview.jpg", h.handlePreview)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func controlRateLimit(limit int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate_limit_exceeded"})
		}),
	)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}

func (h *handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.opts.Debug {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int64("bytes", rec.bytes).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

type errorBody struct {
	Error    string `json:"error"`
	TempPath string `json:"temp_path,omitempty"`
}

type statusBody struct {
	State       string     `json:"state"`
	RecordingID string     `json:"recording_id,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	LastOutput  string     `json:"last_output,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

type startBody struct {
	Mode   string          `json:"mode"`
	Target *capture.Target `json:"target"`
}

type resultBody struct {
	RecordingID   string `json:"recording_id"`
	Path          string `json:"path,omitempty"`
	Cancelled     bool   `json:"cancelled"`
	DurationMS    int64  `json:"duration_ms"`
	VideoFrames   uint64 `json:"video_frames"`
	DroppedFrames uint64 `json:"dropped_frames"`
	AudioChunks   uint64 `json:"audio_chunks"`
	Cause         string `json:"cause,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func toStatusBody(st recorder.Status) statusBody {
	body := statusBody{
		State:       st.State.String(),
		RecordingID: st.RecordingID,
		LastOutput:  st.LastOutput,
	}
	if !st.StartedAt.IsZero() {
		at := st.StartedAt
		body.StartedAt = &at
	}
	if st.LastError != nil {
		body.LastError = st.LastError.Error()
	}
	return body
}

func (h *handler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toStatusBody(h.opts.Recorder.Status()))
}

func (h *handler) handleStart(w http.ResponseWriter, r *http.Request) {
	var body startBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid body: %v", err)})
		return
	}
	mode, err := capture.ParseMode(body.Mode)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	req := recorder.StartRequest{Mode: mode, Target: h.opts.DefaultTarget}
	if body.Target != nil {
		req.Target = *body.Target
	}

	if err := h.opts.Recorder.StartRecording(r.Context(), req); err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, recorder.ErrBusy):
			code = http.StatusConflict
		case errors.Is(err, capture.ErrInvalidOptions), errors.Is(err, capture.ErrNoTarget):
			code = http.StatusBadRequest
		case errors.Is(err, capture.ErrCancelled):
			code = http.StatusUnprocessableEntity
		}
		writeJSON(w, code, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, toStatusBody(h.opts.Recorder.Status()))
}

func (h *handler) handleStop(w http.ResponseWriter, r *http.Request) {
	res, err := h.opts.Recorder.StopRecording(r.Context())
	if err != nil {
		body := errorBody{Error: err.Error()}
		var saveErr *recorder.SaveError
		if errors.As(err, &saveErr) {
			body.TempPath = saveErr.TempPath
		}
		writeJSON(w, http.StatusInternalServerError, body)
		return
	}
	if res.RecordingID == "" {
		writeJSON(w, http.StatusOK, toStatusBody(h.opts.Recorder.Status()))
		return
	}
	body := resultBody{
		RecordingID:   res.RecordingID,
		Path:          res.Path,
		Cancelled:     res.Cancelled,
		DurationMS:    res.Duration.Milliseconds(),
		VideoFrames:   res.Stats.VideoAppended,
		DroppedFrames: res.Stats.VideoDropped,
		AudioChunks:   res.Stats.AudioAppended,
	}
	if res.Cause != nil {
		body.Cause = res.Cause.Error()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	if h.opts.Slot == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "preview disabled"})
		return
	}
	var (
		img *image.RGBA
		seq uint64
	)
	ok := h.opts.Slot.View(func(f *capture.Frame, s uint64) {
		img = toRGBA(f)
		seq = s
	})
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no frame yet"})
		return
	}

	etag := fmt.Sprintf(`"%d"`, seq)
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: h.opts.JPEGQuality}); err != nil {
		h.log.Debug().Err(err).Msg("writing preview")
	}
}

// toRGBA copies a BGRA frame into a new RGBA image.
func toRGBA(f *capture.Frame) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		src := f.Pix[y*f.Stride : y*f.Stride+f.Width*capture.BytesPerPixel]
		dst := img.Pix[y*img.Stride : y*img.Stride+f.Width*4]
		for i := 0; i < len(src); i += 4 {
			dst[i], dst[i+1], dst[i+2], dst[i+3] = src[i+2], src[i+1], src[i], 0xff
		}
	}
	return img
}
