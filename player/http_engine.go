package player

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultSampleRate is the output rate streams are resampled to
	DefaultSampleRate = 44100

	monitorInterval = 2 * time.Second
	stallThreshold  = 5 * time.Second
	eventBuffer     = 4
)

// HTTPEngine plays network mp3 streams through a shared audio output
type HTTPEngine struct {
	logger *zap.SugaredLogger
	cfg    StreamConfig
	client *http.Client

	outputOnce sync.Once
	out        output
	outErr     error

	monitorEvery time.Duration

	mu     sync.Mutex
	volume float64
	muted  bool
}

// NewHTTPEngine creates an engine. The audio output is opened lazily by the
// first NewHandle call.
func NewHTTPEngine(logger *zap.SugaredLogger, cfg StreamConfig, initialVolume float64) *HTTPEngine {
	logger = logger.Named("player")

	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}

	e := &HTTPEngine{
		logger: logger,
		cfg:    cfg,
		client: newHTTPClient(cfg),
		volume: clampVolume(initialVolume),

		monitorEvery: monitorInterval,
	}

	logger.Debugw("Created http engine", "sampleRate", cfg.SampleRate, "userAgent", cfg.UserAgent)

	return e
}

func (e *HTTPEngine) output() (output, error) {
	e.outputOnce.Do(func() {
		e.out, e.outErr = newOutput(e.cfg.SampleRate)
		if e.outErr != nil {
			e.logger.Errorw("Failed to open audio output", "error", e.outErr)
		}
	})
	return e.out, e.outErr
}

// NewHandle implements Engine
func (e *HTTPEngine) NewHandle(streamURL string) (Handle, error) {
	out, err := e.output()
	if err != nil {
		return nil, fmt.Errorf("init audio: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()

	h := &streamHandle{
		id:     id,
		url:    streamURL,
		engine: e,
		out:    out,
		logger: e.logger.With("handle", id),
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, eventBuffer),
	}

	return h, nil
}

// Close implements Engine. The oto context cannot be closed, so this only
// drops idle connections.
func (e *HTTPEngine) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func clampVolume(volume float64) float64 {
	if volume < 0 {
		return 0
	} else if volume > 1 {
		return 1
	}
	return volume
}

func (e *HTTPEngine) SetVolume(volume float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.volume = clampVolume(volume)
	e.muted = false
}

func (e *HTTPEngine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func (e *HTTPEngine) IncreaseVolume(delta float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.volume = clampVolume(e.volume + delta)
	e.muted = false
}

func (e *HTTPEngine) DecreaseVolume(delta float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.volume = clampVolume(e.volume - delta)
	e.muted = false
}

func (e *HTTPEngine) ToggleMute() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted = !e.muted
}

func (e *HTTPEngine) IsMuted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

func (e *HTTPEngine) effectiveVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.muted {
		return 0
	}
	return e.volume
}

// streamHandle is the HTTPEngine's Handle
type streamHandle struct {
	id     string
	url    string
	engine *HTTPEngine
	out    output
	logger *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	voice    voice
	stream   *decodedStream
	paused   bool
	released bool

	events   chan Event
	failOnce sync.Once
	lastData atomic.Int64
}

func (h *streamHandle) ID() string  { return h.id }
func (h *streamHandle) URL() string { return h.url }

func (h *streamHandle) Start(sink func(Event)) {
	h.logger.Debugw("Preparing stream", "url", h.url)

	go h.deliver(sink)
	go h.prepare()
}

func (h *streamHandle) deliver(sink func(Event)) {
	for {
		select {
		case <-h.ctx.Done():
			return
		case ev := <-h.events:
			sink(ev)
		}
	}
}

func (h *streamHandle) prepare() {
	stream, err := openStream(h.ctx, h.engine.client, h.engine.cfg, h.url)
	if err != nil {
		h.fail(err)
		return
	}

	h.logger.Debugw("Stream opened",
		"sampleRate", int(stream.format.SampleRate),
		"channels", stream.format.NumChannels)

	pcm := &pcmReader{
		streamer: stream.streamer,
		gain:     h.engine.effectiveVolume,
		onData:   h.markData,
		onEnd:    h.fail,
	}

	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		stream.closer.Close()
		return
	}

	h.stream = stream
	h.voice = h.out.NewVoice(pcm)
	v, start := h.voice, !h.paused
	h.mu.Unlock()

	// Play may pull the first buffer from the network, so it runs unlocked
	// to keep Pause and Release from waiting on the read timeout
	if start {
		v.Play()
		h.mu.Lock()
		if h.paused && h.voice == v {
			v.Pause()
		}
		h.mu.Unlock()
	}

	h.markData()
	h.emit(Event{Kind: EventReady})

	go h.monitor()
}

// monitor keeps reporting readiness while audio keeps arriving. It does not
// reconnect: retrying is left to whoever owns the handle.
func (h *streamHandle) monitor() {
	ticker := time.NewTicker(h.engine.monitorEvery)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			h.mu.Lock()
			paused := h.paused
			h.mu.Unlock()

			if paused {
				continue
			}

			since := time.Since(time.Unix(0, h.lastData.Load()))
			if since < stallThreshold {
				h.emit(Event{Kind: EventReady})
			} else {
				h.logger.Debugw("No audio data received", "since", since)
			}
		}
	}
}

func (h *streamHandle) markData() {
	h.lastData.Store(time.Now().UnixNano())
}

// emit never blocks: redundant ready signals are dropped when the buffer is
// full, errors wait for the deliverer unless the handle is released.
func (h *streamHandle) emit(ev Event) {
	if ev.Kind == EventReady {
		select {
		case h.events <- ev:
		default:
		}
		return
	}

	go func() {
		select {
		case h.events <- ev:
		case <-h.ctx.Done():
		}
	}()
}

func (h *streamHandle) fail(err error) {
	h.failOnce.Do(func() {
		if h.ctx.Err() != nil {
			// released, not a stream failure
			return
		}
		h.logger.Warnw("Stream failed", "error", err)
		h.emit(Event{Kind: EventError, Err: err})
	})
}

func (h *streamHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.paused = true
	if h.voice != nil {
		h.voice.Pause()
	}
}

func (h *streamHandle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.paused = false
	h.markData()
	if h.voice != nil {
		h.voice.Play()
	}
}

func (h *streamHandle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.released {
		return nil
	}
	h.released = true
	h.cancel()

	var errs []error
	if h.voice != nil {
		if err := h.voice.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close output: %w", err))
		}
		h.voice = nil
	}
	if h.stream != nil {
		if err := h.stream.closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stream: %w", err))
		}
		h.stream = nil
	}

	h.logger.Debug("Released stream handle")

	return errors.Join(errs...)
}
