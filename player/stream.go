package player

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
)

const (
	// s16le stereo
	bytesPerFrame = 4

	networkBufferSize = 65536
	resampleQuality   = 4
)

var (
	ErrStreamEnded       = errors.New("stream ended")
	ErrUnsupportedFormat = errors.New("unsupported stream format")
)

var acceptedContentTypes = map[string]bool{
	"audio/mpeg":               true,
	"audio/mp3":                true,
	"audio/mpeg3":              true,
	"audio/x-mpeg":             true,
	"application/octet-stream": true,
}

// StreamConfig tunes how streams are fetched and decoded
type StreamConfig struct {
	UserAgent      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	SampleRate     int
}

func newHTTPClient(cfg StreamConfig) *http.Client {
	return &http.Client{
		Timeout: 0, // No overall timeout, streams are long-lived
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout: cfg.ConnectTimeout,
			}).DialContext,
			TLSHandshakeTimeout:   cfg.ConnectTimeout,
			ResponseHeaderTimeout: cfg.ConnectTimeout,
			ExpectContinueTimeout: 1 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			DisableCompression:    true,
		},
	}
}

type decodedStream struct {
	streamer beep.Streamer
	format   beep.Format
	closer   io.Closer
}

// openStream connects to streamURL and probes the mp3 decoder. It blocks on
// network I/O and must not be called with a lock held.
func openStream(ctx context.Context, client *http.Client, cfg StreamConfig, streamURL string) (*decodedStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Icy-MetaData", "0")
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := checkContentType(resp.Header.Get("Content-Type")); err != nil {
		resp.Body.Close()
		return nil, err
	}

	var body io.Reader = resp.Body
	if cfg.ReadTimeout > 0 {
		body = &contextReader{reader: resp.Body, ctx: ctx, timeout: cfg.ReadTimeout}
	}

	rc := struct {
		io.Reader
		io.Closer
	}{bufio.NewReaderSize(body, networkBufferSize), resp.Body}

	decoder, format, err := mp3.Decode(rc)
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("decode: %w", err)
	}

	stream := &decodedStream{streamer: decoder, format: format, closer: decoder}
	if cfg.SampleRate > 0 && int(format.SampleRate) != cfg.SampleRate {
		stream.streamer = beep.Resample(resampleQuality, format.SampleRate, beep.SampleRate(cfg.SampleRate), decoder)
	}

	return stream, nil
}

func checkContentType(contentType string) error {
	if contentType == "" {
		return nil
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, contentType)
	}

	if !acceptedContentTypes[strings.ToLower(mediaType)] {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, mediaType)
	}

	return nil
}

// contextReader bounds every read by timeout and by ctx. The read itself
// runs on a helper goroutine that is left behind on timeout; it exits once
// the body is closed.
type contextReader struct {
	reader  io.Reader
	ctx     context.Context
	timeout time.Duration
}

func (cr *contextReader) Read(p []byte) (int, error) {
	select {
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	default:
	}

	timer := time.NewTimer(cr.timeout)
	defer timer.Stop()

	type result struct {
		buf []byte
		err error
	}
	done := make(chan result, 1)

	go func() {
		buf := make([]byte, len(p))
		n, err := cr.reader.Read(buf)
		done <- result{buf[:n], err}
	}()

	select {
	case res := <-done:
		return copy(p, res.buf), res.err
	case <-timer.C:
		return 0, fmt.Errorf("read timeout: no data received for %v", cr.timeout)
	case <-cr.ctx.Done():
		return 0, cr.ctx.Err()
	}
}

// pcmReader pulls decoded samples and encodes them as volume-scaled s16le
// frames for the audio output.
type pcmReader struct {
	streamer beep.Streamer
	gain     func() float64
	onData   func()
	onEnd    func(error)

	samples [][2]float64
}

func (r *pcmReader) Read(p []byte) (int, error) {
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}

	if cap(r.samples) < frames {
		r.samples = make([][2]float64, frames)
	}
	samples := r.samples[:frames]

	n, ok := r.streamer.Stream(samples)
	if n > 0 {
		encodeFrames(p, samples[:n], r.gain())
		if r.onData != nil {
			r.onData()
		}
	}

	if !ok || n < frames {
		err := r.streamer.Err()
		if err == nil {
			err = ErrStreamEnded
		}
		if r.onEnd != nil {
			r.onEnd(err)
		}
		return n * bytesPerFrame, io.EOF
	}

	return n * bytesPerFrame, nil
}

func encodeFrames(p []byte, samples [][2]float64, gain float64) {
	for i, frame := range samples {
		for ch := 0; ch < 2; ch++ {
			v := frame[ch] * gain
			if v > 1 {
				v = 1
			} else if v < -1 {
				v = -1
			}
			binary.LittleEndian.PutUint16(p[i*bytesPerFrame+ch*2:], uint16(int16(v*32767)))
		}
	}
}
