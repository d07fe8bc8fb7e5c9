//go:build noaudio

package player

import (
	"io"
	"sync"
	"time"
)

const discardTick = 50 * time.Millisecond

// discardOutput consumes PCM in real time without an audio device, so a
// headless build still exercises networking and decoding.
type discardOutput struct {
	bytesPerTick int
}

func newOutput(sampleRate int) (output, error) {
	return &discardOutput{
		bytesPerTick: sampleRate * bytesPerFrame * int(discardTick) / int(time.Second),
	}, nil
}

func (o *discardOutput) NewVoice(r io.Reader) voice {
	v := &discardVoice{reader: r, chunk: make([]byte, o.bytesPerTick), stop: make(chan struct{})}
	go v.run()
	return v
}

type discardVoice struct {
	reader io.Reader
	chunk  []byte

	mu      sync.Mutex
	playing bool

	stop     chan struct{}
	stopOnce sync.Once
}

func (v *discardVoice) run() {
	ticker := time.NewTicker(discardTick)
	defer ticker.Stop()

	for {
		select {
		case <-v.stop:
			return
		case <-ticker.C:
			v.mu.Lock()
			playing := v.playing
			v.mu.Unlock()

			if !playing {
				continue
			}
			if _, err := io.ReadFull(v.reader, v.chunk); err != nil {
				return
			}
		}
	}
}

func (v *discardVoice) Play() {
	v.mu.Lock()
	v.playing = true
	v.mu.Unlock()
}

func (v *discardVoice) Pause() {
	v.mu.Lock()
	v.playing = false
	v.mu.Unlock()
}

func (v *discardVoice) Close() error {
	v.stopOnce.Do(func() { close(v.stop) })
	return nil
}
