//go:build !noaudio

package player

import (
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"
)

const outputBufferSize = 250 * time.Millisecond

type otoOutput struct {
	ctx *oto.Context
}

// newOutput creates the oto context. oto allows a single context per
// process, so the engine calls this at most once.
func newOutput(sampleRate int) (output, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   outputBufferSize,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}

	<-ready
	return &otoOutput{ctx: ctx}, nil
}

func (o *otoOutput) NewVoice(r io.Reader) voice {
	return o.ctx.NewPlayer(r)
}
