package player

import "io"

// voice is one playing PCM source on the shared audio output
type voice interface {
	Play()
	Pause()
	Close() error
}

// output is the process-wide audio sink. Implementations live behind the
// noaudio build tag.
type output interface {
	NewVoice(r io.Reader) voice
}
