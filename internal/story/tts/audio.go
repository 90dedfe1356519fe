package tts

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

var (
	speakerMu   sync.Mutex
	speakerRate beep.SampleRate
)

// initSpeaker initialises the shared speaker once per sample rate.
func initSpeaker(rate beep.SampleRate) error {
	speakerMu.Lock()
	defer speakerMu.Unlock()

	if speakerRate == rate {
		return nil
	}
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return fmt.Errorf("failed to initialise speaker: %w", err)
	}
	speakerRate = rate
	return nil
}

// playMP3 plays the MP3 chunks in order on the speaker and finishes p when
// they end. Finishing p for any other reason silences the stream.
func playMP3(p *playback, chunks [][]byte) error {
	streamers := make([]beep.Streamer, 0, len(chunks))
	closers := make([]beep.StreamSeekCloser, 0, len(chunks))
	closeAll := func() {
		for _, s := range closers {
			s.Close()
		}
	}

	var format beep.Format
	for i, data := range chunks {
		s, f, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
		if err != nil {
			closeAll()
			return fmt.Errorf("failed to decode MP3 chunk %d: %w", i, err)
		}
		if i == 0 {
			format = f
		}
		closers = append(closers, s)
		streamers = append(streamers, s)
	}
	if len(streamers) == 0 {
		p.finish(nil)
		return nil
	}

	if err := initSpeaker(format.SampleRate); err != nil {
		closeAll()
		return err
	}

	ctrl := &beep.Ctrl{Streamer: beep.Seq(streamers...)}
	speaker.Play(beep.Seq(ctrl, beep.Callback(func() {
		p.finish(nil)
	})))

	go func() {
		<-p.ctx.Done()
		speaker.Lock()
		ctrl.Streamer = nil
		speaker.Unlock()
		closeAll()
	}()

	return nil
}
