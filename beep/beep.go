// Package beep plays the short cue tones around a recording.
package beep

import (
	"math"
	"sync"

	"dictate/log"
)

type Sound int

const (
	Start Sound = iota
	End
	Error
)

const (
	sampleRate = 44100

	// Start beep: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End beep: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Error beep: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

// Player plays cues asynchronously. A disabled Player does nothing.
type Player struct {
	enabled bool
	wg      sync.WaitGroup
	mu      sync.Mutex // one cue at a time
}

func New(enabled bool) *Player {
	return &Player{enabled: enabled}
}

func (p *Player) Play(s Sound) {
	if p == nil || !p.enabled {
		return
	}
	samples := Samples(s, playbackChannels)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		if err := play(samples); err != nil {
			log.Warnf("beep playback: %v", err)
		}
	}()
}

// Wait blocks until queued cues have finished so the process does not
// exit halfway through the end beep.
func (p *Player) Wait() {
	if p == nil {
		return
	}
	p.wg.Wait()
}

// Samples renders a cue as interleaved 16-bit PCM.
func Samples(s Sound, channels int) []int16 {
	switch s {
	case Start:
		return tick(startFreq, tickDuration, startVolume, startDecay, channels)
	case End:
		return tick(endFreq, tickDuration, endVolume, endDecay, channels)
	case Error:
		return doubleBeep(errorFreq, 0.08, 0.05, errorVolume, errorDecay, channels)
	}
	return nil
}

func tick(freq, duration, volume, decay float64, channels int) []int16 {
	n := int(sampleRate * duration)
	samples := make([]int16, n*channels)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		s := int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
		for c := 0; c < channels; c++ {
			samples[i*channels+c] = s
		}
	}
	return samples
}

func doubleBeep(freq, beepDur, gapDur, volume, decay float64, channels int) []int16 {
	beep := tick(freq, beepDur, volume, decay, channels)
	gap := make([]int16, int(sampleRate*gapDur)*channels)
	result := make([]int16, 0, len(beep)*2+len(gap))
	result = append(result, beep...)
	result = append(result, gap...)
	result = append(result, beep...)
	return result
}
