//go:build linux

package beep

import (
	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

const (
	playbackChannels = 1
	// 200ms tail so PulseAudio fills its buffer before draining
	tickDuration = 0.2
)

// cue feeds a rendered cue to a playback stream, then signals EndOfData.
type cue struct {
	samples []int16
}

func (c *cue) read(buf []int16) (int, error) {
	if len(c.samples) == 0 {
		return 0, pulse.EndOfData
	}
	n := copy(buf, c.samples)
	c.samples = c.samples[n:]
	return n, nil
}

// play opens a short-lived client per cue; cues are rare and a held
// connection would outlive the one-shot process anyway.
func play(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	client, err := pulse.NewClient(pulse.ClientApplicationName("dictate"))
	if err != nil {
		return err
	}
	defer client.Close()

	src := &cue{samples: samples}
	stream, err := client.NewPlayback(pulse.Int16Reader(src.read),
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.1),
		pulse.PlaybackRawOption(func(p *proto.CreatePlaybackStream) {
			p.ChannelVolumes = proto.ChannelVolumes{uint32(proto.VolumeNorm)}
		}),
	)
	if err != nil {
		return err
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	stream.Stop()
	return nil
}
