//go:build !linux

package beep

import (
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

const (
	playbackChannels = 1
	tickDuration     = 0.05
)

func play(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return err
	}
	defer func() {
		ctx.Uninit()
		ctx.Free()
	}()

	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		data[i*2] = byte(s)
		data[i*2+1] = byte(s >> 8)
	}

	var pos atomic.Uint32
	done := make(chan struct{})
	var closed atomic.Bool

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = playbackChannels
	config.SampleRate = sampleRate

	onData := func(pOutput, _ []byte, frameCount uint32) {
		p := pos.Load()
		n := uint32(copy(pOutput, data[p:]))
		for i := n; i < uint32(len(pOutput)); i++ {
			pOutput[i] = 0
		}
		pos.Store(p + n)
		if int(p+n) >= len(data) && closed.CompareAndSwap(false, true) {
			close(done)
		}
	}

	device, err := malgo.InitDevice(ctx.Context, config, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return err
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return err
	}
	duration := time.Duration(len(samples)/playbackChannels) * time.Second / sampleRate
	select {
	case <-done:
	case <-time.After(duration + time.Second):
	}
	// let the last period reach the speaker
	time.Sleep(50 * time.Millisecond)
	return device.Stop()
}
