package recorder

import (
	"encoding/binary"
	"fmt"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVSink streams mono 16-bit PCM frames into a WAV file. The header sizes are
// patched on Close.
type WAVSink struct {
	file *os.File
	enc  *wav.Encoder
	buf  *goaudio.IntBuffer
}

// CreateWAV creates a uniquely named WAV file in dir (os.TempDir when empty).
func CreateWAV(dir string, sampleRate int) (*WAVSink, error) {
	f, err := os.CreateTemp(dir, "dictate-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create wav: %w", err)
	}
	return &WAVSink{
		file: f,
		enc:  wav.NewEncoder(f, sampleRate, 16, 1, 1),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}, nil
}

func (w *WAVSink) Path() string { return w.file.Name() }

func (w *WAVSink) Write(frames [][]byte) error {
	n := 0
	for _, f := range frames {
		n += len(f) / 2
	}
	data := w.buf.Data[:0]
	if cap(data) < n {
		data = make([]int, 0, n)
	}
	for _, f := range frames {
		for i := 0; i+1 < len(f); i += 2 {
			data = append(data, int(int16(binary.LittleEndian.Uint16(f[i:]))))
		}
	}
	w.buf.Data = data
	return w.enc.Write(w.buf)
}

func (w *WAVSink) Close() error {
	encErr := w.enc.Close()
	fileErr := w.file.Close()
	if encErr != nil {
		return encErr
	}
	return fileErr
}
