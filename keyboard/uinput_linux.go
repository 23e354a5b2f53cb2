//go:build linux

package keyboard

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"sync"
	"syscall"
	"time"
)

// ioctl constants from linux/uinput.h
const (
	uiSetEvbit   = 0x40045564 // UI_SET_EVBIT
	uiSetKeybit  = 0x40045565 // UI_SET_KEYBIT
	uiDevCreate  = 0x5501     // UI_DEV_CREATE
	uiDevDestroy = 0x5502     // UI_DEV_DESTROY
)

// input event types from linux/input-event-codes.h
const (
	evSyn = 0x00
	evKey = 0x01
)

const busUSB = 0x03

type inputEvent struct {
	Time  syscall.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type uinputUserDev struct {
	Name         [80]byte
	ID           inputID
	FfEffectsMax uint32
	Absmax       [64]int32
	Absmin       [64]int32
	Absfuzz      [64]int32
	Absflat      [64]int32
}

// Keyboard is a virtual uinput keyboard, created on first use.
type Keyboard struct {
	KeyDelay time.Duration

	once sync.Once
	err  error
	file *os.File
	w    io.Writer
}

func New() *Keyboard {
	return &Keyboard{KeyDelay: 5 * time.Millisecond}
}

func (k *Keyboard) open() error {
	k.once.Do(func() {
		if k.w != nil {
			return
		}
		k.file, k.err = createDevice()
		if k.err == nil {
			k.w = k.file
			// compositors need a moment to pick up a new input device
			time.Sleep(200 * time.Millisecond)
		}
	})
	return k.err
}

// Ready creates the virtual device now instead of on first use.
func (k *Keyboard) Ready() error { return k.open() }

func createDevice() (*os.File, error) {
	path := "/dev/uinput"
	if _, err := os.Stat(path); err != nil {
		path = "/dev/input/uinput"
		if _, err := os.Stat(path); err != nil {
			return nil, errors.New("uinput device not found, try: sudo modprobe uinput")
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, os.ModeDevice)
	if err != nil {
		return nil, err
	}
	ioctl := func(req, arg uintptr) error {
		if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), req, arg); errno != 0 {
			return errno
		}
		return nil
	}
	fail := func(err error) (*os.File, error) {
		f.Close()
		return nil, err
	}

	if err := ioctl(uiSetEvbit, evKey); err != nil {
		return fail(err)
	}
	if err := ioctl(uiSetEvbit, evSyn); err != nil {
		return fail(err)
	}
	// all standard keys, so udev classifies the device as a keyboard
	for i := uintptr(0); i < 256; i++ {
		if err := ioctl(uiSetKeybit, i); err != nil {
			return fail(err)
		}
	}
	dev := uinputUserDev{}
	copy(dev.Name[:], "dictate-keyboard")
	dev.ID.Bustype = busUSB
	dev.ID.Vendor = 0x1234
	dev.ID.Product = 0x5679
	dev.ID.Version = 1
	if err := binary.Write(f, binary.LittleEndian, &dev); err != nil {
		return fail(err)
	}
	if err := ioctl(uiDevCreate, 0); err != nil {
		return fail(err)
	}
	return f, nil
}

func (k *Keyboard) event(typ, code uint16, value int32) error {
	ev := inputEvent{Type: typ, Code: code, Value: value}
	if err := binary.Write(k.w, binary.LittleEndian, &ev); err != nil {
		return err
	}
	return binary.Write(k.w, binary.LittleEndian, &inputEvent{Type: evSyn})
}

func (k *Keyboard) pause() {
	if k.KeyDelay > 0 {
		time.Sleep(k.KeyDelay)
	}
}

// Paste sends Ctrl+V.
func (k *Keyboard) Paste() error {
	if err := k.open(); err != nil {
		return err
	}
	return k.chord(keyLeftCtrl, keyV)
}

func (k *Keyboard) chord(mod, code uint16) error {
	steps := []struct {
		code  uint16
		value int32
	}{{mod, 1}, {code, 1}, {code, 0}, {mod, 0}}
	for i, s := range steps {
		if i > 0 {
			k.pause()
		}
		if err := k.event(evKey, s.code, s.value); err != nil {
			return err
		}
	}
	return nil
}

func (k *Keyboard) tap(s keyStroke) error {
	if s.shift {
		if err := k.event(evKey, keyLeftShift, 1); err != nil {
			return err
		}
	}
	if err := k.event(evKey, s.code, 1); err != nil {
		return err
	}
	if err := k.event(evKey, s.code, 0); err != nil {
		return err
	}
	if s.shift {
		return k.event(evKey, keyLeftShift, 0)
	}
	return nil
}

// Type sends text key by key on a US layout. Text with a character outside
// printable ASCII, tab and newline fails before any key is sent. Cancelling
// ctx stops typing between keys.
func (k *Keyboard) Type(ctx context.Context, text string) error {
	keys, err := strokes(text)
	if err != nil {
		return err
	}
	if err := k.open(); err != nil {
		return err
	}
	for _, s := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := k.tap(s); err != nil {
			return err
		}
		k.pause()
	}
	return nil
}

func (k *Keyboard) Close() error {
	if k.file == nil {
		return nil
	}
	syscall.Syscall(syscall.SYS_IOCTL, k.file.Fd(), uiDevDestroy, 0)
	err := k.file.Close()
	k.file = nil
	return err
}
