package keyboard

import (
	"context"

	"github.com/micmonay/keybd_event"
)

type Keyboard struct{}

func New() *Keyboard {
	return &Keyboard{}
}

// Paste sends Ctrl+V through keybd_event.
func (k *Keyboard) Paste() error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	kb.SetKeys(keybd_event.VK_V)
	kb.HasCTRL(true)
	return kb.Launching()
}

func (k *Keyboard) Type(_ context.Context, text string) error {
	if _, err := strokes(text); err != nil {
		return err
	}
	return ErrUnsupported
}

func (k *Keyboard) Ready() error { return nil }

func (k *Keyboard) Close() error { return nil }
