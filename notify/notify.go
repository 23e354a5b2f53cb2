// Package notify shows desktop notifications for session progress.
package notify

import (
	"os"
	"path/filepath"

	"github.com/gen2brain/beeep"

	"dictate/config"
	"dictate/log"
)

// Icon names looked up in the configured icon directory.
const (
	IconSpeaking = "speaking.png"
	IconSilence  = "silence.png"
	IconThinking = "thinking.png"
)

type Notifier interface {
	Notify(message, icon string)
}

type sendFunc func(title, message string, icon any) error

// Desktop sends notifications through the platform notification service.
// Failures are logged and otherwise ignored.
type Desktop struct {
	Title   string
	IconDir string
	send    sendFunc
}

func New(cfg config.NotifyConfig) Notifier {
	if !cfg.Enabled {
		return Nop{}
	}
	beeep.AppName = cfg.Title
	return &Desktop{Title: cfg.Title, IconDir: cfg.IconDir, send: beeep.Notify}
}

func (d *Desktop) Notify(message, icon string) {
	if err := d.send(d.Title, message, d.iconPath(icon)); err != nil {
		log.Warnf("notification %q: %v", message, err)
	}
}

func (d *Desktop) iconPath(icon string) string {
	if d.IconDir == "" || icon == "" {
		return ""
	}
	p := filepath.Join(d.IconDir, icon)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

type Nop struct{}

func (Nop) Notify(string, string) {}
