package delivery

import "fmt"

// Display is the windowing protocol of the session, detected once at startup.
type Display int

const (
	X11 Display = iota
	Wayland
)

func (d Display) String() string {
	if d == Wayland {
		return "wayland"
	}
	return "x11"
}

// DetectDisplay reports Wayland when XDG_SESSION_TYPE is "wayland" or
// WAYLAND_DISPLAY is set, X11 otherwise.
func DetectDisplay(getenv func(string) string) Display {
	if getenv("XDG_SESSION_TYPE") == "wayland" || getenv("WAYLAND_DISPLAY") != "" {
		return Wayland
	}
	return X11
}

// ParseDisplay resolves a configured display name; "auto" detects it.
func ParseDisplay(name string, getenv func(string) string) (Display, error) {
	switch name {
	case "", "auto":
		return DetectDisplay(getenv), nil
	case "wayland":
		return Wayland, nil
	case "x11":
		return X11, nil
	}
	return X11, fmt.Errorf("unknown display %q", name)
}
