package console

import (
	"bytes"
	"testing"
)

func TestPlainWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	c := New(&buf)
	c.Infof("Auto-calibrated silence threshold: %d", 812)
	c.Warnf("careful")
	c.Printf("raw %s", "text")

	want := "Auto-calibrated silence threshold: 812\ncareful\nraw text"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestNilConsole(t *testing.T) {
	var c *Console
	c.Successf("nothing happens")
}
