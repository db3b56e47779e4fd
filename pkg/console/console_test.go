package console

import (
	"strings"
	"testing"
	"time"
)

func TestFormatChunk(t *testing.T) {
	got := FormatChunk([]byte("OK\r\n"))

	if !strings.HasPrefix(got, "Read 4 bytes:\n") {
		t.Errorf("Expected header, got %q", got)
	}
	if !strings.Contains(got, "4f 4b 0d 0a") {
		t.Errorf("Expected hex bytes, got %q", got)
	}
	if !strings.Contains(got, "|OK..|") {
		t.Errorf("Expected ASCII column, got %q", got)
	}
}

func TestConsole_Received(t *testing.T) {
	c := New(10)
	fixed := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	e := c.Received([]byte{0xde, 0xad})
	if e.Kind != KindReceived || e.Bytes != 2 {
		t.Errorf("Unexpected entry %+v", e)
	}
	if !e.Time.Equal(fixed) {
		t.Errorf("Expected timestamp %v, got %v", fixed, e.Time)
	}
	if !strings.Contains(e.Text, "de ad") {
		t.Errorf("Expected hex dump, got %q", e.Text)
	}
}

func TestConsole_StatusLines(t *testing.T) {
	c := New(10)

	if e := c.Flag("CTS - Clear To Send", true); e.Text != "CTS - Clear To Send: enabled" {
		t.Errorf("Unexpected flag text %q", e.Text)
	}
	if e := c.Flag("RI  - Ring Indicator", false); e.Text != "RI  - Ring Indicator: disabled" {
		t.Errorf("Unexpected flag text %q", e.Text)
	}
	if e := c.Command(1960); e.Text != "Proportion: 1960" || e.Kind != KindCommand {
		t.Errorf("Unexpected command entry %+v", e)
	}
	if e := c.Status("Serial device: %s", "/dev/ttyACM0"); e.Text != "Serial device: /dev/ttyACM0" {
		t.Errorf("Unexpected status text %q", e.Text)
	}
	if c.Len() != 4 {
		t.Errorf("Expected 4 entries, got %d", c.Len())
	}
}

func TestConsole_Bounded(t *testing.T) {
	c := New(3)
	for i := 0; i < 5; i++ {
		c.Command(i)
	}

	entries := c.Entries()
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[0].Text != "Proportion: 2" || entries[2].Text != "Proportion: 4" {
		t.Errorf("Expected oldest entries evicted, got %v", entries)
	}
}

func TestConsole_OnAppend(t *testing.T) {
	c := New(0)
	var seen []Entry
	c.OnAppend(func(e Entry) { seen = append(seen, e) })

	c.Received([]byte("x"))
	c.Command(1000)

	if len(seen) != 2 {
		t.Fatalf("Expected 2 callbacks, got %d", len(seen))
	}
	if seen[1].Kind != KindCommand {
		t.Errorf("Expected command entry, got %+v", seen[1])
	}
}

func TestConsole_EntriesIsCopy(t *testing.T) {
	c := New(5)
	c.Command(1)
	entries := c.Entries()
	entries[0].Text = "changed"
	if c.Entries()[0].Text != "Proportion: 1" {
		t.Error("Expected Entries to return a copy")
	}
}
