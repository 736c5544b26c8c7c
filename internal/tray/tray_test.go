package tray

import (
	"testing"

	"github.com/ayusman/mudra/internal/events"
	"github.com/ayusman/mudra/internal/gesture"
)

func TestTray_Toggle(t *testing.T) {
	tr := New(false)

	var got []bool
	tr.OnToggle(func(enabled bool) { got = append(got, enabled) })

	tr.handleToggle()
	tr.handleToggle()

	if len(got) != 2 || !got[0] || got[1] {
		t.Errorf("expected toggles [true false], got %v", got)
	}
	if tr.IsEnabled() {
		t.Error("expected disabled after two toggles")
	}
}

func TestTray_SetEnabled(t *testing.T) {
	tr := New(true)
	called := false
	tr.OnToggle(func(bool) { called = true })

	tr.SetEnabled(false)

	if tr.IsEnabled() {
		t.Error("expected disabled")
	}
	if called {
		t.Error("SetEnabled should not call the toggle callback")
	}
}

func TestTray_OpenPage(t *testing.T) {
	tr := New(true)
	tr.handleOpenPage()

	opened := 0
	tr.OnOpenPage(func() { opened++ })
	tr.handleOpenPage()

	if opened != 1 {
		t.Errorf("expected page opened once, got %d", opened)
	}
}

func TestTray_Watch(t *testing.T) {
	tr := New(true)
	bus := events.New()
	if err := tr.Watch(bus); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	bus.PublishFrame(events.Frame{Gesture: &gesture.Result{Gesture: gesture.LabelVictory, Confidence: 80}})
	bus.Wait()
	if got := tr.LastGesture(); got != "Victoria" {
		t.Errorf("expected Victoria, got %q", got)
	}

	bus.PublishFrame(events.Frame{Gesture: &gesture.Result{Gesture: gesture.LabelNone}})
	bus.PublishFrame(events.Frame{Cleared: true})
	bus.Wait()
	if got := tr.LastGesture(); got != "Victoria" {
		t.Errorf("expected last gesture kept, got %q", got)
	}
}

func TestTitles(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{toggleTitle(true), "● Enabled"},
		{toggleTitle(false), "○ Disabled"},
		{lastTitle(""), "Last: none"},
		{lastTitle("Te Amo"), "Last: Te Amo"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, tt.got)
		}
	}
}
