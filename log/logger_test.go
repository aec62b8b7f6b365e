package log

import "testing"

func TestMemoryLoggerCapturesByLevel(t *testing.T) {
	m := NewMemoryLogger()
	m.Info("starting %s", "sandbox")
	m.Warn("bind %s failed, non-fatal", "/opt")
	m.Error("pivot_root: %s", "device busy")

	tests := []struct {
		name   string
		substr string
		want   bool
	}{
		{"info message present", "starting sandbox", true},
		{"warn message present", "bind /opt failed", true},
		{"error message present", "device busy", true},
		{"absent message", "never logged", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.HasMessage(tt.substr); got != tt.want {
				t.Errorf("HasMessage(%q) = %v, want %v", tt.substr, got, tt.want)
			}
		})
	}

	if got := len(m.Messages()); got != 3 {
		t.Errorf("len(Messages()) = %d, want 3", got)
	}
}

func TestNoOpLoggerDiscardsEverything(t *testing.T) {
	var l Logger = NoOpLogger{}
	l.Info("x")
	l.Debug("x")
	l.Warn("x")
	l.Error("x")
}

func TestStderrLoggerHasStableID(t *testing.T) {
	l := NewStderrLogger()
	if l.ID() == "" {
		t.Fatal("expected non-empty correlation id")
	}
	if l.ID() != l.ID() {
		t.Fatal("ID should be stable across calls")
	}
}
