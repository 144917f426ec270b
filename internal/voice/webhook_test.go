package voice

import (
	"errors"
	"testing"

	"github.com/husainf4l/ravoxai/internal/calls"
)

func TestCallbackNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want calls.Status
	}{
		{"connecting", calls.StatusConnecting},
		{"answered", calls.StatusConnecting},
		{"Completed", calls.StatusCompleted},
		{"hangup", calls.StatusCompleted},
		{"failed", calls.StatusFailed},
		{"no_answer", calls.StatusFailed},
		{"timeout", calls.StatusFailed},
	}
	for _, tc := range cases {
		got, err := Callback{CallID: "c1", Status: tc.in}.Normalize()
		if err != nil {
			t.Fatalf("normalize(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("normalize(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestCallbackNormalizeRejectsUnknownStatus(t *testing.T) {
	_, err := Callback{CallID: "c1", Status: "ringing-loudly"}.Normalize()
	if !errors.Is(err, calls.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCallbackNormalizeRequiresCorrelation(t *testing.T) {
	_, err := Callback{Status: "completed"}.Normalize()
	if !errors.Is(err, calls.ErrValidation) {
		t.Fatalf("expected ErrValidation without call_id or room_name, got %v", err)
	}

	if _, err := (Callback{RoomName: "agent-call-abc", Status: "completed"}).Normalize(); err != nil {
		t.Fatalf("room_name alone should correlate: %v", err)
	}
}
