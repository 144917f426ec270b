package voice

import (
	"strings"
	"testing"
)

func TestRoomMetadataRoundTrip(t *testing.T) {
	in := RoomMetadata{
		Subject:     "Follow up on your recent inquiry",
		CallerName:  "Husain",
		CompanyName: "TechCorp Solutions",
		MainPrompt:  "Confirm the meeting tomorrow at 2 PM | discuss timeline & budget.",
		CallID:      "3a0c6f0e-1111-2222-3333-444455556666",
	}

	encoded := in.Encode()
	out, err := ParseRoomMetadata(encoded)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch:\n in: %+v\nout: %+v", in, out)
	}
}

func TestRoomMetadataEncodesPromptSafely(t *testing.T) {
	// Pipes and colons in the prompt must not corrupt the segment layout.
	m := RoomMetadata{Subject: "s", MainPrompt: "a|b:c|d"}
	encoded := m.Encode()
	if strings.Contains(strings.SplitN(encoded, "main_prompt:", 2)[1], "|b:c") {
		t.Fatalf("prompt leaked unencoded into metadata: %s", encoded)
	}
	out, err := ParseRoomMetadata(encoded)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if out.MainPrompt != "a|b:c|d" {
		t.Fatalf("prompt mangled: %q", out.MainPrompt)
	}
}

func TestParseRoomMetadataRejectsMalformedSegment(t *testing.T) {
	if _, err := ParseRoomMetadata("call_subject"); err == nil {
		t.Fatalf("expected error for segment without separator")
	}
}

func TestRoomName(t *testing.T) {
	if got := RoomName("3a0c6f0e-1111-2222"); got != "agent-call-3a0c6f0e" {
		t.Fatalf("unexpected room name %q", got)
	}
	if got := RoomName("abc"); got != "agent-call-abc" {
		t.Fatalf("short ids should pass through, got %q", got)
	}
}
