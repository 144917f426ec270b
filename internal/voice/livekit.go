package voice

import (
	"context"
	"fmt"

	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"github.com/husainf4l/ravoxai/internal/calls"
	"github.com/husainf4l/ravoxai/internal/config"
)

// LiveKitProvider places calls by creating a room carrying the conversation
// context in its metadata, then attaching a SIP participant on the outbound
// trunk. Placement does not wait for the callee to answer; answer/hangup
// arrive later as lifecycle callbacks.
type LiveKitProvider struct {
	rooms   *lksdk.RoomServiceClient
	sip     *lksdk.SIPClient
	trunkID string
}

func NewLiveKitProvider(cfg config.VoiceConfig) (*LiveKitProvider, error) {
	if cfg.URL == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("voice: livekit url and credentials are required")
	}
	if cfg.SIPTrunkID == "" {
		return nil, fmt.Errorf("voice: outbound SIP trunk id is required")
	}
	return &LiveKitProvider{
		rooms:   lksdk.NewRoomServiceClient(cfg.URL, cfg.APIKey, cfg.APISecret),
		sip:     lksdk.NewSIPClient(cfg.URL, cfg.APIKey, cfg.APISecret),
		trunkID: cfg.SIPTrunkID,
	}, nil
}

func (p *LiveKitProvider) Name() string { return "livekit" }

func (p *LiveKitProvider) HealthCheck(ctx context.Context) error {
	_, err := p.rooms.ListRooms(ctx, &livekit.ListRoomsRequest{})
	if err != nil {
		return fmt.Errorf("voice: livekit unreachable: %w", err)
	}
	return nil
}

func (p *LiveKitProvider) PlaceCall(ctx context.Context, req calls.PlacementRequest) (calls.Placement, error) {
	roomName := RoomName(req.CallID)

	meta := RoomMetadata{
		Subject:     req.Subject,
		CallerName:  req.CallerName,
		CompanyName: req.CompanyName,
		MainPrompt:  req.MainPrompt,
		CallID:      req.CallID,
	}
	_, err := p.rooms.CreateRoom(ctx, &livekit.CreateRoomRequest{
		Name:     roomName,
		Metadata: meta.Encode(),
	})
	if err != nil {
		return calls.Placement{}, fmt.Errorf("voice: create room: %w", err)
	}

	participant, err := p.sip.CreateSIPParticipant(ctx, &livekit.CreateSIPParticipantRequest{
		SipTrunkId:          p.trunkID,
		SipCallTo:           req.To,
		RoomName:            roomName,
		ParticipantIdentity: "phone-caller",
		ParticipantName:     req.AgentName + " Call",
	})
	if err != nil {
		return calls.Placement{}, fmt.Errorf("voice: create sip participant: %w", err)
	}

	return calls.Placement{
		RoomName:       roomName,
		ProviderCallID: participant.SipCallId,
	}, nil
}

// RoomName derives the platform room from the call id. Room names only need
// to be unique while the room lives, so the short prefix is enough.
func RoomName(callID string) string {
	short := callID
	if len(short) > 8 {
		short = short[:8]
	}
	return "agent-call-" + short
}
