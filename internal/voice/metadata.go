package voice

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// RoomMetadata is the call context attached to the platform room so the
// agent process can seed its conversation. The wire form is pipe-separated
// key:value pairs with the prompt base64-encoded, since prompts carry
// arbitrary free text.
type RoomMetadata struct {
	Subject     string
	CallerName  string
	CompanyName string
	MainPrompt  string
	CallID      string
}

const (
	metaKeySubject     = "call_subject"
	metaKeyCallerName  = "caller_name"
	metaKeyCompanyName = "company_name"
	metaKeyMainPrompt  = "main_prompt"
	metaKeyCallID      = "db_call_id"
)

func (m RoomMetadata) Encode() string {
	parts := []string{
		metaKeySubject + ":" + m.Subject,
		metaKeyCallerName + ":" + m.CallerName,
		metaKeyCompanyName + ":" + m.CompanyName,
		metaKeyMainPrompt + ":" + base64.StdEncoding.EncodeToString([]byte(m.MainPrompt)),
	}
	if m.CallID != "" {
		parts = append(parts, metaKeyCallID+":"+m.CallID)
	}
	return strings.Join(parts, "|")
}

// ParseRoomMetadata decodes the pipe-separated form. Unknown keys are
// ignored so agent-side additions do not break the API.
func ParseRoomMetadata(s string) (RoomMetadata, error) {
	var m RoomMetadata
	if s == "" {
		return m, nil
	}
	for _, part := range strings.Split(s, "|") {
		key, value, ok := strings.Cut(part, ":")
		if !ok {
			return RoomMetadata{}, fmt.Errorf("voice: malformed metadata segment %q", part)
		}
		switch key {
		case metaKeySubject:
			m.Subject = value
		case metaKeyCallerName:
			m.CallerName = value
		case metaKeyCompanyName:
			m.CompanyName = value
		case metaKeyMainPrompt:
			decoded, err := base64.StdEncoding.DecodeString(value)
			if err != nil {
				return RoomMetadata{}, fmt.Errorf("voice: main_prompt not base64: %w", err)
			}
			m.MainPrompt = string(decoded)
		case metaKeyCallID:
			m.CallID = value
		}
	}
	return m, nil
}
