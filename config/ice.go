package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

const (
	envICEServersJSON = "ICE_SERVERS_JSON"

	envStunURLs       = "STUN_URLS"
	envTurnURLs       = "TURN_URLS"
	envTurnUsername   = "TURN_USERNAME"
	envTurnCredential = "TURN_CREDENTIAL"
)

// DefaultICEServers is handed to clients when nothing is configured
func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}
}

// ParseICEServers builds the ICE server list clients are told to use.
// ICE_SERVERS_JSON wins over the STUN_/TURN_ convenience variables.
func ParseICEServers(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential string) ([]webrtc.ICEServer, error) {
	if raw := strings.TrimSpace(iceServersJSON); raw != "" {
		servers, err := ParseICEServersJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
		}
		return servers, nil
	}

	var servers []webrtc.ICEServer
	if stun := splitCSV(stunURLs); len(stun) > 0 {
		server := webrtc.ICEServer{URLs: stun}
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("%s: %w", envStunURLs, err)
		}
		servers = append(servers, server)
	}

	if turn := splitCSV(turnURLs); len(turn) > 0 {
		turnUsername = strings.TrimSpace(turnUsername)
		turnCredential = strings.TrimSpace(turnCredential)
		if turnUsername == "" || turnCredential == "" {
			return nil, fmt.Errorf("%s/%s: both must be set when %s is set", envTurnUsername, envTurnCredential, envTurnURLs)
		}
		server := webrtc.ICEServer{URLs: turn, Username: turnUsername, Credential: turnCredential}
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("%s: %w", envTurnURLs, err)
		}
		servers = append(servers, server)
	}
	return servers, nil
}

type iceServerJSON struct {
	URLs       stringOrSlice `json:"urls"`
	Username   string        `json:"username,omitempty"`
	Credential string        `json:"credential,omitempty"`
}

// stringOrSlice accepts "urls": "stun:x" as well as "urls": ["stun:x"]
type stringOrSlice []string

func (s *stringOrSlice) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// ParseICEServersJSON parses an RTCIceServer-style JSON array
func ParseICEServersJSON(raw string) ([]webrtc.ICEServer, error) {
	var entries []iceServerJSON
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}

	out := make([]webrtc.ICEServer, 0, len(entries))
	for i, entry := range entries {
		server := webrtc.ICEServer{
			URLs:     splitCSV(strings.Join(entry.URLs, ",")),
			Username: strings.TrimSpace(entry.Username),
		}
		if cred := strings.TrimSpace(entry.Credential); cred != "" {
			server.Credential = cred
		}
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("iceServers[%d]: %w", i, err)
		}
		out = append(out, server)
	}
	return out, nil
}

func validateICEServer(server webrtc.ICEServer) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}

	needsCredentials := false
	for _, url := range server.URLs {
		switch {
		case strings.HasPrefix(url, "stun:"), strings.HasPrefix(url, "stuns:"):
		case strings.HasPrefix(url, "turn:"), strings.HasPrefix(url, "turns:"):
			needsCredentials = true
		default:
			return fmt.Errorf("unsupported url scheme: %q", url)
		}
	}

	if needsCredentials {
		if server.Username == "" {
			return errors.New("turn urls require username")
		}
		cred, ok := server.Credential.(string)
		if !ok || cred == "" {
			return errors.New("turn urls require credential")
		}
	}
	return nil
}
