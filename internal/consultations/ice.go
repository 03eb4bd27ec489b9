package consultations

import (
	"strings"

	"github.com/pion/webrtc/v3"
)

// ICEConfig lists the STUN/TURN servers handed to browsers.
type ICEConfig struct {
	URLs           []string
	TURNUsername   string
	TURNCredential string
}

// ICEServers groups STUN URLs into one server entry and TURN URLs into another, attaching
// credentials to TURN only. TURN URLs are skipped when no credentials are configured.
func (c ICEConfig) ICEServers() []webrtc.ICEServer {
	var stun, turn []string
	for _, u := range c.URLs {
		switch {
		case strings.HasPrefix(u, "stun:"), strings.HasPrefix(u, "stuns:"):
			stun = append(stun, u)
		case strings.HasPrefix(u, "turn:"), strings.HasPrefix(u, "turns:"):
			turn = append(turn, u)
		}
	}
	servers := []webrtc.ICEServer{}
	if len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}
	if len(turn) > 0 && c.TURNUsername != "" && c.TURNCredential != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:           turn,
			Username:       c.TURNUsername,
			Credential:     c.TURNCredential,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return servers
}
