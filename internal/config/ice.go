package config

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

type ICEServerConfig struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

// ParseICEServers trims and validates the configured servers. TURN entries
// need both a username and a credential.
func ParseICEServers(in []ICEServerConfig) ([]webrtc.ICEServer, error) {
	out := make([]webrtc.ICEServer, 0, len(in))
	for i, server := range in {
		urls := make([]string, 0, len(server.URLs))
		turn := false
		for _, url := range server.URLs {
			url = strings.TrimSpace(url)
			if url == "" {
				continue
			}
			switch {
			case strings.HasPrefix(url, "stun:"), strings.HasPrefix(url, "stuns:"):
			case strings.HasPrefix(url, "turn:"), strings.HasPrefix(url, "turns:"):
				turn = true
			default:
				return nil, fmt.Errorf("server %d: unsupported url scheme %q", i, url)
			}
			urls = append(urls, url)
		}
		if len(urls) == 0 {
			return nil, fmt.Errorf("server %d: no urls", i)
		}

		pcServer := webrtc.ICEServer{
			URLs:     urls,
			Username: strings.TrimSpace(server.Username),
		}
		cred := strings.TrimSpace(server.Credential)
		if cred != "" {
			pcServer.Credential = cred
		}
		if turn && (pcServer.Username == "" || cred == "") {
			return nil, fmt.Errorf("server %d: turn urls require username and credential", i)
		}
		out = append(out, pcServer)
	}
	return out, nil
}
