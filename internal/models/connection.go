package models

import "time"

// ConnectionStatus is the last known reachability of the library API
type ConnectionStatus struct {
	IsConnected bool       `json:"isConnected"`
	IsChecking  bool       `json:"isChecking"`
	LastChecked *time.Time `json:"lastChecked"`
	Error       string     `json:"error,omitempty"`
}

// BannerText is the line the always-visible connection banner shows
func (s ConnectionStatus) BannerText() string {
	switch {
	case s.IsChecking:
		return "Checking connection..."
	case s.IsConnected:
		return "Connected to backend"
	case s.Error != "":
		return s.Error
	default:
		return "Backend disconnected"
	}
}

// ConnectionView is ConnectionStatus plus banner presentation hints
type ConnectionView struct {
	ConnectionStatus
	Banner     string `json:"banner"`
	TapToRetry bool   `json:"tapToRetry"`
}

// NewConnectionView builds the banner view for a status snapshot
func NewConnectionView(s ConnectionStatus) ConnectionView {
	return ConnectionView{
		ConnectionStatus: s,
		Banner:           s.BannerText(),
		TapToRetry:       !s.IsConnected && !s.IsChecking,
	}
}
