package types

import (
	"fmt"
	"time"
)

// Packet directions used by RawPacket
const (
	DirectionInbound  = "in"
	DirectionOutbound = "out"
)

// RawPacket represents a raw FSD packet as it crossed the wire
type RawPacket struct {
	Raw       string    `json:"raw"`
	Direction string    `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Server    string    `json:"server"`
}

// ClientProperties identifies the client software to the network
type ClientProperties struct {
	Name         string `json:"name" toml:"name"`
	VersionMajor int    `json:"version_major" toml:"version_major"`
	VersionMinor int    `json:"version_minor" toml:"version_minor"`
	ClientHash   string `json:"-" toml:"client_hash"`
	PluginHash   string `json:"-" toml:"plugin_hash"`
}

// String returns the client name and version
func (p ClientProperties) String() string {
	return fmt.Sprintf("%s %d.%d", p.Name, p.VersionMajor, p.VersionMinor)
}

// ServerInfo describes one FSD server from the network directory
type ServerInfo struct {
	Name        string `json:"name"`
	Address     string `json:"address"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

// String returns the server name
func (s ServerInfo) String() string {
	return s.Name
}

// PilotState represents the latest known state of a pilot on the network
type PilotState struct {
	Callsign         string    `json:"callsign"`
	Squawk           int       `json:"squawk"`
	SquawkingModeC   bool      `json:"squawking_mode_c"`
	Identing         bool      `json:"identing"`
	Rating           int       `json:"rating"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	TrueAltitude     int       `json:"true_altitude"`
	PressureAltitude int       `json:"pressure_altitude"`
	GroundSpeed      int       `json:"ground_speed"`
	Pitch            float64   `json:"pitch"`
	Bank             float64   `json:"bank"`
	Heading          float64   `json:"heading"`
	Timestamp        time.Time `json:"timestamp"`
	SessionID        string    `json:"session_id"`
}

// ControllerState represents the latest known state of an ATC client
type ControllerState struct {
	Callsign        string    `json:"callsign"`
	Frequency       int       `json:"frequency"`
	Facility        int       `json:"facility"`
	VisibilityRange int       `json:"visibility_range"`
	Rating          int       `json:"rating"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	Timestamp       time.Time `json:"timestamp"`
}

// PilotSession represents one logon of a pilot, from #AP to #DP
type PilotSession struct {
	SessionID      string    `json:"session_id"`
	Callsign       string    `json:"callsign"`
	CID            string    `json:"cid"`
	RealName       string    `json:"real_name"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	FirstLatitude  float64   `json:"first_latitude"`
	FirstLongitude float64   `json:"first_longitude"`
	LastLatitude   float64   `json:"last_latitude"`
	LastLongitude  float64   `json:"last_longitude"`
	MaxAltitude    int       `json:"max_altitude"`
	MaxGroundSpeed int       `json:"max_ground_speed"`
}
