package testutils

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/saviobatista/fsd-connector/internal/types"
)

// Sample packets as a VATSIM server sends them
const (
	SampleServerIdentification = "$DISERVER:CLIENT:VATSIM FSD V3.43:3a2b1c0d9e8f"
	SamplePilotPosition        = "@N:DAL123:1200:1:40.6413111:-73.7781391:35000:450:4261412864:120"
	SampleFastPilotPosition    = "^DAL123:40.6413111:-73.7781391:35000.00:4261412864:0.0000:0.0000:0.0000:0.0000:0.0000:0.0000"
	SampleAddPilot             = "#APDAL123:SERVER:1234567::1:100:31:John Doe KJFK"
	SampleDeletePilot          = "#DPDAL123:1234567"
	SampleBroadcast            = "#TMSERVER:*:maintenance at 12:00z"
	SamplePing                 = "$PISERVER:CLIENT:1697040000"
)

// MockRawPacket creates a mock raw packet for testing
func MockRawPacket(direction, raw string) *types.RawPacket {
	return &types.RawPacket{
		Raw:       raw,
		Direction: direction,
		Timestamp: time.Now().UTC(),
		SessionID: "test-session",
		Server:    "test-server",
	}
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// IsIntegrationTest returns false when SKIP_INTEGRATION is set
func IsIntegrationTest() bool {
	return os.Getenv("SKIP_INTEGRATION") == ""
}

// FakeResponder is a deterministic auth responder.
// Challenges are "c1", "c2", ...; a response is "challenge|key".
type FakeResponder struct {
	KeyPresent bool

	mu    sync.Mutex
	count int
}

// NewFakeResponder creates a FakeResponder with a public key
func NewFakeResponder() *FakeResponder {
	return &FakeResponder{KeyPresent: true}
}

// GenerateChallenge returns the next challenge in sequence
func (r *FakeResponder) GenerateChallenge() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.count++
	return fmt.Sprintf("c%d", r.count)
}

// Respond returns challenge|key
func (r *FakeResponder) Respond(challenge, key string, _ types.ClientProperties) string {
	return challenge + "|" + key
}

// PublicKeyPresent returns KeyPresent
func (r *FakeResponder) PublicKeyPresent() bool {
	return r.KeyPresent
}

// Challenges returns how many challenges were generated
func (r *FakeResponder) Challenges() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
