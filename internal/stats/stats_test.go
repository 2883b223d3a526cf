package stats

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/saviobatista/fsd-connector/internal/db"
	"github.com/saviobatista/fsd-connector/internal/logging"
	"github.com/saviobatista/fsd-connector/internal/pdu"
	"github.com/saviobatista/fsd-connector/internal/session"
	"github.com/saviobatista/fsd-connector/internal/testutils"
)

type recordingStore struct {
	mu      sync.Mutex
	samples []db.SystemStats
	err     error
}

func (r *recordingStore) StoreSystemStats(s db.SystemStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return r.err
}

func (r *recordingStore) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		raw  string
		kind int
	}{
		{testutils.SamplePilotPosition, KindPilotPosition},
		{testutils.SampleFastPilotPosition, KindFastPosition},
		{"%EGLL_TWR:18500:4:50:5:51.4700000:-0.4600000:0", KindATCPosition},
		{"'EGLL_TWR:1:51.4700000:-0.4600000", KindATCPosition},
		{testutils.SampleBroadcast, KindTextMessage},
		{"$CQDAL123:SERVER:ATC:EGLL_TWR", KindClientQuery},
		{"$ZCSERVER:DAL123:abc", KindAuth},
		{testutils.SampleServerIdentification, KindAuth},
		{"$FPDAL123:*A:I:B738:450:KJFK:1200:0:FL350:KLAX:5:30:7:0:KSFO:rmk:DCT", KindFlightPlan},
		{testutils.SampleAddPilot, KindLogon},
		{testutils.SampleDeletePilot, KindLogon},
		{testutils.SamplePing, KindOtherDollar},
		{"#WXDAL123:SERVER:KJFK", KindOtherHash},
		{"", KindOtherHash},
	}
	for _, tt := range tests {
		if got := KindOf(tt.raw); got != tt.kind {
			t.Errorf("KindOf(%q) = %d, want %d", tt.raw, got, tt.kind)
		}
	}
}

func TestStats_Notify(t *testing.T) {
	s := New()

	s.Notify(session.Connected{})
	s.Notify(session.RawDataReceived{Data: testutils.SamplePilotPosition})
	s.Notify(session.RawDataReceived{Data: testutils.SamplePing})
	s.Notify(session.RawDataReceived{Data: "$ZZSERVER:DAL123:x"})
	s.Notify(session.Received{Message: &pdu.Ping{}})
	s.Notify(session.NetworkError{Err: &pdu.FormatError{Reason: "Unknown PDU type."}})
	s.Notify(session.NetworkError{Err: errors.New("connection reset")})
	s.Notify(session.RawDataSent{Data: "$ZCDAL123:SERVER:c1"})
	s.Notify(session.RawDataSent{Data: "$ZRDAL123:SERVER:r1"})
	s.Notify(session.RawDataSent{Data: "$PODAL123:SERVER:1"})

	snap := s.Snapshot()
	if snap.PacketsIn != 3 || snap.PacketsOut != 3 {
		t.Errorf("Expected 3 in / 3 out, got %d / %d", snap.PacketsIn, snap.PacketsOut)
	}
	if snap.ParsedPackets != 1 || snap.FailedPackets != 1 {
		t.Errorf("Expected 1 parsed / 1 failed, got %d / %d", snap.ParsedPackets, snap.FailedPackets)
	}
	if snap.ChallengesSent != 1 || snap.ChallengesAnswered != 1 {
		t.Errorf("Expected 1 challenge each way, got %d / %d", snap.ChallengesSent, snap.ChallengesAnswered)
	}
	if snap.PacketTypes[KindPilotPosition] != 1 || snap.PacketTypes[KindOtherDollar] != 2 {
		t.Errorf("Unexpected packet types %v", snap.PacketTypes)
	}
}

func TestStats_Counters(t *testing.T) {
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.IncrementStoredPositions()
			s.IncrementDroppedPackets()
			s.AddProcessingTime(time.Millisecond)
		}()
	}
	wg.Wait()

	s.IncrementCreatedSessions()
	s.IncrementEndedSessions()
	s.SetActivePilots(7)
	s.SetActiveControllers(2)

	snap := s.Snapshot()
	if snap.StoredPositions != 50 || snap.DroppedPackets != 50 {
		t.Errorf("Expected 50 / 50, got %d / %d", snap.StoredPositions, snap.DroppedPackets)
	}
	if snap.ProcessingTime != 50*time.Millisecond {
		t.Errorf("Expected 50ms processing time, got %s", snap.ProcessingTime)
	}
	if snap.CreatedSessions != 1 || snap.EndedSessions != 1 || snap.ActivePilots != 7 || snap.ActiveControllers != 2 {
		t.Errorf("Unexpected snapshot %+v", snap)
	}

	out := s.String()
	for _, want := range []string{"Stored Positions: 50", "Active Pilots: 7", "Active Controllers: 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("String() missing %q:\n%s", want, out)
		}
	}
	if s.Fields()["active_pilots"] != uint64(7) {
		t.Errorf("Unexpected fields %v", s.Fields())
	}
}

func TestStats_Persist(t *testing.T) {
	s := New()
	if err := s.Persist(); err == nil {
		t.Error("Persist() should fail without a store")
	}

	store := &recordingStore{}
	s.SetStore(store)
	s.IncrementPacketsIn(testutils.SamplePing)

	if err := s.Persist(); err != nil {
		t.Fatalf("Persist() failed: %v", err)
	}
	if store.count() != 1 || store.samples[0].PacketsIn != 1 {
		t.Errorf("Unexpected samples %+v", store.samples)
	}

	store.err = errors.New("db down")
	if err := s.Persist(); err == nil {
		t.Error("Persist() should return the store error")
	}
}

func TestStats_StartPersistence(t *testing.T) {
	s := New()
	store := &recordingStore{}
	s.SetStore(store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.StartPersistence(ctx, 10*time.Millisecond, logging.Discard())
	}()

	if err := testutils.WaitForCondition(func() bool { return store.count() >= 2 }, time.Second); err != nil {
		t.Fatalf("Statistics were not persisted periodically: %v", err)
	}

	cancel()
	<-done
	before := store.count()
	time.Sleep(30 * time.Millisecond)
	if store.count() != before {
		t.Error("Persistence continued after cancellation")
	}
}
