package stats

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewStatistics(t *testing.T) {
	s := NewStatistics("eth0", "v1.0.0")

	if s.Interface != "eth0" {
		t.Errorf("Interface = %q, want eth0", s.Interface)
	}
	if s.Version != "v1.0.0" {
		t.Errorf("Version = %q, want v1.0.0", s.Version)
	}
	if s.MessagesSent == nil || s.MessagesReceived == nil {
		t.Error("message maps should be initialized")
	}
	if s.StatusCodeCounts == nil || s.StateTransitionCounts == nil {
		t.Error("status code and state transition maps should be initialized")
	}
}

func TestIncrementMessageSentAndReceived(t *testing.T) {
	s := NewStatistics("eth0", "v1.0.0")

	s.IncrementMessageSent("Solicit")
	s.IncrementMessageSent("Solicit")
	s.IncrementMessageReceived("Advertise")

	if s.MessagesSent["Solicit"] != 2 {
		t.Errorf("MessagesSent[Solicit] = %d, want 2", s.MessagesSent["Solicit"])
	}
	if s.MessagesReceived["Advertise"] != 1 {
		t.Errorf("MessagesReceived[Advertise] = %d, want 1", s.MessagesReceived["Advertise"])
	}
}

func TestIncrementRetransmitAndExhausted(t *testing.T) {
	s := NewStatistics("eth0", "v1.0.0")

	s.IncrementRetransmit()
	s.IncrementRetransmit()
	s.IncrementExhausted()

	if s.RetransmitCount != 2 {
		t.Errorf("RetransmitCount = %d, want 2", s.RetransmitCount)
	}
	if s.ExhaustedCount != 1 {
		t.Errorf("ExhaustedCount = %d, want 1", s.ExhaustedCount)
	}
}

func TestIncrementStatusCode(t *testing.T) {
	s := NewStatistics("eth0", "v1.0.0")

	s.IncrementStatusCode("NoAddrsAvail")
	s.IncrementStatusCode("NoAddrsAvail")
	s.IncrementStatusCode("Success")

	if s.StatusCodeCounts["NoAddrsAvail"] != 2 {
		t.Errorf("StatusCodeCounts[NoAddrsAvail] = %d, want 2", s.StatusCodeCounts["NoAddrsAvail"])
	}
	if s.StatusCodeCounts["Success"] != 1 {
		t.Errorf("StatusCodeCounts[Success] = %d, want 1", s.StatusCodeCounts["Success"])
	}
}

func TestIncrementStateTransition(t *testing.T) {
	s := NewStatistics("eth0", "v1.0.0")

	s.IncrementStateTransition("SENDING_SOLICIT", "SENDING_REQUEST")
	s.IncrementStateTransition("SENDING_SOLICIT", "SENDING_REQUEST")

	if s.StateTransitionCounts["SENDING_SOLICIT->SENDING_REQUEST"] != 2 {
		t.Errorf("unexpected transition count: %d", s.StateTransitionCounts["SENDING_SOLICIT->SENDING_REQUEST"])
	}
}

func TestIncrementRenewAndRebind(t *testing.T) {
	s := NewStatistics("eth0", "v1.0.0")

	s.IncrementRenew()
	s.IncrementRebind()
	s.IncrementRebind()

	if s.RenewCount != 1 {
		t.Errorf("RenewCount = %d, want 1", s.RenewCount)
	}
	if s.RebindCount != 2 {
		t.Errorf("RebindCount = %d, want 2", s.RebindCount)
	}
}

func TestUpdateRefreshesRuntimeFields(t *testing.T) {
	s := NewStatistics("eth0", "v1.0.0")

	time.Sleep(10 * time.Millisecond)
	s.Update()

	if s.Uptime == 0 {
		t.Error("Uptime should be greater than 0 after Update()")
	}
	if s.GoroutineCount == 0 {
		t.Error("GoroutineCount should be greater than 0")
	}
	if s.CPUCount == 0 {
		t.Error("CPUCount should be greater than 0")
	}
}

func TestGetSnapshotIsIndependentOfLiveCounters(t *testing.T) {
	s := NewStatistics("eth0", "v1.0.0")
	s.IncrementMessageSent("Solicit")

	snap := s.GetSnapshot()
	s.IncrementMessageSent("Solicit")

	if snap.MessagesSent["Solicit"] != 1 {
		t.Errorf("snapshot should be frozen at 1, got %d", snap.MessagesSent["Solicit"])
	}
	if s.MessagesSent["Solicit"] != 2 {
		t.Errorf("live counter should now be 2, got %d", s.MessagesSent["Solicit"])
	}
}

func TestExportJSON(t *testing.T) {
	s := NewStatistics("eth0", "v1.0.0")
	s.IncrementMessageSent("Solicit")
	s.IncrementStatusCode("Success")

	path := filepath.Join(t.TempDir(), "stats.json")
	if err := s.ExportJSON(path); err != nil {
		t.Fatalf("ExportJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var snap StatisticsSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if snap.MessagesSent["Solicit"] != 1 {
		t.Errorf("round-tripped MessagesSent[Solicit] = %d, want 1", snap.MessagesSent["Solicit"])
	}
	if snap.Interface != "eth0" {
		t.Errorf("round-tripped Interface = %q, want eth0", snap.Interface)
	}
}

func TestExportCSV(t *testing.T) {
	s := NewStatistics("eth0", "v1.0.0")
	s.IncrementMessageSent("Solicit")
	s.IncrementRetransmit()

	path := filepath.Join(t.TempDir(), "stats.csv")
	if err := s.ExportCSV(path); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) < 2 {
		t.Fatalf("expected at least a header and one data row, got %d rows", len(rows))
	}
	if rows[0][0] != "Metric" || rows[0][1] != "Value" || rows[0][2] != "Category" {
		t.Errorf("unexpected header row: %v", rows[0])
	}
}

func TestStringSummaryContainsInterface(t *testing.T) {
	s := NewStatistics("eth0", "v1.0.0")
	out := s.String()
	if out == "" {
		t.Fatal("String() returned empty output")
	}
	if !strings.Contains(out, "eth0") {
		t.Errorf("String() = %q, want it to contain the interface eth0", out)
	}
}
