// Package stats provides runtime statistics collection and export for a
// DHCPv6 client session.
package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"
)

// Statistics holds every runtime counter for one DHCPv6 client session.
type Statistics struct {
	mu sync.RWMutex

	StartTime time.Time `json:"start_time"`
	Uptime    time.Duration `json:"uptime_seconds"`
	Interface string    `json:"interface"`
	Version   string    `json:"version"`

	// Messages sent/received, keyed by wire.MessageType.String().
	MessagesSent     map[string]int64 `json:"messages_sent"`
	MessagesReceived map[string]int64 `json:"messages_received"`

	// RetransmitCount is the cumulative number of retransmits across every
	// transaction this session has driven.
	RetransmitCount int64 `json:"retransmit_count"`
	// ExhaustedCount is how many transactions hit MRC/MRD exhaustion.
	ExhaustedCount int64 `json:"exhausted_count"`

	// StatusCodeCounts counts received status codes, keyed by name
	// ("Success", "NoAddrsAvail", ...).
	StatusCodeCounts map[string]int64 `json:"status_code_counts"`

	// StateTransitionCounts counts "OLD->NEW" state-machine transitions.
	StateTransitionCounts map[string]int64 `json:"state_transition_counts"`

	RenewCount  int64 `json:"renew_count"`
	RebindCount int64 `json:"rebind_count"`

	MemoryUsageMB  uint64 `json:"memory_usage_mb"`
	GoroutineCount int    `json:"goroutine_count"`
	CPUCount       int    `json:"cpu_count"`
}

// StatisticsSnapshot is a mutex-free copy of Statistics for export.
type StatisticsSnapshot struct {
	StartTime time.Time     `json:"start_time"`
	Uptime    time.Duration `json:"uptime_seconds"`
	Interface string        `json:"interface"`
	Version   string        `json:"version"`

	MessagesSent     map[string]int64 `json:"messages_sent"`
	MessagesReceived map[string]int64 `json:"messages_received"`

	RetransmitCount int64 `json:"retransmit_count"`
	ExhaustedCount  int64 `json:"exhausted_count"`

	StatusCodeCounts      map[string]int64 `json:"status_code_counts"`
	StateTransitionCounts map[string]int64 `json:"state_transition_counts"`

	RenewCount  int64 `json:"renew_count"`
	RebindCount int64 `json:"rebind_count"`

	MemoryUsageMB  uint64 `json:"memory_usage_mb"`
	GoroutineCount int    `json:"goroutine_count"`
	CPUCount       int    `json:"cpu_count"`
}

// NewStatistics creates a new Statistics instance for iface.
func NewStatistics(iface, version string) *Statistics {
	return &Statistics{
		StartTime:             time.Now(),
		Interface:             iface,
		Version:               version,
		MessagesSent:          make(map[string]int64),
		MessagesReceived:      make(map[string]int64),
		StatusCodeCounts:      make(map[string]int64),
		StateTransitionCounts: make(map[string]int64),
	}
}

// Update refreshes runtime statistics; call periodically from the host,
// not from the session worker goroutine (spec section 5 reserves the
// worker for protocol work).
func (s *Statistics) Update() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Uptime = time.Since(s.StartTime)
	s.GoroutineCount = runtime.NumGoroutine()
	s.CPUCount = runtime.NumCPU()

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	s.MemoryUsageMB = m.Alloc / 1024 / 1024
}

// IncrementMessageSent records one outgoing message of the given type name.
func (s *Statistics) IncrementMessageSent(msgType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MessagesSent[msgType]++
}

// IncrementMessageReceived records one incoming message of the given type name.
func (s *Statistics) IncrementMessageReceived(msgType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MessagesReceived[msgType]++
}

// IncrementRetransmit records one RFC 3315 section 14 retransmit.
func (s *Statistics) IncrementRetransmit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RetransmitCount++
}

// IncrementExhausted records one transaction falling back to INIT after
// reaching MRC or MRD (spec section 4.3).
func (s *Statistics) IncrementExhausted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ExhaustedCount++
}

// IncrementStatusCode records one received status code by name.
func (s *Statistics) IncrementStatusCode(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StatusCodeCounts[name]++
}

// IncrementStateTransition records one "old->new" state transition.
func (s *Statistics) IncrementStateTransition(old, new string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StateTransitionCounts[old+"->"+new]++
}

// IncrementRenew records one request-renew transition (spec section 4.4).
func (s *Statistics) IncrementRenew() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RenewCount++
}

// IncrementRebind records one request-rebind transition (spec section 4.4).
func (s *Statistics) IncrementRebind() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.RebindCount++
}

// ExportJSON exports statistics to a JSON file.
func (s *Statistics) ExportJSON(filename string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.snapshot()
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal statistics to JSON: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write JSON file: %w", err)
	}
	return nil
}

// ExportCSV exports statistics to a CSV file.
func (s *Statistics) ExportCSV(filename string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"Metric", "Value", "Category"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	writeRow := func(metric, value, category string) error {
		return writer.Write([]string{metric, value, category})
	}

	writeRow("Start Time", s.StartTime.Format(time.RFC3339), "General")
	writeRow("Uptime (seconds)", fmt.Sprintf("%.0f", s.Uptime.Seconds()), "General")
	writeRow("Interface", s.Interface, "General")
	writeRow("Version", s.Version, "General")

	writeRow("Memory Usage (MB)", fmt.Sprintf("%d", s.MemoryUsageMB), "System")
	writeRow("Goroutine Count", fmt.Sprintf("%d", s.GoroutineCount), "System")
	writeRow("CPU Count", fmt.Sprintf("%d", s.CPUCount), "System")

	writeRow("Retransmit Count", fmt.Sprintf("%d", s.RetransmitCount), "Protocol")
	writeRow("Exhausted Count", fmt.Sprintf("%d", s.ExhaustedCount), "Protocol")
	writeRow("Renew Count", fmt.Sprintf("%d", s.RenewCount), "Protocol")
	writeRow("Rebind Count", fmt.Sprintf("%d", s.RebindCount), "Protocol")

	for msgType, count := range s.MessagesSent {
		writeRow(fmt.Sprintf("Sent (%s)", msgType), fmt.Sprintf("%d", count), "Messages")
	}
	for msgType, count := range s.MessagesReceived {
		writeRow(fmt.Sprintf("Received (%s)", msgType), fmt.Sprintf("%d", count), "Messages")
	}
	for code, count := range s.StatusCodeCounts {
		writeRow(fmt.Sprintf("Status (%s)", code), fmt.Sprintf("%d", count), "StatusCodes")
	}
	for transition, count := range s.StateTransitionCounts {
		writeRow(transition, fmt.Sprintf("%d", count), "Transitions")
	}

	return nil
}

// snapshot creates a read-safe copy of statistics. Must be called with the
// read lock held.
func (s *Statistics) snapshot() StatisticsSnapshot {
	snapshot := StatisticsSnapshot{
		StartTime:             s.StartTime,
		Uptime:                s.Uptime,
		Interface:             s.Interface,
		Version:               s.Version,
		RetransmitCount:       s.RetransmitCount,
		ExhaustedCount:        s.ExhaustedCount,
		RenewCount:            s.RenewCount,
		RebindCount:           s.RebindCount,
		MemoryUsageMB:         s.MemoryUsageMB,
		GoroutineCount:        s.GoroutineCount,
		CPUCount:              s.CPUCount,
		MessagesSent:          make(map[string]int64),
		MessagesReceived:      make(map[string]int64),
		StatusCodeCounts:      make(map[string]int64),
		StateTransitionCounts: make(map[string]int64),
	}

	for k, v := range s.MessagesSent {
		snapshot.MessagesSent[k] = v
	}
	for k, v := range s.MessagesReceived {
		snapshot.MessagesReceived[k] = v
	}
	for k, v := range s.StatusCodeCounts {
		snapshot.StatusCodeCounts[k] = v
	}
	for k, v := range s.StateTransitionCounts {
		snapshot.StateTransitionCounts[k] = v
	}

	return snapshot
}

// GetSnapshot returns a thread-safe snapshot of current statistics.
func (s *Statistics) GetSnapshot() StatisticsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// String returns a human-readable summary of statistics.
func (s *Statistics) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return fmt.Sprintf(
		"Statistics Summary:\n"+
			"  Interface: %s\n"+
			"  Uptime: %s\n"+
			"  Memory: %d MB\n"+
			"  Goroutines: %d\n"+
			"  Retransmits: %d\n"+
			"  Renews: %d\n"+
			"  Rebinds: %d\n",
		s.Interface,
		s.Uptime.Round(time.Second),
		s.MemoryUsageMB,
		s.GoroutineCount,
		s.RetransmitCount,
		s.RenewCount,
		s.RebindCount,
	)
}
