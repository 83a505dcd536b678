package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shiftforge/escrow-payout-service/internal/domain"
	"github.com/shiftforge/escrow-payout-service/internal/ports"
)

// AssignmentStore doubles as the assignment reader for tests and the local
// runtime: seed it with the assignments the service should see.
type AssignmentStore struct {
	mu          sync.RWMutex
	assignments map[string]ports.Assignment
}

func NewAssignmentStore() *AssignmentStore {
	return &AssignmentStore{assignments: make(map[string]ports.Assignment)}
}

func (s *AssignmentStore) Seed(assignment ports.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments[assignment.AssignmentID] = assignment
}

func (s *AssignmentStore) GetAssignment(_ context.Context, assignmentID string) (ports.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	assignment, ok := s.assignments[assignmentID]
	if !ok {
		return ports.Assignment{}, domain.ErrNotFound
	}
	return assignment, nil
}

type StaffingRecorder struct {
	mu       sync.Mutex
	Released []string
}

func NewStaffingRecorder() *StaffingRecorder { return &StaffingRecorder{} }

func (s *StaffingRecorder) ReleaseShiftSlot(_ context.Context, shiftID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Released = append(s.Released, shiftID)
	return nil
}

// ProfileDirectory maps platform identities to deterministic gateway refs.
type ProfileDirectory struct{}

func NewProfileDirectory() *ProfileDirectory { return &ProfileDirectory{} }

func (d *ProfileDirectory) BusinessPayerRef(_ context.Context, businessID string) (string, error) {
	return "payer:" + businessID, nil
}

func (d *ProfileDirectory) WorkerPayeeRef(_ context.Context, workerID string) (string, error) {
	return "payee:" + workerID, nil
}

// SweepLockStore is a single-process lock; good enough when only one worker
// runs, which is exactly the local/test case.
type SweepLockStore struct {
	mu    sync.Mutex
	locks map[string]time.Time
}

func NewSweepLockStore() *SweepLockStore {
	return &SweepLockStore{locks: make(map[string]time.Time)}
}

func (s *SweepLockStore) Acquire(_ context.Context, name string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if until, ok := s.locks[name]; ok && now.Before(until) {
		return false, nil
	}
	s.locks[name] = now.Add(ttl)
	return true, nil
}

func (s *SweepLockStore) Release(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, name)
	return nil
}

type WorkerStatsStore struct {
	mu    sync.Mutex
	stats map[string]ports.WorkerStats
}

func NewWorkerStatsStore() *WorkerStatsStore {
	return &WorkerStatsStore{stats: make(map[string]ports.WorkerStats)}
}

func (s *WorkerStatsStore) AddEarnings(_ context.Context, workerID string, amountMinor int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats[workerID]
	stats.WorkerID = workerID
	stats.LifetimeEarnedMinor += amountMinor
	stats.PayoutCount++
	s.stats[workerID] = stats
	return nil
}

func (s *WorkerStatsStore) PenalizeReliability(_ context.Context, workerID string, points int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats[workerID]
	stats.WorkerID = workerID
	stats.ReliabilityPenalty += points
	s.stats[workerID] = stats
	return nil
}

func (s *WorkerStatsStore) Get(_ context.Context, workerID string) (ports.WorkerStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.stats[workerID]
	if !ok {
		return ports.WorkerStats{WorkerID: workerID}, nil
	}
	return stats, nil
}
