package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gitlab.com/nortide/api/order-idempotency-service/internal/apperrors"
	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
)

// In-memory repositories with the same atomicity guarantees as the Postgres
// implementations: claim and quarantine admission are single compare-and-insert
// steps under one lock. Used to exercise the guard under real concurrency.

type memRecordRepo struct {
	mu   sync.Mutex
	rows map[AttemptKey]*model.ProcessingRecord
}

func newMemRecordRepo() *memRecordRepo {
	return &memRecordRepo{rows: make(map[AttemptKey]*model.ProcessingRecord)}
}

func (r *memRecordRepo) TryClaim(_ context.Context, messageID, consumerName string) (bool, *model.ProcessingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := AttemptKey{MessageID: messageID, ConsumerName: consumerName}
	if existing, ok := r.rows[key]; ok {
		cp := *existing
		return false, &cp, nil
	}
	r.rows[key] = &model.ProcessingRecord{
		MessageID:    messageID,
		ConsumerName: consumerName,
		Status:       model.RecordStatusClaimed,
		ClaimedAt:    time.Now().UTC(),
	}
	return true, r.rows[key], nil
}

func (r *memRecordRepo) Get(_ context.Context, messageID, consumerName string) (*model.ProcessingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.rows[AttemptKey{MessageID: messageID, ConsumerName: consumerName}]; ok {
		cp := *existing
		return &cp, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *memRecordRepo) MarkProcessed(_ context.Context, messageID, consumerName, result string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.rows[AttemptKey{MessageID: messageID, ConsumerName: consumerName}]
	if !ok {
		return apperrors.ErrNotFound
	}
	now := time.Now().UTC()
	record.Status = model.RecordStatusProcessed
	record.Result = result
	record.ProcessedAt = &now
	return nil
}

func (r *memRecordRepo) Reset(_ context.Context, messageID, consumerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, AttemptKey{MessageID: messageID, ConsumerName: consumerName})
	return nil
}

func (r *memRecordRepo) CountProcessed(_ context.Context, consumerName string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for key, record := range r.rows {
		if key.ConsumerName == consumerName && record.Status == model.RecordStatusProcessed {
			count++
		}
	}
	return count, nil
}

func (r *memRecordRepo) OldestClaimAge(_ context.Context, consumerName string) (*time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *time.Time
	for key, record := range r.rows {
		if key.ConsumerName != consumerName || record.Status != model.RecordStatusClaimed {
			continue
		}
		claimed := record.ClaimedAt
		if oldest == nil || claimed.Before(*oldest) {
			oldest = &claimed
		}
	}
	if oldest == nil {
		return nil, nil
	}
	age := time.Since(*oldest)
	return &age, nil
}

func (r *memRecordRepo) Close(context.Context) error { return nil }

type memDeadLetterRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*model.DeadLetterEntry
}

func newMemDeadLetterRepo() *memDeadLetterRepo {
	return &memDeadLetterRepo{entries: make(map[uuid.UUID]*model.DeadLetterEntry)}
}

func (r *memDeadLetterRepo) TryAdmit(_ context.Context, entry model.DeadLetterEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.entries {
		if existing.OriginalMessageID == entry.OriginalMessageID && existing.Status == model.DeadLetterStatusPending {
			return false, nil
		}
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.FailureTimestamp.IsZero() {
		entry.FailureTimestamp = time.Now().UTC()
	}
	entry.Status = model.DeadLetterStatusPending
	r.entries[entry.ID] = &entry
	return true, nil
}

func (r *memDeadLetterRepo) GetPending(_ context.Context, messageID string) (*model.DeadLetterEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.OriginalMessageID == messageID && entry.Status == model.DeadLetterStatusPending {
			cp := *entry
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *memDeadLetterRepo) Get(_ context.Context, id uuid.UUID) (*model.DeadLetterEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[id]; ok {
		cp := *entry
		return &cp, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *memDeadLetterRepo) List(_ context.Context, status model.DeadLetterStatus) ([]model.DeadLetterEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.DeadLetterEntry
	for _, entry := range r.entries {
		if status == "" || entry.Status == status {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FailureTimestamp.Before(out[j].FailureTimestamp)
	})
	return out, nil
}

func (r *memDeadLetterRepo) Resolve(_ context.Context, id uuid.UUID, notes string) (*model.DeadLetterEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok || entry.Status != model.DeadLetterStatusPending {
		return nil, apperrors.ErrNotFound
	}
	now := time.Now().UTC()
	entry.Status = model.DeadLetterStatusResolved
	entry.ResolvedTimestamp = &now
	entry.ResolutionNotes = notes
	cp := *entry
	return &cp, nil
}

func (r *memDeadLetterRepo) MarkFailed(_ context.Context, id uuid.UUID, notes string) (*model.DeadLetterEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok || entry.Status != model.DeadLetterStatusPending {
		return nil, apperrors.ErrNotFound
	}
	now := time.Now().UTC()
	entry.Status = model.DeadLetterStatusFailed
	entry.ResolvedTimestamp = &now
	entry.ResolutionNotes = notes
	cp := *entry
	return &cp, nil
}

func (r *memDeadLetterRepo) Stats(_ context.Context) (model.DeadLetterStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stats model.DeadLetterStats
	var oldest *time.Time
	for _, entry := range r.entries {
		stats.TotalMessages++
		switch entry.Status {
		case model.DeadLetterStatusPending:
			stats.PendingMessages++
			ts := entry.FailureTimestamp
			if oldest == nil || ts.Before(*oldest) {
				oldest = &ts
			}
		case model.DeadLetterStatusResolved:
			stats.ResolvedMessages++
		case model.DeadLetterStatusFailed:
			stats.FailedMessages++
		}
	}
	if oldest != nil {
		age := time.Since(*oldest)
		stats.OldestPendingAge = &age
	}
	return stats, nil
}

func (r *memDeadLetterRepo) Close(context.Context) error { return nil }

type memDuplicateRepo struct {
	mu       sync.Mutex
	attempts []model.DuplicateAttempt
}

func newMemDuplicateRepo() *memDuplicateRepo {
	return &memDuplicateRepo{}
}

func (r *memDuplicateRepo) Append(_ context.Context, attempt model.DuplicateAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.DetectedAt.IsZero() {
		attempt.DetectedAt = time.Now().UTC()
	}
	r.attempts = append(r.attempts, attempt)
	return nil
}

func (r *memDuplicateRepo) Count(_ context.Context, consumerName string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, attempt := range r.attempts {
		if attempt.ConsumerName == consumerName {
			count++
		}
	}
	return count, nil
}

func (r *memDuplicateRepo) Close(context.Context) error { return nil }

type memOrderRepo struct {
	mu     sync.Mutex
	orders []model.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{}
}

func (r *memOrderRepo) Save(_ context.Context, order model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, order)
	return nil
}

func (r *memOrderRepo) List(_ context.Context) ([]model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Order, len(r.orders))
	copy(out, r.orders)
	return out, nil
}

func (r *memOrderRepo) Count(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.orders)), nil
}

func (r *memOrderRepo) Close(context.Context) error { return nil }

// testHarness bundles a full consumer stack over the in-memory stores.
type testHarness struct {
	records     *memRecordRepo
	deadLetters *memDeadLetterRepo
	duplicates  *memDuplicateRepo
	orders      *memOrderRepo
	tracker     *AttemptTracker
	guard       *IdempotencyGuard
	consumer    *ConsumerService
	manager     *DeadLetterManager
}

func newTestHarness(consumerName string, maxAttempts int) *testHarness {
	h := &testHarness{
		records:     newMemRecordRepo(),
		deadLetters: newMemDeadLetterRepo(),
		duplicates:  newMemDuplicateRepo(),
		orders:      newMemOrderRepo(),
		tracker:     NewAttemptTracker(maxAttempts),
	}
	h.guard = NewIdempotencyGuard(h.records, h.deadLetters, h.duplicates, h.tracker)
	h.consumer = NewConsumerService(h.guard, consumerName, 5*time.Second)
	h.manager = NewDeadLetterManager(h.deadLetters, h.records, h.tracker)
	return h
}

func testOrderMessage(messageID string) model.OrderMessage {
	return model.OrderMessage{
		MessageID:    messageID,
		CustomerName: "Ada Lovelace",
		Amount:       125.50,
		Timestamp:    time.Now().UTC(),
	}
}
