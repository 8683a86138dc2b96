package usecase

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"gitlab.com/nortide/api/order-idempotency-service/internal/apperrors"
	"gitlab.com/nortide/api/order-idempotency-service/internal/model"
	"gitlab.com/nortide/api/order-idempotency-service/internal/observer"
	"gitlab.com/nortide/api/order-idempotency-service/internal/storage"
	"gitlab.com/nortide/api/order-idempotency-service/pkg/logger"
)

// AdmissionOutcome classifies a delivery at the idempotency boundary.
type AdmissionOutcome string

const (
	// AdmissionNew means this delivery won the claim and must be processed.
	AdmissionNew AdmissionOutcome = "new"
	// AdmissionDuplicate means the message was already claimed or processed.
	AdmissionDuplicate AdmissionOutcome = "duplicate"
	// AdmissionQuarantined means the message sits in the dead-letter store.
	AdmissionQuarantined AdmissionOutcome = "quarantined"
)

// Admission is the decision returned for one delivery.
type Admission struct {
	Outcome AdmissionOutcome
	// Attempt is the 1-based attempt number, set only for AdmissionNew.
	Attempt int
	// PriorResult carries the stored result when a processed duplicate is
	// replayed, so callers can respond without re-executing.
	PriorResult string
}

// IdempotencyGuard decides, for every delivery, whether its message is new,
// a duplicate, or quarantined. The decision point is a single atomic insert
// against the record store; everything else reads the winner's row.
type IdempotencyGuard struct {
	records     storage.RecordRepo
	deadLetters storage.DeadLetterRepo
	duplicates  storage.DuplicateRepo
	tracker     *AttemptTracker
}

// NewIdempotencyGuard creates a guard. The attempt limit lives on the tracker.
func NewIdempotencyGuard(
	records storage.RecordRepo,
	deadLetters storage.DeadLetterRepo,
	duplicates storage.DuplicateRepo,
	tracker *AttemptTracker,
) *IdempotencyGuard {
	return &IdempotencyGuard{
		records:     records,
		deadLetters: deadLetters,
		duplicates:  duplicates,
		tracker:     tracker,
	}
}

// MaxAttempts returns the configured attempt limit.
func (g *IdempotencyGuard) MaxAttempts() int {
	return g.tracker.MaxAttempts()
}

// Admit classifies one delivery. Deliveries of a quarantined message are
// blocked until an operator retries it; duplicates are audited and replayed
// with the stored result when one exists.
func (g *IdempotencyGuard) Admit(ctx context.Context, messageID, consumerName, source string) (Admission, error) {
	log := logger.FromContext(ctx)

	// Quarantine check comes first: a pending entry blocks all processing.
	// Blocked deliveries are not duplicates, so the audit log is untouched.
	if _, err := g.deadLetters.GetPending(ctx, messageID); err == nil {
		log.Warn("Delivery blocked by quarantine",
			zap.String("message_id", messageID),
			zap.String("consumer", consumerName))
		observer.IncAdmission(consumerName, string(AdmissionQuarantined))
		return Admission{Outcome: AdmissionQuarantined}, nil
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return Admission{}, err
	}

	inserted, existing, err := g.records.TryClaim(ctx, messageID, consumerName)
	if err != nil {
		return Admission{}, err
	}

	if inserted {
		attempt := g.tracker.Increment(AttemptKey{MessageID: messageID, ConsumerName: consumerName})
		log.Debug("Delivery admitted as new",
			zap.String("message_id", messageID),
			zap.Int("attempt", attempt))
		observer.IncAdmission(consumerName, string(AdmissionNew))
		return Admission{Outcome: AdmissionNew, Attempt: attempt}, nil
	}

	// Lost the claim race or the message was processed earlier.
	admission := Admission{Outcome: AdmissionDuplicate}
	if existing != nil && existing.IsProcessed() {
		admission.PriorResult = existing.Result
	}

	log.Info("Duplicate delivery detected",
		zap.String("message_id", messageID),
		zap.String("consumer", consumerName),
		zap.String("source", source))
	g.auditDuplicate(ctx, messageID, consumerName, source)
	observer.IncAdmission(consumerName, string(AdmissionDuplicate))
	observer.IncDuplicateDetected(consumerName, source)
	return admission, nil
}

// Complete finalizes a successful attempt: the claim becomes a processed
// record carrying the result, and the attempt counter is discarded.
func (g *IdempotencyGuard) Complete(ctx context.Context, messageID, consumerName, result string) error {
	if err := g.records.MarkProcessed(ctx, messageID, consumerName, result); err != nil {
		return err
	}
	g.tracker.Clear(AttemptKey{MessageID: messageID, ConsumerName: consumerName})
	return nil
}

// Fail handles a failed attempt. With attempts remaining the claim is
// released so the broker's redelivery is admitted as new; at the limit the
// message is quarantined. Returns quarantined=true in the latter case.
func (g *IdempotencyGuard) Fail(ctx context.Context, msg model.OrderMessage, consumerName string, attempt int, cause error) (bool, error) {
	log := logger.FromContext(ctx)
	key := AttemptKey{MessageID: msg.MessageID, ConsumerName: consumerName}

	if !g.tracker.ExceedsLimit(attempt) {
		log.Warn("Attempt failed, releasing claim for redelivery",
			zap.String("message_id", msg.MessageID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", g.tracker.MaxAttempts()),
			zap.Error(cause))
		if err := g.records.Reset(ctx, msg.MessageID, consumerName); err != nil {
			return false, err
		}
		return false, nil
	}

	reason := "unknown failure"
	if cause != nil {
		reason = cause.Error()
	}
	entry := model.DeadLetterEntry{
		OriginalMessageID: msg.MessageID,
		ConsumerName:      consumerName,
		PayloadSnapshot:   msg.Snapshot(),
		AttemptNumber:     attempt,
		FailureReason:     reason,
	}

	admitted, err := g.deadLetters.TryAdmit(ctx, entry)
	if err != nil {
		return false, err
	}
	if admitted {
		observer.IncDeadLetterAdmit()
	}

	// Remove the claim so a post-retry redelivery can re-claim cleanly.
	if err := g.records.Reset(ctx, msg.MessageID, consumerName); err != nil {
		return true, err
	}
	g.tracker.Clear(key)

	log.Error("Message quarantined after exhausting attempts",
		zap.String("message_id", msg.MessageID),
		zap.Int("attempts", attempt),
		zap.Error(cause))
	return true, nil
}

// auditDuplicate appends to the duplicate log. Best effort: a failed audit
// write never changes the admission decision.
func (g *IdempotencyGuard) auditDuplicate(ctx context.Context, messageID, consumerName, source string) {
	attempt := model.DuplicateAttempt{
		MessageID:    messageID,
		ConsumerName: consumerName,
		Source:       source,
	}
	if err := g.duplicates.Append(ctx, attempt); err != nil {
		logger.FromContext(ctx).Warn("Duplicate audit write failed",
			zap.String("message_id", messageID),
			zap.Error(err))
	}
}
