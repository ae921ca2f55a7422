package messaging

import (
	"context"
	"sort"
	"time"
)

type retryEntry struct {
	msg      Message
	attempts int
	seq      uint64
	first    time.Time
	lastErr  error
}

// failureResult is what the retry coordinator decided for one failed
// accept. rec is set only when the message was exhausted.
type failureResult struct {
	outcome  Outcome
	attempts int
	cause    error
	rec      *FailureRecord
}

// recordFailureLocked is the retry coordinator. It runs once per failed
// accept, with c.mu held, and keeps at most one entry per message id:
//
//	no entry          -> create with 0 attempts
//	attempts < limit  -> attempts++, message parked for redelivery
//	attempts == limit -> entry removed, id marked exhausted, failure emitted
func (c *Channel) recordFailureLocked(m Message, cause error) failureResult {
	entry, ok := c.retries[m.ID]
	if !ok {
		c.seq++
		entry = &retryEntry{msg: m, seq: c.seq, first: time.Now().UTC()}
		c.retries[m.ID] = entry
	}
	entry.lastErr = cause

	if entry.attempts < c.limit {
		entry.attempts++
		c.updateGaugesLocked()
		return failureResult{outcome: OutcomeRetrying, attempts: entry.attempts, cause: cause}
	}

	delete(c.retries, m.ID)
	c.exhausted.add(m.ID)
	c.updateGaugesLocked()
	return failureResult{
		outcome:  OutcomeExhausted,
		attempts: entry.attempts,
		cause:    cause,
		rec: &FailureRecord{
			Variant:     c.variant,
			MessageID:   m.ID,
			RecipientID: m.RecipientID(),
			MediaType:   m.Type,
			Attempts:    entry.attempts,
			LastError:   cause.Error(),
			FirstFailed: entry.first,
			FailedAt:    time.Now().UTC(),
		},
	}
}

// report logs a coordinator decision and hands exhausted records to the
// sink. It must run without c.mu held.
func (c *Channel) report(ctx context.Context, m Message, res failureResult) Outcome {
	c.logger.Warn().Err(res.cause).Str("message_id", m.ID).Msg("channel is not available")
	if res.rec == nil {
		c.logger.Info().
			Str("message_id", m.ID).
			Int("attempt", res.attempts).
			Int("limit", c.limit).
			Msg("retrying to deliver")
		return res.outcome
	}
	c.logger.Error().
		Str("message_id", m.ID).
		Int("attempts", res.attempts).
		Err(res.cause).
		Msg("logging message delivery failure")
	if c.sink != nil {
		c.sink.RecordFailure(ctx, *res.rec)
	}
	return res.outcome
}

// Attempts returns the retry count held for id and whether an entry exists.
func (c *Channel) Attempts(id string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.retries[id]
	if !ok {
		return 0, false
	}
	return e.attempts, true
}

// PendingRetries returns the number of messages waiting for redelivery.
func (c *Channel) PendingRetries() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.retries)
}

// Exhausted reports whether id was permanently dropped from this channel.
func (c *Channel) Exhausted(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted.has(id)
}

// CancelRetry drops the retry entry for id without emitting a failure record.
// If a redelivery of id is with the transport right now and fails, it is not
// parked again.
func (c *Channel) CancelRetry(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.retries[id]; !ok {
		return false
	}
	delete(c.retries, id)
	if _, ok := c.inflight[id]; ok {
		c.cancelled[id] = struct{}{}
	}
	c.updateGaugesLocked()
	return true
}

// RetryPending re-invokes Accept for every parked message, oldest failure
// first, and returns how many were accepted. Each call that fails again
// counts as one more attempt.
func (c *Channel) RetryPending(ctx context.Context) int {
	c.mu.Lock()
	parked := make([]*retryEntry, 0, len(c.retries))
	for _, e := range c.retries {
		parked = append(parked, e)
	}
	c.mu.Unlock()
	sort.Slice(parked, func(i, j int) bool { return parked[i].seq < parked[j].seq })

	accepted := 0
	for _, e := range parked {
		if ctx.Err() != nil {
			break
		}
		c.mu.Lock()
		_, still := c.retries[e.msg.ID]
		c.mu.Unlock()
		if !still {
			continue
		}
		if c.Accept(ctx, e.msg) == OutcomeAccepted {
			accepted++
		}
	}
	return accepted
}
