package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/derivbot/internal/domain"
)

type fakeStore struct {
	inserted  []domain.OpportunityRecord
	insertErr error

	recent  []domain.OpportunityRecord
	listErr error

	pruned   int64
	pruneErr error
}

func (s *fakeStore) Insert(_ context.Context, rec domain.OpportunityRecord) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, rec)
	return nil
}

func (s *fakeStore) ListRecent(_ context.Context, limit int) ([]domain.OpportunityRecord, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	if limit > len(s.recent) {
		limit = len(s.recent)
	}
	return s.recent[:limit], nil
}

func (s *fakeStore) ListBySymbol(_ context.Context, symbol domain.Symbol, _ domain.ListOpts) ([]domain.OpportunityRecord, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []domain.OpportunityRecord
	for _, rec := range s.recent {
		if rec.Symbol == symbol {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeStore) CountByOutcome(_ context.Context, _ domain.OpportunityKind, _ time.Time) (domain.OutcomeCounts, error) {
	return domain.OutcomeCounts{Accepted: 2, Rejected: 1}, nil
}

func (s *fakeStore) ListBefore(_ context.Context, _ time.Time) ([]domain.OpportunityRecord, error) {
	return nil, nil
}

func (s *fakeStore) PruneBefore(_ context.Context, _ time.Time) (int64, error) {
	if s.pruneErr != nil {
		return 0, s.pruneErr
	}
	return s.pruned, nil
}

type fakeBus struct {
	published map[string][][]byte
	err       error
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	if b.err != nil {
		return b.err
	}
	if b.published == nil {
		b.published = map[string][][]byte{}
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func serviceLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fundingServiceRecord(state domain.ValidationState) domain.OpportunityRecord {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	return domain.OpportunityRecord{
		ID:     "f-1",
		Kind:   domain.KindFundingRate,
		Symbol: "BTC-USDT",
		Funding: &domain.FundingRateOpportunity{
			ID:                 "f-1",
			Symbol:             "BTC-USDT",
			VenueA:             "binance",
			VenueB:             "bybit",
			RateDiff:           0.0008,
			RateDiffAnnualized: 0.876,
			Direction:          domain.DirectionShortALongB,
			RiskScore:          0.3,
			ConfidenceScore:    0.6,
			Timestamp:          now,
		},
		Outcome:    domain.ValidationOutcome{State: state, CheckedAt: now},
		Actionable: state == domain.ValidationAccepted,
		RecordedAt: now,
	}
}

func TestRecordPublishesChannels(t *testing.T) {
	store := &fakeStore{}
	bus := &fakeBus{}
	svc := NewOpportunityService(store, bus, nil, serviceLogger())

	t.Run("accepted record hits both channels", func(t *testing.T) {
		rec := fundingServiceRecord(domain.ValidationAccepted)
		require.NoError(t, svc.Record(context.Background(), rec))

		require.Len(t, store.inserted, 1)
		assert.Len(t, bus.published[ChannelDetected], 1)
		assert.Len(t, bus.published[ChannelAccepted], 1)

		var evt map[string]any
		require.NoError(t, json.Unmarshal(bus.published[ChannelAccepted][0], &evt))
		assert.Equal(t, "f-1", evt["opp_id"])
		assert.Equal(t, "accepted", evt["outcome"])
		assert.Equal(t, "binance", evt["venue_a"])
		assert.InDelta(t, 0.0008, evt["rate_diff"].(float64), 1e-12)
	})

	t.Run("rejected record only on detected channel", func(t *testing.T) {
		bus.published = nil
		rec := fundingServiceRecord(domain.ValidationRejected)
		rec.Outcome.Reason = domain.ReasonUnprofitable
		require.NoError(t, svc.Record(context.Background(), rec))

		assert.Len(t, bus.published[ChannelDetected], 1)
		assert.Empty(t, bus.published[ChannelAccepted])
	})
}

func TestRecordStoreErrorIsHard(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("pg down")}
	bus := &fakeBus{}
	svc := NewOpportunityService(store, bus, nil, serviceLogger())

	err := svc.Record(context.Background(), fundingServiceRecord(domain.ValidationAccepted))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pg down")
	assert.Empty(t, bus.published, "failed insert must not publish")
}

func TestRecordBusErrorIsSoft(t *testing.T) {
	store := &fakeStore{}
	bus := &fakeBus{err: errors.New("redis down")}
	svc := NewOpportunityService(store, bus, nil, serviceLogger())

	assert.NoError(t, svc.Record(context.Background(), fundingServiceRecord(domain.ValidationAccepted)))
	assert.Len(t, store.inserted, 1)
}

func TestRecordNilBus(t *testing.T) {
	store := &fakeStore{}
	svc := NewOpportunityService(store, nil, nil, serviceLogger())

	assert.NoError(t, svc.Record(context.Background(), fundingServiceRecord(domain.ValidationAccepted)))
	assert.Len(t, store.inserted, 1)
}

func TestReadPathsWrapStoreErrors(t *testing.T) {
	store := &fakeStore{listErr: errors.New("pg down")}
	svc := NewOpportunityService(store, nil, nil, serviceLogger())

	_, err := svc.ListRecent(context.Background(), 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list recent")

	_, err = svc.ListBySymbol(context.Background(), "BTC-USDT", domain.ListOpts{Limit: 10})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BTC-USDT")
}

func TestPrune(t *testing.T) {
	store := &fakeStore{pruned: 42}
	svc := NewOpportunityService(store, nil, nil, serviceLogger())

	n, err := svc.Prune(context.Background(), time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	store.pruneErr = errors.New("pg down")
	_, err = svc.Prune(context.Background(), time.Now())
	assert.Error(t, err)
}
