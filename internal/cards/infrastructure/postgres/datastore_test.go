package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"argentum/internal/cards/domain"
	"argentum/internal/cards/infrastructure/postgres"
	"argentum/internal/common/types"
)

type DataStoreSuite struct {
	suite.Suite
	dataStore *postgres.DataStore
	ctx       context.Context
}

func TestDataStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(DataStoreSuite))
}

func (s *DataStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.dataStore = postgres.NewDataStore(getTestPool())
	s.Require().NoError(truncateTables(s.ctx, getTestPool()))
}

func (s *DataStoreSuite) newCard() *domain.Card {
	card, err := domain.NewDebitCard("customer-1", "acc-main", fixedDigits{"0123456789"}, testNow)
	s.Require().NoError(err)
	return card
}

func (s *DataStoreSuite) newOutboxEntry(card *domain.Card) *domain.OutboxEntry {
	entry, err := domain.NewOutboxEntry(
		domain.EventTypeCardCreated,
		card.ID(),
		card.CustomerID(),
		types.NewCorrelationID(),
		domain.CardCreatedEvent{CardID: card.ID().String()},
	)
	s.Require().NoError(err)
	return entry
}

func (s *DataStoreSuite) TestAtomicCommitsCardAndOutboxTogether() {
	card := s.newCard()

	err := s.dataStore.Atomic(s.ctx, func(repos domain.Repositories) error {
		if err := repos.Cards().Save(s.ctx, card); err != nil {
			return err
		}
		return repos.Outbox().Append(s.ctx, s.newOutboxEntry(card))
	})
	s.Require().NoError(err)

	loaded, err := s.dataStore.Cards().FindByID(s.ctx, card.ID())
	s.Require().NoError(err)
	s.Equal(card.ID(), loaded.ID())

	entries, err := s.dataStore.Outbox().FetchUnpublished(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(entries, 1)
	s.Equal(domain.EventTypeCardCreated, entries[0].EventType)
}

func (s *DataStoreSuite) TestAtomicRollsBackOnError() {
	card := s.newCard()
	boom := errors.New("boom")

	err := s.dataStore.Atomic(s.ctx, func(repos domain.Repositories) error {
		if err := repos.Cards().Save(s.ctx, card); err != nil {
			return err
		}
		if err := repos.Outbox().Append(s.ctx, s.newOutboxEntry(card)); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.dataStore.Cards().FindByID(s.ctx, card.ID())
	s.ErrorIs(err, domain.ErrCardNotFound)

	entries, err := s.dataStore.Outbox().FetchUnpublished(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *DataStoreSuite) TestOutboxMarkPublished() {
	card := s.newCard()
	entry := s.newOutboxEntry(card)
	s.Require().NoError(s.dataStore.Outbox().Append(s.ctx, entry))

	s.Require().NoError(s.dataStore.Outbox().MarkPublished(s.ctx, []types.EventID{entry.ID}))

	entries, err := s.dataStore.Outbox().FetchUnpublished(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(entries)
}

func (s *DataStoreSuite) TestOutboxPreservesIdentityAcrossFetches() {
	card := s.newCard()
	entry := s.newOutboxEntry(card)
	s.Require().NoError(s.dataStore.Outbox().Append(s.ctx, entry))

	for i := 0; i < 2; i++ {
		entries, err := s.dataStore.Outbox().FetchUnpublished(s.ctx, 10)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(entry.ID, entries[0].ID)
		s.True(entry.OccurredAt.Equal(entries[0].OccurredAt))
	}
}

func (s *DataStoreSuite) TestIdempotencyStore() {
	card := s.newCard()

	entry, err := s.dataStore.Idempotency().Get(s.ctx, card.ID(), "key-1")
	s.Require().NoError(err)
	s.Nil(entry)

	stored := &domain.IdempotencyEntry{
		CardID:         card.ID(),
		IdempotencyKey: "key-1",
		ResponseBody:   []byte(`{"status":"COMPLETED"}`),
		CreatedAt:      time.Now().UTC(),
	}
	s.Require().NoError(s.dataStore.Idempotency().Set(s.ctx, stored))

	// A replayed write keeps the first stored response.
	replayed := &domain.IdempotencyEntry{
		CardID:         card.ID(),
		IdempotencyKey: "key-1",
		ResponseBody:   []byte(`{"status":"OTHER"}`),
		CreatedAt:      time.Now().UTC(),
	}
	s.Require().NoError(s.dataStore.Idempotency().Set(s.ctx, replayed))

	loaded, err := s.dataStore.Idempotency().Get(s.ctx, card.ID(), "key-1")
	s.Require().NoError(err)
	s.Require().NotNil(loaded)
	s.JSONEq(`{"status":"COMPLETED"}`, string(loaded.ResponseBody))
}

func (s *DataStoreSuite) TestLedgerRoundTrip() {
	ledger := postgres.NewLedger(getTestPool())
	card := s.newCard()

	first := &domain.Transaction{
		ID:         "11111111-1111-1111-1111-111111111111",
		CardID:     card.ID(),
		CustomerID: card.CustomerID(),
		AccountID:  "acc-main",
		Amount:     types.NewMoneyFromInt(10, types.CurrencyEUR),
		Merchant:   "bakery",
		OccurredAt: testNow,
	}
	second := &domain.Transaction{
		ID:         "22222222-2222-2222-2222-222222222222",
		CardID:     card.ID(),
		CustomerID: card.CustomerID(),
		AccountID:  "acc-b",
		Amount:     types.NewMoneyFromInt(20, types.CurrencyEUR),
		Merchant:   "grocer",
		OccurredAt: testNow.Add(time.Hour),
	}
	s.Require().NoError(ledger.Record(s.ctx, first))
	s.Require().NoError(ledger.Record(s.ctx, second))

	transactions, err := ledger.LastByCard(s.ctx, card.ID(), 1)
	s.Require().NoError(err)
	s.Require().Len(transactions, 1)
	s.Equal("grocer", transactions[0].Merchant)
	s.True(transactions[0].Amount.Equal(second.Amount))
}
