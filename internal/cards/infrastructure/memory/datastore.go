package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"argentum/internal/cards/domain"
	"argentum/internal/common/types"
)

// DataStore implements domain.AtomicExecutor and domain.Repositories in
// memory. It backs tests, the acceptance suite, and local runs.
// Concurrency: all access is guarded by a mutex; Atomic holds the lock for
// the duration of the callback, so callbacks are fully serialized.
type DataStore struct {
	mu              sync.RWMutex
	cards           map[string]*domain.Card
	idempotencyKeys map[string]*domain.IdempotencyEntry
	outboxEntries   []*domain.OutboxEntry

	cardRepo         *CardRepository
	idempotencyStore *IdempotencyStore
	outboxRepo       *OutboxRepository
}

// NewDataStore creates a new in-memory DataStore.
func NewDataStore() *DataStore {
	ds := &DataStore{
		cards:           make(map[string]*domain.Card),
		idempotencyKeys: make(map[string]*domain.IdempotencyEntry),
		outboxEntries:   make([]*domain.OutboxEntry, 0),
	}

	ds.cardRepo = &CardRepository{store: ds}
	ds.idempotencyStore = &IdempotencyStore{store: ds}
	ds.outboxRepo = &OutboxRepository{store: ds}

	return ds
}

// Cards returns the card repository.
func (ds *DataStore) Cards() domain.CardRepository {
	return ds.cardRepo
}

// Idempotency returns the idempotency store.
func (ds *DataStore) Idempotency() domain.IdempotencyStore {
	return ds.idempotencyStore
}

// Outbox returns the outbox repository.
func (ds *DataStore) Outbox() domain.OutboxRepository {
	return ds.outboxRepo
}

// Atomic executes the callback atomically.
// It locks the store, runs the callback against a transactional snapshot,
// and commits staged changes only if the callback succeeds.
func (ds *DataStore) Atomic(ctx context.Context, fn domain.AtomicCallback) error {
	ds.mu.Lock()
	defer ds.mu.Unlock()

	tx := &transactionalDataStore{
		parent:            ds,
		stagedCards:       make(map[string]*domain.Card),
		stagedDeletes:     make(map[string]bool),
		stagedIdempotency: make(map[string]*domain.IdempotencyEntry),
		stagedOutbox:      make([]*domain.OutboxEntry, 0),
	}

	if err := fn(tx); err != nil {
		return err
	}

	// Commit: apply staged changes
	for k, v := range tx.stagedCards {
		ds.cards[k] = v
	}
	for k := range tx.stagedDeletes {
		delete(ds.cards, k)
	}
	for k, v := range tx.stagedIdempotency {
		ds.idempotencyKeys[k] = v
	}
	ds.outboxEntries = append(ds.outboxEntries, tx.stagedOutbox...)

	return nil
}

// cloneCard returns an independent copy so callers can mutate a loaded card
// without touching the committed state. Without this, version-conditional
// writes would always compare a card against itself.
func cloneCard(card *domain.Card) *domain.Card {
	return domain.ReconstructCard(
		card.ID(),
		card.Number(),
		card.CustomerID(),
		card.Type(),
		card.Status(),
		card.ExpirationDate(),
		card.CVV(),
		card.AssociatedAccounts(),
		card.MainAccountID(),
		card.CreditID(),
		card.Version(),
		card.CreatedAt(),
		card.UpdatedAt(),
	)
}

// checkVersion applies the optimistic-lock rule: a write loses when the
// stored card already carries the version the write is trying to claim.
func checkVersion(existing, incoming *domain.Card) error {
	if existing != nil && existing.Version() >= incoming.Version() {
		return domain.ErrConflict
	}
	return nil
}

func sortByCreation(cards []*domain.Card) {
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].CreatedAt().Equal(cards[j].CreatedAt()) {
			return cards[i].ID().String() < cards[j].ID().String()
		}
		return cards[i].CreatedAt().Before(cards[j].CreatedAt())
	})
}

func idempotencyKey(cardID domain.CardID, key string) string {
	return cardID.String() + ":" + key
}

// transactionalDataStore provides transaction isolation for memory operations.
type transactionalDataStore struct {
	parent            *DataStore
	stagedCards       map[string]*domain.Card
	stagedDeletes     map[string]bool
	stagedIdempotency map[string]*domain.IdempotencyEntry
	stagedOutbox      []*domain.OutboxEntry
}

func (tx *transactionalDataStore) Cards() domain.CardRepository {
	return &txCardRepository{tx: tx}
}

func (tx *transactionalDataStore) Idempotency() domain.IdempotencyStore {
	return &txIdempotencyStore{tx: tx}
}

func (tx *transactionalDataStore) Outbox() domain.OutboxRepository {
	return &txOutboxRepository{tx: tx}
}

// Transactional repository implementations

type txCardRepository struct {
	tx *transactionalDataStore
}

func (r *txCardRepository) Save(ctx context.Context, card *domain.Card) error {
	key := card.ID().String()
	if !r.tx.stagedDeletes[key] {
		existing := r.tx.stagedCards[key]
		if existing == nil {
			existing = r.tx.parent.cards[key]
		}
		if err := checkVersion(existing, card); err != nil {
			return err
		}
	}
	delete(r.tx.stagedDeletes, key)
	r.tx.stagedCards[key] = cloneCard(card)
	return nil
}

func (r *txCardRepository) FindByID(ctx context.Context, id domain.CardID) (*domain.Card, error) {
	key := id.String()
	if r.tx.stagedDeletes[key] {
		return nil, domain.ErrCardNotFound
	}
	if card, ok := r.tx.stagedCards[key]; ok {
		return cloneCard(card), nil
	}
	if card, ok := r.tx.parent.cards[key]; ok {
		return cloneCard(card), nil
	}
	return nil, domain.ErrCardNotFound
}

func (r *txCardRepository) FindAll(ctx context.Context) ([]*domain.Card, error) {
	cards := make([]*domain.Card, 0, len(r.tx.parent.cards))
	for key, card := range r.tx.parent.cards {
		if r.tx.stagedDeletes[key] {
			continue
		}
		if staged, ok := r.tx.stagedCards[key]; ok {
			card = staged
		}
		cards = append(cards, cloneCard(card))
	}
	for key, card := range r.tx.stagedCards {
		if _, ok := r.tx.parent.cards[key]; !ok {
			cards = append(cards, cloneCard(card))
		}
	}
	sortByCreation(cards)
	return cards, nil
}

func (r *txCardRepository) FindByCustomerID(ctx context.Context, customerID types.CustomerID) ([]*domain.Card, error) {
	all, err := r.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	cards := make([]*domain.Card, 0, len(all))
	for _, card := range all {
		if card.CustomerID() == customerID {
			cards = append(cards, card)
		}
	}
	return cards, nil
}

func (r *txCardRepository) Delete(ctx context.Context, card *domain.Card) error {
	key := card.ID().String()
	_, staged := r.tx.stagedCards[key]
	_, committed := r.tx.parent.cards[key]
	if r.tx.stagedDeletes[key] || (!staged && !committed) {
		return domain.ErrCardNotFound
	}
	delete(r.tx.stagedCards, key)
	r.tx.stagedDeletes[key] = true
	return nil
}

type txIdempotencyStore struct {
	tx *transactionalDataStore
}

func (s *txIdempotencyStore) Get(ctx context.Context, cardID domain.CardID, key string) (*domain.IdempotencyEntry, error) {
	k := idempotencyKey(cardID, key)
	if entry, ok := s.tx.stagedIdempotency[k]; ok {
		return entry, nil
	}
	if entry, ok := s.tx.parent.idempotencyKeys[k]; ok {
		return entry, nil
	}
	return nil, nil
}

func (s *txIdempotencyStore) Set(ctx context.Context, entry *domain.IdempotencyEntry) error {
	s.tx.stagedIdempotency[idempotencyKey(entry.CardID, entry.IdempotencyKey)] = entry
	return nil
}

type txOutboxRepository struct {
	tx *transactionalDataStore
}

func (r *txOutboxRepository) Append(ctx context.Context, entry *domain.OutboxEntry) error {
	r.tx.stagedOutbox = append(r.tx.stagedOutbox, entry)
	return nil
}

func (r *txOutboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEntry, error) {
	var entries []*domain.OutboxEntry
	for _, entry := range r.tx.parent.outboxEntries {
		if entry.PublishedAt == nil {
			entries = append(entries, entry)
			if len(entries) >= limit {
				break
			}
		}
	}
	return entries, nil
}

func (r *txOutboxRepository) MarkPublished(ctx context.Context, ids []types.EventID) error {
	return markPublished(r.tx.parent.outboxEntries, ids)
}

func markPublished(entries []*domain.OutboxEntry, ids []types.EventID) error {
	now := time.Now()
	idSet := make(map[string]bool)
	for _, id := range ids {
		idSet[id.String()] = true
	}
	for _, entry := range entries {
		if idSet[entry.ID.String()] {
			entry.PublishedAt = &now
		}
	}
	return nil
}

// Non-transactional repository implementations (for direct access)

// CardRepository provides non-transactional access to in-memory cards.
type CardRepository struct {
	store *DataStore
}

// Save stores a card, applying the version-conditional write rule.
func (r *CardRepository) Save(ctx context.Context, card *domain.Card) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := card.ID().String()
	if err := checkVersion(r.store.cards[key], card); err != nil {
		return err
	}
	r.store.cards[key] = cloneCard(card)
	return nil
}

// FindByID loads a card by ID. Returns ErrCardNotFound when missing.
func (r *CardRepository) FindByID(ctx context.Context, id domain.CardID) (*domain.Card, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	if card, ok := r.store.cards[id.String()]; ok {
		return cloneCard(card), nil
	}
	return nil, domain.ErrCardNotFound
}

// FindAll returns all cards ordered by creation time.
func (r *CardRepository) FindAll(ctx context.Context) ([]*domain.Card, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	cards := make([]*domain.Card, 0, len(r.store.cards))
	for _, card := range r.store.cards {
		cards = append(cards, cloneCard(card))
	}
	sortByCreation(cards)
	return cards, nil
}

// FindByCustomerID returns the cards owned by a customer, ordered by creation time.
func (r *CardRepository) FindByCustomerID(ctx context.Context, customerID types.CustomerID) ([]*domain.Card, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	cards := make([]*domain.Card, 0)
	for _, card := range r.store.cards {
		if card.CustomerID() == customerID {
			cards = append(cards, cloneCard(card))
		}
	}
	sortByCreation(cards)
	return cards, nil
}

// Delete removes a card. Returns ErrCardNotFound when missing.
func (r *CardRepository) Delete(ctx context.Context, card *domain.Card) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	key := card.ID().String()
	if _, ok := r.store.cards[key]; !ok {
		return domain.ErrCardNotFound
	}
	delete(r.store.cards, key)
	return nil
}

// IdempotencyStore provides non-transactional access to idempotency records.
type IdempotencyStore struct {
	store *DataStore
}

// Get retrieves an idempotency entry by card and key.
// Returns (nil, nil) when no entry exists.
func (s *IdempotencyStore) Get(ctx context.Context, cardID domain.CardID, key string) (*domain.IdempotencyEntry, error) {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	if entry, ok := s.store.idempotencyKeys[idempotencyKey(cardID, key)]; ok {
		return entry, nil
	}
	return nil, nil
}

// Set stores or updates an idempotency entry.
func (s *IdempotencyStore) Set(ctx context.Context, entry *domain.IdempotencyEntry) error {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	s.store.idempotencyKeys[idempotencyKey(entry.CardID, entry.IdempotencyKey)] = entry
	return nil
}

// OutboxRepository provides non-transactional access to outbox entries.
type OutboxRepository struct {
	store *DataStore
}

// Append adds an event entry to the in-memory outbox.
func (r *OutboxRepository) Append(ctx context.Context, entry *domain.OutboxEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.outboxEntries = append(r.store.outboxEntries, entry)
	return nil
}

// FetchUnpublished returns unpublished events in insertion order, up to the limit.
func (r *OutboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var entries []*domain.OutboxEntry
	for _, entry := range r.store.outboxEntries {
		if entry.PublishedAt == nil {
			entries = append(entries, entry)
			if len(entries) >= limit {
				break
			}
		}
	}
	return entries, nil
}

// MarkPublished sets PublishedAt for the specified events.
func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []types.EventID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return markPublished(r.store.outboxEntries, ids)
}

// Verify interface implementations
var (
	_ domain.AtomicExecutor = (*DataStore)(nil)
	_ domain.Repositories   = (*DataStore)(nil)
)
