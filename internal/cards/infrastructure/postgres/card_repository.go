package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"argentum/internal/cards/domain"
	"argentum/internal/common/metrics"
	"argentum/internal/common/types"
)

// CardRepository persists Card aggregates using PostgreSQL.
type CardRepository struct {
	db Executor
}

// NewCardRepository binds the repository to a database handle (pool or tx).
// Callers control transactional scope by passing a pgx.Tx when participating
// in a unit of work.
func NewCardRepository(db Executor) *CardRepository {
	return &CardRepository{db: db}
}

const cardColumns = `id, card_number, customer_id, card_type, status,
	expiration_date, cvv, associated_accounts, main_account_id, credit_id,
	version, created_at, updated_at`

// Save persists a Card aggregate to the database.
// It uses an UPSERT with optimistic locking:
//   - Inserts when version == 1
//   - Updates only if the stored version matches (version - 1)
//
// Errors: returns domain.ErrConflict on version conflict.
func (r *CardRepository) Save(ctx context.Context, card *domain.Card) error {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO cards (`+cardColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			associated_accounts = EXCLUDED.associated_accounts,
			main_account_id = EXCLUDED.main_account_id,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE cards.version = EXCLUDED.version - 1`,
		card.ID().String(),
		card.Number(),
		card.CustomerID().String(),
		string(card.Type()),
		string(card.Status()),
		card.ExpirationDate(),
		card.CVV(),
		card.AssociatedAccounts(),
		nullable(card.MainAccountID()),
		nullable(card.CreditID()),
		card.Version(),
		card.CreatedAt(),
		card.UpdatedAt(),
	)
	if err != nil {
		return err
	}

	// For inserts version=1 and we expect 1 row. For updates (version > 1)
	// zero affected rows means the stored version did not match.
	if card.Version() > 1 && tag.RowsAffected() == 0 {
		metrics.RecordConflict("cards")
		return domain.ErrConflict
	}
	return nil
}

// FindByID retrieves a Card aggregate by ID.
// Errors: returns domain.ErrCardNotFound when missing and domain.ErrCorruptData
// when stored values cannot be decoded.
func (r *CardRepository) FindByID(ctx context.Context, id domain.CardID) (*domain.Card, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE id = $1`,
		id.String(),
	)

	card, err := scanCard(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCardNotFound
	}
	return card, err
}

// FindAll retrieves all cards ordered by creation time.
func (r *CardRepository) FindAll(ctx context.Context) ([]*domain.Card, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+cardColumns+`
		FROM cards
		ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCards(rows)
}

// FindByCustomerID retrieves the cards owned by a customer, ordered by
// creation time.
func (r *CardRepository) FindByCustomerID(ctx context.Context, customerID types.CustomerID) ([]*domain.Card, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+cardColumns+`
		FROM cards
		WHERE customer_id = $1
		ORDER BY created_at, id`,
		customerID.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCards(rows)
}

// Delete permanently removes a card.
// Errors: returns domain.ErrCardNotFound when no record exists.
func (r *CardRepository) Delete(ctx context.Context, card *domain.Card) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM cards WHERE id = $1`, card.ID().String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCardNotFound
	}
	return nil
}

func scanCards(rows pgx.Rows) ([]*domain.Card, error) {
	var cards []*domain.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func scanCard(row pgx.Row) (*domain.Card, error) {
	var (
		id                 string
		cardNumber         string
		customerID         string
		cardType           string
		status             string
		expirationDate     time.Time
		cvv                string
		associatedAccounts []string
		mainAccountID      *string
		creditID           *string
		version            int
		createdAt          time.Time
		updatedAt          time.Time
	)
	if err := row.Scan(
		&id, &cardNumber, &customerID, &cardType, &status,
		&expirationDate, &cvv, &associatedAccounts, &mainAccountID, &creditID,
		&version, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	cardID, err := domain.ParseCardID(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid card id: %v", domain.ErrCorruptData, err)
	}

	return domain.ReconstructCard(
		cardID,
		cardNumber,
		types.CustomerID(customerID),
		domain.CardType(cardType),
		domain.CardStatus(status),
		expirationDate,
		cvv,
		associatedAccounts,
		stringValue(mainAccountID),
		stringValue(creditID),
		version,
		createdAt,
		updatedAt,
	), nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Verify interface implementation.
var _ domain.CardRepository = (*CardRepository)(nil)
