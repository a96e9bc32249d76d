package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/campaignkeeper/internal/types"
)

// MessageStore persists per-recipient delivery records. It implements
// delivery.Store and the campaign materializer's message sink.
type MessageStore struct {
	q   *Queries
	now func() time.Time
}

// NewMessageStore creates a message store over loaded queries.
func NewMessageStore(q *Queries) *MessageStore {
	return &MessageStore{q: q, now: time.Now}
}

type messageRow struct {
	MessageID       string         `db:"message_id"`
	CampaignID      string         `db:"campaign_id"`
	CustomerID      string         `db:"customer_id"`
	VendorMessageID sql.NullString `db:"vendor_message_id"`
	Channel         string         `db:"channel"`
	State           string         `db:"state"`
	Stamps          string         `db:"stamps"`
	Version         int64          `db:"version"`
	CreatedAt       string         `db:"created_at"`
}

func (r messageRow) toMessage() (types.Message, error) {
	m := types.Message{
		ID:              types.MessageID(r.MessageID),
		CampaignID:      types.CampaignID(r.CampaignID),
		CustomerID:      types.CustomerID(r.CustomerID),
		VendorMessageID: types.VendorMessageID(r.VendorMessageID.String),
		Channel:         types.Channel(r.Channel),
		State:           types.DeliveryState(r.State),
		Version:         r.Version,
	}
	if err := json.Unmarshal([]byte(r.Stamps), &m.Stamps); err != nil {
		return types.Message{}, fmt.Errorf("message %s: invalid stamps: %w", r.MessageID, err)
	}
	if m.Stamps == nil {
		m.Stamps = make(map[types.DeliveryState]types.Stamp)
	}
	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return types.Message{}, fmt.Errorf("message %s: %w", r.MessageID, err)
	}
	m.CreatedAt = createdAt
	return m, nil
}

func (s *MessageStore) getOne(ctx context.Context, query string, arg any) (types.Message, error) {
	var row messageRow
	err := s.q.GetContext(ctx, query, &row, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Message{}, fmt.Errorf("%w: %v", types.ErrMessageNotFound, arg)
	}
	if err != nil {
		return types.Message{}, fmt.Errorf("failed to load message: %w", err)
	}
	return row.toMessage()
}

// Get loads a message by id.
func (s *MessageStore) Get(ctx context.Context, id types.MessageID) (types.Message, error) {
	return s.getOne(ctx, "get-message", string(id))
}

// GetByVendorID implements delivery.Store.
func (s *MessageStore) GetByVendorID(ctx context.Context, id types.VendorMessageID) (types.Message, error) {
	return s.getOne(ctx, "get-message-by-vendor-id", string(id))
}

// UpdateDelivery implements delivery.Store: state and stamps are written only
// if the stored version still equals m.Version.
func (s *MessageStore) UpdateDelivery(ctx context.Context, m types.Message) error {
	stamps, err := json.Marshal(m.Stamps)
	if err != nil {
		return fmt.Errorf("failed to encode stamps: %w", err)
	}

	res, err := s.q.ExecContext(ctx, "update-message-delivery",
		string(m.State), string(stamps), formatTime(s.now()), string(m.ID), m.Version)
	if err != nil {
		return fmt.Errorf("failed to update message %s: %w", m.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update message %s: %w", m.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: message %s version %d", types.ErrVersionConflict, m.ID, m.Version)
	}
	return nil
}

// InsertQueued inserts queued messages in one transaction. Messages whose
// (campaign, customer) pair already exists are skipped. Returns how many
// rows were created.
func (s *MessageStore) InsertQueued(ctx context.Context, msgs []types.Message) (int, error) {
	query, err := s.q.Query("insert-queued-message")
	if err != nil {
		return 0, err
	}

	tx, err := s.q.DB().BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := formatTime(s.now())
	created := 0
	for _, m := range msgs {
		stamps, err := json.Marshal(m.Stamps)
		if err != nil {
			return 0, fmt.Errorf("failed to encode stamps: %w", err)
		}
		res, err := tx.ExecContext(ctx, query,
			string(m.ID), string(m.CampaignID), string(m.CustomerID), string(m.Channel),
			string(m.State), string(stamps), formatTime(m.CreatedAt), now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert message for customer %s: %w", m.CustomerID, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			created += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit messages: %w", err)
	}
	return created, nil
}

// SetVendorMessageID attaches the vendor id once the vendor accepts the
// message. Repeating the same id is a no-op; a different id is
// ErrAlreadyDispatched.
func (s *MessageStore) SetVendorMessageID(ctx context.Context, id types.MessageID, vendorID types.VendorMessageID) error {
	res, err := s.q.ExecContext(ctx, "set-vendor-message-id",
		string(vendorID), formatTime(s.now()), string(id), string(vendorID))
	if err != nil {
		return fmt.Errorf("failed to record dispatch for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record dispatch for %s: %w", id, err)
	}
	if n > 0 {
		return nil
	}

	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s has vendor id %s", types.ErrAlreadyDispatched, id, m.VendorMessageID)
}

// ScanCampaign streams a campaign's messages in message id order.
func (s *MessageStore) ScanCampaign(ctx context.Context, campaignID types.CampaignID, batchSize int, fn func([]types.Message) error) error {
	if batchSize <= 0 {
		batchSize = 500
	}

	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var rows []messageRow
		if err := s.q.SelectContext(ctx, "list-campaign-messages", &rows, string(campaignID), cursor, batchSize); err != nil {
			return fmt.Errorf("failed to list messages: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}

		batch := make([]types.Message, 0, len(rows))
		for _, r := range rows {
			m, err := r.toMessage()
			if err != nil {
				return err
			}
			batch = append(batch, m)
		}
		if err := fn(batch); err != nil {
			return err
		}

		if len(rows) < batchSize {
			return nil
		}
		cursor = rows[len(rows)-1].MessageID
	}
}
