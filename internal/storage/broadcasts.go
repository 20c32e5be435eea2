package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BroadcastStatus is the outcome of a sendrawtransaction attempt.
type BroadcastStatus string

const (
	// BroadcastPending is recorded before the node is called. A row left in
	// this state means the process stopped mid-call and the outcome is unknown.
	BroadcastPending  BroadcastStatus = "pending"
	BroadcastAccepted BroadcastStatus = "accepted"
	BroadcastRejected BroadcastStatus = "rejected"
	// BroadcastUnknown means the call failed in transport; the node may or may
	// not have the transaction.
	BroadcastUnknown BroadcastStatus = "unknown"
)

// Broadcast is one attempt to submit a signed transaction.
type Broadcast struct {
	ID          string          `json:"id"`
	Network     string          `json:"network"`
	TxID        string          `json:"txid"`
	RawTx       string          `json:"raw_tx"`
	Source      string          `json:"source"`
	Destination string          `json:"destination"`
	Amount      int64           `json:"amount"` // duffs
	Fee         int64           `json:"fee"`    // duffs
	Inputs      int             `json:"inputs"`
	Status      BroadcastStatus `json:"status"`
	Error       string          `json:"error,omitempty"`
	NodeTxID    string          `json:"node_txid,omitempty"`
	CreatedAt   int64           `json:"created_at"`
	UpdatedAt   int64           `json:"updated_at"`
}

// CreateBroadcast records a new attempt in the pending state and assigns its ID.
func (s *Storage) CreateBroadcast(b *Broadcast) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	now := time.Now().Unix()
	b.CreatedAt = now
	b.UpdatedAt = now
	if b.Status == "" {
		b.Status = BroadcastPending
	}

	_, err := s.db.Exec(`
		INSERT INTO broadcasts (
			id, network, txid, raw_tx, source, destination,
			amount, fee, inputs, status, error, node_txid,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID, b.Network, b.TxID, b.RawTx, b.Source, b.Destination,
		b.Amount, b.Fee, b.Inputs, string(b.Status), nullString(b.Error), nullString(b.NodeTxID),
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create broadcast: %w", err)
	}
	return nil
}

// UpdateBroadcastStatus records the outcome of an attempt.
func (s *Storage) UpdateBroadcastStatus(id string, status BroadcastStatus, nodeTxID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE broadcasts SET status = ?, node_txid = ?, error = ?, updated_at = ?
		WHERE id = ?
	`, string(status), nullString(nodeTxID), nullString(errMsg), time.Now().Unix(), id)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("broadcast not found: %s", id)
	}
	return nil
}

// GetBroadcast retrieves an attempt by ID. It returns nil, nil when unknown.
func (s *Storage) GetBroadcast(id string) (*Broadcast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, network, txid, raw_tx, source, destination,
			   amount, fee, inputs, status, error, node_txid,
			   created_at, updated_at
		FROM broadcasts WHERE id = ?
	`, id)

	b, err := scanBroadcast(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBroadcasts returns attempts, newest first. An empty status lists all.
func (s *Storage) ListBroadcasts(status BroadcastStatus, limit int) ([]*Broadcast, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, network, txid, raw_tx, source, destination,
			   amount, fee, inputs, status, error, node_txid,
			   created_at, updated_at
		FROM broadcasts
	`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

func scanBroadcast(row rowScanner) (*Broadcast, error) {
	var b Broadcast
	var status string
	var errMsg, nodeTxID sql.NullString

	err := row.Scan(
		&b.ID, &b.Network, &b.TxID, &b.RawTx, &b.Source, &b.Destination,
		&b.Amount, &b.Fee, &b.Inputs, &status, &errMsg, &nodeTxID,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Status = BroadcastStatus(status)
	b.Error = errMsg.String
	b.NodeTxID = nodeTxID.String
	return &b, nil
}
