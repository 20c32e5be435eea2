package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// WatchAddress is an address derived from an xpub and imported into the node
// as watch-only.
type WatchAddress struct {
	Address         string `json:"address"`
	Network         string `json:"network"`
	XPubFingerprint string `json:"xpub_fingerprint"` // hex, of the xpub it was derived from
	Path            string `json:"path"`             // relative to that xpub
	Label           string `json:"label,omitempty"`
	Imported        bool   `json:"imported"`
	Rescan          bool   `json:"rescan"`

	CreatedAt  int64 `json:"created_at"`
	ImportedAt int64 `json:"imported_at,omitempty"`
}

// SaveWatchAddress inserts a watch address or updates its import state.
func (s *Storage) SaveWatchAddress(addr *WatchAddress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if addr.CreatedAt == 0 {
		addr.CreatedAt = time.Now().Unix()
	}

	query := `
		INSERT INTO watch_addresses (
			address, network, xpub_fingerprint, path, label,
			imported, rescan, created_at, imported_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			label = excluded.label,
			imported = excluded.imported,
			rescan = excluded.rescan,
			imported_at = excluded.imported_at
	`

	_, err := s.db.Exec(query,
		addr.Address, addr.Network, addr.XPubFingerprint, addr.Path, nullString(addr.Label),
		boolToInt(addr.Imported), boolToInt(addr.Rescan), addr.CreatedAt, nullInt64(addr.ImportedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save watch address: %w", err)
	}
	return nil
}

// MarkWatchAddressImported records a successful importaddress call.
func (s *Storage) MarkWatchAddressImported(address string, rescan bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		UPDATE watch_addresses SET imported = 1, rescan = ?, imported_at = ?
		WHERE address = ?
	`, boolToInt(rescan), time.Now().Unix(), address)
	if err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("watch address not found: %s", address)
	}
	return nil
}

// GetWatchAddress retrieves a watch address. It returns nil, nil when the
// address is unknown.
func (s *Storage) GetWatchAddress(address string) (*WatchAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT address, network, xpub_fingerprint, path, label,
			   imported, rescan, created_at, imported_at
		FROM watch_addresses WHERE address = ?
	`, address)

	addr, err := scanWatchAddress(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return addr, nil
}

// ListWatchAddresses returns the watch addresses of a network, newest first.
func (s *Storage) ListWatchAddresses(network string, limit int) ([]*WatchAddress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(`
		SELECT address, network, xpub_fingerprint, path, label,
			   imported, rescan, created_at, imported_at
		FROM watch_addresses WHERE network = ?
		ORDER BY created_at DESC, address
		LIMIT ?
	`, network, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addrs []*WatchAddress
	for rows.Next() {
		addr, err := scanWatchAddress(rows)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWatchAddress(row rowScanner) (*WatchAddress, error) {
	var addr WatchAddress
	var label sql.NullString
	var imported, rescan int
	var importedAt sql.NullInt64

	err := row.Scan(
		&addr.Address, &addr.Network, &addr.XPubFingerprint, &addr.Path, &label,
		&imported, &rescan, &addr.CreatedAt, &importedAt,
	)
	if err != nil {
		return nil, err
	}

	addr.Label = label.String
	addr.Imported = imported != 0
	addr.Rescan = rescan != 0
	addr.ImportedAt = importedAt.Int64
	return &addr, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
