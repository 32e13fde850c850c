package storage

import (
	"fmt"
	"time"

	"github.com/Klingon-tech/crosslock/internal/auction"
	"github.com/Klingon-tech/crosslock/internal/ledger"
)

// RecordAuction upserts an auction. It implements auction.Journal, so every
// created or sold auction is on disk before the registry commits it.
func (s *Storage) RecordAuction(inst *auction.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO auctions (
			id, escrow_id, escrow_app_id, start_price, min_price, duration, curve,
			creator, start_time, taker, sold, sold_price, sold_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			taker = excluded.taker,
			sold = excluded.sold,
			sold_price = excluded.sold_price,
			sold_at = excluded.sold_at,
			updated_at = excluded.updated_at
	`,
		inst.ID, inst.EscrowID, nullString(inst.EscrowAppID), inst.StartPrice, inst.MinPrice,
		inst.Duration, inst.Curve.String(), string(inst.Creator), inst.StartTime,
		string(inst.Taker), boolToInt(inst.Sold), inst.SoldPrice, inst.SoldAt,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record auction: %w", err)
	}
	return nil
}

// LoadAuctions returns every journaled auction ordered by id, ready for
// auction.Registry.Restore.
func (s *Storage) LoadAuctions() ([]auction.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, escrow_id, COALESCE(escrow_app_id, ''), start_price, min_price, duration,
		       curve, creator, start_time, taker, sold, sold_price, sold_at
		FROM auctions ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query auctions: %w", err)
	}
	defer rows.Close()

	var out []auction.Instance
	for rows.Next() {
		var inst auction.Instance
		var curve, creator, taker string
		var sold int
		err := rows.Scan(
			&inst.ID, &inst.EscrowID, &inst.EscrowAppID, &inst.StartPrice, &inst.MinPrice,
			&inst.Duration, &curve, &creator, &inst.StartTime, &taker, &sold,
			&inst.SoldPrice, &inst.SoldAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		c, err := auction.ParseCurve(curve)
		if err != nil {
			return nil, fmt.Errorf("auction %d: %w", inst.ID, err)
		}
		inst.Curve = c
		inst.Creator = ledger.Identity(creator)
		inst.Taker = ledger.Identity(taker)
		inst.Sold = sold == 1
		out = append(out, inst)
	}
	return out, rows.Err()
}
