package rpc

import (
	"context"
	"encoding/json"

	"github.com/Klingon-tech/crosslock/internal/chain"
	"github.com/Klingon-tech/crosslock/internal/hashlock"
	"github.com/Klingon-tech/crosslock/internal/ledger"
)

// ========================================
// Escrow handlers
// ========================================

// EscrowCreateParams opens an escrow. An empty taker leaves it pending.
type EscrowCreateParams struct {
	Chain      string        `json:"chain"`
	Creator    string        `json:"creator"`
	Timelock   int64         `json:"timelock"`
	SecretHash hashlock.Hash `json:"secret_hash"`
	Taker      string        `json:"taker,omitempty"`
	Amount     uint64        `json:"amount"`
}

// EscrowRef identifies an escrow.
type EscrowRef struct {
	Chain string `json:"chain"`
	ID    uint64 `json:"id"`
}

func (s *Server) escrowCreate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p EscrowCreateParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	ch, err := s.getChain(p.Chain)
	if err != nil {
		return nil, err
	}
	creator, err := parseIdentity("creator", p.Creator)
	if err != nil {
		return nil, err
	}
	var taker ledger.Identity
	if p.Taker != "" {
		if taker, err = parseIdentity("taker", p.Taker); err != nil {
			return nil, err
		}
	}

	id, err := ch.CreateEscrow(ctx, chain.CreateRequest{
		Creator:    creator,
		Timelock:   p.Timelock,
		SecretHash: p.SecretHash,
		Taker:      taker,
		Amount:     p.Amount,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Escrow created",
		"chain", p.Chain,
		"escrow_id", id,
		"creator", creator.Short(),
		"amount", p.Amount,
	)
	return ch.Escrow(ctx, id)
}

func (s *Server) escrowGet(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p EscrowRef
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	ch, err := s.getChain(p.Chain)
	if err != nil {
		return nil, err
	}
	return ch.Escrow(ctx, p.ID)
}

// EscrowListParams pages through the escrows of a local ledger.
type EscrowListParams struct {
	Chain  string `json:"chain"`
	Offset uint64 `json:"offset"`
	Limit  uint64 `json:"limit"`
}

func (s *Server) escrowList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p EscrowListParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	local, err := s.getLocal(p.Chain)
	if err != nil {
		return nil, err
	}
	if p.Limit == 0 || p.Limit > 100 {
		p.Limit = 100
	}

	instances := local.Registry().List(p.Offset, p.Limit)
	out := make([]*chain.Escrow, 0, len(instances))
	for _, inst := range instances {
		esc, err := local.Escrow(ctx, inst.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, esc)
	}
	return out, nil
}

// EscrowWithdrawParams withdraws an escrow with its secret.
type EscrowWithdrawParams struct {
	Chain  string          `json:"chain"`
	ID     uint64          `json:"id"`
	Secret hashlock.Secret `json:"secret"`
}

func (s *Server) escrowWithdraw(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p EscrowWithdrawParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	ch, err := s.getChain(p.Chain)
	if err != nil {
		return nil, err
	}
	if err := ch.Withdraw(ctx, p.ID, p.Secret); err != nil {
		return nil, err
	}
	s.log.Info("Escrow withdrawn", "chain", p.Chain, "escrow_id", p.ID)
	return ch.Escrow(ctx, p.ID)
}

func (s *Server) escrowCancel(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p EscrowRef
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	ch, err := s.getChain(p.Chain)
	if err != nil {
		return nil, err
	}
	if err := ch.Cancel(ctx, p.ID); err != nil {
		return nil, err
	}
	s.log.Info("Escrow cancelled", "chain", p.Chain, "escrow_id", p.ID)
	return ch.Escrow(ctx, p.ID)
}

// EscrowAssignTakerParams fixes the taker of a pending escrow.
type EscrowAssignTakerParams struct {
	Chain string `json:"chain"`
	ID    uint64 `json:"id"`
	Taker string `json:"taker"`
}

// escrowAssignTaker assigns as the relayer, the only admin of the registries.
// Escrows backing a swap are refused; their taker is the auction winner.
func (s *Server) escrowAssignTaker(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p EscrowAssignTakerParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if _, err := s.getChain(p.Chain); err != nil {
		return nil, err
	}
	taker, err := parseIdentity("taker", p.Taker)
	if err != nil {
		return nil, err
	}
	return s.coordinator.AssignTaker(ctx, p.Chain, p.ID, taker)
}
