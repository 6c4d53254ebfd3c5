package relay

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

func (r *Relay) Tick(ctx context.Context) error {
	return r.tick(ctx)
}

func (e *Executor) SetDeriver(derive func(programID solana.PublicKey, seed []byte) (solana.PublicKey, uint8, error)) {
	e.derive = derive
}
