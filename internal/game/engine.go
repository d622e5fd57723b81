package game

import (
	"context"

	"example.com/cardtable/internal/protocol"
)

// Table is the viewer-facing side a dealer drives. *ws.Host implements it.
type Table interface {
	ShowState(s protocol.Snapshot) error
	SelectCard(ctx context.Context, handLen int) (int, error)
}
