package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/bwmarrin/snowflake"

	"telegram-ai-consult/internal/domain/ports/adapter"
)

var _ adapter.InvoiceIDGenerator = (*Snowflake)(nil)

// Snowflake issues positive 63-bit invoice ids from wall-clock milliseconds,
// a node number and a per-millisecond sequence. The node number is drawn at
// random on startup unless pinned, so two replicas rarely share a sequence
// space; a collision is still caught by the pending store.
type Snowflake struct {
	node *snowflake.Node
}

// NewSnowflake pins the node when node >= 0, otherwise picks one at random.
func NewSnowflake(node int64) (*Snowflake, error) {
	if node < 0 {
		n, err := rand.Int(rand.Reader, big.NewInt(1<<snowflake.NodeBits))
		if err != nil {
			return nil, fmt.Errorf("idgen: random node: %w", err)
		}
		node = n.Int64()
	}
	n, err := snowflake.NewNode(node)
	if err != nil {
		return nil, fmt.Errorf("idgen: %w", err)
	}
	return &Snowflake{node: n}, nil
}

func (s *Snowflake) NextInvoiceID() (int64, error) {
	return s.node.Generate().Int64(), nil
}
