package snowflake

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("snowflake",
	fx.Provide(NewNode),
)

// Node wraps snowflake.Node to abstract the dependency.
type Node struct {
	*snowflake.Node
}

// NewNode builds the ID generator. SNOWFLAKE_NODE_ID must differ across
// dispatcher processes sharing one store.
func NewNode() (*Node, error) {
	nodeID := int64(1)
	if v := os.Getenv("SNOWFLAKE_NODE_ID"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err == nil {
			nodeID = parsed
		}
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, err
	}
	return &Node{node}, nil
}

// GenerateID returns a new snowflake ID as int64.
func (n *Node) GenerateID() int64 {
	return n.Generate().Int64()
}

// ParseID parses a string ID into an int64.
func ParseID(id string) (int64, error) {
	nid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, err
	}
	return nid, nil
}
