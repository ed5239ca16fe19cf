package repository

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/huishype/huishype/internal/domain/fmv"
	"github.com/huishype/huishype/internal/domain/types"
	"github.com/huishype/huishype/pkg/metrics"
)

// divergenceScale stores divergences, already rounded to two decimals, as
// exact integers.
const divergenceScale = 100

type divergenceFP int64

func toFixedPoint(d float64) divergenceFP {
	switch {
	case math.IsNaN(d):
		return 0
	case d*divergenceScale >= math.MaxInt64:
		return math.MaxInt64
	case d*divergenceScale <= math.MinInt64:
		return math.MinInt64
	}
	return divergenceFP(math.Round(d * divergenceScale))
}

// treap node
type node struct {
	id    string
	key   divergenceFP
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether (aKey, aID) ranks before (bKey, bID).
func less(aKey divergenceFP, aID string, bKey divergenceFP, bID string) bool {
	if aKey != bKey {
		return aKey > bKey
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, key divergenceFP, prio uint64) *node {
	if n == nil {
		return &node{id: id, key: key, prio: prio, size: 1}
	}
	if less(key, id, n.key, n.id) {
		n.left = insert(n.left, id, key, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, key, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, key divergenceFP) *node {
	if n == nil {
		return nil
	}
	switch {
	case key == n.key && id == n.id:
		// Rotate the higher-priority child up until n is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, key)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, key)
		}
	case less(key, id, n.key, n.id):
		n.left = deleteNode(n.left, id, key)
	default:
		n.right = deleteNode(n.right, id, key)
	}
	fix(n)
	return n
}

// countAhead returns the number of nodes with a strictly greater key.
func countAhead(n *node, key divergenceFP) int {
	count := 0
	for n != nil {
		if n.key > key {
			count += 1 + nsize(n.left)
			n = n.right
		} else {
			n = n.left
		}
	}
	return count
}

// collectTopN appends up to limit nodes in rank order.
func collectTopN(n *node, limit int, out *[]*node) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, n)
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// Board is an in-memory treap ranking properties by divergence. It is safe
// for concurrent use.
//
// Ordering: divergence DESC, then property id ASC. "less" means ranks earlier,
// so an in-order traversal yields the board from most underpriced to most
// overpriced. Properties with equal divergence share a rank
// (1 + the number of properties strictly ahead).
type Board struct {
	mu   sync.RWMutex
	root *node
	byID map[string]boardRecord
	rng  *rand.Rand
}

type boardRecord struct {
	key   divergenceFP
	entry types.Entry
}

// NewBoard constructs an empty board.
func NewBoard(opts ...Option) *Board {
	cfg := boardConfig{seed: uint64(time.Now().UnixNano())}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Board{
		byID: make(map[string]boardRecord),
		rng:  rand.New(rand.NewPCG(cfg.seed, cfg.seed^0x9e3779b97f4a7c15)),
	}
}

// Put records the latest estimate for a property. A result without a
// divergence takes the property off the board. It reports whether the
// property is ranked afterwards.
func (b *Board) Put(ctx context.Context, propertyID string, r fmv.Result) bool { //nolint:gocritic // hugeParam: Result is a value snapshot
	if r.Divergence == nil || r.FMV == nil || r.AskingPrice == nil {
		b.Remove(ctx, propertyID)
		return false
	}

	key := toFixedPoint(*r.Divergence)
	entry := types.Entry{
		PropertyID:  propertyID,
		FMV:         *r.FMV,
		AskingPrice: *r.AskingPrice,
		Divergence:  *r.Divergence,
		Confidence:  r.Confidence.String(),
		GuessCount:  r.GuessCount,
	}

	b.mu.Lock()
	if old, ok := b.byID[propertyID]; ok {
		b.root = deleteNode(b.root, propertyID, old.key)
	}
	b.byID[propertyID] = boardRecord{key: key, entry: entry}
	b.root = insert(b.root, propertyID, key, b.rng.Uint64())
	n := len(b.byID)
	b.mu.Unlock()

	metrics.UpdateBoardSize(n)
	return true
}

// Remove drops a property from the board. It reports whether it was ranked.
func (b *Board) Remove(_ context.Context, propertyID string) bool {
	b.mu.Lock()
	old, ok := b.byID[propertyID]
	if ok {
		b.root = deleteNode(b.root, propertyID, old.key)
		delete(b.byID, propertyID)
	}
	n := len(b.byID)
	b.mu.Unlock()

	if ok {
		metrics.UpdateBoardSize(n)
	}
	return ok
}

// Rank returns the board entry for a property in O(log n) expected time.
func (b *Board) Rank(_ context.Context, propertyID string) (types.Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.byID[propertyID]
	if !ok {
		return types.Entry{}, ErrNotFound
	}
	e := rec.entry
	e.Rank = 1 + countAhead(b.root, rec.key)
	return e, nil
}

// TopN returns the n highest-ranked entries.
func (b *Board) TopN(_ context.Context, n int) ([]types.Entry, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	nodes := make([]*node, 0, min(n, len(b.byID)))
	collectTopN(b.root, n, &nodes)

	out := make([]types.Entry, len(nodes))
	for i, nd := range nodes {
		out[i] = b.byID[nd.id].entry
		if i > 0 && nd.key == nodes[i-1].key {
			out[i].Rank = out[i-1].Rank
		} else {
			out[i].Rank = i + 1
		}
	}
	return out, nil
}

// Count returns the number of ranked properties.
func (b *Board) Count(_ context.Context) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byID)
}
