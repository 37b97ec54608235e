package permission

import (
	"sort"
	"time"

	"github.com/tokengate/tokengate/internal/domain/identity"
)

const (
	// NodeBypass reveals a participant's true coordinates.
	NodeBypass = "coordinateoffset.bypass"
	// NodeGivePrize allows issuing the prize item.
	NodeGivePrize = "prizegold.give"
)

// Record is the permission-service entry for one identity.
type Record struct {
	Identity  identity.Identity   `json:"identity"`
	Nodes     map[string]struct{} `json:"-"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// NewRecord creates an empty record.
func NewRecord(id identity.Identity) *Record {
	return &Record{
		Identity:  id,
		Nodes:     make(map[string]struct{}),
		UpdatedAt: time.Now().UTC(),
	}
}

func (r *Record) Has(node string) bool {
	_, ok := r.Nodes[node]
	return ok
}

func (r *Record) Add(node string) {
	if r.Nodes == nil {
		r.Nodes = make(map[string]struct{})
	}
	r.Nodes[node] = struct{}{}
	r.UpdatedAt = time.Now().UTC()
}

func (r *Record) Remove(node string) {
	delete(r.Nodes, node)
	r.UpdatedAt = time.Now().UTC()
}

// NodeList returns the granted nodes in sorted order.
func (r *Record) NodeList() []string {
	out := make([]string, 0, len(r.Nodes))
	for n := range r.Nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	c := &Record{Identity: r.Identity, UpdatedAt: r.UpdatedAt, Nodes: make(map[string]struct{}, len(r.Nodes))}
	for n := range r.Nodes {
		c.Nodes[n] = struct{}{}
	}
	return c
}
