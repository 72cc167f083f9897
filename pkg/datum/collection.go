package datum

import (
	"hash/fnv"

	"github.com/dpmerrell/dagger/dagapi"
)

// Collection is an ordered name-to-datum grouping that itself behaves as
// a datum: its state is the least-advanced state of its members, so it is
// AVAILABLE only when every member is. Used to treat a task's whole
// output set as one composite handle.
type Collection struct {
	Keys   []dagapi.LocalLabel
	Values map[dagapi.LocalLabel]Datum
}

// NewCollection builds a collection preserving the order in which
// members are given.
func NewCollection(keys []dagapi.LocalLabel, values map[dagapi.LocalLabel]Datum) *Collection {
	ks := make([]dagapi.LocalLabel, len(keys))
	copy(ks, keys)
	vs := make(map[dagapi.LocalLabel]Datum, len(values))
	for k, v := range values {
		vs[k] = v
	}
	return &Collection{Keys: ks, Values: vs}
}

// Get returns the member datum by name, or nil if absent.
func (c *Collection) Get(name dagapi.LocalLabel) Datum {
	return c.Values[name]
}

// Len returns the member count.
func (c *Collection) Len() int {
	return len(c.Keys)
}

// State returns the least-advanced state among members.
// An empty collection is vacuously AVAILABLE.
func (c *Collection) State() dagapi.DatumState {
	least := dagapi.DatumAvailable
	for _, k := range c.Keys {
		if s := c.Values[k].State(); s < least {
			least = s
		}
	}
	return least
}

// Pointer returns the member pointers in member order.
func (c *Collection) Pointer() interface{} {
	out := make([]interface{}, 0, len(c.Keys))
	for _, k := range c.Keys {
		out = append(out, c.Values[k].Pointer())
	}
	return out
}

// Populate assigns pointers to members positionally.
// The pointer must be a slice with one element per member.
//
// Errors:
//
//    - dagger-error-invalid-format -- when the pointer is not a slice of the right length, or a member rejects its element
func (c *Collection) Populate(pointer interface{}) error {
	pointers, ok := pointer.([]interface{})
	if !ok || len(pointers) != len(c.Keys) {
		return dagapi.ErrorInvalidFormat("<collection>", "collection pointer must be a slice with one element per member")
	}
	for i, k := range c.Keys {
		if err := c.Values[k].Populate(pointers[i]); err != nil {
			return err
		}
	}
	return nil
}

// Verify verifies every member.
//
// Errors:
//
//    - dagger-error-not-available -- when any member's data cannot be observed
func (c *Collection) Verify() error {
	for _, k := range c.Keys {
		if err := c.Values[k].Verify(); err != nil {
			return err
		}
	}
	return nil
}

// Clear clears every member.
func (c *Collection) Clear() error {
	for _, k := range c.Keys {
		if err := c.Values[k].Clear(); err != nil {
			return err
		}
	}
	return nil
}

// Quickhash folds member hashes in member order, so both member data and
// member ordering contribute to the identity.
func (c *Collection) Quickhash() uint64 {
	h := fnv.New64a()
	for _, k := range c.Keys {
		qh := c.Values[k].Quickhash()
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[i] = byte(qh >> (8 * i))
		}
		h.Write([]byte(k))
		h.Write(buf[:])
	}
	return h.Sum64()
}

// Sync syncs every member.
func (c *Collection) Sync() error {
	for _, k := range c.Keys {
		if err := c.Values[k].Sync(); err != nil {
			return err
		}
	}
	return nil
}

var _ Datum = (*Collection)(nil)
