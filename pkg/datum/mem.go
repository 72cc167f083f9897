package datum

import (
	"fmt"
	"hash/fnv"
)

// Mem is the in-memory datum variant: the pointer is the value itself.
// Format validation is trivial; availability means the value is non-nil;
// clearing drops the reference.
type Mem struct {
	Base
}

// NewMem returns an EMPTY in-memory handle.
func NewMem() *Mem {
	d := &Mem{}
	d.Base = NewBase(d)
	return d
}

// NewMemValue returns a handle already holding the given value.
// The handle is AVAILABLE unless the value is nil.
func NewMemValue(value interface{}) *Mem {
	d := NewMem()
	b, err := NewPopulatedBase(d, value)
	if err != nil {
		// unreachable: Mem accepts any pointer
		panic(fmt.Sprintf("in-memory datum rejected a value: %s", err))
	}
	d.Base = b
	return d
}

func (d *Mem) ValidateFormat(pointer interface{}) bool {
	return true
}

func (d *Mem) VerifyAvailable(pointer interface{}) bool {
	return pointer != nil
}

func (d *Mem) ClearLogic(pointer interface{}) error {
	return nil
}

func (d *Mem) QuickhashLogic(pointer interface{}) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%T:%v", pointer, pointer)
	return h.Sum64()
}

// Value returns the held value, or nil when the handle is EMPTY.
func (d *Mem) Value() interface{} {
	return d.Pointer()
}
