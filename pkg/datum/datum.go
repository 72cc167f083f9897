// Package datum implements the data-handle layer of the engine.
//
// A Datum is a typed handle to a value that will exist at some point
// during workflow execution: often an IOU for data a task has not yet
// produced. Handles move monotonically through three states --
//
//	EMPTY ──Populate──► POPULATED ──Verify──► AVAILABLE
//
// -- and Clear returns them to EMPTY. The state machine lives in Base;
// variants supply the underlying logic through the Hooks interface.
package datum

import (
	"fmt"
	"reflect"

	"github.com/dpmerrell/dagger/dagapi"
)

// Datum is the engine-facing handle interface.
// The scheduler is polymorphic over this interface only; it never
// inspects concrete variants.
type Datum interface {
	// State returns the current lifecycle state.
	State() dagapi.DatumState

	// Pointer returns the opaque location descriptor, or nil when EMPTY.
	Pointer() interface{}

	// Populate assigns a pointer and moves EMPTY to POPULATED.
	// Populating with the pointer already held is a no-op.
	//
	// Errors:
	//
	//    - dagger-error-invalid-format -- when the pointer fails format validation
	Populate(pointer interface{}) error

	// Verify moves POPULATED to AVAILABLE if the referenced data exists.
	// No-op when already AVAILABLE.
	//
	// Errors:
	//
	//    - dagger-error-not-available -- when the referenced data cannot be observed
	Verify() error

	// Clear deletes any owned underlying data and resets to EMPTY.
	Clear() error

	// Quickhash returns a cheap identity for the underlying data.
	// It is set when the datum becomes AVAILABLE and zero otherwise.
	// Used for change detection only; not cryptographic.
	Quickhash() uint64

	// Sync reconciles the state with the underlying data: a handle whose
	// data vanished drops back to POPULATED, one whose data changed since
	// the last observation is cleared, and one whose data appeared is
	// promoted to AVAILABLE.
	Sync() error
}

// Hooks supplies the variant-specific logic of a datum.
// Base wraps these with state-machine enforcement.
type Hooks interface {
	// ValidateFormat reports whether a pointer is well-formed for this variant.
	ValidateFormat(pointer interface{}) bool

	// VerifyAvailable reports whether the pointed-to data exists right now.
	VerifyAvailable(pointer interface{}) bool

	// ClearLogic deletes owned underlying data, if any.
	ClearLogic(pointer interface{}) error

	// QuickhashLogic computes the cheap identity of the pointed-to data.
	QuickhashLogic(pointer interface{}) uint64
}

// Base carries the three-state machine around a variant's Hooks.
// Variants embed Base and pass themselves as the hooks at construction.
type Base struct {
	hooks     Hooks
	state     dagapi.DatumState
	pointer   interface{}
	quickhash uint64
}

// NewBase constructs an EMPTY handle around the given hooks.
func NewBase(hooks Hooks) Base {
	return Base{hooks: hooks, state: dagapi.DatumEmpty}
}

// NewPopulatedBase constructs a handle, populates it with the given
// pointer, and promotes it if the data already exists. Mirrors handing
// the engine a pre-existing external input.
//
// Errors:
//
//    - dagger-error-invalid-format -- when the pointer fails format validation
func NewPopulatedBase(hooks Hooks, pointer interface{}) (Base, error) {
	b := NewBase(hooks)
	if err := b.Populate(pointer); err != nil {
		return Base{}, err
	}
	// A populated handle may already have live data behind it.
	// not-yet-available is a normal outcome here, so the error is dropped
	_ = b.Verify()
	return b, nil
}

func (b *Base) State() dagapi.DatumState { return b.state }

func (b *Base) Pointer() interface{} { return b.pointer }

func (b *Base) Quickhash() uint64 { return b.quickhash }

// Populate assigns a pointer and moves EMPTY to POPULATED.
//
// Errors:
//
//    - dagger-error-invalid-format -- when the pointer fails format validation
func (b *Base) Populate(pointer interface{}) error {
	if b.state != dagapi.DatumEmpty && reflect.DeepEqual(b.pointer, pointer) {
		return nil
	}
	if !b.hooks.ValidateFormat(pointer) {
		b.pointer = nil
		b.state = dagapi.DatumEmpty
		return dagapi.ErrorInvalidFormat(fmt.Sprintf("%v", pointer), "rejected by variant format validation")
	}
	b.pointer = pointer
	b.state = dagapi.DatumPopulated
	b.quickhash = 0
	return nil
}

// Verify moves POPULATED to AVAILABLE if the referenced data exists.
//
// Errors:
//
//    - dagger-error-not-available -- when EMPTY, or when the referenced data cannot be observed
func (b *Base) Verify() error {
	if b.state == dagapi.DatumAvailable {
		return nil
	}
	if b.state == dagapi.DatumEmpty {
		return dagapi.ErrorNotAvailable("<empty>", nil)
	}
	if !b.hooks.VerifyAvailable(b.pointer) {
		return dagapi.ErrorNotAvailable(fmt.Sprintf("%v", b.pointer), nil)
	}
	b.state = dagapi.DatumAvailable
	b.quickhash = b.hooks.QuickhashLogic(b.pointer)
	return nil
}

// Clear deletes owned underlying data and resets the handle to EMPTY.
func (b *Base) Clear() error {
	if b.state == dagapi.DatumEmpty {
		return nil
	}
	if err := b.hooks.ClearLogic(b.pointer); err != nil {
		return err
	}
	b.pointer = nil
	b.state = dagapi.DatumEmpty
	b.quickhash = 0
	return nil
}

// VerifyQuickhash recomputes the identity of the underlying data and
// compares it with the stored one. A mismatch means the data changed
// since the handle last observed it; when update is set the stored
// identity is replaced.
func (b *Base) VerifyQuickhash(update bool) bool {
	newHash := b.hooks.QuickhashLogic(b.pointer)
	if newHash == b.quickhash {
		return true
	}
	if update {
		b.quickhash = newHash
	}
	return false
}

// Sync reconciles the handle's state with the underlying data.
func (b *Base) Sync() error {
	if b.state == dagapi.DatumEmpty {
		return nil
	}
	if !b.hooks.ValidateFormat(b.pointer) {
		b.pointer = nil
		b.state = dagapi.DatumEmpty
		b.quickhash = 0
		return nil
	}
	if !b.hooks.VerifyAvailable(b.pointer) {
		b.state = dagapi.DatumPopulated
		b.quickhash = 0
		return nil
	}
	if b.state == dagapi.DatumAvailable && !b.VerifyQuickhash(false) {
		// Data changed behind our back; drop the stale observation.
		return b.Clear()
	}
	b.state = dagapi.DatumAvailable
	b.quickhash = b.hooks.QuickhashLogic(b.pointer)
	return nil
}
