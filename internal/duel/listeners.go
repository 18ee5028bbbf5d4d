package duel

import "reflect"

// ListenerHandle identifies a registered listener for later removal.
type ListenerHandle int

// FragmentListener reacts to a completed fragment of a concrete type.
type FragmentListener func(frag Fragment, result FragmentState)

// AttributeListener reacts to a change of an attribute's actual value.
type AttributeListener func(frag Fragment, entity Entity, attr AttributeID, prev, now int)

type fragListenerEntry struct {
	handle   ListenerHandle
	callback FragmentListener
}

type attrListenerEntry struct {
	handle   ListenerHandle
	callback AttributeListener
}

// ListenerRegistry holds the fragment-type and attribute listeners of a duel.
// Lists are copied before dispatch, so a listener may register or remove
// listeners while being called. It is only used under the duel lock.
type ListenerRegistry struct {
	fragListeners map[reflect.Type][]fragListenerEntry
	attrListeners map[AttributeID][]attrListenerEntry
	// core attribute reactions always run before the listeners above
	coreAttr   map[AttributeID][]attrListenerEntry
	nextHandle ListenerHandle
}

// NewListenerRegistry constructs an empty registry.
func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{
		fragListeners: make(map[reflect.Type][]fragListenerEntry),
		attrListeners: make(map[AttributeID][]attrListenerEntry),
		coreAttr:      make(map[AttributeID][]attrListenerEntry),
		nextHandle:    1,
	}
}

func (r *ListenerRegistry) allocHandle() ListenerHandle {
	h := r.nextHandle
	r.nextHandle++
	return h
}

// RegisterFragmentListener listens to completed fragments of type t.
func (r *ListenerRegistry) RegisterFragmentListener(t reflect.Type, callback FragmentListener) ListenerHandle {
	if callback == nil {
		return 0
	}
	h := r.allocHandle()
	r.fragListeners[t] = append(r.fragListeners[t], fragListenerEntry{handle: h, callback: callback})
	return h
}

// RegisterAttributeListener listens to changes of attr on any entity.
func (r *ListenerRegistry) RegisterAttributeListener(attr AttributeID, callback AttributeListener) ListenerHandle {
	if callback == nil {
		return 0
	}
	h := r.allocHandle()
	r.attrListeners[attr] = append(r.attrListeners[attr], attrListenerEntry{handle: h, callback: callback})
	return h
}

// registerCoreAttributeReaction registers a built-in engine reaction.
func (r *ListenerRegistry) registerCoreAttributeReaction(attr AttributeID, callback AttributeListener) ListenerHandle {
	h := r.allocHandle()
	r.coreAttr[attr] = append(r.coreAttr[attr], attrListenerEntry{handle: h, callback: callback})
	return h
}

// Unregister removes the listener identified by handle.
func (r *ListenerRegistry) Unregister(handle ListenerHandle) bool {
	for t, entries := range r.fragListeners {
		for i := range entries {
			if entries[i].handle == handle {
				r.fragListeners[t] = append(entries[:i:i], entries[i+1:]...)
				return true
			}
		}
	}
	for attr, entries := range r.attrListeners {
		for i := range entries {
			if entries[i].handle == handle {
				r.attrListeners[attr] = append(entries[:i:i], entries[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Count returns the number of user listeners, for diagnostics.
func (r *ListenerRegistry) Count() int {
	n := 0
	for _, entries := range r.fragListeners {
		n += len(entries)
	}
	for _, entries := range r.attrListeners {
		n += len(entries)
	}
	return n
}

func (r *ListenerRegistry) dispatchFragment(frag Fragment, result FragmentState) {
	entries := r.fragListeners[reflect.TypeOf(frag)]
	if len(entries) == 0 {
		return
	}
	snapshot := make([]fragListenerEntry, len(entries))
	copy(snapshot, entries)
	for _, e := range snapshot {
		e.callback(frag, result)
	}
}

func (r *ListenerRegistry) dispatchCoreAttribute(frag Fragment, entity Entity, attr AttributeID, prev, now int) {
	for _, e := range r.coreAttr[attr] {
		e.callback(frag, entity, attr, prev, now)
	}
}

func (r *ListenerRegistry) dispatchAttribute(frag Fragment, entity Entity, attr AttributeID, prev, now int) {
	entries := r.attrListeners[attr]
	if len(entries) == 0 {
		return
	}
	snapshot := make([]attrListenerEntry, len(entries))
	copy(snapshot, entries)
	for _, e := range snapshot {
		e.callback(frag, entity, attr, prev, now)
	}
}

// ListenFragment registers a listener for fragments of concrete type T,
// for example *FragHurtEntity.
func ListenFragment[T Fragment](r *ListenerRegistry, callback func(frag T, result FragmentState)) ListenerHandle {
	return r.RegisterFragmentListener(reflect.TypeFor[T](), func(frag Fragment, result FragmentState) {
		callback(frag.(T), result)
	})
}
