package bot

import (
	"sort"
	"sync"
	"time"
)

// References keeps the latest conversation reference per conversation id.
// Entries live in process memory and are rebuilt as activities arrive.
type References struct {
	mu   sync.RWMutex
	refs map[string]ConversationReference
	now  func() time.Time
}

func NewReferences() *References {
	return &References{refs: make(map[string]ConversationReference), now: time.Now}
}

// Remember stores the activity's reference and reports whether it had one.
func (r *References) Remember(a *Activity) bool {
	ref, ok := a.Reference(r.now().UTC())
	if !ok {
		return false
	}
	r.mu.Lock()
	r.refs[ref.ConversationID] = ref
	r.mu.Unlock()
	return true
}

func (r *References) Get(conversationID string) (ConversationReference, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ref, ok := r.refs[conversationID]
	return ref, ok
}

func (r *References) Has(conversationID string) bool {
	_, ok := r.Get(conversationID)
	return ok
}

// Remove forgets a conversation and reports whether it was known.
func (r *References) Remove(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.refs[conversationID]; !ok {
		return false
	}
	delete(r.refs, conversationID)
	return true
}

// IDs returns the known conversation ids in lexical order.
func (r *References) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.refs))
	for id := range r.refs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *References) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.refs)
}
