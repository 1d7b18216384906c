package dailyentry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mamadbah2/flockbook/internal/domain/models"
)

// FormRegistry keeps the open forms of all users.
type FormRegistry struct {
	coord *Coordinator
	forms map[string]*Form
	mu    sync.RWMutex
	opts  []FormOption
}

// NewFormRegistry creates an empty registry whose forms share coord.
func NewFormRegistry(coord *Coordinator, opts ...FormOption) *FormRegistry {
	return &FormRegistry{
		coord: coord,
		forms: make(map[string]*Form),
		opts:  opts,
	}
}

// Create opens an idle form for a lot and metric.
func (r *FormRegistry) Create(lotID string, metric models.MetricKind) *Form {
	form := NewForm(uuid.NewString(), lotID, metric, r.coord, r.opts...)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forms[form.ID()] = form
	return form
}

// Get retrieves a form by id.
func (r *FormRegistry) Get(id string) (*Form, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	form, ok := r.forms[id]
	return form, ok
}

// Delete closes a form.
func (r *FormRegistry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.forms[id]; !ok {
		return false
	}
	delete(r.forms, id)
	return true
}

// Len returns the number of open forms.
func (r *FormRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.forms)
}

// Sweep closes forms unused for longer than idle and returns how many were
// closed. Forms with a load or write in progress are kept.
func (r *FormRegistry) Sweep(now time.Time, idle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	closed := 0
	for id, form := range r.forms {
		if form.Busy() {
			continue
		}
		if now.Sub(form.LastActive()) > idle {
			delete(r.forms, id)
			closed++
		}
	}
	return closed
}
