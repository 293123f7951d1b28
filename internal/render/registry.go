package render

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	ErrUnknownRole = errors.New("unknown element role")
	ErrEmptyCoinID = errors.New("coin id is empty")
)

type Role string

const (
	RolePrice     Role = "price"
	RoleChange    Role = "change"
	RoleMarketCap Role = "market_cap"
	RoleVolume    Role = "volume"
)

const (
	ClassSuccess = "text-success"
	ClassDanger  = "text-danger"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RolePrice, RoleChange, RoleMarketCap, RoleVolume:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Element is one display target bound to a coin id.
type Element struct {
	ID     string
	CoinID string
	Role   Role

	mu      sync.Mutex
	text    string
	class   string
	loading bool
}

// ElementView is a point-in-time copy of an Element.
type ElementView struct {
	ID      string `json:"id"`
	CoinID  string `json:"coin_id"`
	Role    Role   `json:"role"`
	Text    string `json:"text"`
	Class   string `json:"class,omitempty"`
	Loading bool   `json:"loading"`
}

func (e *Element) View() ElementView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ElementView{
		ID:      e.ID,
		CoinID:  e.CoinID,
		Role:    e.Role,
		Text:    e.text,
		Class:   e.class,
		Loading: e.loading,
	}
}

func (e *Element) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

func (e *Element) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// Registry maps coin ids to the elements displaying them. It is maintained
// incrementally as elements come and go.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Element
	byCoin map[string]map[string]*Element
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[string]*Element),
		byCoin: make(map[string]map[string]*Element),
	}
}

func (r *Registry) Register(coinID string, role Role) (*Element, error) {
	coinID = strings.ToLower(strings.TrimSpace(coinID))
	if coinID == "" {
		return nil, ErrEmptyCoinID
	}
	if role != RolePrice && role != RoleChange {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, role)
	}
	el := &Element{ID: uuid.NewString(), CoinID: coinID, Role: role}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[el.ID] = el
	set, ok := r.byCoin[coinID]
	if !ok {
		set = make(map[string]*Element)
		r.byCoin[coinID] = set
	}
	set[el.ID] = el
	return el, nil
}

func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	el, ok := r.byID[id]
	if !ok {
		return false
	}
	delete(r.byID, id)
	if set := r.byCoin[el.CoinID]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byCoin, el.CoinID)
		}
	}
	return true
}

func (r *Registry) Get(id string) (*Element, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	el, ok := r.byID[id]
	return el, ok
}

// CoinIDs returns every coin id with at least one element, sorted.
func (r *Registry) CoinIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byCoin))
	for id := range r.byCoin {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) ElementsFor(coinID string) []*Element {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byCoin[coinID]
	out := make([]*Element, 0, len(set))
	for _, el := range set {
		out = append(out, el)
	}
	sortElements(out)
	return out
}

func (r *Registry) Elements() []*Element {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Element, 0, len(r.byID))
	for _, el := range r.byID {
		out = append(out, el)
	}
	sortElements(out)
	return out
}

func (r *Registry) Views() []ElementView {
	els := r.Elements()
	out := make([]ElementView, 0, len(els))
	for _, el := range els {
		out = append(out, el.View())
	}
	return out
}

func sortElements(els []*Element) {
	sort.Slice(els, func(i, j int) bool {
		if els[i].CoinID != els[j].CoinID {
			return els[i].CoinID < els[j].CoinID
		}
		if els[i].Role != els[j].Role {
			return els[i].Role < els[j].Role
		}
		return els[i].ID < els[j].ID
	})
}
