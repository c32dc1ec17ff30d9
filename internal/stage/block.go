package stage

import (
	"github.com/evsieve/evsieve/internal/event"
	"github.com/evsieve/evsieve/internal/key"
)

// Block implements spec.md §4.5: "Block [predicate…]". Drops events
// matching any predicate; with zero predicates, drops everything.
type Block struct {
	Predicates []key.Predicate
}

func NewBlock(preds []key.Predicate) *Block { return &Block{Predicates: preds} }

func (b *Block) Name() string { return "block" }

func (b *Block) Process(rt Runtime, e event.Event) []event.Event {
	if len(b.Predicates) == 0 {
		return nil
	}
	for _, p := range b.Predicates {
		if p.Matches(e, rt.Tracker()) {
			return nil
		}
	}
	return []event.Event{e}
}
