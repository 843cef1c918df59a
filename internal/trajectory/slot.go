package trajectory

import (
	"github.com/banshee-data/vrlink/internal/pool"
	"github.com/banshee-data/vrlink/internal/scene"
)

// slot is a pooled visual object. index is the logical trajectory index the
// slot currently draws, or -1 while it sits in its pool.
type slot struct {
	id        scene.ObjectID
	kind      scene.Kind
	index     int
	highlight scene.Highlight
}

func newSlotPool(kind scene.Kind, warm int) *pool.Pool[*slot] {
	return pool.New(warm, func() *slot {
		return &slot{id: scene.NewObjectID(), kind: kind, index: -1}
	})
}
