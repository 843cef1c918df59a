package scene

import (
	"image/color"
	"sort"
	"sync"
)

// RecordedObject is the state of one object as last applied to a Recorder.
type RecordedObject struct {
	Object
	Active    bool
	Highlight Highlight
	Color     color.RGBA
	HasColor  bool
	Texture   []byte
}

// CallCounts tallies the Sink calls a Recorder has received.
type CallCounts struct {
	Show      int
	Hide      int
	Destroy   int
	Highlight int
	Color     int
	Texture   int
}

// Recorder is a Sink that keeps the scene in memory. It is safe for a reader
// (the monitor) to inspect it while the render loop writes.
type Recorder struct {
	mu      sync.RWMutex
	objects map[ObjectID]*RecordedObject
	calls   CallCounts
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{objects: make(map[ObjectID]*RecordedObject)}
}

func (r *Recorder) Show(obj Object) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.Show++
	rec, ok := r.objects[obj.ID]
	if !ok {
		rec = &RecordedObject{}
		r.objects[obj.ID] = rec
	}
	rec.Object = obj
	rec.Active = true
}

func (r *Recorder) Hide(id ObjectID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.Hide++
	if rec, ok := r.objects[id]; ok {
		rec.Active = false
	}
}

func (r *Recorder) Destroy(id ObjectID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.Destroy++
	delete(r.objects, id)
}

func (r *Recorder) SetHighlight(id ObjectID, h Highlight) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.Highlight++
	if rec, ok := r.objects[id]; ok {
		rec.Highlight = h
	}
}

func (r *Recorder) SetColor(id ObjectID, c color.RGBA) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.Color++
	if rec, ok := r.objects[id]; ok {
		rec.Color = c
		rec.HasColor = true
	}
}

func (r *Recorder) SetTexture(id ObjectID, encoded []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls.Texture++
	if rec, ok := r.objects[id]; ok {
		rec.Texture = append(rec.Texture[:0], encoded...)
	}
}

// Object returns a copy of the recorded state for id.
func (r *Recorder) Object(id ObjectID) (RecordedObject, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.objects[id]
	if !ok {
		return RecordedObject{}, false
	}
	return *rec, true
}

// Active returns copies of every visible object of the given kind, ordered by ID
// so repeated calls are stable.
func (r *Recorder) Active(kind Kind) []RecordedObject {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []RecordedObject
	for _, rec := range r.objects {
		if rec.Active && rec.Kind == kind {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// ActiveCount returns the number of visible objects of the given kind.
func (r *Recorder) ActiveCount(kind Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rec := range r.objects {
		if rec.Active && rec.Kind == kind {
			n++
		}
	}
	return n
}

// Len returns the number of objects that exist, visible or not.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}

// Calls returns the call tallies.
func (r *Recorder) Calls() CallCounts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.calls
}
