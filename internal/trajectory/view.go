package trajectory

// PointView is one drawn point as seen by the monitor.
type PointView struct {
	Index     int     `json:"index"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Highlight string  `json:"highlight"`
}

// View is an immutable copy of the reconciler state, safe to read from any
// goroutine.
type View struct {
	Frame     uint64      `json:"frame"`
	Timestamp float32     `json:"timestamp"`
	Mode      string      `json:"mode"`
	Space     string      `json:"space"`
	Points    []PointView `json:"points"`
	Lines     int         `json:"lines"`
	Axes      int         `json:"axes"`
	Selected  int         `json:"selected"`
	Hovered   int         `json:"hovered"`
	Editing   bool        `json:"editing"`
	EditIndex int         `json:"edit_index"`
	PoolSizes [3]int      `json:"pool_sizes"`
}

// LastView returns the state published after the most recent change.
func (r *Reconciler) LastView() *View {
	return r.view.Load()
}

func (r *Reconciler) publish() {
	v := &View{
		Frame:     r.frames,
		Timestamp: r.timestamp,
		Mode:      r.opts.Mode.String(),
		Space:     r.opts.Space.String(),
		Points:    make([]PointView, len(r.activePoints)),
		Lines:     len(r.activeLines),
		Axes:      len(r.activeAxes),
		Selected:  r.selected,
		Hovered:   r.hovered,
		EditIndex: None,
	}
	for i, s := range r.activePoints {
		p := r.poses[i].Position
		v.Points[i] = PointView{Index: i, X: p.X, Y: p.Y, Z: p.Z, Highlight: s.highlight.String()}
	}
	if idx, ok := r.Editing(); ok {
		v.Editing, v.EditIndex = true, idx
	}
	v.PoolSizes[0], v.PoolSizes[1], v.PoolSizes[2] = r.PoolSizes()
	r.view.Store(v)
}
