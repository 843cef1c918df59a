package trajectory

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/vrlink/internal/scene"
	"github.com/banshee-data/vrlink/internal/wire"
)

// Selected returns the selected index, or None.
func (r *Reconciler) Selected() int { return r.selected }

// Hovered returns the hovered index, or None.
func (r *Reconciler) Hovered() int { return r.hovered }

// SetHovered sets or clears the hover on index. Out-of-range indices and
// calls that would not change the state are ignored. It reports whether the
// state changed.
func (r *Reconciler) SetHovered(index int, on bool) bool {
	if !r.inRange(index) {
		return false
	}
	switch {
	case on && r.hovered != index:
		prev := r.hovered
		r.hovered = index
		r.refresh(prev)
		r.refresh(index)
	case !on && r.hovered == index:
		r.hovered = None
		r.refresh(index)
	default:
		return false
	}
	r.publish()
	return true
}

// SetSelected sets or clears the selection on index, with the same rules as
// SetHovered. Moving the selection away from a point being edited cancels the
// edit.
func (r *Reconciler) SetSelected(index int, on bool) bool {
	if !r.inRange(index) {
		return false
	}
	switch {
	case on && r.selected != index:
		prev := r.selected
		r.selected = index
		r.refresh(prev)
		r.refresh(index)
	case !on && r.selected == index:
		r.selected = None
		r.refresh(index)
	default:
		return false
	}
	if r.edit.active && r.edit.index != r.selected {
		r.edit = editState{}
	}
	r.publish()
	return true
}

// ClearAllStates drops hover, selection and any edit in progress.
func (r *Reconciler) ClearAllStates() {
	hovered, selected := r.hovered, r.selected
	r.hovered, r.selected = None, None
	r.edit = editState{}
	r.refresh(hovered)
	r.refresh(selected)
	r.publish()
}

func (r *Reconciler) inRange(index int) bool {
	return index >= 0 && index < len(r.activePoints)
}

// reapplySelection runs after a frame replace. Indices past the new frame are
// cleared, never wrapped.
func (r *Reconciler) reapplySelection() {
	if !r.inRange(r.selected) {
		r.selected = None
	}
	if !r.inRange(r.hovered) {
		r.hovered = None
	}
	if r.edit.active && !r.inRange(r.edit.index) {
		r.edit = editState{}
	}
	r.refresh(r.selected)
	r.refresh(r.hovered)
}

// refresh brings the slot at index to the highlight the current state asks
// for, calling the sink only on a change.
func (r *Reconciler) refresh(index int) {
	if !r.inRange(index) {
		return
	}
	want := scene.HighlightNormal
	switch index {
	case r.selected:
		want = scene.HighlightSelected
	case r.hovered:
		want = scene.HighlightHovered
	}
	s := r.activePoints[index]
	if s.highlight == want {
		return
	}
	s.highlight = want
	r.sink.SetHighlight(s.id, want)
}

// Highlight returns the highlight drawn on logical index i.
func (r *Reconciler) Highlight(i int) scene.Highlight {
	if !r.inRange(i) {
		return scene.HighlightNormal
	}
	return r.activePoints[i].highlight
}

// BeginEdit starts dragging the point at index, selecting it.
func (r *Reconciler) BeginEdit(index int) error {
	if !r.inRange(index) {
		return ErrIndexOutOfRange
	}
	r.edit = editState{active: true, index: index, pose: r.poses[index]}
	r.SetSelected(index, true)
	r.publish()
	return nil
}

// UpdateEdit moves the point being edited to pose.
func (r *Reconciler) UpdateEdit(position r3.Vec, rotation quat.Number) error {
	if !r.edit.active {
		return ErrNotEditing
	}
	r.edit.pose = Pose{Position: position, Rotation: scene.Normalize(rotation)}
	s := r.activePoints[r.edit.index]
	r.sink.Show(scene.Object{
		ID:     s.id,
		Kind:   scene.KindPoint,
		Parent: scene.ParentAligned,
		Transform: scene.Transform{
			Position: r.edit.pose.Position,
			Rotation: r.edit.pose.Rotation,
			Scale:    scene.Uniform(r.opts.PointSize),
		},
	})
	r.publish()
	return nil
}

// EndEdit finishes the edit. The selection stays.
func (r *Reconciler) EndEdit() {
	if !r.edit.active {
		return
	}
	r.edit = editState{}
	r.publish()
}

// Editing reports whether an edit is in progress and on which index.
func (r *Reconciler) Editing() (int, bool) {
	if !r.edit.active {
		return None, false
	}
	return r.edit.index, true
}

// EditSnapshot returns the operator's trajectory interaction as sent to the
// workstation. The quaternion is w, x, y, z.
func (r *Reconciler) EditSnapshot() wire.TrajectoryEdit {
	te := wire.TrajectoryEdit{SelectedPointIndex: int32(r.selected)}
	if !r.edit.active {
		return te
	}
	p, q := r.edit.pose.Position, r.edit.pose.Rotation
	te.IsEditing = true
	te.EditedPointPos = [3]float32{float32(p.X), float32(p.Y), float32(p.Z)}
	te.EditedPointQuat = [4]float32{float32(q.Real), float32(q.Imag), float32(q.Jmag), float32(q.Kmag)}
	return te
}
