// Package trajectory keeps the drawn trajectory in step with the latest frame
// received from the workstation, and keeps the operator's hover, selection and
// edit state attached to logical point indices across frame replacements.
//
// A Reconciler is owned by the render goroutine. Only LastView may be called
// from elsewhere.
package trajectory

import (
	"errors"
	"image/color"
	"sync/atomic"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/vrlink/internal/monitoring"
	"github.com/banshee-data/vrlink/internal/pool"
	"github.com/banshee-data/vrlink/internal/scene"
	"github.com/banshee-data/vrlink/internal/wire"
)

// None marks an unset hover or selection index.
const None = -1

const (
	lineThicknessFactor = 0.5
	lineLengthFactor    = 1.0
	axisThicknessFactor = 0.3
	axisLengthFactor    = 0.5
)

var (
	// ErrIndexOutOfRange is returned for an index outside the current frame.
	ErrIndexOutOfRange = errors.New("trajectory: point index out of range")
	// ErrNotEditing is returned by UpdateEdit without an active edit.
	ErrNotEditing = errors.New("trajectory: no edit in progress")
)

// Options configure a Reconciler.
type Options struct {
	Mode  Mode
	Space Space
	// Transform maps local poses into the aligned space in SpaceWorldAligned.
	// nil means identity.
	Transform scene.CoordinateTransform
	// WarmPoints pre-builds slots for a trajectory of this many points.
	WarmPoints int
	PointSize  float64
	AxisLength float64
	LineWidth  float64
	Metrics    *monitoring.Metrics
}

// Pose is a point's render-space position and rotation.
type Pose struct {
	Position r3.Vec
	Rotation quat.Number
}

type editState struct {
	active bool
	index  int
	pose   Pose
}

// Reconciler maps trajectory frames onto pooled point, line and axis slots.
type Reconciler struct {
	opts Options
	sink scene.Sink

	points *pool.Pool[*slot]
	lines  *pool.Pool[*slot]
	axes   *pool.Pool[*slot]

	// activePoints[i] draws logical index i.
	activePoints []*slot
	activeLines  []*slot
	activeAxes   []*slot
	poses        []Pose
	timestamp    float32

	selected int
	hovered  int
	edit     editState

	frames uint64
	view   atomic.Pointer[View]
}

// NewReconciler returns a reconciler drawing into sink.
func NewReconciler(sink scene.Sink, opts Options) *Reconciler {
	if opts.Transform == nil {
		opts.Transform = scene.Identity{}
	}
	if opts.Mode == ModeRebuild {
		opts.WarmPoints = 0
	}
	warm := max(opts.WarmPoints, 0)
	r := &Reconciler{
		opts:     opts,
		sink:     sink,
		points:   newSlotPool(scene.KindPoint, warm),
		lines:    newSlotPool(scene.KindLine, max(warm-1, 0)),
		axes:     newSlotPool(scene.KindAxis, 3*warm),
		selected: None,
		hovered:  None,
	}
	r.publish()
	return r
}

// Apply replaces the drawn trajectory with frame: it retires every active
// slot, draws N points, N-1 lines and 3N axes, then reapplies the hover and
// selection indices that are still in range.
func (r *Reconciler) Apply(frame wire.TrajectoryFrame) {
	r.retire()

	n := len(frame.Points)
	r.timestamp = frame.Timestamp
	r.poses = r.poses[:0]
	for _, p := range frame.Points {
		r.poses = append(r.poses, r.pose(p))
	}

	for i, pose := range r.poses {
		s := r.points.Acquire()
		s.index = i
		r.sink.Show(scene.Object{
			ID:     s.id,
			Kind:   scene.KindPoint,
			Parent: scene.ParentAligned,
			Transform: scene.Transform{
				Position: pose.Position,
				Rotation: pose.Rotation,
				Scale:    scene.Uniform(r.opts.PointSize),
			},
		})
		r.activePoints = append(r.activePoints, s)
	}

	for i := 0; i+1 < n; i++ {
		s := r.lines.Acquire()
		s.index = i
		r.sink.Show(scene.Object{
			ID:        s.id,
			Kind:      scene.KindLine,
			Parent:    scene.ParentAligned,
			Transform: scene.Segment(r.poses[i].Position, r.poses[i+1].Position, r.opts.LineWidth*lineThicknessFactor, lineLengthFactor),
		})
		r.activeLines = append(r.activeLines, s)
	}

	for i, pose := range r.poses {
		r.drawAxes(i, pose)
	}

	r.reapplySelection()
	r.frames++
	if r.opts.Metrics != nil {
		r.opts.Metrics.FramesReconciled.Inc()
	}
	r.publish()
}

// pointAxes are the local X, Y and Z axes drawn at every point.
var pointAxes = [3]struct {
	dir r3.Vec
	c   color.RGBA
}{
	{scene.Right, scene.Red},
	{scene.Up, scene.Green},
	{scene.Forward, scene.Blue},
}

func (r *Reconciler) drawAxes(i int, pose Pose) {
	for _, a := range pointAxes {
		s := r.axes.Acquire()
		s.index = i
		end := r3.Add(pose.Position, r3.Scale(r.opts.AxisLength, scene.Rotate(pose.Rotation, a.dir)))
		r.sink.Show(scene.Object{
			ID:        s.id,
			Kind:      scene.KindAxis,
			Parent:    scene.ParentAligned,
			Transform: scene.Segment(pose.Position, end, r.opts.LineWidth*axisThicknessFactor, axisLengthFactor),
		})
		r.sink.SetColor(s.id, a.c)
		r.activeAxes = append(r.activeAxes, s)
	}
}

// pose converts a received point to render space. Angles are degrees.
func (r *Reconciler) pose(p wire.TrajectoryPoint) Pose {
	pos := r3.Vec{X: float64(p.X), Y: float64(p.Y), Z: float64(p.Z)}
	rot := scene.Euler(float64(p.Pitch), float64(p.Yaw), float64(p.Roll))
	if r.opts.Space == SpaceWorldAligned {
		pos, rot = r.opts.Transform.ToReferenceSpace(pos, rot)
	}
	return Pose{Position: pos, Rotation: rot}
}

// retire returns every active slot to its pool, or destroys it in
// ModeRebuild.
func (r *Reconciler) retire() {
	r.retireAll(r.activePoints, r.points)
	r.retireAll(r.activeLines, r.lines)
	r.retireAll(r.activeAxes, r.axes)
	r.activePoints = r.activePoints[:0]
	r.activeLines = r.activeLines[:0]
	r.activeAxes = r.activeAxes[:0]
}

func (r *Reconciler) retireAll(active []*slot, p *pool.Pool[*slot]) {
	for i, s := range active {
		active[i] = nil
		if r.opts.Mode == ModeRebuild {
			r.sink.Destroy(s.id)
			continue
		}
		if s.highlight != scene.HighlightNormal {
			r.sink.SetHighlight(s.id, scene.HighlightNormal)
			s.highlight = scene.HighlightNormal
		}
		r.sink.Hide(s.id)
		s.index = -1
		p.Release(s)
	}
}

// Counts returns the number of active point, line and axis slots.
func (r *Reconciler) Counts() (points, lines, axes int) {
	return len(r.activePoints), len(r.activeLines), len(r.activeAxes)
}

// Len returns the number of points in the current frame.
func (r *Reconciler) Len() int { return len(r.activePoints) }

// PointPose returns the render-space pose of logical index i.
func (r *Reconciler) PointPose(i int) (Pose, bool) {
	if i < 0 || i >= len(r.poses) {
		return Pose{}, false
	}
	return r.poses[i], true
}

// PoolSizes reports how many point, line and axis slots have ever been built.
func (r *Reconciler) PoolSizes() (points, lines, axes int) {
	return r.points.Created(), r.lines.Created(), r.axes.Created()
}

// Frames returns the number of frames applied.
func (r *Reconciler) Frames() uint64 { return r.frames }
