// Package telemetry draws the non-trajectory streams: robot tool poses,
// tactile deformation arrows, force arrows and camera image panels. It also
// keeps the recent workstation log lines.
//
// Update methods run on the render goroutine. Summary and Logs may be called
// from anywhere.
package telemetry

import (
	"image/color"
	"sort"
	"sync/atomic"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/vrlink/internal/pool"
	"github.com/banshee-data/vrlink/internal/scene"
	"github.com/banshee-data/vrlink/internal/wire"
)

// Palette is the pair of colors an arrow is interpolated between, from no
// deformation to full deformation.
type Palette [2]color.RGBA

var (
	// DefaultPrimary is used for devices whose ID ends in "1".
	DefaultPrimary = Palette{{R: 0x20, G: 0x80, B: 0xff, A: 0xff}, {R: 0xff, G: 0x40, B: 0x40, A: 0xff}}
	// DefaultSecondary is used for every other device.
	DefaultSecondary = Palette{{R: 0x20, G: 0xe0, B: 0x80, A: 0xff}, {R: 0xff, G: 0xc0, B: 0x20, A: 0xff}}
)

// Options configure a Visualizer.
type Options struct {
	Primary   Palette
	Secondary Palette
	// WarmArrows pre-builds tactile arrow objects.
	WarmArrows int
	// LogLines bounds the log ring; 0 uses DefaultLogLines.
	LogLines int
}

// Visualizer owns every telemetry object in the scene.
type Visualizer struct {
	opts Options
	sink scene.Sink

	leftTCP, rightTCP     scene.ObjectID
	leftForce, rightForce scene.ObjectID
	grippers              [2][]float32

	arrowPool *pool.Pool[scene.ObjectID]
	arrows    map[string][]scene.ObjectID
	images    map[string]scene.ObjectID

	logs    *LogRing
	summary atomic.Pointer[Summary]
	updates Counts
}

// Counts tallies the updates applied per stream.
type Counts struct {
	Poses  uint64 `json:"poses"`
	Arrows uint64 `json:"arrows"`
	Forces uint64 `json:"forces"`
	Images uint64 `json:"images"`
	Logs   uint64 `json:"logs"`
}

// Summary is an immutable snapshot of the telemetry scene for the monitor.
type Summary struct {
	Updates        Counts         `json:"updates"`
	ArrowsByDevice map[string]int `json:"arrows_by_device"`
	Images         []string       `json:"images"`
	LeftGripper    []float32      `json:"left_gripper,omitempty"`
	RightGripper   []float32      `json:"right_gripper,omitempty"`
	ArrowObjects   int            `json:"arrow_objects"`
}

// NewVisualizer returns a visualizer drawing into sink. Zero palettes select
// the defaults.
func NewVisualizer(sink scene.Sink, opts Options) *Visualizer {
	if opts.Primary == (Palette{}) {
		opts.Primary = DefaultPrimary
	}
	if opts.Secondary == (Palette{}) {
		opts.Secondary = DefaultSecondary
	}
	v := &Visualizer{
		opts:       opts,
		sink:       sink,
		leftTCP:    scene.NewObjectID(),
		rightTCP:   scene.NewObjectID(),
		leftForce:  scene.NewObjectID(),
		rightForce: scene.NewObjectID(),
		arrowPool:  pool.New(opts.WarmArrows, scene.NewObjectID),
		arrows:     make(map[string][]scene.ObjectID),
		images:     make(map[string]scene.ObjectID),
		logs:       NewLogRing(opts.LogLines),
	}
	v.publish()
	return v
}

// UpdateRobot places both tool-centre points. Each array is x, y, z, then the
// quaternion w, x, y, z.
func (v *Visualizer) UpdateRobot(m wire.PoseMessage) {
	v.sink.Show(tcpObject(v.leftTCP, m.LeftRobotTCP))
	v.sink.Show(tcpObject(v.rightTCP, m.RightRobotTCP))
	v.grippers[0] = append(v.grippers[0][:0], m.LeftGripperState...)
	v.grippers[1] = append(v.grippers[1][:0], m.RightGripperState...)
	v.updates.Poses++
	v.publish()
}

func tcpObject(id scene.ObjectID, p []float32) scene.Object {
	return scene.Object{
		ID:     id,
		Kind:   scene.KindRobotTCP,
		Parent: scene.ParentAligned,
		Transform: scene.Transform{
			Position: vec3(p),
			Rotation: scene.Normalize(quat.Number{
				Real: float64(p[3]),
				Imag: float64(p[4]),
				Jmag: float64(p[5]),
				Kmag: float64(p[6]),
			}),
			Scale: scene.Uniform(1),
		},
	}
}

// UpdateForce draws a force sensor's arrow. Device "left" drives the left
// arrow; any other device the right one.
func (v *Visualizer) UpdateForce(m wire.ForceMessage) {
	id := v.rightForce
	if m.DeviceID == "left" {
		id = v.leftForce
	}
	obj, _ := arrowObject(id, scene.KindForceArrow, "", m.Arrow, m.Scale)
	v.sink.Show(obj)
	v.updates.Forces++
	v.publish()
}

// UpdateArrows draws one tactile sensor's deformation field. The device's
// arrow set grows from the pool on demand; surplus arrows go back to it.
func (v *Visualizer) UpdateArrows(m wire.SensorMessage) {
	ids := v.arrows[m.DeviceID]
	for len(ids) < len(m.Arrows) {
		ids = append(ids, v.arrowPool.Acquire())
	}
	for _, id := range ids[len(m.Arrows):] {
		v.sink.Hide(id)
		v.arrowPool.Release(id)
	}
	ids = ids[:len(m.Arrows)]
	v.arrows[m.DeviceID] = ids

	palette := v.opts.Secondary
	if len(m.DeviceID) > 0 && m.DeviceID[len(m.DeviceID)-1] == '1' {
		palette = v.opts.Primary
	}
	for i, a := range m.Arrows {
		obj, length := arrowObject(ids[i], scene.KindTactileArrow, m.DeviceID, a, m.Scale)
		v.sink.Show(obj)
		v.sink.SetColor(ids[i], ArrowColor(palette, length))
	}
	v.updates.Arrows++
	v.publish()
}

// arrowObject places an arrow at its end point, pointing back at its start,
// with the shaft stretched to the arrow length. It also returns that length.
func arrowObject(id scene.ObjectID, kind scene.Kind, anchor string, a wire.Arrow, scale []float32) (scene.Object, float64) {
	start, end := vec3(a.Start), vec3(a.End)
	length := r3.Norm(r3.Sub(end, start))
	return scene.Object{
		ID:     id,
		Kind:   kind,
		Parent: scene.ParentAligned,
		Anchor: anchor,
		Transform: scene.Transform{
			Position: end,
			Rotation: scene.LookAt(end, start),
			Scale:    r3.Vec{X: float64(scale[1]), Y: length, Z: float64(scale[2])},
		},
		HeadScale: float64(scale[0]),
	}, length
}

// ArrowColor interpolates palette by five times the arrow length, clamped to
// [0, 1], and drops the two low bits of each channel so nearby lengths share a
// color.
func ArrowColor(p Palette, length float64) color.RGBA {
	t := min(max(length*5, 0), 1)
	lerp := func(a, b uint8) uint8 {
		return uint8(float64(a)+(float64(b)-float64(a))*t) & 0xFC
	}
	return color.RGBA{
		R: lerp(p[0].R, p[1].R),
		G: lerp(p[0].G, p[1].G),
		B: lerp(p[0].B, p[1].B),
		A: uint8(float64(p[0].A) + (float64(p[1].A)-float64(p[0].A))*t),
	}
}

// UpdateImages re-poses and re-textures every image panel in m, creating
// panels on first sight of an ID.
func (v *Visualizer) UpdateImages(m wire.ImageMessage) {
	for _, img := range m.Images {
		id, ok := v.images[img.ID]
		if !ok {
			id = scene.NewObjectID()
			v.images[img.ID] = id
		}
		v.sink.Show(scene.Object{
			ID:     id,
			Kind:   scene.KindImagePanel,
			Parent: imageParent(img),
			Anchor: img.ID,
			Transform: scene.Transform{
				Position: vec3(img.Position),
				Rotation: scene.Euler(float64(img.Rotation[0]), float64(img.Rotation[1]), float64(img.Rotation[2])),
				Scale:    vec3(img.Scale),
			},
		})
		v.sink.SetTexture(id, img.Image)
	}
	v.updates.Images++
	v.publish()
}

// imageParent puts head-space panels on one eye's layer; leftOrRight selects
// the right eye.
func imageParent(img wire.Image) scene.Parent {
	switch {
	case !img.InHeadSpace:
		return scene.ParentAligned
	case img.LeftOrRight:
		return scene.ParentHeadRightEye
	default:
		return scene.ParentHeadLeftEye
	}
}

// ClearImages destroys every image panel.
func (v *Visualizer) ClearImages() {
	for name, id := range v.images {
		v.sink.Destroy(id)
		delete(v.images, name)
	}
	v.publish()
}

// AppendLog records a workstation log line.
func (v *Visualizer) AppendLog(m wire.LogMessage) {
	v.logs.Add(m.Text)
	v.updates.Logs++
	v.publish()
}

// Logs returns the retained log lines, oldest first.
func (v *Visualizer) Logs() []string { return v.logs.Lines() }

// Summary returns the snapshot published after the latest update.
func (v *Visualizer) Summary() *Summary { return v.summary.Load() }

func (v *Visualizer) publish() {
	s := &Summary{
		Updates:        v.updates,
		ArrowsByDevice: make(map[string]int, len(v.arrows)),
		Images:         make([]string, 0, len(v.images)),
		LeftGripper:    append([]float32(nil), v.grippers[0]...),
		RightGripper:   append([]float32(nil), v.grippers[1]...),
		ArrowObjects:   v.arrowPool.Created(),
	}
	for dev, ids := range v.arrows {
		s.ArrowsByDevice[dev] = len(ids)
	}
	for name := range v.images {
		s.Images = append(s.Images, name)
	}
	sort.Strings(s.Images)
	v.summary.Store(s)
}

func vec3(f []float32) r3.Vec {
	return r3.Vec{X: float64(f[0]), Y: float64(f[1]), Z: float64(f[2])}
}
