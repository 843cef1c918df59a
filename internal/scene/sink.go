package scene

import (
	"image/color"

	"github.com/google/uuid"
)

// ObjectID identifies a visual object for its whole lifetime, across any
// number of Show/Hide cycles.
type ObjectID = uuid.UUID

// NewObjectID returns a fresh random ID.
func NewObjectID() ObjectID { return uuid.New() }

// Kind is the primitive a visual object is drawn with.
type Kind int

const (
	KindPoint Kind = iota
	KindLine
	KindAxis
	KindRobotTCP
	KindTactileArrow
	KindForceArrow
	KindImagePanel
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindLine:
		return "line"
	case KindAxis:
		return "axis"
	case KindRobotTCP:
		return "robot_tcp"
	case KindTactileArrow:
		return "tactile_arrow"
	case KindForceArrow:
		return "force_arrow"
	case KindImagePanel:
		return "image_panel"
	default:
		return "unknown"
	}
}

// Parent is the space an object is attached to.
type Parent int

const (
	// ParentAligned is the calibrated reference space shared with the robot.
	ParentAligned Parent = iota
	// ParentHeadLeftEye and ParentHeadRightEye follow the headset on one
	// eye's layer.
	ParentHeadLeftEye
	ParentHeadRightEye
)

// Highlight is the interaction state drawn on a trajectory point.
type Highlight int

const (
	HighlightNormal Highlight = iota
	HighlightHovered
	HighlightSelected
)

func (h Highlight) String() string {
	switch h {
	case HighlightHovered:
		return "hovered"
	case HighlightSelected:
		return "selected"
	default:
		return "normal"
	}
}

// Object describes a visual object to show.
type Object struct {
	ID     ObjectID
	Kind   Kind
	Parent Parent
	// Anchor names a mount point under Parent, such as a tactile sensor's
	// device ID. Empty means the parent itself.
	Anchor    string
	Transform Transform
	// HeadScale is the uniform scale of an arrow's head; Transform scales the
	// shaft. Unused for other kinds.
	HeadScale float64
}

// Common colors.
var (
	White = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	Red   = color.RGBA{R: 0xff, A: 0xff}
	Green = color.RGBA{G: 0xff, A: 0xff}
	Blue  = color.RGBA{B: 0xff, A: 0xff}
)

// Sink applies visual changes to a scene. Implementations are called from the
// render loop only and need not be safe for concurrent use by the pipeline.
type Sink interface {
	// Show creates the object if needed, places it and makes it visible.
	Show(obj Object)
	// Hide makes the object invisible but keeps it for reuse.
	Hide(id ObjectID)
	// Destroy releases the object.
	Destroy(id ObjectID)
	SetHighlight(id ObjectID, h Highlight)
	SetColor(id ObjectID, c color.RGBA)
	// SetTexture replaces the object's texture with an encoded image (PNG/JPEG).
	SetTexture(id ObjectID, encoded []byte)
}
