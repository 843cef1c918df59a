package trajectory

import "fmt"

// Mode selects how visual slots are recycled between frames.
type Mode int

const (
	// ModePooled hides slots and returns them to their pools on every frame.
	ModePooled Mode = iota
	// ModeRebuild destroys every slot and constructs fresh ones per frame.
	ModeRebuild
)

func (m Mode) String() string {
	if m == ModeRebuild {
		return "rebuild"
	}
	return "pooled"
}

// ParseMode accepts "pooled" (or "") and "rebuild".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "pooled":
		return ModePooled, nil
	case "rebuild":
		return ModeRebuild, nil
	}
	return 0, fmt.Errorf("unknown visual mode %q", s)
}

// Space selects the coordinate space points are drawn in.
type Space int

const (
	// SpaceLocal draws the sender-local coordinates as received.
	SpaceLocal Space = iota
	// SpaceWorldAligned maps every pose through the coordinate transform.
	SpaceWorldAligned
)

func (s Space) String() string {
	if s == SpaceWorldAligned {
		return "world"
	}
	return "local"
}

// ParseSpace accepts "local" (or "") and "world".
func ParseSpace(s string) (Space, error) {
	switch s {
	case "", "local":
		return SpaceLocal, nil
	case "world":
		return SpaceWorldAligned, nil
	}
	return 0, fmt.Errorf("unknown visual space %q", s)
}
