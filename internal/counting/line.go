package counting

// Orientation names which side change counts as an entry
const (
	OrientationLeftToRight = "leftToRight"
	OrientationRightToLeft = "rightToLeft"
)

// Line is a crossing line in frame coordinates
type Line struct {
	X1, Y1, X2, Y2 float64
}

// SideOfLine reports which side of the line the point lies on using
// the cross product of the line vector and the point offset. The sign
// is stable for a given line; 0 means the point is on the line.
func (l Line) SideOfLine(px, py float64) int {
	vx := l.X2 - l.X1
	vy := l.Y2 - l.Y1
	dx := px - l.X1
	dy := py - l.Y1

	cross := vx*dy - vy*dx
	switch {
	case cross > 0:
		return 1
	case cross < 0:
		return -1
	default:
		return 0
	}
}

// EventKind tags the outcome of a crossing evaluation
type EventKind int

const (
	NoEvent EventKind = iota
	Entry
	Exit
)

func (k EventKind) String() string {
	switch k {
	case Entry:
		return "entry"
	case Exit:
		return "exit"
	default:
		return "none"
	}
}
