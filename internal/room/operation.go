package room

// Tool selects how a stroke is composited onto the canvas
type Tool string

const (
	ToolPaint Tool = "paint"
	ToolErase Tool = "erase"
)

// ParseTool accepts both the short tool names and the canvas composite
// operation names browsers send. Anything else paints.
func ParseTool(s string) Tool {
	switch s {
	case "erase", "eraser", "destination-out":
		return ToolErase
	default:
		return ToolPaint
	}
}

// OpType tags the variant of an Operation
type OpType string

const (
	OpStroke OpType = "draw"
	OpClear  OpType = "clear"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// A committed drawing action. Immutable once appended to a Log.
type Operation struct {
	ID       string  `json:"id"`
	Type     OpType  `json:"type"`
	Tool     Tool    `json:"tool,omitempty"`
	Color    string  `json:"color,omitempty"`
	Width    float64 `json:"width,omitempty"`
	Points   []Point `json:"points,omitempty"`
	AuthorID string  `json:"authorId"`
}

func NewStroke(id, authorID string, tool Tool, color string, width float64, points []Point) Operation {
	return Operation{
		ID:       id,
		Type:     OpStroke,
		Tool:     tool,
		Color:    color,
		Width:    width,
		Points:   points,
		AuthorID: authorID,
	}
}

func NewClear(id, authorID string) Operation {
	return Operation{
		ID:       id,
		Type:     OpClear,
		AuthorID: authorID,
	}
}
