package relay

// CanvasHistory keeps the strokes drawn in each room since the last clear.
// Nothing is persisted; a restart starts every whiteboard blank.
// It is not safe for concurrent use; the Relay serializes access.
type CanvasHistory struct {
	rooms map[int64][]Stroke
}

// NewCanvasHistory creates an empty history.
func NewCanvasHistory() *CanvasHistory {
	return &CanvasHistory{rooms: make(map[int64][]Stroke)}
}

// Append adds a stroke to the end of the room's history.
func (c *CanvasHistory) Append(roomID int64, s Stroke) {
	c.rooms[roomID] = append(c.rooms[roomID], s)
}

// Clear empties the room's history.
func (c *CanvasHistory) Clear(roomID int64) {
	delete(c.rooms, roomID)
}

// Snapshot returns the room's strokes in append order, never nil.
func (c *CanvasHistory) Snapshot(roomID int64) []Stroke {
	strokes := c.rooms[roomID]
	out := make([]Stroke, len(strokes))
	copy(out, strokes)
	return out
}

// Len returns the number of strokes stored for the room.
func (c *CanvasHistory) Len(roomID int64) int {
	return len(c.rooms[roomID])
}
