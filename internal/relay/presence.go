package relay

// Member is one presence entry. ConnID ties the entry to the connection
// that registered it so a dropped socket can be cleaned up.
type Member struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	ConnID string `json:"-"`
}

// PresenceTable maps a room to the users currently connected to it.
// It is not safe for concurrent use; the Relay serializes access.
type PresenceTable struct {
	rooms map[int64][]Member
}

// NewPresenceTable creates an empty table.
func NewPresenceTable() *PresenceTable {
	return &PresenceTable{rooms: make(map[int64][]Member)}
}

// Register adds m to the room unless a member with the same user id is
// already there, in which case only its connection handle is refreshed.
func (p *PresenceTable) Register(roomID int64, m Member) []Member {
	members := p.rooms[roomID]
	for i := range members {
		if members[i].ID == m.ID {
			members[i].ConnID = m.ConnID
			return p.Members(roomID)
		}
	}
	p.rooms[roomID] = append(members, m)
	return p.Members(roomID)
}

// Unregister removes the member with userID from the room.
func (p *PresenceTable) Unregister(roomID, userID int64) []Member {
	members := p.rooms[roomID]
	for i := range members {
		if members[i].ID == userID {
			p.remove(roomID, i)
			break
		}
	}
	return p.Members(roomID)
}

// UnregisterByConnection removes every entry owned by connID and returns
// the rooms that changed.
func (p *PresenceTable) UnregisterByConnection(connID string) []int64 {
	var changed []int64
	for roomID, members := range p.rooms {
		kept := members[:0]
		for _, m := range members {
			if m.ConnID != connID {
				kept = append(kept, m)
			}
		}
		if len(kept) == len(members) {
			continue
		}
		changed = append(changed, roomID)
		if len(kept) == 0 {
			delete(p.rooms, roomID)
		} else {
			p.rooms[roomID] = kept
		}
	}
	return changed
}

// Members returns a copy of the room's member list, never nil.
func (p *PresenceTable) Members(roomID int64) []Member {
	members := p.rooms[roomID]
	out := make([]Member, len(members))
	copy(out, members)
	return out
}

// Rooms returns the number of rooms with at least one member.
func (p *PresenceTable) Rooms() int {
	return len(p.rooms)
}

func (p *PresenceTable) remove(roomID int64, i int) {
	members := p.rooms[roomID]
	members = append(members[:i], members[i+1:]...)
	if len(members) == 0 {
		delete(p.rooms, roomID)
		return
	}
	p.rooms[roomID] = members
}
