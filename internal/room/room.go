package room

import "time"

// ConnID identifies a single signaling connection for its whole lifetime.
type ConnID string

// Room pairs at most two connections under a short numeric code.
type Room struct {
	// Code is the 4-digit pairing code, unique among live rooms.
	Code string

	// Occupants holds the connections in the room. The first one is the
	// creator, the second one (if any) is the peer that joined.
	Occupants []ConnID

	// CreatedAt is fixed at creation and drives expiry.
	CreatedAt time.Time
}

// Capacity is the maximum number of occupants in a room.
const Capacity = 2

// Full reports whether the room cannot take another occupant.
func (r *Room) Full() bool {
	return len(r.Occupants) >= Capacity
}

// Has reports whether conn is an occupant of the room.
func (r *Room) Has(conn ConnID) bool {
	for _, c := range r.Occupants {
		if c == conn {
			return true
		}
	}
	return false
}

// Others returns every occupant except conn.
func (r *Room) Others(conn ConnID) []ConnID {
	out := make([]ConnID, 0, len(r.Occupants))
	for _, c := range r.Occupants {
		if c != conn {
			out = append(out, c)
		}
	}
	return out
}

func (r *Room) clone() Room {
	return Room{
		Code:      r.Code,
		Occupants: append([]ConnID(nil), r.Occupants...),
		CreatedAt: r.CreatedAt,
	}
}
