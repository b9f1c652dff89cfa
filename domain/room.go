package domain

type UserID string

type GroupID string

type ConnectionID string

// RoomID names a transport-level broadcast room. Every group owns exactly one room.
type RoomID string

func RoomFor(groupID GroupID) RoomID {
	return RoomID(groupID)
}

func (r RoomID) GroupID() GroupID {
	return GroupID(r)
}
