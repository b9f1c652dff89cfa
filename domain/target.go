package domain

import "fmt"

// DeliveryTarget addresses a fan-out: a single user or every connection in a group room.
// The set of implementations is closed to this package.
type DeliveryTarget interface {
	fmt.Stringer
	isDeliveryTarget()
}

type UserTarget struct {
	UserID UserID
}

type GroupTarget struct {
	GroupID GroupID
}

func (UserTarget) isDeliveryTarget()  {}
func (GroupTarget) isDeliveryTarget() {}

func (t UserTarget) String() string {
	return "user:" + string(t.UserID)
}

func (t GroupTarget) String() string {
	return "group:" + string(t.GroupID)
}
