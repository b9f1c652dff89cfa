package domain

import (
	"time"

	"github.com/samber/lo"
)

type Group struct {
	ID        GroupID   `json:"id"`
	Name      string    `json:"name"`
	Members   []UserID  `json:"members"`
	CreatorID UserID    `json:"creatorId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (g Group) HasMember(userID UserID) bool {
	return lo.Contains(g.Members, userID)
}
