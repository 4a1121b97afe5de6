package model

import "time"

type Building struct {
	ID        int64     `json:"id"`
	OrgID     int64     `json:"org_id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

type Floor struct {
	ID         int64     `json:"id"`
	BuildingID int64     `json:"building_id"`
	OrgID      int64     `json:"org_id"`
	Name       string    `json:"name"`
	Level      int       `json:"level"`
	CreatedAt  time.Time `json:"created_at"`
}

type RoomType struct {
	ID        int64     `json:"id"`
	OrgID     int64     `json:"org_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type Room struct {
	ID         int64     `json:"id"`
	FloorID    int64     `json:"floor_id"`
	OrgID      int64     `json:"org_id"`
	RoomTypeID *int64    `json:"room_type_id"`
	Name       string    `json:"name"`
	SortOrder  int       `json:"sort_order"`
	CreatedAt  time.Time `json:"created_at"`
}
