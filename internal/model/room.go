package model

import "time"

type Room struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	RoomType    string    `json:"room_type"`
	Capacity    int       `json:"capacity"`
	Building    string    `json:"building,omitempty"`
	Floor       int       `json:"floor,omitempty"`
	RoomNumber  string    `json:"room_number,omitempty"`
	Description string    `json:"description,omitempty"`
	Equipment   []string  `json:"equipment"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Equipment struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	IsPortable  bool   `json:"is_portable"`
}

// RoomEquipment links a room to a piece of installed equipment.
type RoomEquipment struct {
	RoomID      int64  `json:"room_id"`
	EquipmentID int64  `json:"equipment_id"`
	Quantity    int    `json:"quantity"`
	Condition   string `json:"condition"`
	Notes       string `json:"notes,omitempty"`
}

type Department struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	HeadOfDepartment string `json:"head_of_department,omitempty"`
	ContactEmail     string `json:"contact_email,omitempty"`
}
