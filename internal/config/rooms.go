package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RoomConfig represents a single bookable room.
type RoomConfig struct {
	Name        string   `yaml:"name"`
	Type        string   `yaml:"type"`
	Capacity    int      `yaml:"capacity"`
	Building    string   `yaml:"building"`
	Floor       int      `yaml:"floor"`
	RoomNumber  string   `yaml:"room_number"`
	Description string   `yaml:"description"`
	Equipment   []string `yaml:"equipment"`
	IsActive    *bool    `yaml:"is_active,omitempty"`
}

// Active treats a missing is_active as true.
func (r RoomConfig) Active() bool {
	return r.IsActive == nil || *r.IsActive
}

type EquipmentConfig struct {
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	IsPortable  bool   `yaml:"is_portable"`
}

type DepartmentConfig struct {
	Name             string `yaml:"name"`
	Description      string `yaml:"description"`
	HeadOfDepartment string `yaml:"head_of_department"`
	ContactEmail     string `yaml:"contact_email"`
}

// RoomsConfig is the root configuration for rooms.yaml.
type RoomsConfig struct {
	Rooms       []RoomConfig       `yaml:"rooms"`
	Equipment   []EquipmentConfig  `yaml:"equipment"`
	Departments []DepartmentConfig `yaml:"departments"`
}

// LoadRoomsConfig loads and validates the room catalog from a YAML file.
func LoadRoomsConfig(path string) (*RoomsConfig, error) {
	if path == "" {
		path = "configs/rooms.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rooms config: %w", err)
	}

	var cfg RoomsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse rooms config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate rooms config: %w", err)
	}

	return &cfg, nil
}

func (c *RoomsConfig) normalize() {
	for i := range c.Rooms {
		c.Rooms[i].Name = strings.TrimSpace(c.Rooms[i].Name)
		if c.Rooms[i].Type == "" {
			c.Rooms[i].Type = "classroom"
		}
	}
	for i := range c.Equipment {
		c.Equipment[i].Name = strings.TrimSpace(c.Equipment[i].Name)
		if c.Equipment[i].Category == "" {
			c.Equipment[i].Category = "general"
		}
	}
}

// Validate checks the configuration for errors.
func (c *RoomsConfig) Validate() error {
	if len(c.Rooms) == 0 {
		return fmt.Errorf("no rooms defined")
	}

	equipment := make(map[string]bool, len(c.Equipment))
	for i, e := range c.Equipment {
		if e.Name == "" {
			return fmt.Errorf("equipment[%d]: name is required", i)
		}
		if equipment[e.Name] {
			return fmt.Errorf("equipment[%d]: duplicate name '%s'", i, e.Name)
		}
		equipment[e.Name] = true
	}

	names := make(map[string]bool, len(c.Rooms))
	for i, r := range c.Rooms {
		if r.Name == "" {
			return fmt.Errorf("room[%d]: name is required", i)
		}
		if names[r.Name] {
			return fmt.Errorf("room[%d]: duplicate name '%s'", i, r.Name)
		}
		names[r.Name] = true

		if r.Capacity <= 0 {
			return fmt.Errorf("room[%d]: capacity must be positive, got %d", i, r.Capacity)
		}
		for _, e := range r.Equipment {
			if !equipment[e] {
				return fmt.Errorf("room[%d]: unknown equipment '%s'", i, e)
			}
		}
	}

	departments := make(map[string]bool, len(c.Departments))
	for i, d := range c.Departments {
		if d.Name == "" {
			return fmt.Errorf("department[%d]: name is required", i)
		}
		if departments[d.Name] {
			return fmt.Errorf("department[%d]: duplicate name '%s'", i, d.Name)
		}
		departments[d.Name] = true
	}

	return nil
}

// RoomNames returns the names of active rooms in file order.
func (c *RoomsConfig) RoomNames() []string {
	out := make([]string, 0, len(c.Rooms))
	for _, r := range c.Rooms {
		if r.Active() {
			out = append(out, r.Name)
		}
	}
	return out
}
