package types

import (
	"strings"
	"time"
)

// Role is the authorization level of a user. The empty value means the
// role has not been resolved yet.
type Role string

const (
	RoleUnknown    Role = ""
	RoleAgent      Role = "agent"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

// Known reports whether the role has been resolved to a concrete value.
func (r Role) Known() bool {
	return r == RoleAgent || r == RoleSupervisor || r == RoleAdmin
}

// User is a backend user account. ActiveSession holds the session token
// last written by any console that authenticated as this user.
type User struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	Role          Role      `json:"role"`
	ActiveSession string    `json:"active_session,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Personnel is a staff record with the license plates registered to it.
type Personnel struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Document   string    `json:"document"`
	Department string    `json:"department"`
	Plates     []string  `json:"plates"`
	CreatedAt  time.Time `json:"created_at"`
}

// Vehicle is a registered vehicle at a site.
type Vehicle struct {
	ID          int64     `json:"id"`
	Plate       string    `json:"plate"`
	Description string    `json:"description,omitempty"`
	PersonnelID *int64    `json:"personnel_id,omitempty"`
	Visitor     bool      `json:"visitor"`
	CreatedAt   time.Time `json:"created_at"`
}

// Gate is an entry/exit point at a site.
type Gate struct {
	ID   int64  `json:"id"`
	Site string `json:"site"`
	Name string `json:"name"`
}

// Movement is one vehicle passage: opened at check-in, closed at check-out.
type Movement struct {
	ID           int64      `json:"id"`
	Plate        string     `json:"plate"`
	GateID       int64      `json:"gate_id"`
	PersonnelID  *int64     `json:"personnel_id,omitempty"`
	CheckedInAt  time.Time  `json:"checked_in_at"`
	CheckedOutAt *time.Time `json:"checked_out_at,omitempty"`
	RecordedBy   int64      `json:"recorded_by"`
}

// OccupancyStats tracks the aggregator loop, mirrored by the stats endpoint.
type OccupancyStats struct {
	LastUpdate     time.Time `json:"last_update"`
	TotalSnapshots int64     `json:"total_snapshots"`
	OpenMovements  int       `json:"open_movements"`
	TrackedGates   int       `json:"tracked_gates"`
	StartTime      time.Time `json:"start_time"`
}

// GateOccupancy is one gate's open movement count at snapshot time.
type GateOccupancy struct {
	GateID    int64     `json:"gate_id"`
	GateName  string    `json:"gate_name"`
	Site      string    `json:"site"`
	OpenCount int       `json:"open_count"`
	Timestamp time.Time `json:"timestamp"`
}

// DailyTrend is one day of aggregated movement volume.
type DailyTrend struct {
	Date      time.Time `json:"date"`
	CheckIns  int       `json:"check_ins"`
	CheckOuts int       `json:"check_outs"`
	PeakOpen  int       `json:"peak_open"`
}

// CanonicalPlate normalizes a license plate for matching: uppercase with
// spaces and dashes stripped. Capture hardware and manual entry disagree
// on separators, the database stores the canonical form only.
func CanonicalPlate(plate string) string {
	plate = strings.ToUpper(strings.TrimSpace(plate))
	plate = strings.ReplaceAll(plate, " ", "")
	plate = strings.ReplaceAll(plate, "-", "")
	return plate
}
