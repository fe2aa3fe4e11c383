package api

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/lib/pq"

	"parkgate/db"
	"parkgate/occupancy"
	"parkgate/types"
)

// --- Personnel ---

func ListPersonnel(w http.ResponseWriter, r *http.Request) {
	rows, err := db.DB.Query(`
		SELECT p.id, p.name, p.document, COALESCE(p.department, ''), p.created_at,
			COALESCE(array_agg(v.plate) FILTER (WHERE v.plate IS NOT NULL), '{}')
		FROM personnel p
		LEFT JOIN vehicles v ON v.personnel_id = p.id
		GROUP BY p.id
		ORDER BY p.name
	`)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var people []types.Personnel
	for rows.Next() {
		var p types.Personnel
		if err := rows.Scan(&p.ID, &p.Name, &p.Document, &p.Department, &p.CreatedAt, pq.Array(&p.Plates)); err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		people = append(people, p)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(people)
}

func GetPersonnel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid personnel id", http.StatusBadRequest)
		return
	}

	var p types.Personnel
	err = db.DB.QueryRow(`
		SELECT p.id, p.name, p.document, COALESCE(p.department, ''), p.created_at,
			COALESCE(array_agg(v.plate) FILTER (WHERE v.plate IS NOT NULL), '{}')
		FROM personnel p
		LEFT JOIN vehicles v ON v.personnel_id = p.id
		WHERE p.id = $1
		GROUP BY p.id
	`, id).Scan(&p.ID, &p.Name, &p.Document, &p.Department, &p.CreatedAt, pq.Array(&p.Plates))
	if err == sql.ErrNoRows {
		http.Error(w, "Personnel not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(p)
}

func CreatePersonnel(w http.ResponseWriter, r *http.Request) {
	var req types.Personnel
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Document == "" {
		http.Error(w, "name and document are required", http.StatusBadRequest)
		return
	}

	err := db.DB.QueryRow(`
		INSERT INTO personnel (name, document, department)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, req.Name, req.Document, req.Department).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		http.Error(w, "Failed to create personnel", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(req)
}

func UpdatePersonnel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid personnel id", http.StatusBadRequest)
		return
	}
	var req types.Personnel
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := db.DB.Exec(`
		UPDATE personnel SET name = $1, document = $2, department = $3 WHERE id = $4
	`, req.Name, req.Document, req.Department, id)
	if err != nil {
		http.Error(w, "Failed to update personnel", http.StatusInternalServerError)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		http.Error(w, "Personnel not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func DeletePersonnel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid personnel id", http.StatusBadRequest)
		return
	}
	result, err := db.DB.Exec(`DELETE FROM personnel WHERE id = $1`, id)
	if err != nil {
		http.Error(w, "Failed to delete personnel", http.StatusInternalServerError)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		http.Error(w, "Personnel not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Vehicles ---

func ListVehicles(w http.ResponseWriter, r *http.Request) {
	rows, err := db.DB.Query(`
		SELECT id, plate, COALESCE(description, ''), personnel_id, visitor, created_at
		FROM vehicles ORDER BY plate
	`)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var vehicles []types.Vehicle
	for rows.Next() {
		var v types.Vehicle
		if err := rows.Scan(&v.ID, &v.Plate, &v.Description, &v.PersonnelID, &v.Visitor, &v.CreatedAt); err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		vehicles = append(vehicles, v)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(vehicles)
}

func CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req types.Vehicle
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Plate = types.CanonicalPlate(req.Plate)
	if req.Plate == "" {
		http.Error(w, "plate is required", http.StatusBadRequest)
		return
	}

	err := db.DB.QueryRow(`
		INSERT INTO vehicles (plate, description, personnel_id, visitor)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, req.Plate, req.Description, req.PersonnelID, req.Visitor).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		http.Error(w, "Failed to create vehicle", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(req)
}

func GetVehicleByPlate(w http.ResponseWriter, r *http.Request) {
	plate := types.CanonicalPlate(mux.Vars(r)["plate"])

	var v types.Vehicle
	err := db.DB.QueryRow(`
		SELECT id, plate, COALESCE(description, ''), personnel_id, visitor, created_at
		FROM vehicles WHERE plate = $1
	`, plate).Scan(&v.ID, &v.Plate, &v.Description, &v.PersonnelID, &v.Visitor, &v.CreatedAt)
	if err == sql.ErrNoRows {
		http.Error(w, "Vehicle not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// --- Gates and movements ---

func ListGates(w http.ResponseWriter, r *http.Request) {
	rows, err := db.DB.Query(`SELECT id, site, name FROM gates ORDER BY site, name`)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var gates []types.Gate
	for rows.Next() {
		var g types.Gate
		if err := rows.Scan(&g.ID, &g.Site, &g.Name); err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		gates = append(gates, g)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(gates)
}

func CreateGate(w http.ResponseWriter, r *http.Request) {
	var req types.Gate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Site == "" || req.Name == "" {
		http.Error(w, "site and name are required", http.StatusBadRequest)
		return
	}

	err := db.DB.QueryRow(`
		INSERT INTO gates (site, name) VALUES ($1, $2) RETURNING id
	`, req.Site, req.Name).Scan(&req.ID)
	if err != nil {
		http.Error(w, "Failed to create gate", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(req)
}

// CheckIn opens a movement for a plate at a gate. The plate is matched
// against registered vehicles to attach the personnel record when there is
// one; unregistered plates check in as visitors.
func CheckIn(w http.ResponseWriter, r *http.Request) {
	gateID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid gate id", http.StatusBadRequest)
		return
	}
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	plate := types.CanonicalPlate(req.Plate)
	if plate == "" {
		http.Error(w, "plate is required", http.StatusBadRequest)
		return
	}

	// Reject a second open movement for the same plate.
	var open int
	err = db.DB.QueryRow(`
		SELECT COUNT(*) FROM movements WHERE plate = $1 AND checked_out_at IS NULL
	`, plate).Scan(&open)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if open > 0 {
		http.Error(w, "Vehicle already checked in", http.StatusConflict)
		return
	}

	var personnelID *int64
	err = db.DB.QueryRow(`
		SELECT personnel_id FROM vehicles WHERE plate = $1
	`, plate).Scan(&personnelID)
	if err != nil && err != sql.ErrNoRows {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	m := types.Movement{
		Plate:       plate,
		GateID:      gateID,
		PersonnelID: personnelID,
		CheckedInAt: time.Now(),
		RecordedBy:  sess.UserID,
	}
	err = db.DB.QueryRow(`
		INSERT INTO movements (plate, gate_id, personnel_id, checked_in_at, recorded_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, m.Plate, m.GateID, m.PersonnelID, m.CheckedInAt, m.RecordedBy).Scan(&m.ID)
	if err != nil {
		http.Error(w, "Failed to record check-in", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(m)
}

// CheckOut closes the open movement for a plate.
func CheckOut(w http.ResponseWriter, r *http.Request) {
	if _, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64); err != nil {
		http.Error(w, "Invalid gate id", http.StatusBadRequest)
		return
	}

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	plate := types.CanonicalPlate(req.Plate)

	result, err := db.DB.Exec(`
		UPDATE movements SET checked_out_at = NOW()
		WHERE plate = $1 AND checked_out_at IS NULL
	`, plate)
	if err != nil {
		http.Error(w, "Failed to record check-out", http.StatusInternalServerError)
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		http.Error(w, "No open movement for plate", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func ListGateMovements(w http.ResponseWriter, r *http.Request) {
	gateID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid gate id", http.StatusBadRequest)
		return
	}

	rows, err := db.DB.Query(`
		SELECT id, plate, gate_id, personnel_id, checked_in_at, checked_out_at, recorded_by
		FROM movements
		WHERE gate_id = $1
		ORDER BY checked_in_at DESC
		LIMIT 200
	`, gateID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var movements []types.Movement
	for rows.Next() {
		var m types.Movement
		if err := rows.Scan(&m.ID, &m.Plate, &m.GateID, &m.PersonnelID, &m.CheckedInAt, &m.CheckedOutAt, &m.RecordedBy); err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		movements = append(movements, m)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(movements)
}

// --- Occupancy ---

func GetCurrentOccupancy(agg *occupancy.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		occ, err := agg.CurrentOccupancy()
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(occ)
	}
}

func GetOccupancyTrends(w http.ResponseWriter, r *http.Request) {
	rows, err := db.DB.Query(`
		SELECT date, check_ins, check_outs, peak_open
		FROM movement_trends_daily
		ORDER BY date DESC
		LIMIT 30
	`)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	var trends []types.DailyTrend
	for rows.Next() {
		var t types.DailyTrend
		if err := rows.Scan(&t.Date, &t.CheckIns, &t.CheckOuts, &t.PeakOpen); err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		trends = append(trends, t)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trends)
}

func GetAggregatorStats(agg *occupancy.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(agg.GetStats())
	}
}
