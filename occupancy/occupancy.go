package occupancy

import (
	"fmt"
	"log"
	"time"

	"parkgate/db"
	"parkgate/types"
)

// Aggregator periodically snapshots per-gate occupancy from the raw
// movements table into the stats tables. The server runs it off a ticker.
type Aggregator struct {
	stats types.OccupancyStats
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		stats: types.OccupancyStats{StartTime: time.Now()},
	}
}

func (a *Aggregator) GetStats() types.OccupancyStats {
	return a.stats
}

// CurrentOccupancy returns the live open movement count per gate.
func (a *Aggregator) CurrentOccupancy() ([]types.GateOccupancy, error) {
	rows, err := db.DB.Query(`
		SELECT g.id, g.name, g.site, COUNT(m.id)
		FROM gates g
		LEFT JOIN movements m ON m.gate_id = g.id AND m.checked_out_at IS NULL
		GROUP BY g.id, g.name, g.site
		ORDER BY g.site, g.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now()
	var out []types.GateOccupancy
	for rows.Next() {
		var occ types.GateOccupancy
		if err := rows.Scan(&occ.GateID, &occ.GateName, &occ.Site, &occ.OpenCount); err != nil {
			return nil, err
		}
		occ.Timestamp = now
		out = append(out, occ)
	}
	return out, rows.Err()
}

// SnapshotAndStore writes one occupancy_stats row per gate and refreshes
// the daily trend row.
func (a *Aggregator) SnapshotAndStore() error {
	occ, err := a.CurrentOccupancy()
	if err != nil {
		return fmt.Errorf("error computing occupancy: %v", err)
	}

	total := 0
	for _, g := range occ {
		total += g.OpenCount
		_, err := db.DB.Exec(`
			INSERT INTO occupancy_stats (gate_id, timestamp, open_count)
			VALUES ($1, $2, $3)
		`, g.GateID, g.Timestamp, g.OpenCount)
		if err != nil {
			return fmt.Errorf("error storing occupancy snapshot: %v", err)
		}
	}

	if err := a.storeDailyTrend(total); err != nil {
		log.Printf("Error storing daily trend: %v", err)
	}

	a.stats.LastUpdate = time.Now()
	a.stats.TotalSnapshots++
	a.stats.OpenMovements = total
	a.stats.TrackedGates = len(occ)

	log.Printf("Occupancy update: Open movements: %d, Gates: %d, Total snapshots: %d, Running for: %v",
		a.stats.OpenMovements,
		a.stats.TrackedGates,
		a.stats.TotalSnapshots,
		time.Since(a.stats.StartTime).Round(time.Second))

	return nil
}

func (a *Aggregator) storeDailyTrend(openNow int) error {
	_, err := db.DB.Exec(`
		INSERT INTO movement_trends_daily (date, check_ins, check_outs, peak_open)
		VALUES (CURRENT_DATE,
			(SELECT COUNT(*) FROM movements WHERE checked_in_at::date = CURRENT_DATE),
			(SELECT COUNT(*) FROM movements WHERE checked_out_at::date = CURRENT_DATE),
			$1)
		ON CONFLICT (date) DO UPDATE SET
			check_ins = EXCLUDED.check_ins,
			check_outs = EXCLUDED.check_outs,
			peak_open = GREATEST(movement_trends_daily.peak_open, EXCLUDED.peak_open)
	`, openNow)
	return err
}
