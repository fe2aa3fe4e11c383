package db

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

var DB *sql.DB

// ConnString builds the Postgres connection string from the environment.
// Exported because the session registrar needs it for its LISTEN connection,
// which lib/pq opens separately from the *sql.DB pool.
func ConnString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
	)
}

// InitDB opens the database and creates the schema. Used by the server.
func InitDB() error {
	if err := Connect(); err != nil {
		return err
	}

	if err := createTables(); err != nil {
		return fmt.Errorf("error creating tables: %v", err)
	}

	return nil
}

// Connect opens the database without touching the schema. Used by gate
// consoles, which must not run DDL.
func Connect() error {
	var err error
	DB, err = sql.Open("postgres", ConnString())
	if err != nil {
		return fmt.Errorf("error opening database: %v", err)
	}

	if err = DB.Ping(); err != nil {
		return fmt.Errorf("error connecting to the database: %v", err)
	}

	return nil
}

func createTables() error {
	queries := []string{
		// Core tables
		`CREATE TABLE IF NOT EXISTS api_keys (
			id SERIAL PRIMARY KEY,
			key VARCHAR(64) NOT NULL UNIQUE,
			description TEXT,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
			last_used_at TIMESTAMP WITH TIME ZONE,
			is_active BOOLEAN NOT NULL DEFAULT true
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			username VARCHAR(64) NOT NULL UNIQUE,
			password_hash VARCHAR(128) NOT NULL,
			role VARCHAR(16) NOT NULL DEFAULT 'agent',
			active_session VARCHAR(64),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS personnel (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			document VARCHAR(64) NOT NULL UNIQUE,
			department VARCHAR(255),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS vehicles (
			id SERIAL PRIMARY KEY,
			plate VARCHAR(16) NOT NULL UNIQUE,
			description TEXT,
			personnel_id INTEGER REFERENCES personnel(id),
			visitor BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS gates (
			id SERIAL PRIMARY KEY,
			site VARCHAR(64) NOT NULL,
			name VARCHAR(64) NOT NULL,
			UNIQUE (site, name)
		)`,
		`CREATE TABLE IF NOT EXISTS movements (
			id BIGSERIAL PRIMARY KEY,
			plate VARCHAR(16) NOT NULL,
			gate_id INTEGER NOT NULL REFERENCES gates(id),
			personnel_id INTEGER REFERENCES personnel(id),
			checked_in_at TIMESTAMP WITH TIME ZONE NOT NULL,
			checked_out_at TIMESTAMP WITH TIME ZONE,
			recorded_by INTEGER NOT NULL REFERENCES users(id)
		)`,

		// Statistics tables
		`CREATE TABLE IF NOT EXISTS occupancy_stats (
			id SERIAL PRIMARY KEY,
			gate_id INTEGER NOT NULL REFERENCES gates(id),
			timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
			open_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS movement_trends_daily (
			id SERIAL PRIMARY KEY,
			date DATE NOT NULL,
			check_ins INTEGER NOT NULL DEFAULT 0,
			check_outs INTEGER NOT NULL DEFAULT 0,
			peak_open INTEGER NOT NULL DEFAULT 0,
			UNIQUE(date)
		)`,

		// Session change feed: gate consoles LISTEN on user_sessions to
		// detect another console overwriting their session token.
		`CREATE OR REPLACE FUNCTION notify_user_session() RETURNS trigger AS $$
		BEGIN
			PERFORM pg_notify('user_sessions', json_build_object(
				'user_id', NEW.id,
				'active_session', NEW.active_session
			)::text);
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS users_session_notify ON users`,
		`CREATE TRIGGER users_session_notify
			AFTER UPDATE OF active_session ON users
			FOR EACH ROW EXECUTE FUNCTION notify_user_session()`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_movements_plate ON movements(plate)`,
		`CREATE INDEX IF NOT EXISTS idx_movements_gate ON movements(gate_id)`,
		`CREATE INDEX IF NOT EXISTS idx_movements_open ON movements(gate_id) WHERE checked_out_at IS NULL`,
		`CREATE INDEX IF NOT EXISTS idx_occupancy_stats_timestamp ON occupancy_stats (timestamp DESC)`,
	}

	for _, query := range queries {
		_, err := DB.Exec(query)
		if err != nil {
			return err
		}
	}

	return nil
}

func CloseDB() {
	if DB != nil {
		DB.Close()
	}
}
