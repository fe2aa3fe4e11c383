package api

import (
	"github.com/gorilla/mux"

	"parkgate/auth"
	"parkgate/occupancy"
)

// NewRouter creates and configures a new router with all API endpoints
func NewRouter(agg *occupancy.Aggregator, authSvc *auth.Service) *mux.Router {
	r := mux.NewRouter()

	// API key management endpoints (master key guarded)
	r.HandleFunc("/api/keys", CreateAPIKey).Methods("POST")
	r.HandleFunc("/api/keys", ListAPIKeys).Methods("GET")
	r.HandleFunc("/api/keys", DeleteAPIKey).Methods("DELETE")

	// Login is the only unauthenticated endpoint besides key management
	r.HandleFunc("/api/auth/login", Login(authSvc)).Methods("POST")

	// Everything else requires a bearer token; rate limiting applies to
	// callers without a valid API key.
	api := r.PathPrefix("/api").Subrouter()
	api.Use(RateLimit)
	api.Use(Authenticate(authSvc))

	// Session endpoints
	api.HandleFunc("/auth/session", CurrentSession).Methods("GET")
	api.HandleFunc("/auth/logout", Logout(authSvc)).Methods("POST")

	// User administration
	api.HandleFunc("/users", adminOnly(CreateUser(authSvc))).Methods("POST")
	api.HandleFunc("/users", adminOnly(ListUsers)).Methods("GET")

	// Personnel registry
	api.HandleFunc("/personnel", ListPersonnel).Methods("GET")
	api.HandleFunc("/personnel", adminOnly(CreatePersonnel)).Methods("POST")
	api.HandleFunc("/personnel/{id}", GetPersonnel).Methods("GET")
	api.HandleFunc("/personnel/{id}", adminOnly(UpdatePersonnel)).Methods("PUT")
	api.HandleFunc("/personnel/{id}", adminOnly(DeletePersonnel)).Methods("DELETE")

	// Vehicles
	api.HandleFunc("/vehicles", ListVehicles).Methods("GET")
	api.HandleFunc("/vehicles", adminOnly(CreateVehicle)).Methods("POST")
	api.HandleFunc("/vehicles/{plate}", GetVehicleByPlate).Methods("GET")

	// Gate topology and movements
	api.HandleFunc("/gates", ListGates).Methods("GET")
	api.HandleFunc("/gates", adminOnly(CreateGate)).Methods("POST")
	api.HandleFunc("/gates/{id}/checkin", CheckIn).Methods("POST")
	api.HandleFunc("/gates/{id}/checkout", CheckOut).Methods("POST")
	api.HandleFunc("/gates/{id}/movements", ListGateMovements).Methods("GET")

	// Occupancy statistics
	api.HandleFunc("/occupancy/current", GetCurrentOccupancy(agg)).Methods("GET")
	api.HandleFunc("/occupancy/trends", GetOccupancyTrends).Methods("GET")
	api.HandleFunc("/occupancy/stats", GetAggregatorStats(agg)).Methods("GET")

	return r
}
