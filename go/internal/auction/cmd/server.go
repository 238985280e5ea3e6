package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"github.com/veilinghq/veiling/go/internal/auction"
	"github.com/veilinghq/veiling/go/internal/auction/engine"
	"github.com/veilinghq/veiling/go/internal/auction/gateway"
)

func setupServer(eng *engine.Engine, svc *gateway.Service, hub *gateway.Hub, port string) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	svc.RegisterRoutes(mux)
	registerAdminRoutes(mux, eng)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		stats := hub.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"service": "veiling-engine",
			"stats":   stats,
		})
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: c.Handler(mux),
	}
}

// createClockRequest is the auctioneer-facing clock definition.
type createClockRequest struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	Lots    []struct {
		Stock         int    `json:"stock"`
		StartingPrice string `json:"starting_price"`
		FloorPrice    string `json:"floor_price"`
	} `json:"lots"`
}

// registerAdminRoutes mounts the auctioneer lifecycle endpoints.
func registerAdminRoutes(mux *http.ServeMux, eng *engine.Engine) {
	mux.HandleFunc("POST /api/clocks", func(w http.ResponseWriter, r *http.Request) {
		var req createClockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, err)
			return
		}
		specs := make([]auction.LotSpec, 0, len(req.Lots))
		for _, l := range req.Lots {
			start, err := decimal.NewFromString(l.StartingPrice)
			if err != nil {
				httpError(w, http.StatusBadRequest, fmt.Errorf("invalid starting_price: %w", err))
				return
			}
			floor, err := decimal.NewFromString(l.FloorPrice)
			if err != nil {
				httpError(w, http.StatusBadRequest, fmt.Errorf("invalid floor_price: %w", err))
				return
			}
			specs = append(specs, auction.LotSpec{
				ID:            uuid.New(),
				Stock:         l.Stock,
				StartingPrice: start,
				FloorPrice:    floor,
			})
		}
		snap, err := eng.CreateClock(r.Context(), auction.Region{Country: req.Country, Region: req.Region}, specs)
		if err != nil {
			httpError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, snap)
	})

	lifecycle := func(op func(r *http.Request, clockID uuid.UUID) (auction.Snapshot, error)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			clockID, err := uuid.Parse(r.PathValue("id"))
			if err != nil {
				httpError(w, http.StatusBadRequest, fmt.Errorf("invalid clock id: %w", err))
				return
			}
			snap, err := op(r, clockID)
			if err != nil {
				httpError(w, statusFor(err), err)
				return
			}
			writeJSON(w, snap)
		}
	}

	mux.HandleFunc("POST /api/clocks/{id}/start", lifecycle(func(r *http.Request, id uuid.UUID) (auction.Snapshot, error) {
		return eng.Start(r.Context(), id)
	}))
	mux.HandleFunc("POST /api/clocks/{id}/pause", lifecycle(func(r *http.Request, id uuid.UUID) (auction.Snapshot, error) {
		return eng.Pause(r.Context(), id)
	}))
	mux.HandleFunc("POST /api/clocks/{id}/stop", lifecycle(func(r *http.Request, id uuid.UUID) (auction.Snapshot, error) {
		return eng.Stop(r.Context(), id)
	}))
	mux.HandleFunc("POST /api/clocks/{id}/end", lifecycle(func(r *http.Request, id uuid.UUID) (auction.Snapshot, error) {
		return eng.End(r.Context(), id)
	}))
	mux.HandleFunc("POST /api/clocks/{id}/lot/{lotID}", lifecycle(func(r *http.Request, id uuid.UUID) (auction.Snapshot, error) {
		lotID, err := uuid.Parse(r.PathValue("lotID"))
		if err != nil {
			return auction.Snapshot{}, fmt.Errorf("invalid lot id: %w", err)
		}
		return eng.ChangeLot(r.Context(), id, lotID)
	}))
	mux.HandleFunc("GET /api/clocks/{id}", lifecycle(func(r *http.Request, id uuid.UUID) (auction.Snapshot, error) {
		return eng.Snapshot(r.Context(), id)
	}))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auction.ErrClockNotFound), errors.Is(err, auction.ErrLotNotFound):
		return http.StatusNotFound
	case errors.Is(err, auction.ErrInvalidTransition), errors.Is(err, auction.ErrClockNotAccepting):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func httpError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
