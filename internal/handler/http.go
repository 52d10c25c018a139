package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/reflex-leaderboard/internal/domain"
	"github.com/reflex-leaderboard/internal/service"
	"github.com/reflex-leaderboard/internal/websocket"
)

// Handler provides HTTP handlers for the game API
type Handler struct {
	service *service.GameService
	hub     *websocket.Hub
	logger  *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(service *service.GameService, hub *websocket.Hub, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		hub:     hub,
		logger:  logger,
	}
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)
	r.Get("/ws/stats", h.GetWebSocketStats)

	// Score operations
	r.Post("/scores", h.SubmitScore)
	r.Get("/leaderboard", h.GetLeaderboard)

	// Player operations
	r.Route("/player/{player}", func(r chi.Router) {
		r.Get("/", h.GetPlayer)
		r.Get("/stats", h.GetPlayerStats)
	})

	// Achievement operations
	r.Route("/achievements", func(r chi.Router) {
		r.Post("/unlock", h.UnlockAchievement)
		r.Get("/types", h.GetAchievementTypes)
		r.Get("/{player}", h.GetAchievements)
	})

	// Ledger operations
	r.Get("/verify/{txID}", h.VerifyTransaction)
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/public-key", h.GetPublicKey)
		r.Post("/sign", h.SignMessage)
		r.Post("/upload", h.LedgerUpload)
		r.Get("/balance", h.GetBalance)
		r.Post("/fund", h.FundAccount)
		r.Get("/upload-price", h.GetUploadPrice)
		r.Get("/network-info", h.GetNetworkInfo)
	})

	// Game mode catalog
	r.Get("/game-modes", h.GetGameModes)

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeServiceError maps domain errors onto HTTP statuses. Anything
// unmapped is a 500 with a generic message so internals never leak.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrDuplicateTransaction):
		h.writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrInsufficientBalance):
		h.writeError(w, http.StatusPaymentRequired, err)
	case errors.Is(err, domain.ErrNotConfigured):
		h.writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, domain.ErrStorageUnavailable):
		h.writeError(w, http.StatusServiceUnavailable, err)
	case errors.Is(err, domain.ErrPlayerNotFound):
		h.writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrLedgerUnavailable):
		h.writeError(w, http.StatusBadGateway, err)
	default:
		h.logger.Error("request failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// SubmitScore handles score submission
func (h *Handler) SubmitScore(w http.ResponseWriter, r *http.Request) {
	var submission domain.ScoreSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := h.service.SubmitScore(r.Context(), submission)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// GetLeaderboard returns the ranked board for a mode
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}
	mode := r.URL.Query().Get("game_mode")

	entries, err := h.service.Leaderboard(r.Context(), mode, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, entries)
}

// GetPlayer returns a player's score history
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "player")
	if player == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	profile, err := h.service.PlayerProfile(r.Context(), player)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, profile)
}

// GetPlayerStats returns aggregated statistics for a player
func (h *Handler) GetPlayerStats(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "player")
	if player == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	stats, err := h.service.PlayerStats(r.Context(), player)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// UnlockAchievement handles achievement unlock requests
func (h *Handler) UnlockAchievement(w http.ResponseWriter, r *http.Request) {
	var req domain.UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	status, rec, err := h.service.UnlockAchievement(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      status,
		"achievement": rec,
	})
}

// GetAchievements returns a player's unlocked achievements
func (h *Handler) GetAchievements(w http.ResponseWriter, r *http.Request) {
	player := chi.URLParam(r, "player")
	if player == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	records, err := h.service.Achievements(r.Context(), player)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"player":       player,
		"achievements": records,
		"total":        len(records),
	})
}

// GetAchievementTypes returns the achievement catalog
func (h *Handler) GetAchievementTypes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"types": domain.AchievementCatalog(),
	})
}

// VerifyTransaction checks a ledger transaction against the gateway
func (h *Handler) VerifyTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "txID")
	if txID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	verified, url, err := h.service.VerifyTransaction(r.Context(), txID)
	if err != nil {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"tx_id":    txID,
			"verified": false,
			"error":    err.Error(),
		})
		return
	}

	resp := map[string]interface{}{
		"tx_id":    txID,
		"verified": verified,
	}
	if verified {
		resp["url"] = url
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetPublicKey returns the server's signing public key and address
func (h *Handler) GetPublicKey(w http.ResponseWriter, r *http.Request) {
	ledger := h.service.Ledger()
	if ledger == nil {
		h.writeServiceError(w, domain.ErrLedgerUnavailable)
		return
	}

	pub, address, err := ledger.PublicKey()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"public_key": pub,
		"address":    address,
	})
}

// SignRequest is the payload for POST /ledger/sign
type SignRequest struct {
	Message string `json:"message"`
}

// SignMessage signs a message with the server key
func (h *Handler) SignMessage(w http.ResponseWriter, r *http.Request) {
	ledger := h.service.Ledger()
	if ledger == nil {
		h.writeServiceError(w, domain.ErrLedgerUnavailable)
		return
	}

	var req SignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.Message == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	signature, err := ledger.Sign([]byte(req.Message))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"message":   req.Message,
		"signature": signature,
	})
}

// UploadRequest is the payload for POST /ledger/upload
type UploadRequest struct {
	Player string          `json:"player"`
	Data   json.RawMessage `json:"data"`
	Tags   []domain.Tag    `json:"tags,omitempty"`
}

// LedgerUpload uploads arbitrary data to the ledger network
func (h *Handler) LedgerUpload(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	res, err := h.service.LedgerUpload(r.Context(), req.Player, req.Data, req.Tags)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	resp := map[string]interface{}{
		"success":             true,
		"irys_upload_success": res.Success,
		"tx_id":               res.TxID,
		"network":             res.Network,
		"verified":            res.Verified,
	}
	if res.GatewayURL != "" {
		resp["gateway_url"] = res.GatewayURL
	}
	if res.Error != "" {
		resp["upload_error"] = res.Error
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetBalance returns the upload account balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ledger := h.service.Ledger()
	if ledger == nil {
		h.writeServiceError(w, domain.ErrLedgerUnavailable)
		return
	}

	balance, err := ledger.Balance(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, balance)
}

// FundRequest is the payload for POST /ledger/fund
type FundRequest struct {
	Amount string `json:"amount"`
}

// FundAccount tops up the upload account
func (h *Handler) FundAccount(w http.ResponseWriter, r *http.Request) {
	ledger := h.service.Ledger()
	if ledger == nil {
		h.writeServiceError(w, domain.ErrLedgerUnavailable)
		return
	}

	var req FundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if req.Amount == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	result, err := ledger.Fund(r.Context(), req.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// GetUploadPrice returns the cost of uploading a payload of the given size
func (h *Handler) GetUploadPrice(w http.ResponseWriter, r *http.Request) {
	ledger := h.service.Ledger()
	if ledger == nil {
		h.writeServiceError(w, domain.ErrLedgerUnavailable)
		return
	}

	size := int64(1024)
	if bytesStr := r.URL.Query().Get("bytes"); bytesStr != "" {
		if b, err := strconv.ParseInt(bytesStr, 10, 64); err == nil && b > 0 {
			size = b
		}
	}

	price, err := ledger.Price(r.Context(), size)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, price)
}

// GetNetworkInfo returns the configured ledger network details
func (h *Handler) GetNetworkInfo(w http.ResponseWriter, r *http.Request) {
	ledger := h.service.Ledger()
	if ledger == nil {
		h.writeServiceError(w, domain.ErrLedgerUnavailable)
		return
	}

	h.writeJSON(w, http.StatusOK, ledger.NetworkInfo(r.Context()))
}

// GetGameModes returns the game mode catalog
func (h *Handler) GetGameModes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"modes": domain.GameModes(),
	})
}
