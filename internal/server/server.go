// Package server is the thin HTTP JSON surface over the data plane. Handlers
// borrow tenant connections through the registry for the scope of one
// request and never hold them beyond it.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/assetplane/internal/aggregate"
	"github.com/wolfeidau/assetplane/internal/entities"
	"github.com/wolfeidau/assetplane/internal/httpmw"
	"github.com/wolfeidau/assetplane/internal/models"
	"github.com/wolfeidau/assetplane/internal/store"
	"github.com/wolfeidau/assetplane/internal/transfer"
)

type Server struct {
	stores      store.TenantStores
	engine      *aggregate.Engine
	coordinator *transfer.Coordinator
	entities    *entities.Service
	ledger      store.TransferLedger
	logger      zerolog.Logger
}

func New(stores store.TenantStores, engine *aggregate.Engine, coordinator *transfer.Coordinator,
	entitySvc *entities.Service, ledger store.TransferLedger, logger zerolog.Logger) *Server {
	return &Server{
		stores:      stores,
		engine:      engine,
		coordinator: coordinator,
		entities:    entitySvc,
		ledger:      ledger,
		logger:      logger,
	}
}

// Routes builds the handler with scoping and logging middleware applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /v1/entities", s.handleCreateEntity)
	mux.HandleFunc("GET /v1/entities", s.handleListEntities)
	mux.HandleFunc("GET /v1/assets", s.handleListAssets)
	mux.HandleFunc("POST /v1/assets", s.handleCreateAsset)
	mux.HandleFunc("POST /v1/transfers", s.handleTransfer)
	mux.HandleFunc("GET /v1/transfers", s.handleListTransfers)

	var handler http.Handler = mux
	handler = httpmw.RequestLogger(s.logger)(handler)
	handler = httpmw.EntityScopeMiddleware()(handler)

	return handler
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createEntityRequest struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
}

func (s *Server) handleCreateEntity(w http.ResponseWriter, r *http.Request) {
	var req createEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, store.Validationf("invalid request body: %v", err))
		return
	}

	entity := &models.Entity{
		Code:         req.Code,
		Name:         req.Name,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
	}

	if err := s.entities.Create(r.Context(), entity); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, entity)
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	list, err := s.entities.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleListAssets serves both the single-tenant and the all-entities view.
// An empty or ALL entity scope fans out across every known tenant.
func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	code := httpmw.EntityCodeFromContext(r.Context())

	if code == "" || code == models.AllEntities {
		assets, err := s.engine.ListAcrossTenants(r.Context(), nil)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, assets)
		return
	}

	assetStore, err := s.stores.Assets(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	assets, err := assetStore.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, assets)
}

type createAssetRequest struct {
	AssetID    string `json:"asset_id"`
	Status     string `json:"status"`
	Employee   string `json:"employee"`
	Location   string `json:"location"`
	Department string `json:"department"`
	Comments   string `json:"comments"`
}

func (s *Server) handleCreateAsset(w http.ResponseWriter, r *http.Request) {
	code := httpmw.EntityCodeFromContext(r.Context())
	if code == "" || code == models.AllEntities {
		writeError(w, store.Validationf("asset creation requires a concrete entity scope"))
		return
	}

	var req createAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, store.Validationf("invalid request body: %v", err))
		return
	}
	if req.AssetID == "" {
		writeError(w, store.Validationf("asset_id is required"))
		return
	}

	status := models.AssetStatus(req.Status)
	if req.Status != "" && !status.Valid() {
		writeError(w, store.Validationf("unknown asset status %q", req.Status))
		return
	}

	asset := &models.Asset{
		AssetID:    req.AssetID,
		Status:     status,
		Employee:   req.Employee,
		Location:   req.Location,
		Department: req.Department,
		Comments:   req.Comments,
	}

	assetStore, err := s.stores.Assets(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := assetStore.Insert(r.Context(), asset); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, asset)
}

type transferRequest struct {
	AssetID    string `json:"asset_id"`
	FromEntity string `json:"from_entity"`
	ToEntity   string `json:"to_entity"`
	Reason     string `json:"reason"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, store.Validationf("invalid request body: %v", err))
		return
	}

	result, err := s.coordinator.Transfer(r.Context(), req.AssetID, req.FromEntity, req.ToEntity, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListTransfers(w http.ResponseWriter, r *http.Request) {
	assetID := r.URL.Query().Get("asset_id")
	if assetID == "" {
		writeError(w, store.Validationf("asset_id query parameter is required"))
		return
	}

	list, err := s.ledger.ListByAsset(r.Context(), assetID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// writeError maps data-plane errors onto HTTP statuses. Inconsistent
// transfer state gets its own kind so operators can alert on it.
func writeError(w http.ResponseWriter, err error) {
	var (
		ve  *store.ValidationError
		ite *store.InconsistentTransferError
	)

	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Reason, Kind: "validation"})
	case errors.As(err, &ite):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: ite.Error(), Kind: "inconsistent_transfer"})
	case errors.Is(err, store.ErrAssetNotFound), errors.Is(err, store.ErrEntityNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrEntityAlreadyExists), errors.Is(err, store.ErrDuplicateAssetID):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrStoreUnavailable), errors.Is(err, store.ErrAllTenantsFailed):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
