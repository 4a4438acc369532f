package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/aristath/agrimarket/internal/domain"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type insertRequest struct {
	Rows []domain.Row `json:"rows"`
}

type updateRequest struct {
	Patch  domain.Row    `json:"patch"`
	Filter domain.Filter `json:"filter"`
}

type decrementRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type decrementResponse struct {
	ProductID    string          `json:"product_id"`
	NewAvailable decimal.Decimal `json:"new_available"`
}

type productRequest struct {
	ProductID string `json:"product_id"`
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// statusFor maps the error taxonomy to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidTable):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	event := s.log.Warn()
	if status >= http.StatusInternalServerError {
		event = s.log.Error()
	}
	event.Err(err).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("Request failed")

	s.writeJSON(w, status, errorResponse{Error: err.Error(), Code: domain.ErrorCode(err)})
}

// decodeBody decodes a JSON body keeping numbers in their textual form, so
// decimal columns are stored exactly.
func decodeBody(r *http.Request, w http.ResponseWriter, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrValidation, err)
	}
	return nil
}

func tableParam(r *http.Request) (domain.Table, error) {
	table := domain.Table(chi.URLParam(r, "table"))
	if !table.Valid() {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidTable, table)
	}
	return table, nil
}

// filterFromQuery turns ?col=value pairs into an equality filter
func filterFromQuery(q url.Values) domain.Filter {
	f := domain.Filter{}
	for col, values := range q {
		if len(values) > 0 {
			f[col] = values[0]
		}
	}
	return f
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "agrimarket",
	})
}

// handleQuery handles GET /api/tables/{table}
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	table, err := tableParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	rows, err := s.backend.Query(r.Context(), table, filterFromQuery(r.URL.Query()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []domain.Row{}
	}
	s.writeJSON(w, http.StatusOK, rows)
}

// handleInsert handles POST /api/tables/{table}
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	table, err := tableParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req insertRequest
	if err := decodeBody(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Rows) == 0 {
		s.writeError(w, r, fmt.Errorf("%w: no rows to insert", domain.ErrValidation))
		return
	}

	rows, err := s.backend.Insert(r.Context(), table, req.Rows)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, rows)
}

// handleUpdate handles PATCH /api/tables/{table}
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	table, err := tableParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req updateRequest
	if err := decodeBody(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	// An unfiltered update would rewrite the whole table
	if len(req.Filter) == 0 || len(req.Patch) == 0 {
		s.writeError(w, r, fmt.Errorf("%w: update needs a patch and a filter", domain.ErrValidation))
		return
	}

	rows, err := s.backend.Update(r.Context(), table, req.Patch, req.Filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []domain.Row{}
	}
	s.writeJSON(w, http.StatusOK, rows)
}

// handleDelete handles DELETE /api/tables/{table}?col=value
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	table, err := tableParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	filter := filterFromQuery(r.URL.Query())
	if len(filter) == 0 {
		s.writeError(w, r, fmt.Errorf("%w: delete needs a filter", domain.ErrValidation))
		return
	}

	if err := s.backend.Delete(r.Context(), table, filter); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDecrementStock handles POST /api/rpc/decrement_stock
func (s *Server) handleDecrementStock(w http.ResponseWriter, r *http.Request) {
	var req decrementRequest
	if err := decodeBody(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	left, err := s.backend.DecrementStock(r.Context(), req.ProductID, req.Quantity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, decrementResponse{ProductID: req.ProductID, NewAvailable: left})
}

// handlePlaceOrder handles POST /api/rpc/place_order
func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderRequest
	if err := decodeBody(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	placement, err := s.backend.PlaceOrder(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, placement)
}

// handleMarkDepleted handles POST /api/rpc/mark_depleted
func (s *Server) handleMarkDepleted(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeBody(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ProductID == "" {
		s.writeError(w, r, fmt.Errorf("%w: product_id is required", domain.ErrValidation))
		return
	}

	if err := s.backend.MarkProductDepleted(r.Context(), req.ProductID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
