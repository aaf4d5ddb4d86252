package main

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"agriflow/calendar"
	"agriflow/drone"
	"agriflow/requestfilter"
	"agriflow/servicerequest"
	"agriflow/spraying"
)

type requestResponse struct {
	ID            string   `json:"id"`
	FarmerID      string   `json:"farmerId"`
	ProviderID    *string  `json:"providerId,omitempty"`
	Service       string   `json:"service"`
	Address       string   `json:"address"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	Acres         float64  `json:"acres"`
	NumberOfTanks int      `json:"numberOfTanks"`
	TanksToSpray  int      `json:"tanksToSpray"`
	SprayingDate  string   `json:"sprayingDate"`
	Agrochemical  string   `json:"agrochemical"`
	Crop          string   `json:"crop"`
	Coupon        *string  `json:"coupon,omitempty"`
	PricePaise    int64    `json:"pricePaise"`
	Price         string   `json:"price"`
	Status        string   `json:"status"`
	CancelReason  *string  `json:"cancelReason,omitempty"`
	CreatedAt     string   `json:"createdAt"`
	UpdatedAt     string   `json:"updatedAt"`
}

func toRequestResponse(req servicerequest.Request) requestResponse {
	return requestResponse{
		ID:            req.ID,
		FarmerID:      req.FarmerID,
		ProviderID:    req.ProviderID,
		Service:       req.Service,
		Address:       req.Address,
		Latitude:      req.Latitude,
		Longitude:     req.Longitude,
		Acres:         req.Acres,
		NumberOfTanks: req.NumberOfTanks,
		TanksToSpray:  req.TanksToSpray,
		SprayingDate:  calendar.Format(req.ScheduledOn),
		Agrochemical:  req.Agrochemical,
		Crop:          req.Crop,
		Coupon:        req.Coupon,
		PricePaise:    req.PricePaise,
		Price:         drone.FormatINR(req.PricePaise),
		Status:        string(req.Status),
		CancelReason:  req.CancelReason,
		CreatedAt:     formatTime(req.CreatedAt),
		UpdatedAt:     formatTime(req.UpdatedAt),
	}
}

type eventResponse struct {
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	ActorID   *string         `json:"actorId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt string          `json:"createdAt"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	values := r.URL.Query()
	query, err := requestfilter.ParseQuery(values)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	filters := servicerequest.Filters{
		Query:     query,
		Search:    values.Get("q"),
		SortKey:   values.Get("sort"),
		SortOrder: values.Get("order"),
	}
	if v := values.Get("page"); v != "" {
		if filters.Page, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
	}
	if v := values.Get("pageSize"); v != "" {
		if filters.PageSize, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid pageSize")
			return
		}
	}

	switch actor.Role {
	case servicerequest.RoleFarmer:
		filters.FarmerID = actor.ID
	case servicerequest.RoleProvider:
		// scope=open lists placed requests nobody has taken yet.
		if values.Get("scope") == "open" {
			filters.Unassigned = true
			if len(filters.Query.Statuses) == 0 {
				filters.Query.Statuses = []requestfilter.Status{requestfilter.StatusPlaced}
			}
		} else {
			filters.ProviderID = actor.ID
		}
	case servicerequest.RoleAdmin:
	default:
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	result, err := s.requestService.List(r.Context(), filters)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	items := make([]requestResponse, 0, len(result.Items))
	for _, req := range result.Items {
		items = append(items, toRequestResponse(req))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": result.Total})
}

type createRequestBody struct {
	ProviderID string `json:"providerId"`
	spraying.Form
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	if actor.Role != servicerequest.RoleFarmer {
		writeError(w, http.StatusForbidden, "only farmers can place requests")
		return
	}

	var body createRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := s.requestService.Create(r.Context(), servicerequest.CreateParams{
		FarmerID:   actor.ID,
		ProviderID: strings.TrimSpace(body.ProviderID),
		Form:       body.Form,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestResponse(created))
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	req, err := s.requestService.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(req))
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	events, err := s.requestService.Timeline(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	items := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		payload := json.RawMessage(ev.Payload)
		if len(payload) == 0 {
			payload = json.RawMessage(`{}`)
		}
		items = append(items, eventResponse{
			Seq:       ev.Seq,
			Type:      ev.Type,
			ActorID:   ev.ActorID,
			Payload:   payload,
			CreatedAt: formatTime(ev.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var body struct {
		Reason *string `json:"reason"`
	}
	if err := decodeJSON(r, &body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.requestService.Cancel(r.Context(), servicerequest.CancelParams{
		RequestID: chi.URLParam(r, "id"),
		Actor:     actor,
		Reason:    body.Reason,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(updated))
}

func (s *Server) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	updated, err := s.requestService.Accept(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(updated))
}

func (s *Server) handleTransitionRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var body struct {
		Status string `json:"status"`
		Note   string `json:"note"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	next, err := requestfilter.ParseStatus(body.Status)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var payload map[string]any
	if note := strings.TrimSpace(body.Note); note != "" {
		payload = map[string]any{"note": note}
	}
	updated, err := s.requestService.Transition(r.Context(), servicerequest.TransitionParams{
		RequestID:  chi.URLParam(r, "id"),
		Actor:      actor,
		NextStatus: next,
		Payload:    payload,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestResponse(updated))
}

type paymentWebhookBody struct {
	RequestID      string `json:"requestId"`
	IdempotencyKey string `json:"idempotencyKey"`
	AmountPaise    int64  `json:"amountPaise"`
	Reference      string `json:"reference"`
}

func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get("X-Webhook-Secret")
	if s.webhookSecret != "" && subtle.ConstantTimeCompare([]byte(got), []byte(s.webhookSecret)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	var body paymentWebhookBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	key := strings.TrimSpace(body.IdempotencyKey)
	if key == "" {
		key = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}
	if key == "" || strings.TrimSpace(body.RequestID) == "" {
		writeError(w, http.StatusBadRequest, "requestId and idempotencyKey are required")
		return
	}

	err := s.paymentService.HandlePaymentWebhook(r.Context(), servicerequest.PaymentEvent{
		RequestID:      body.RequestID,
		IdempotencyKey: key,
		AmountPaise:    body.AmountPaise,
		Reference:      body.Reference,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var form spraying.Form
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	quote, err := s.requestService.Quote(form)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"quote": quote,
		"base":  drone.FormatINR(quote.Base),
		"final": drone.FormatINR(quote.Final),
	})
}

// handleValidate checks the form up to ?step=N (all steps by default) and
// reports the next step to show.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var form spraying.Form
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	step := spraying.Steps
	if v := r.URL.Query().Get("step"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > spraying.Steps {
			writeError(w, http.StatusBadRequest, "invalid step")
			return
		}
		step = n
	}

	for i := 1; i < step; i++ {
		if err := form.ValidateStep(i); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}
	next, done, err := form.NextStep(step)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nextStep": next, "done": done})
}
