package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"agriflow/auth"
	"agriflow/calendar"
	"agriflow/content"
	"agriflow/drone"
	"agriflow/provider"
	"agriflow/requestfilter"
)

type userResponse struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	FullName string  `json:"fullName"`
	Phone    *string `json:"phone,omitempty"`
	Language string  `json:"language"`
	Role     string  `json:"role"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:       u.ID,
		Email:    u.Email,
		FullName: u.FullName,
		Phone:    u.Phone,
		Language: u.Language,
		Role:     string(u.Role),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     result.Token,
		"expiresAt": formatTime(result.ExpiresAt),
		"user":      toUserResponse(result.User),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	user, err := s.authService.GetUserByID(r.Context(), actor.ID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

type cursorResponse struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

type calendarResponse struct {
	Title    string                 `json:"title"`
	Weekdays []string               `json:"weekdays"`
	Rows     [][]requestfilter.Cell `json:"rows"`
	Prev     cursorResponse         `json:"prev"`
	Next     cursorResponse         `json:"next"`
	Today    string                 `json:"today"`
}

// handleCalendar renders the date picker grid for a month. ?selected=DD/MM/YYYY
// marks a day.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	year, errY := strconv.Atoi(chi.URLParam(r, "year"))
	month, errM := strconv.Atoi(chi.URLParam(r, "month"))
	if errY != nil || errM != nil {
		writeError(w, http.StatusBadRequest, "year and month must be numbers")
		return
	}
	cursor, err := calendar.NewCursor(year, month)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	ctrl := requestfilter.New(s.now)
	ctrl.Cursor = cursor
	if v := r.URL.Query().Get("selected"); v != "" {
		d, err := calendar.Parse(v)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		ctrl.Selection = requestfilter.SelectDate(ctrl.Selection, d)
	}

	cells := ctrl.Grid()
	rows := make([][]requestfilter.Cell, 0, calendar.GridCells/calendar.GridColumns)
	for i := 0; i < len(cells); i += calendar.GridColumns {
		rows = append(rows, cells[i:i+calendar.GridColumns])
	}
	prev := requestfilter.AdvanceMonth(cursor, -1)
	next := requestfilter.AdvanceMonth(cursor, 1)

	writeJSON(w, http.StatusOK, calendarResponse{
		Title:    cursor.Title(),
		Weekdays: calendar.Weekdays[:],
		Rows:     rows,
		Prev:     cursorResponse{Year: prev.Year, Month: int(prev.Month)},
		Next:     cursorResponse{Year: next.Year, Month: int(next.Month)},
		Today:    requestfilter.FormatDate(calendar.Today(s.now)),
	})
}

type providerResponse struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Initial   string   `json:"initial"`
	Location  string   `json:"location"`
	Services  []string `json:"services"`
	Verified  bool     `json:"verified"`
	CreatedAt string   `json:"createdAt"`
}

func toProviderResponse(p provider.Profile) providerResponse {
	services := p.Services
	if services == nil {
		services = []string{}
	}
	return providerResponse{
		ID:        p.ID,
		Name:      p.Name,
		Initial:   p.Initial(),
		Location:  p.Location,
		Services:  services,
		Verified:  p.Verified,
		CreatedAt: formatTime(p.CreatedAt),
	}
}

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	limit := 0
	if v := values.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	profiles, err := s.providerService.List(r.Context(), provider.ListParams{
		Search:  values.Get("q"),
		Service: values.Get("service"),
		Limit:   limit,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	items := make([]providerResponse, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, toProviderResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleProvider(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing provider id")
		return
	}
	profile, err := s.providerService.GetByID(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProviderResponse(profile))
}

type droneResponse struct {
	drone.Listing
	Price         string `json:"price"`
	OriginalPrice string `json:"originalPrice"`
}

func (s *Server) handleDrones(w http.ResponseWriter, r *http.Request) {
	var maxKm float64
	if v := r.URL.Query().Get("maxDistanceKm"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid maxDistanceKm")
			return
		}
		maxKm = n
	}

	listings, err := s.droneService.Nearby(r.Context(), maxKm)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	items := make([]droneResponse, 0, len(listings))
	for _, l := range listings {
		items = append(items, droneResponse{Listing: l, Price: l.Price(), OriginalPrice: l.OriginalPrice()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleLanguages(w http.ResponseWriter, r *http.Request) {
	langs := content.SearchLanguages(r.URL.Query().Get("q"))
	if langs == nil {
		langs = []content.Language{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": langs, "default": content.DefaultLanguage})
}

// handleContent serves the reading text. Unknown languages get English.
func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "lang")
	lang, err := content.Lookup(id)
	if err != nil {
		lang, _ = content.Lookup(content.DefaultLanguage)
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"language": lang.ID,
		"name":     lang.Name,
		"content":  content.Translate(id),
	})
}
