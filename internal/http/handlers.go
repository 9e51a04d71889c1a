package httpx

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/service/auth"
	"github.com/splax/teamup/internal/service/membership"
	"github.com/splax/teamup/internal/ws"
)

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	individual, tokens, err := r.auth.Register(req.Context(), payload.Name, payload.Email)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"individual": individual,
		"tokens":     tokens,
	})
}

func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tokens, err := r.auth.Refresh(req.Context(), payload.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, auth.ErrUnauthorized.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

func (r *Router) handleCurrentTeam(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	view, err := r.members.CurrentTeam(req.Context(), info.IndividualID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	history, err := r.members.History(req.Context(), info.IndividualID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memberships": history})
}

func (r *Router) handleLeave(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	member, err := r.members.Leave(req.Context(), info.IndividualID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (r *Router) handleMyOffers(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	offers, err := r.offers.ListForIndividual(req.Context(), info.IndividualID, queryLimit(req))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

func (r *Router) handleFoundTeam(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	var payload struct {
		Name        string           `json:"name"`
		Description string           `json:"description"`
		Positions   domain.Positions `json:"positions"`
		Role        string           `json:"role"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	role, err := domain.ParseRole(payload.Role)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	team, err := r.members.Found(req.Context(), info.IndividualID, membership.FoundInput{
		Name:        payload.Name,
		Description: payload.Description,
		Positions:   payload.Positions,
		Role:        role,
	})
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (r *Router) handleGetTeam(w http.ResponseWriter, req *http.Request) {
	view, err := r.members.Team(req.Context(), mux.Vars(req)["teamID"])
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (r *Router) handleSetRecruiting(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	var payload struct {
		Recruiting *bool `json:"recruiting"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Recruiting == nil {
		writeError(w, http.StatusBadRequest, "recruiting is required")
		return
	}
	team, err := r.members.SetRecruiting(req.Context(), info.IndividualID, mux.Vars(req)["teamID"], *payload.Recruiting)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (r *Router) handleAdjustPositions(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	var positions domain.Positions
	if err := decodeJSON(w, req, &positions); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	team, err := r.members.AdjustPositions(req.Context(), info.IndividualID, mux.Vars(req)["teamID"], positions)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (r *Router) handleApply(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	var payload struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	role, err := domain.ParseRole(payload.Role)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	offer, err := r.offers.Apply(req.Context(), info.IndividualID, mux.Vars(req)["teamID"], role)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, offer)
}

func (r *Router) handleTeamOffers(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	offers, err := r.offers.ListForTeam(req.Context(), info.IndividualID, queryLimit(req))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

func (r *Router) handleScout(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	var payload struct {
		IndividualID string `json:"individual_id"`
		Role         string `json:"role"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	role, err := domain.ParseRole(payload.Role)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	offer, err := r.offers.Scout(req.Context(), info.IndividualID, payload.IndividualID, role)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, offer)
}

func (r *Router) handleFire(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	var payload struct {
		IndividualID string `json:"individual_id"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	member, err := r.members.Fire(req.Context(), info.IndividualID, payload.IndividualID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (r *Router) handleComplete(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	var payload struct {
		ResultURL string `json:"result_url"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !validResultURL(payload.ResultURL) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "result_url must be an absolute http(s) url",
			"code":  string(domain.KindInvalidArgument),
		})
		return
	}
	team, err := r.members.CompleteProject(req.Context(), info.IndividualID, payload.ResultURL)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, team)
}

// validResultURL accepts blank input, which ends a project unsuccessfully.
func validResultURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return true
	}
	parsed, err := url.Parse(raw)
	return err == nil && parsed.Host != "" && (parsed.Scheme == "http" || parsed.Scheme == "https")
}

func (r *Router) handleDecide(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	var payload struct {
		Accept *bool `json:"accept"`
	}
	if err := decodeJSON(w, req, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Accept == nil {
		writeError(w, http.StatusBadRequest, "accept is required")
		return
	}
	offer, err := r.offers.Decide(req.Context(), mux.Vars(req)["offerID"], info.IndividualID, *payload.Accept)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

func (r *Router) handleCancel(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	if err := r.offers.Cancel(req.Context(), mux.Vars(req)["offerID"], info.IndividualID); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleNotifications(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	entries, err := r.inbox.List(req.Context(), info.IndividualID, queryLimit(req))
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": entries})
}

func (r *Router) handleMarkRead(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	id, err := strconv.ParseInt(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return
	}
	if err := r.inbox.MarkRead(req.Context(), info.IndividualID, id); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (r *Router) handleNotificationsWS(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for notifications websocket", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	hub := r.inbox.Hub()
	if hub == nil {
		writeError(w, http.StatusServiceUnavailable, "notification streaming disabled")
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger, r.sendBuffer)
	hub.Register(info.IndividualID, client)
	go func() {
		defer func() {
			hub.Unregister(info.IndividualID, client)
			client.Close()
		}()
		client.ReadLoop()
	}()
}

func (r *Router) handleNotificationsSSE(w http.ResponseWriter, req *http.Request) {
	info, _ := authInfoFromContext(req.Context())
	hub := r.inbox.Hub()
	if hub == nil {
		writeError(w, http.StatusServiceUnavailable, "notification streaming disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger, r.sendBuffer)
	hub.Register(info.IndividualID, client)
	defer hub.Unregister(info.IndividualID, client)
	client.Serve(req.Context(), sseHeartbeat)
}
