package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/splax/teamup/internal/domain"
)

const maxBodyBytes = 1 << 20

// writeJSON writes JSON response with status code.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError sends an error message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusForKind maps a business failure onto an HTTP status.
func statusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindNotAuthorized, domain.KindNotLeader:
		return http.StatusForbidden
	case domain.KindNoVacancy, domain.KindAlreadyOnTeam, domain.KindAlreadyDecided,
		domain.KindCannotFireSelf, domain.KindLeaderCannotLeave, domain.KindCapacityConflict:
		return http.StatusConflict
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeServiceError renders err for the client. Infrastructure failures are
// logged and hidden behind a generic message.
func (r *Router) writeServiceError(w http.ResponseWriter, req *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		r.logger.Error("request failed", "error", err, "path", req.URL.Path)
		writeError(w, status, "internal error")
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": string(kind)})
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(w http.ResponseWriter, req *http.Request, dst any) error {
	body := http.MaxBytesReader(w, req.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body too large")
		case errors.Is(err, io.EOF):
			return fmt.Errorf("request body required")
		default:
			return fmt.Errorf("invalid JSON body")
		}
	}
	return nil
}

// queryLimit parses the limit query parameter, returning 0 when absent or invalid.
func queryLimit(req *http.Request) int {
	raw := req.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
