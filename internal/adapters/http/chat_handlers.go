package httpadapter

import (
	"net/http"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/core/usecase"
)

const defaultTurnLimit = 100

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title      string `json:"title"`
		AnalysisID string `json:"analysisId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	session, err := rt.deps.Sessions.Create(r.Context(), principal(r), usecase.CreateSessionInput{
		Title:      req.Title,
		AnalysisID: req.AnalysisID,
	})
	if err != nil {
		if domain.IsKind(err, domain.ErrQuotaExceeded) {
			rt.deps.Metrics.RecordQuotaRejection()
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (rt *Router) listSessions(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultPageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := rt.deps.Sessions.List(r.Context(), principal(r).UserID, page, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := rt.deps.Sessions.Get(r.Context(), principal(r).UserID, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (rt *Router) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.deps.Sessions.Close(r.Context(), principal(r).UserID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.deps.Sessions.Delete(r.Context(), principal(r).UserID, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) listTurns(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultTurnLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	turns, err := rt.deps.Sessions.History(r.Context(), principal(r).UserID, r.PathValue("id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if turns == nil {
		turns = []domain.ChatTurn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns})
}

func (rt *Router) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
		Model   string `json:"model"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	stream, err := newSSEWriter(w)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rt.deps.Metrics.StreamStarted("chat")()

	err = rt.deps.Chat.Send(r.Context(), principal(r), usecase.SendMessageInput{
		SessionID: r.PathValue("id"),
		Message:   req.Message,
		Model:     req.Model,
	}, func(event domain.ChatEvent) error {
		if event.Type == domain.ChatEventEmergency {
			rt.deps.Metrics.RecordEmergencyFlag()
		}
		return stream.Send(string(event.Type), event.Payload)
	})
	if err != nil && !stream.Started() {
		writeError(w, r, err)
	}
}
