package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/palemoky/quest-arena/internal/analytics"
	"github.com/palemoky/quest-arena/internal/apperrors"
	"github.com/palemoky/quest-arena/internal/auth"
	"github.com/palemoky/quest-arena/internal/protocol"
	"github.com/palemoky/quest-arena/internal/protocol/convert"
	"github.com/palemoky/quest-arena/internal/server/core"
	"github.com/palemoky/quest-arena/internal/types"
)

const defaultLogPageSize = 50

// authMiddleware 校验 Bearer 令牌并把身份放入请求上下文
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, err := s.verifier.Resolve(auth.BearerToken(r.Header.Get("Authorization")))
		if err != nil {
			s.recorder.Record(analytics.Event{
				Type:     analytics.EventAuthError,
				Metadata: map[string]any{"ip": core.GetClientIP(r), "path": r.URL.Path},
			})
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey{}, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// handleSessionOverview GET /api/sessions/{id}/overview
func (s *Server) handleSessionOverview(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if !s.authorizeSession(w, r, sessionID) {
		return
	}

	ov, err := s.sessions.GetLiveOverview(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.OverviewToPayload(ov))
}

// handleSessionLogs GET /api/sessions/{id}/logs?limit=&offset=
func (s *Server) handleSessionLogs(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if !s.authorizeSession(w, r, sessionID) {
		return
	}

	limit, err := queryInt(r, "limit", defaultLogPageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := s.sessions.ListRecent(r.Context(), sessionID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.CombatLogPayload{
		SessionID: sessionID,
		Entries:   convert.EntriesToDTOs(entries),
	})
}

// authorizeSession 会话所在房间的成员或 GM/ADMIN 才能读取
func (s *Server) authorizeSession(w http.ResponseWriter, r *http.Request, sessionID string) bool {
	ident, ok := identityFrom(r)
	if !ok {
		writeError(w, apperrors.ErrUnauthorized)
		return false
	}
	info, err := s.sessions.Get(sessionID)
	if err != nil {
		writeError(w, err)
		return false
	}
	if !canRead(ident, info.GMUserID, s.rooms.IsMember(info.RoomID, ident.UserID)) {
		writeError(w, apperrors.ErrNotInRoom)
		return false
	}
	return true
}

func canRead(ident types.Identity, gmUserID string, member bool) bool {
	return member || ident.CanModerate() || ident.UserID == gmUserID
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperrors.WithDetail(apperrors.ErrInvalidInput, key+" must be a non-negative integer")
	}
	return v, nil
}

// statusOf 错误类别到 HTTP 状态码
func statusOf(err error) int {
	if errors.Is(err, apperrors.ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindConflict, apperrors.KindInvalidState:
		return http.StatusConflict
	case apperrors.KindExpired:
		return http.StatusGone
	case apperrors.KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	code := apperrors.CodeOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logrus.WithError(err).Error("API 请求失败")
		message = protocol.ErrorMessages[protocol.ErrCodeUnknown]
	}
	writeJSON(w, status, protocol.ErrorPayload{Code: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Warn("写入响应失败")
	}
}
