package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/minuteswatch/internal/auth"
	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

const recentMentionsLimit = 10

type dashboardCounts struct {
	Users     int `json:"users"`
	Clients   int `json:"clients"`
	Keywords  int `json:"keywords"`
	Documents int `json:"documents"`
	Mentions  int `json:"mentions"`
}

type dashboard struct {
	Counts         dashboardCounts   `json:"counts"`
	LatestRun      *minutes.Run      `json:"latest_run"`
	RecentMentions []minutes.Mention `json:"recent_mentions"`
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var out dashboard

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	clients, err := s.store.ListClients(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	keywords, err := s.store.ListKeywords(ctx, minutes.KeywordFilter{})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out.Counts.Users, out.Counts.Clients, out.Counts.Keywords = len(users), len(clients), len(keywords)
	if out.Counts.Documents, err = s.store.CountDocuments(ctx); err != nil {
		s.fail(w, r, err)
		return
	}
	if out.Counts.Mentions, err = s.store.CountMentions(ctx); err != nil {
		s.fail(w, r, err)
		return
	}

	run, err := s.store.LatestRun(ctx)
	switch {
	case err == nil:
		out.LatestRun = &run
	case !errors.Is(err, minutes.ErrNotFound):
		s.fail(w, r, err)
		return
	}

	recent, err := s.store.ListMentions(ctx, minutes.MentionFilter{Limit: recentMentionsLimit})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out.RecentMentions = nonNil(recent)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) adminUsers(w http.ResponseWriter, r *http.Request) {
	s.listUsers(w, r)
}

func (s *Server) listAuthCodes(w http.ResponseWriter, r *http.Request) {
	creds, err := s.store.ListCredentials(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(creds))
}

func (s *Server) issueAuthCode(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	code, err := s.auth.IssueAuthCode(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, _ := auth.PrincipalFrom(r.Context())
	s.logger.Info("auth code issued", zap.Int64("user_id", id), zap.Int64("by", p.UserID))
	writeJSON(w, http.StatusCreated, map[string]any{"user_id": id, "code": code})
}

type cleanupRequest struct {
	OlderThanDays int `json:"older_than_days"`
}

func (s *Server) previewCleanup(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "older_than_days")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	report, err := s.retention.Preview(r.Context(), int(days))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) runCleanup(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "older_than_days")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if days == 0 && isJSON(r) {
		var req cleanupRequest
		if err := decodeJSON(w, r, &req, true); err != nil {
			s.fail(w, r, err)
			return
		}
		days = int64(req.OlderThanDays)
	}
	report, err := s.retention.Purge(r.Context(), int(days))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) submitScrape(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "scraper is not configured")
		return
	}
	run, err := s.runs.Submit(r.Context(), minutes.TriggerAPI)
	if err != nil {
		s.fail(w, r, fmt.Errorf("submit run: %w", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID, "status": string(run.Status)})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
