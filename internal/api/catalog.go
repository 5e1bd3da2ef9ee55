package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

const (
	defaultMentionLimit = 100
	maxMentionLimit     = 1000
)

type clientInput struct {
	Name         string `json:"name"`
	Organization string `json:"organization"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Notes        string `json:"notes"`
}

func (in clientInput) toClient(id int64) (minutes.Client, error) {
	c := minutes.Client{
		ID:           id,
		Name:         strings.TrimSpace(in.Name),
		Organization: strings.TrimSpace(in.Organization),
		Email:        strings.TrimSpace(in.Email),
		Phone:        strings.TrimSpace(in.Phone),
		Notes:        strings.TrimSpace(in.Notes),
	}
	if c.Name == "" {
		return minutes.Client{}, fmt.Errorf("client name is required: %w", minutes.ErrInvalid)
	}
	return c, nil
}

type clientDetail struct {
	minutes.Client
	Keywords []minutes.Keyword `json:"keywords"`
}

func (s *Server) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.store.ListClients(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(clients))
}

func (s *Server) createClient(w http.ResponseWriter, r *http.Request) {
	var in clientInput
	if err := decodeJSON(w, r, &in, false); err != nil {
		s.fail(w, r, err)
		return
	}
	client, err := in.toClient(0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	created, err := s.store.CreateClient(r.Context(), client)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	client, err := s.store.GetClient(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	keywords, err := s.store.ListKeywords(r.Context(), minutes.KeywordFilter{ClientID: id})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clientDetail{Client: client, Keywords: nonNil(keywords)})
}

func (s *Server) clientEditForm(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	client, err := s.store.GetClient(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, clientInput{
		Name:         client.Name,
		Organization: client.Organization,
		Email:        client.Email,
		Phone:        client.Phone,
		Notes:        client.Notes,
	})
}

func (s *Server) updateClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var in clientInput
	if err := decodeJSON(w, r, &in, false); err != nil {
		s.fail(w, r, err)
		return
	}
	client, err := in.toClient(id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	updated, err := s.store.UpdateClient(r.Context(), client)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.DeleteClient(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type keywordInput struct {
	Term     string `json:"term"`
	Category string `json:"category"`
	ClientID int64  `json:"client_id"`
	Active   *bool  `json:"active"`
}

func (s *Server) listKeywords(w http.ResponseWriter, r *http.Request) {
	clientID, err := queryInt(r, "client_id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	keywords, err := s.store.ListKeywords(r.Context(), minutes.KeywordFilter{ClientID: clientID})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(keywords))
}

func (s *Server) createKeyword(w http.ResponseWriter, r *http.Request) {
	var in keywordInput
	if err := decodeJSON(w, r, &in, false); err != nil {
		s.fail(w, r, err)
		return
	}
	kw := minutes.Keyword{
		Term:     strings.Join(strings.Fields(in.Term), " "),
		Category: strings.TrimSpace(in.Category),
		ClientID: in.ClientID,
		Active:   in.Active == nil || *in.Active,
	}
	if kw.Term == "" {
		s.fail(w, r, fmt.Errorf("keyword term is required: %w", minutes.ErrInvalid))
		return
	}
	if kw.ClientID < 0 {
		s.fail(w, r, fmt.Errorf("client_id must be >= 0: %w", minutes.ErrInvalid))
		return
	}
	created, err := s.store.CreateKeyword(r.Context(), kw)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) deleteKeyword(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.DeleteKeyword(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listMentions(w http.ResponseWriter, r *http.Request) {
	filter, err := mentionFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	mentions, err := s.store.ListMentions(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(mentions))
}

func mentionFilter(r *http.Request) (minutes.MentionFilter, error) {
	q := r.URL.Query()
	filter := minutes.MentionFilter{Keyword: strings.TrimSpace(q.Get("keyword")), Limit: defaultMentionLimit}

	clientID, err := queryInt(r, "client_id")
	if err != nil {
		return minutes.MentionFilter{}, err
	}
	filter.ClientID = clientID

	limit, err := queryInt(r, "limit")
	if err != nil {
		return minutes.MentionFilter{}, err
	}
	if limit > 0 {
		filter.Limit = int(min(limit, maxMentionLimit))
	}

	if raw := strings.TrimSpace(q.Get("since")); raw != "" {
		since, err := parseSince(raw)
		if err != nil {
			return minutes.MentionFilter{}, err
		}
		filter.Since = since
	}
	return filter, nil
}

// parseSince accepts RFC 3339 timestamps or YYYY-MM-DD dates (UTC midnight).
func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid since %q, want RFC 3339 or YYYY-MM-DD: %w", raw, minutes.ErrInvalid)
}
