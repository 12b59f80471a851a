package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"eco-challenge-engine/logger"
	"eco-challenge-engine/models"
	"eco-challenge-engine/repositories"
)

// RosterEntry is one student placement as published by the identity service.
type RosterEntry struct {
	UserID     string    `json:"user_id"`
	SchoolID   string    `json:"school_id"`
	SchoolName string    `json:"school_name"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type RosterChangesResponse struct {
	Memberships []RosterEntry `json:"memberships"`
}

// RosterSyncWorker mirrors student → school placements so the school
// leaderboard can group ledger totals.
type RosterSyncWorker struct {
	schools      repositories.SchoolRepo
	interval     time.Duration
	endpoint     string // e.g. "http://identity:8500/api/v1/public/rosters"
	serviceToken string
	httpClient   *http.Client
	log          *logger.Logger
}

func NewRosterSyncWorker(schools repositories.SchoolRepo, endpoint, serviceToken string, interval time.Duration, log *logger.Logger) *RosterSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &RosterSyncWorker{
		schools:      schools,
		interval:     interval,
		endpoint:     endpoint,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With("worker", "roster_sync"),
	}
}

func (w *RosterSyncWorker) Start(ctx context.Context) {
	w.log.Info("starting roster sync worker", "endpoint", w.endpoint, "interval", w.interval)
	go w.run(ctx)
}

func (w *RosterSyncWorker) run(ctx context.Context) {
	// Initial sync from the beginning of time
	if _, err := w.SyncOnce(ctx, time.Time{}); err != nil {
		w.log.Warn("initial roster sync failed", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			since, err := w.schools.LastSyncedAt(ctx, nil)
			if err != nil {
				w.log.Error("reading last roster sync time failed", "error", err)
				continue
			}
			if _, err := w.SyncOnce(ctx, since); err != nil {
				w.log.Error("roster sync batch failed", "error", err)
			}
		case <-ctx.Done():
			w.log.Info("roster sync worker stopped")
			return
		}
	}
}

// SyncOnce fetches changes since the given time and upserts them. It returns
// the number of memberships written.
func (w *RosterSyncWorker) SyncOnce(ctx context.Context, since time.Time) (int, error) {
	var resp *RosterChangesResponse
	op := func() error {
		var err error
		resp, err = w.fetch(ctx, since)
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return 0, err
	}

	if len(resp.Memberships) == 0 {
		w.log.Debug("no roster changes", "since", since.UTC().Format(time.RFC3339))
		return 0, nil
	}

	schools := map[string]string{}
	rows := make([]models.SchoolMembership, 0, len(resp.Memberships))
	for _, m := range resp.Memberships {
		if m.UserID == "" || m.SchoolID == "" {
			continue
		}
		if _, seen := schools[m.SchoolID]; !seen || m.SchoolName != "" {
			schools[m.SchoolID] = m.SchoolName
		}
		updated := m.UpdatedAt.UTC()
		if updated.IsZero() {
			updated = time.Now().UTC()
		}
		rows = append(rows, models.SchoolMembership{UserID: m.UserID, SchoolID: m.SchoolID, UpdatedAt: updated})
	}

	for id, name := range schools {
		if name == "" {
			name = id
		}
		if err := w.schools.UpsertSchool(ctx, nil, &models.School{ID: id, Name: name}); err != nil {
			return 0, fmt.Errorf("upsert school %s: %w", id, err)
		}
	}
	if err := w.schools.UpsertMemberships(ctx, nil, dedupeByUser(rows)); err != nil {
		return 0, fmt.Errorf("upsert memberships: %w", err)
	}

	w.log.Info("roster synced", "memberships", len(rows), "schools", len(schools))
	return len(rows), nil
}

// dedupeByUser keeps the newest row per user; one upsert statement may not
// touch the same key twice on Postgres.
func dedupeByUser(rows []models.SchoolMembership) []models.SchoolMembership {
	latest := make(map[string]int, len(rows))
	out := make([]models.SchoolMembership, 0, len(rows))
	for _, r := range rows {
		if i, ok := latest[r.UserID]; ok {
			if r.UpdatedAt.After(out[i].UpdatedAt) {
				out[i] = r
			}
			continue
		}
		latest[r.UserID] = len(out)
		out = append(out, r)
	}
	return out
}

func (w *RosterSyncWorker) fetch(ctx context.Context, since time.Time) (*RosterChangesResponse, error) {
	endpointURL, err := url.Parse(w.endpoint)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("invalid roster sync URL %q: %w", w.endpoint, err))
	}
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("roster request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("roster service returned %d: %s", resp.StatusCode, string(body))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	var out RosterChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode roster response: %w", err))
	}
	return &out, nil
}
