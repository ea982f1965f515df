package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"squad-hub/models"

	"gorm.io/gorm"
)

// RemoteProfile is one changed profile as reported by the profile service.
type RemoteProfile struct {
	ExternalID        string    `json:"external_id"`
	Username          string    `json:"username"`
	ProfilePictureURL *string   `json:"profile_picture_url,omitempty"`
	CoverPhotoURL     *string   `json:"cover_photo_url,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

// ProfileSyncWorker pulls profile changes and refreshes the display fields
// of players that already exist locally. Players are never created here;
// that happens on first sign-in.
type ProfileSyncWorker struct {
	db           *gorm.DB
	log          *slog.Logger
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client

	since time.Time
}

func NewProfileSyncWorker(db *gorm.DB, logger *slog.Logger, baseURL, endpointPath, serviceToken string, interval time.Duration) *ProfileSyncWorker {
	return &ProfileSyncWorker{
		db:           db,
		log:          logger.With(slog.String("worker", "profile_sync")),
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Start runs the worker in the background until ctx is done.
func (w *ProfileSyncWorker) Start(ctx context.Context) {
	w.log.Info("starting profile sync", slog.String("base_url", w.baseURL), slog.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *ProfileSyncWorker) run(ctx context.Context) {
	if _, err := w.SyncOnce(ctx); err != nil {
		w.log.Warn("initial profile sync failed", slog.Any("error", err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				w.log.Error("profile sync failed", slog.Any("error", err))
			}
		case <-ctx.Done():
			w.log.Info("profile sync stopped")
			return
		}
	}
}

// SyncOnce fetches the changes since the last successful batch and applies
// them. It returns how many local players were updated.
func (w *ProfileSyncWorker) SyncOnce(ctx context.Context) (int, error) {
	profiles, err := w.fetch(ctx, w.since)
	if err != nil {
		return 0, err
	}

	updated, failed := 0, 0
	latest := w.since
	for _, p := range profiles {
		if p.UpdatedAt.After(latest) {
			latest = p.UpdatedAt
		}
		if p.ExternalID == "" {
			continue
		}

		updates := map[string]interface{}{
			"updated_at": time.Now().UTC(),
		}
		if p.Username != "" {
			updates["nickname"] = p.Username
		}
		// A missing picture keeps whatever the player uploaded here.
		if p.ProfilePictureURL != nil {
			updates["avatar_url"] = *p.ProfilePictureURL
		}
		if p.CoverPhotoURL != nil {
			updates["profile_cover_url"] = *p.CoverPhotoURL
		}
		res := w.db.WithContext(ctx).Model(&models.Player{}).Where("auth_id = ?", p.ExternalID).Updates(updates)
		if res.Error != nil {
			failed++
			w.log.Warn("failed to apply profile", slog.String("auth_id", p.ExternalID), slog.Any("error", res.Error))
			continue
		}
		updated += int(res.RowsAffected)
	}

	// Retry the whole window next time if anything failed.
	if failed == 0 {
		w.since = latest
	}
	if len(profiles) > 0 {
		w.log.Info("profile batch applied",
			slog.Int("received", len(profiles)),
			slog.Int("updated", updated),
			slog.Int("errors", failed),
		)
	}
	return updated, nil
}

func (w *ProfileSyncWorker) fetch(ctx context.Context, since time.Time) ([]RemoteProfile, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid profile service URL %q: %w", w.baseURL, err)
	}
	endpoint := base.JoinPath(w.endpointPath)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile service request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("profile service returned %d: %s", resp.StatusCode, body)
	}

	var out profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode profile service response: %w", err)
	}
	return out.Users, nil
}
