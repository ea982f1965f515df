package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"squad-hub/models"
	"squad-hub/services"

	"github.com/gofiber/fiber/v2"
)

const keepAliveInterval = 15 * time.Second

// feed keeps only the newest snapshot; a slow client skips intermediate
// views rather than backing up the observer.
type feed struct {
	mu     sync.Mutex
	latest []byte
	ready  chan struct{}
}

func newFeed() *feed {
	return &feed{ready: make(chan struct{}, 1)}
}

func (f *feed) push(payload []byte) {
	f.mu.Lock()
	f.latest = payload
	f.mu.Unlock()
	select {
	case f.ready <- struct{}{}:
	default:
	}
}

func (f *feed) take() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.latest
	f.latest = nil
	return p
}

type observeFunc func(ctx context.Context, push func(v any)) (stop func(), err error)

// SetupStreamRoutes registers the SSE views of the queue lobbies and team
// rosters. auth authenticates the stream request.
func SetupStreamRoutes(app fiber.Router, auth fiber.Handler, queue *services.QueueService, teams *services.TeamService, logger *slog.Logger) {
	app.Get("/queue/:mode/stream", auth, func(c *fiber.Ctx) error {
		mode := c.Params("mode")
		return stream(c, logger, "queue", func(ctx context.Context, push func(any)) (func(), error) {
			return queue.ObserveQueue(ctx, mode, func(list []services.QueuedPlayer) { push(list) })
		})
	})

	app.Get("/teams/:id/stream", auth, func(c *fiber.Ctx) error {
		teamID := c.Params("id")
		return stream(c, logger, "team", func(ctx context.Context, push func(any)) (func(), error) {
			return teams.ObserveTeam(ctx, teamID, func(t *models.Team) { push(t) })
		})
	})
}

func stream(c *fiber.Ctx, logger *slog.Logger, event string, observe observeFunc) error {
	f := newFeed()
	ctx, cancel := context.WithCancel(context.Background())

	stop, err := observe(ctx, func(v any) {
		payload, err := json.Marshal(v)
		if err != nil {
			logger.Error("failed to encode stream event", slog.String("event", event), slog.Any("error", err))
			return
		}
		f.push(payload)
	})
	if err != nil {
		cancel()
		return respondError(c, err)
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	path := c.Path()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer stop()

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case <-f.ready:
				if payload := f.take(); payload != nil {
					fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
				}
			case <-ticker.C:
				_, _ = w.WriteString(":\n\n")
			}
			// A failed flush means the client went away.
			if err := w.Flush(); err != nil {
				logger.Debug("stream closed", slog.String("path", path))
				return
			}
		}
	})
	return nil
}
