// Package paulpoll exposes the bot as cloud function entry points.
package paulpoll

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/CedricFinance/paulpoll/application"
	"github.com/CedricFinance/paulpoll/config"
	"github.com/gin-gonic/gin"
)

var (
	initOnce sync.Once
	app      *application.App
	router   *gin.Engine
	initErr  error
)

func setup() error {
	initOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)

		var cfg *config.Config
		cfg, initErr = config.LoadConfig()
		if initErr != nil {
			return
		}
		if initErr = cfg.Validate(); initErr != nil {
			return
		}

		app, initErr = application.Build(context.Background(), cfg, slog.Default())
		if initErr != nil {
			return
		}
		router = app.Router()
	})
	return initErr
}

func serve(w http.ResponseWriter, r *http.Request, path string) {
	if err := setup(); err != nil {
		slog.Error("cannot start paul", "error", err)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	r.URL.Path = path
	router.ServeHTTP(w, r)
}

func OnSlashCommandTrigger(w http.ResponseWriter, r *http.Request) {
	serve(w, r, "/slack/commands")
}

func OnActionTrigger(w http.ResponseWriter, r *http.Request) {
	serve(w, r, "/slack/actions")
}

// OnSchedulerTick runs the background jobs once. It is meant to be called by
// a cron trigger, every minute or so.
func OnSchedulerTick(w http.ResponseWriter, r *http.Request) {
	if err := setup(); err != nil {
		slog.Error("cannot start paul", "error", err)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := app.Worker.RunOnce(r.Context()); err != nil {
		slog.Error("scheduler tick failed", "error", err)
		http.Error(w, "tick failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
