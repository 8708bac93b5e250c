package api

import (
	"net/http"
	"time"

	"github.com/St1cky1/restaurant-task-service/internal/api/handlers"
	"github.com/St1cky1/restaurant-task-service/internal/logging"
	"github.com/St1cky1/restaurant-task-service/internal/usecase"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

func NewRouter(taskService *usecase.TaskService, tokens handlers.TokenValidator) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	taskHandler := handlers.NewTaskHandler(taskService)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(handlers.Authenticator(tokens))

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", taskHandler.ListOpenTasks)
			r.Post("/", taskHandler.CreateTask)
			r.Get("/my", taskHandler.ListMyTasks)
			r.Get("/completed", taskHandler.ListCompletedTasks)
			r.Get("/overdue", taskHandler.ListOverdueTasks)
			r.Get("/sector/{sector}", taskHandler.ListSectorTasks)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", taskHandler.GetTask)
				r.Patch("/", taskHandler.UpdateTask)
				r.Delete("/", taskHandler.DeleteTask)
				r.Post("/complete", taskHandler.CompleteTask)
				r.Post("/close", taskHandler.CloseTask)
				r.Post("/rework", taskHandler.ReworkTask)
				r.Get("/audit", taskHandler.GetTaskAudit)
			})
		})

		r.Delete("/users/{id}", taskHandler.DeleteUser)
	})

	return r
}

// requestLogger пишет каждый запрос в общий logrus-логгер.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		logging.Logger.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
		}).Info("HTTP запрос")
	})
}
