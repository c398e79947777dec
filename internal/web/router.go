package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the full API surface.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ws", h.ServeWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/game", func(r chi.Router) {
			r.Get("/state", h.GetState)
			r.Post("/new", h.NewGame)
			r.Post("/continue", h.ContinueGame)
			r.Post("/save", h.SaveGame)
			r.Post("/finish", h.FinishAdventure)
		})

		r.Route("/keywords", func(r chi.Router) {
			r.Post("/toggle", h.ToggleKeyword)
			r.Post("/confirm", h.ConfirmKeywords)
			r.Post("/clear", h.ClearKeywords)
		})

		r.Route("/adventure", func(r chi.Router) {
			r.Post("/roll", h.RollAdventure)
			r.Post("/confirm", h.ConfirmAdventure)
		})

		r.Route("/character", func(r chi.Router) {
			r.Post("/", h.CreateCharacter)
			r.Put("/", h.UpdateCharacter)
		})

		r.Post("/action", h.SendAction)
		r.Post("/dice", h.RollDice)
		r.Post("/image/{index}", h.GenerateImage)
		r.Post("/npc", h.CreateNPC)
		r.Post("/tension", h.AdjustTension)
		r.Put("/notes", h.UpdateNotes)

		r.Route("/tutorial", func(r chi.Router) {
			r.Get("/", h.GetTutorial)
			r.Post("/seen", h.MarkTutorialSeen)
		})
	})

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Profile-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
