package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"Uncanny-Terrors/server/internal/engine"
	"Uncanny-Terrors/server/internal/models"
	"Uncanny-Terrors/server/internal/storage"
)

const defaultProfile = "default"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler exposes the game engine over HTTP.
type Handler struct {
	engine *engine.GameEngine
	hub    *EventHub
	log    zerolog.Logger
}

func NewHandler(gameEngine *engine.GameEngine, hub *EventHub, log zerolog.Logger) *Handler {
	return &Handler{
		engine: gameEngine,
		hub:    hub,
		log:    log.With().Str("component", "web").Logger(),
	}
}

// profileID resolves the acting profile from the X-Profile-ID header, falling
// back to the query parameter and then the shared default slot.
func profileID(r *http.Request) string {
	if id := r.Header.Get("X-Profile-ID"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("profile"); id != "" {
		return id
	}
	return defaultProfile
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}

// writeGameError maps the engine's sentinel errors onto HTTP statuses.
func (h *Handler) writeGameError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrConfirmRequired):
		writeError(w, http.StatusConflict, "confirm_required", err.Error())
	case errors.Is(err, engine.ErrBusy), errors.Is(err, engine.ErrImageExists):
		writeError(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, storage.ErrNoSave):
		writeError(w, http.StatusNotFound, "no_save", err.Error())
	case errors.Is(err, engine.ErrInvalidKeywords),
		errors.Is(err, engine.ErrNoKeywords),
		errors.Is(err, engine.ErrNoAdventure),
		errors.Is(err, engine.ErrAdventureSet),
		errors.Is(err, engine.ErrInvalidCharacter),
		errors.Is(err, engine.ErrCharacterExists),
		errors.Is(err, engine.ErrNoCharacter),
		errors.Is(err, engine.ErrEmptyAction),
		errors.Is(err, engine.ErrNoSuchMessage),
		errors.Is(err, engine.ErrNotAssistantScene):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	default:
		h.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

// HealthCheck reports service liveness.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": h.hub.ClientCount(),
	})
}

// GetState returns the full snapshot: derived screen, aggregate, in-flight
// flags, and whether the save slot holds a document.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	profile := profileID(r)
	snapshot := h.engine.Session(profile).Snapshot()

	hasSave, err := h.engine.HasSave(r.Context(), profile)
	if err != nil {
		h.writeGameError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"screen":        snapshot.Screen,
		"state":         snapshot.State,
		"turnBusy":      snapshot.TurnBusy,
		"imageInFlight": snapshot.ImageInFlight,
		"hasSave":       hasSave,
	})
}

// NewGame starts a fresh game. An existing save slot requires confirm=true
// and is deleted on the way through.
func (h *Handler) NewGame(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	decodeBody(r, &req)

	profile := profileID(r)
	if err := h.engine.NewGame(r.Context(), profile, req.Confirm); err != nil {
		h.writeGameError(w, err)
		return
	}

	h.hub.Publish(EventStateChanged, profile, nil)
	writeJSON(w, http.StatusOK, h.engine.Session(profile).Snapshot())
}

// ContinueGame restores the session from the save slot.
func (h *Handler) ContinueGame(w http.ResponseWriter, r *http.Request) {
	profile := profileID(r)
	if err := h.engine.ContinueGame(r.Context(), profile); err != nil {
		h.writeGameError(w, err)
		return
	}

	h.hub.Publish(EventStateChanged, profile, nil)
	writeJSON(w, http.StatusOK, h.engine.Session(profile).Snapshot())
}

// SaveGame writes the aggregate into the slot.
func (h *Handler) SaveGame(w http.ResponseWriter, r *http.Request) {
	profile := profileID(r)
	savedAt, err := h.engine.SaveGame(r.Context(), profile)
	if err != nil {
		h.writeGameError(w, err)
		return
	}

	h.hub.Publish(EventSaved, profile, map[string]int64{"savedAt": savedAt})
	writeJSON(w, http.StatusOK, map[string]int64{"savedAt": savedAt})
}

// FinishAdventure ends the run and resets the session. Requires confirm=true;
// the save slot is left alone.
func (h *Handler) FinishAdventure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Confirm bool `json:"confirm"`
	}
	decodeBody(r, &req)

	profile := profileID(r)
	if err := h.engine.FinishAdventure(profile, req.Confirm); err != nil {
		h.writeGameError(w, err)
		return
	}

	h.hub.Publish(EventStateChanged, profile, nil)
	writeJSON(w, http.StatusOK, h.engine.Session(profile).Snapshot())
}

// ToggleKeyword flips one keyword in the pending selection.
func (h *Handler) ToggleKeyword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keyword string `json:"keyword"`
	}
	if err := decodeBody(r, &req); err != nil || req.Keyword == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "keyword is required")
		return
	}

	selection := h.engine.Session(profileID(r)).ToggleKeyword(req.Keyword)
	writeJSON(w, http.StatusOK, map[string]interface{}{"selection": selection})
}

// ConfirmKeywords commits the keyword selection and moves to the adventure
// screen.
func (h *Handler) ConfirmKeywords(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Keywords []string `json:"keywords"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}

	profile := profileID(r)
	if err := h.engine.Session(profile).ConfirmKeywords(req.Keywords); err != nil {
		h.writeGameError(w, err)
		return
	}

	h.hub.Publish(EventStateChanged, profile, nil)
	writeJSON(w, http.StatusOK, h.engine.Session(profile).Snapshot())
}

// ClearKeywords returns to the keyword screen, discarding the confirmed set
// and any proposed adventure.
func (h *Handler) ClearKeywords(w http.ResponseWriter, r *http.Request) {
	profile := profileID(r)
	h.engine.Session(profile).BackToKeywords()

	h.hub.Publish(EventStateChanged, profile, nil)
	writeJSON(w, http.StatusOK, h.engine.Session(profile).Snapshot())
}

// RollAdventure asks the narrator for a hook proposal without committing it.
func (h *Handler) RollAdventure(w http.ResponseWriter, r *http.Request) {
	adventure, err := h.engine.Session(profileID(r)).RollAdventure(r.Context())
	if err != nil {
		h.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adventure)
}

// ConfirmAdventure freezes the chosen hook.
func (h *Handler) ConfirmAdventure(w http.ResponseWriter, r *http.Request) {
	var adv models.Adventure
	if err := decodeBody(r, &adv); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}

	profile := profileID(r)
	if err := h.engine.Session(profile).ConfirmAdventure(adv); err != nil {
		h.writeGameError(w, err)
		return
	}

	h.hub.Publish(EventStateChanged, profile, nil)
	writeJSON(w, http.StatusOK, h.engine.Session(profile).Snapshot())
}

// CreateCharacter validates the sheet and opens the adventure. The response
// includes the opening scene, which may be the fixed fallback when the
// narrator fails.
func (h *Handler) CreateCharacter(w http.ResponseWriter, r *http.Request) {
	var char models.Character
	if err := decodeBody(r, &char); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}

	profile := profileID(r)
	if err := h.engine.Session(profile).CreateCharacter(r.Context(), &char); err != nil {
		h.writeGameError(w, err)
		return
	}

	snapshot := h.engine.Session(profile).Snapshot()
	h.hub.Publish(EventStateChanged, profile, nil)
	if len(snapshot.State.History) > 0 {
		h.hub.Publish(EventScene, profile, snapshot.State.History[0])
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// UpdateCharacter replaces the sheet mid game.
func (h *Handler) UpdateCharacter(w http.ResponseWriter, r *http.Request) {
	var char models.Character
	if err := decodeBody(r, &char); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}

	profile := profileID(r)
	if err := h.engine.Session(profile).UpdateCharacter(&char); err != nil {
		h.writeGameError(w, err)
		return
	}

	h.hub.Publish(EventStateChanged, profile, nil)
	writeJSON(w, http.StatusOK, h.engine.Session(profile).Snapshot())
}

// SendAction submits a player action and returns the narrator reply.
func (h *Handler) SendAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}

	profile := profileID(r)
	reply, err := h.engine.Session(profile).SendAction(r.Context(), req.Text)
	if err != nil {
		h.writeGameError(w, err)
		return
	}

	h.hub.Publish(EventScene, profile, reply)
	writeJSON(w, http.StatusOK, reply)
}

// RollDice draws the dice pools and feeds the report into the conversation.
func (h *Handler) RollDice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Positive int `json:"positive"`
		Negative int `json:"negative"`
		Modifier int `json:"modifier"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}

	profile := profileID(r)
	roll, reply, err := h.engine.Session(profile).RollDice(r.Context(), req.Positive, req.Negative, req.Modifier)
	if err != nil {
		h.writeGameError(w, err)
		return
	}

	h.hub.Publish(EventScene, profile, reply)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"roll":  roll,
		"reply": reply,
	})
}

// GenerateImage renders the scene at one transcript index.
func (h *Handler) GenerateImage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "index must be an integer")
		return
	}

	profile := profileID(r)
	image, err := h.engine.Session(profile).GenerateImage(r.Context(), index)
	if err != nil {
		h.writeGameError(w, err)
		return
	}

	if image != "" {
		h.hub.Publish(EventImage, profile, map[string]interface{}{"index": index})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"index": index,
		"image": image,
	})
}

// CreateNPC invents an NPC and appends it to the roster.
func (h *Handler) CreateNPC(w http.ResponseWriter, r *http.Request) {
	profile := profileID(r)
	npc, err := h.engine.Session(profile).CreateNPC(r.Context())
	if err != nil {
		h.writeGameError(w, err)
		return
	}

	h.hub.Publish(EventStateChanged, profile, nil)
	writeJSON(w, http.StatusOK, npc)
}

// AdjustTension shifts the tension clock by delta, clamped to its range.
func (h *Handler) AdjustTension(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta int `json:"delta"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}

	profile := profileID(r)
	tension := h.engine.Session(profile).AdjustTension(req.Delta)

	h.hub.Publish(EventStateChanged, profile, nil)
	writeJSON(w, http.StatusOK, map[string]int{"tension": tension})
}

// UpdateNotes replaces the free-text notes.
func (h *Handler) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed body")
		return
	}

	h.engine.Session(profileID(r)).UpdateNotes(req.Notes)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// GetTutorial reports whether the profile has seen the tutorial.
func (h *Handler) GetTutorial(w http.ResponseWriter, r *http.Request) {
	seen, err := h.engine.TutorialSeen(r.Context(), profileID(r))
	if err != nil {
		h.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"seen": seen})
}

// MarkTutorialSeen sets the tutorial flag.
func (h *Handler) MarkTutorialSeen(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.MarkTutorialSeen(r.Context(), profileID(r)); err != nil {
		h.writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"seen": true})
}

// ServeWS upgrades the connection and subscribes the client to game events.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		ID:   uuid.NewString(),
		Conn: conn,
		Send: make(chan []byte, 64),
		hub:  h.hub,
	}
	h.hub.register <- client
	go client.readPump()
}
