// Package api provides HTTP handlers for chatform endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chatformhq/chatform/internal/models"
	"github.com/chatformhq/chatform/internal/session"
	"github.com/chatformhq/chatform/internal/util"
)

// ConnectivityApology is returned when the decision pipeline fails after all
// retries. The conversation state is untouched so the user can resend.
const ConnectivityApology = "I'm having trouble connecting right now. Please send that again in a moment."

func (s *Server) createBotHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.createBotHandler: processing create bot request", "path", r.URL.Path)

	var bot models.BotConfig
	if err := json.NewDecoder(r.Body).Decode(&bot); err != nil {
		slog.Warn("Server.createBotHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := bot.Validate(); err != nil {
		slog.Warn("Server.createBotHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	bot.ID = util.GenerateBotID()
	now := time.Now()
	bot.CreatedAt = now
	bot.UpdatedAt = now

	if err := s.store.SaveBotConfig(bot); err != nil {
		slog.Error("Server.createBotHandler: failed to save bot config", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save bot"))
		return
	}

	slog.Info("Server.createBotHandler: bot created", "botID", bot.ID, "name", bot.Name)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Bot created", bot))
}

func (s *Server) getBotHandler(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.loadBot(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(bot))
}

func (s *Server) listSubmissionsHandler(w http.ResponseWriter, r *http.Request) {
	bot, ok := s.loadBot(w, r)
	if !ok {
		return
	}
	subs, err := s.store.GetSubmissions(bot.ID)
	if err != nil {
		slog.Error("Server.listSubmissionsHandler: failed to load submissions", "error", err, "botID", bot.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load submissions"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(subs))
}

func (s *Server) createConversationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	bot, ok := s.loadBot(w, r)
	if !ok {
		return
	}

	state := models.NewConversationState()
	state.RecomputeMissingInfo(&bot.Schema)
	now := time.Now()
	convo := models.Conversation{
		ID:        util.GenerateConversationID(),
		BotID:     bot.ID,
		Messages:  []models.Message{},
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.SaveConversation(convo); err != nil {
		slog.Error("Server.createConversationHandler: failed to save conversation", "error", err, "botID", bot.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create conversation"))
		return
	}

	slog.Info("Server.createConversationHandler: conversation created", "conversationID", convo.ID, "botID", bot.ID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Conversation created", convo))
}

func (s *Server) getConversationHandler(w http.ResponseWriter, r *http.Request) {
	_, convo, ok := s.loadConversation(w, r)
	if !ok {
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(convo))
}

func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	bot, convo, ok := s.loadConversation(w, r)
	if !ok {
		return
	}

	var req models.ChatTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.messagesHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.messagesHandler: validation failed", "error", err, "conversationID", convo.ID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	input := session.TurnInput{
		Bot:               bot,
		Conversation:      convo,
		UserMessage:       req.Message,
		UploadedFiles:     req.UploadedFiles,
		UploadedDocuments: req.UploadedDocuments,
		ImageAnalysis:     req.ImageAnalysis,
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.streamTurn(w, r, input)
		return
	}
	s.bufferedTurn(w, r, input)
}

// bufferedTurn runs one turn and responds with a single JSON body.
func (s *Server) bufferedTurn(w http.ResponseWriter, r *http.Request, input session.TurnInput) {
	result, err := s.controller.ProcessTurn(r.Context(), input)
	if err != nil {
		slog.Error("Server.bufferedTurn: turn failed", "error", err, "conversationID", input.Conversation.ID)
		writeJSONResponse(w, http.StatusOK, models.ChatTurnResponse{
			Reply:        ConnectivityApology,
			UpdatedState: input.Conversation.State,
		})
		return
	}

	if err := s.store.SaveConversation(*input.Conversation); err != nil {
		slog.Error("Server.bufferedTurn: failed to save conversation", "error", err, "conversationID", input.Conversation.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save conversation"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.ChatTurnResponse{
		Reply:           result.Reply,
		UpdatedState:    result.State,
		ServiceMismatch: result.ServiceMismatch,
	})
}

// streamTurn runs one turn over server-sent events. Exactly one done chunk
// ends a successful stream; an error chunk appears instead of done, never
// after it.
func (s *Server) streamTurn(w http.ResponseWriter, r *http.Request, input session.TurnInput) {
	sw, err := newSSEWriter(w)
	if err != nil {
		slog.Error("Server.streamTurn: streaming unsupported", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Streaming not supported"))
		return
	}

	input.Emit = sw.WriteChunk
	result, err := s.controller.ProcessTurn(r.Context(), input)
	if err != nil {
		slog.Error("Server.streamTurn: turn failed", "error", err, "conversationID", input.Conversation.ID)
		sw.WriteChunk(models.StreamChunk{Type: models.ChunkTypeError, Error: ConnectivityApology})
		return
	}

	if err := s.store.SaveConversation(*input.Conversation); err != nil {
		slog.Error("Server.streamTurn: failed to save conversation", "error", err, "conversationID", input.Conversation.ID)
		sw.WriteChunk(models.StreamChunk{Type: models.ChunkTypeError, Error: "Failed to save conversation"})
		return
	}

	sw.WriteChunk(models.StreamChunk{Type: models.ChunkTypeDone, Content: result.Reply})
}

// loadBot resolves the {id} path value to a bot config, writing the error
// response itself when the bot cannot be served.
func (s *Server) loadBot(w http.ResponseWriter, r *http.Request) (*models.BotConfig, bool) {
	id := r.PathValue("id")
	bot, err := s.store.GetBotConfig(id)
	if errors.Is(err, models.ErrBotNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Bot not found"))
		return nil, false
	}
	if err != nil {
		slog.Error("Server.loadBot: failed to load bot config", "error", err, "botID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load bot"))
		return nil, false
	}
	return bot, true
}

// loadConversation resolves {id} and {cid} together, refusing conversations
// that belong to a different bot.
func (s *Server) loadConversation(w http.ResponseWriter, r *http.Request) (*models.BotConfig, *models.Conversation, bool) {
	bot, ok := s.loadBot(w, r)
	if !ok {
		return nil, nil, false
	}
	cid := r.PathValue("cid")
	convo, err := s.store.GetConversation(cid)
	if errors.Is(err, models.ErrConversationNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
		return nil, nil, false
	}
	if err != nil {
		slog.Error("Server.loadConversation: failed to load conversation", "error", err, "conversationID", cid)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load conversation"))
		return nil, nil, false
	}
	if convo.BotID != bot.ID {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Conversation not found"))
		return nil, nil, false
	}
	return bot, convo, true
}
