package web

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-voiceagent/pkg/catalog"
	"github.com/teslashibe/go-voiceagent/pkg/hub"
	"github.com/teslashibe/go-voiceagent/pkg/orchestrator"
	"github.com/teslashibe/go-voiceagent/pkg/tools"
	"github.com/teslashibe/go-voiceagent/pkg/voice"
)

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status    voice.Status             `json:"status"`
	SessionID string                   `json:"session_id,omitempty"`
	Model     *catalog.ModelDefinition `json:"model,omitempty"`
	Settings  catalog.Settings         `json:"settings"`
	Metrics   *voice.SessionMetrics    `json:"metrics,omitempty"`
	Player    orchestrator.PlayerStats `json:"player"`
	Clients   map[string]int           `json:"clients"`
}

// ModelsResponse is the body of GET /api/models.
type ModelsResponse struct {
	DefaultModel  string                     `json:"default_model"`
	FallbackChain []string                   `json:"fallback_chain"`
	Models        []catalog.ModelDefinition  `json:"models"`
	Providers     []catalog.ProviderSettings `json:"providers"`
}

// StartRequest is the optional body of POST /api/session/start.
type StartRequest struct {
	Model string `json:"model"`
}

// TriggerToolRequest is the body of POST /api/tools/:name.
type TriggerToolRequest struct {
	Args map[string]any `json:"args"`
}

// AttemptInfo is one failed model in a 502 response.
type AttemptInfo struct {
	Model string `json:"model"`
	Error string `json:"error"`
}

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error    string        `json:"error"`
	Attempts []AttemptInfo `json:"attempts,omitempty"`
}

// errorHandler renders errors as JSON. Agent errors map to HTTP statuses.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	body := errorResponse{Error: err.Error()}

	var fe *fiber.Error
	var fallback *orchestrator.FallbackError
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, orchestrator.ErrAlreadyRunning):
		code = fiber.StatusConflict
	case errors.Is(err, catalog.ErrUnknownModel),
		errors.Is(err, catalog.ErrUnknownProvider),
		errors.Is(err, catalog.ErrUnknownVoice),
		errors.Is(err, catalog.ErrUnknownVADPreset):
		code = fiber.StatusBadRequest
	case errors.As(err, &fallback):
		code = fiber.StatusBadGateway
		for _, a := range fallback.Attempts {
			body.Attempts = append(body.Attempts, AttemptInfo{Model: a.Model, Error: a.Err.Error()})
		}
	case errors.Is(err, orchestrator.ErrProviderNotConfigured),
		errors.Is(err, orchestrator.ErrClosed):
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(body)
}

// handleStatus returns the session state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := StatusResponse{
		Status:    s.agent.Status(),
		SessionID: s.agent.SessionID(),
		Settings:  s.agent.Settings(),
		Player:    s.agent.PlayerStats(),
		Clients: map[string]int{
			"events": s.events.ClientCount(),
			"audio":  s.audio.ClientCount(),
		},
	}
	if m, ok := s.agent.ActiveModel(); ok {
		resp.Model = &m
		metrics := s.agent.Metrics()
		resp.Metrics = &metrics
	}
	return c.JSON(resp)
}

// handleModels lists the catalogue
func (s *Server) handleModels(c *fiber.Ctx) error {
	cat := s.agent.Catalog()
	return c.JSON(ModelsResponse{
		DefaultModel:  cat.DefaultModel(),
		FallbackChain: cat.FallbackChain(),
		Models:        cat.Models(),
		Providers:     cat.Providers(),
	})
}

// handleVoices lists the voices of one provider
func (s *Server) handleVoices(c *fiber.Ctx) error {
	cat := s.agent.Catalog()
	id := catalog.ProviderID(c.Params("provider"))
	if _, err := cat.Provider(id); err != nil {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return c.JSON(cat.Voices(id))
}

func (s *Server) handleVADPresets(c *fiber.Ctx) error {
	return c.JSON(s.agent.Catalog().VADPresets())
}

func (s *Server) handleGetConfig(c *fiber.Ctx) error {
	return c.JSON(s.agent.Settings())
}

// handlePatchConfig applies a partial settings update. An active session
// restarts when the change affects it.
func (s *Server) handlePatchConfig(c *fiber.Ctx) error {
	var patch catalog.SettingsPatch
	if err := c.BodyParser(&patch); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.startTimeout)
	defer cancel()

	settings, err := s.agent.UpdateConfig(ctx, patch)
	if err != nil {
		return err
	}
	return c.JSON(settings)
}

// handleSessionStart starts a session, optionally on a specific model
func (s *Server) handleSessionStart(c *fiber.Ctx) error {
	var req StartRequest
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.startTimeout)
	defer cancel()

	if err := s.agent.StartWithModel(ctx, req.Model); err != nil {
		return err
	}
	return s.handleStatus(c)
}

func (s *Server) handleSessionStop(c *fiber.Ctx) error {
	if err := s.agent.Stop(); err != nil {
		return err
	}
	return s.handleStatus(c)
}

func (s *Server) handleSessionRestart(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.startTimeout)
	defer cancel()

	if err := s.agent.Restart(ctx); err != nil {
		return err
	}
	return s.handleStatus(c)
}

// handleListTools renders the tool set in a vendor format
func (s *Server) handleListTools(c *fiber.Ctx) error {
	defs := s.agent.Tools()
	switch c.Query("format", "jsonschema") {
	case "gemini":
		return c.JSON(tools.GeminiDeclarations(defs))
	case "openai":
		return c.JSON(tools.OpenAITools(defs))
	case "jsonschema":
		return c.JSON(tools.JSONSchemaTools(defs))
	default:
		return fiber.NewError(fiber.StatusBadRequest, "unknown format "+c.Query("format"))
	}
}

// handleTriggerTool runs a tool outside of a conversation
func (s *Server) handleTriggerTool(c *fiber.Ctx) error {
	name := c.Params("name")
	if !s.agent.HasTool(name) {
		return fiber.NewError(fiber.StatusNotFound, "unknown tool "+name)
	}

	var req TriggerToolRequest
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid body: "+err.Error())
		}
	}
	if req.Args == nil {
		req.Args = map[string]any{}
	}

	result := s.agent.ExecuteTool(context.Background(), name, req.Args)
	if !result.Success {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(result)
	}
	return c.JSON(result)
}

// snapshot is the first message on /ws/events.
type snapshot struct {
	Type      string           `json:"type"`
	Status    voice.Status     `json:"status"`
	SessionID string           `json:"session_id,omitempty"`
	Settings  catalog.Settings `json:"settings"`
}

// audioFormat is the first message on /ws/audio.
type audioFormat struct {
	Type             string `json:"type"`
	InputSampleRate  int    `json:"input_sample_rate"`
	OutputSampleRate int    `json:"output_sample_rate,omitempty"`
	Encoding         string `json:"encoding"`
}

// handleEventsWS streams orchestrator events as JSON
func (s *Server) handleEventsWS(conn *websocket.Conn) {
	client := hub.NewClient(s.events, conn)
	if data, err := json.Marshal(snapshot{
		Type:      "snapshot",
		Status:    s.agent.Status(),
		SessionID: s.agent.SessionID(),
		Settings:  s.agent.Settings(),
	}); err == nil {
		client.Send(hub.NewJSONMessage(data))
	}
	client.Run()
}

// handleAudioWS bridges browser audio. Binary frames in are PCM16 at the
// input rate; binary frames out are assistant audio.
func (s *Server) handleAudioWS(conn *websocket.Conn) {
	client := hub.NewClient(s.audio, conn)
	format := audioFormat{
		Type:             "format",
		InputSampleRate:  s.inputRate,
		OutputSampleRate: s.outputRate,
		Encoding:         "pcm16le",
	}
	if data, err := json.Marshal(format); err == nil {
		client.Send(hub.NewJSONMessage(data))
	}
	client.Run()
}
