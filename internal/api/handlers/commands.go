package handlers

import (
	"net/http"

	"github.com/dvloznov/ledger-assistant/internal/api/middleware"
	"github.com/dvloznov/ledger-assistant/internal/commands"
	"github.com/dvloznov/ledger-assistant/internal/domain"
	"github.com/rs/zerolog"
)

// CommandsHandler exposes the dispatcher and the language-model assistant.
type CommandsHandler struct {
	dispatcher *commands.Dispatcher
	assistant  *commands.Assistant
	log        zerolog.Logger
}

// NewCommandsHandler creates a commands handler. assistant may be nil when no
// model is configured.
func NewCommandsHandler(dispatcher *commands.Dispatcher, assistant *commands.Assistant, log zerolog.Logger) *CommandsHandler {
	return &CommandsHandler{dispatcher: dispatcher, assistant: assistant, log: log}
}

// ListCommands handles GET /api/commands
func (h *CommandsHandler) ListCommands(w http.ResponseWriter, r *http.Request) {
	catalog := commands.Catalog()
	middleware.WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"commands": catalog,
		"count":    len(catalog),
	})
}

// RunCommand handles POST /api/commands/{name}. An empty body means no
// arguments.
func (h *CommandsHandler) RunCommand(w http.ResponseWriter, r *http.Request, name string) {
	args := map[string]any{}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &args); err != nil {
			middleware.WriteDomainError(w, err)
			return
		}
	}

	env := h.dispatcher.Dispatch(r.Context(), name, args)
	writeEnvelope(w, env, http.StatusOK)
}

// Ask handles POST /api/assistant
func (h *CommandsHandler) Ask(w http.ResponseWriter, r *http.Request) {
	if h.assistant == nil {
		middleware.WriteDomainError(w, domain.E(domain.KindUpstream, "Ask", "no language model is configured"))
		return
	}

	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeBody(r, &req); err != nil {
		middleware.WriteDomainError(w, err)
		return
	}

	env := h.assistant.Ask(r.Context(), req.Prompt)
	writeEnvelope(w, env, http.StatusOK)
}
