// Package interactions answers Discord interaction webhooks. Requests must
// already be signature-verified by middleware.VerifySignature.
package interactions

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/repeatbot/internal/metrics"
)

// Interaction types.
const (
	TypePing               = 1
	TypeApplicationCommand = 2
	TypeMessageComponent   = 3
	TypeAutocomplete       = 4
	TypeModalSubmit        = 5
)

// Response types.
const (
	ResponsePong                     = 1
	ResponseChannelMessageWithSource = 4
	ResponseAutocompleteResult       = 8
)

// FlagEphemeral makes a reply visible only to the invoking user.
const FlagEphemeral = 1 << 6

const maxBody = 1 << 20

type Interaction struct {
	ID   string          `json:"id"`
	Type int             `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type commandData struct {
	Name string `json:"name"`
}

type Response struct {
	Type int           `json:"type"`
	Data *ResponseData `json:"data,omitempty"`
}

type ResponseData struct {
	Content string `json:"content,omitempty"`
	Flags   int    `json:"flags,omitempty"`
}

type autocompleteResponse struct {
	Type int `json:"type"`
	Data struct {
		Choices []any `json:"choices"`
	} `json:"data"`
}

type Handler struct {
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewHandler(m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{metrics: m, logger: logger}
}

// ServeHTTP handles POST /interactions.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var in Interaction
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	h.metrics.Interactions.WithLabelValues(typeName(in.Type)).Inc()

	switch in.Type {
	case TypePing:
		writeJSON(w, http.StatusOK, Response{Type: ResponsePong})
	case TypeApplicationCommand:
		writeJSON(w, http.StatusOK, h.command(in))
	case TypeMessageComponent, TypeModalSubmit:
		writeJSON(w, http.StatusOK, ephemeral("This interaction is not supported."))
	case TypeAutocomplete:
		resp := autocompleteResponse{Type: ResponseAutocompleteResult}
		resp.Data.Choices = []any{}
		writeJSON(w, http.StatusOK, resp)
	default:
		h.logger.Warn("unknown interaction type", "type", in.Type, "id", in.ID)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown interaction type"})
	}
}

// command acknowledges slash commands. The bot registers none, so every
// name is unknown.
func (h *Handler) command(in Interaction) Response {
	var data commandData
	if len(in.Data) > 0 {
		if err := json.Unmarshal(in.Data, &data); err != nil {
			h.logger.Warn("decode command data", "id", in.ID, "error", err)
		}
	}
	h.logger.Debug("unsupported command", "name", data.Name, "id", in.ID)
	return ephemeral("Unknown command.")
}

func ephemeral(content string) Response {
	return Response{
		Type: ResponseChannelMessageWithSource,
		Data: &ResponseData{Content: content, Flags: FlagEphemeral},
	}
}

func typeName(t int) string {
	switch t {
	case TypePing:
		return "ping"
	case TypeApplicationCommand:
		return "command"
	case TypeMessageComponent:
		return "component"
	case TypeAutocomplete:
		return "autocomplete"
	case TypeModalSubmit:
		return "modal"
	default:
		return "unknown"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
