package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/x/exp/ordered"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dotcommander/toolchat/internal/agent"
	"github.com/dotcommander/toolchat/internal/errs"
	"github.com/dotcommander/toolchat/internal/proto"
	"github.com/dotcommander/toolchat/internal/stream"
)

const maxBodyBytes = 1 << 20

// ChatMessage is one turn of an incoming conversation.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Model       string        `json:"model"`
	Temperature *float64      `json:"temperature" validate:"omitempty,gte=0,lte=1"`
	MaxTokens   *int64        `json:"max_tokens" validate:"omitempty,gt=0"`
	Stream      bool          `json:"stream"`
}

// ChatResponse is the JSON answer, and the payload of every streamed event.
type ChatResponse struct {
	Content string `json:"content"`
	Role    string `json:"role"`
	Done    bool   `json:"done,omitempty"`
	Error   bool   `json:"error,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func decodeChat(w http.ResponseWriter, r *http.Request) (ChatRequest, int, error) {
	var req ChatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		return req, http.StatusBadRequest, errs.Wrap(err, "Invalid JSON body.")
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.TrimPrefix(fe.Namespace(), "ChatRequest."), fe.Tag()))
			}
			return req, http.StatusUnprocessableEntity, errs.Wrap(errs.UserErrorf("%s", strings.Join(msgs, "; ")), "Invalid chat request.")
		}
		return req, http.StatusUnprocessableEntity, errs.Wrap(err, "Invalid chat request.")
	}
	return req, http.StatusOK, nil
}

func (s *Server) agentRequest(req ChatRequest) agent.Request {
	messages := make([]proto.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, proto.Message{Role: m.Role, Content: m.Content})
	}
	temperature := s.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	var maxTokens int64
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	maxTokens = ordered.First(maxTokens, s.opts.MaxTokens)
	out := agent.Request{
		Messages:    messages,
		Model:       ordered.First(req.Model, s.opts.Model),
		Temperature: &temperature,
	}
	if maxTokens > 0 {
		out.MaxTokens = &maxTokens
	}
	return out
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx, span := s.tracer.Start(r.Context(), "chat",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("request_id", RequestID(r.Context()))),
	)
	defer span.End()

	req, status, err := decodeChat(w, r)
	if err != nil {
		span.SetStatus(codes.Error, "invalid request")
		s.writeError(w, status, err)
		return
	}
	areq := s.agentRequest(req)
	span.SetAttributes(
		attribute.String("model", areq.Model),
		attribute.Bool("stream", req.Stream),
		attribute.Int("messages", len(areq.Messages)),
	)

	if req.Stream {
		s.streamChat(w, r.WithContext(ctx), areq, span)
		return
	}

	reply, err := s.agent.Answer(ctx, areq)
	span.SetAttributes(
		attribute.String("route", reply.Route.Kind.String()),
		attribute.Int("tool_calls", len(reply.Invocations)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errs.KindOf(err)))
		s.logger.Error("chat failed", "request_id", RequestID(ctx), "kind", errs.KindOf(err), "err", err)
		s.writeError(w, statusFor(err), err)
		return
	}
	span.SetStatus(codes.Ok, "")
	s.writeJSON(w, http.StatusOK, ChatResponse{Content: reply.Content, Role: proto.RoleAssistant})
}

func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, req agent.Request, span trace.Span) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, errs.Wrap(errors.New("response writer cannot flush"), "Streaming not supported."))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	deltas := 0
	for ev := range s.bridge.Events(ctx, s.agent.Stream(ctx, req)) {
		payload := ChatResponse{Role: proto.RoleAssistant, Content: ev.Text}
		switch ev.Kind {
		case stream.EventDelta:
			deltas++
		case stream.EventDone:
			payload.Done = true
			span.SetStatus(codes.Ok, "")
		case stream.EventError:
			payload.Done = true
			payload.Error = true
			span.RecordError(ev.Err)
			span.SetStatus(codes.Error, string(errs.KindOf(ev.Err)))
			s.logger.Error("chat stream failed", "request_id", RequestID(ctx), "kind", errs.KindOf(ev.Err), "err", ev.Err)
		}
		if err := writeEvent(w, payload); err != nil {
			s.logger.Debug("client went away", "request_id", RequestID(ctx), "err", err)
			return
		}
		flusher.Flush()
	}
	span.SetAttributes(attribute.Int("deltas", deltas))
}

func writeEvent(w http.ResponseWriter, payload ChatResponse) error {
	bts, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", bts)
	return err
}

func statusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindModelInference:
		return http.StatusBadGateway
	case errs.KindTransportTimeout:
		return http.StatusGatewayTimeout
	case errs.KindUnknown:
		var e errs.Error
		if errors.As(err, &e) {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	content := errs.Reason(err, http.StatusText(status))
	var e errs.Error
	if errors.As(err, &e) && e.Kind == errs.KindUnknown && e.Err != nil && status < http.StatusInternalServerError {
		content = strings.TrimSpace(content + " " + e.Err.Error())
	}
	s.writeJSON(w, status, ChatResponse{Content: content, Role: proto.RoleAssistant, Error: true})
}
