package api

import (
	"errors"
	"net/http"
	"strings"

	"aqua-backend/internal/mqtt"
)

// connectRequest overrides the configured broker; every field is optional
type connectRequest struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type topicRequest struct {
	Topic string `json:"topic"`
}

type publishRequest struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

type commandRequest struct {
	Command string `json:"command"`
	Value   any    `json:"value"`
}

func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) error {
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		return err
	}
	s.respondJSON(w, http.StatusOK, nonNil(s.deps.Connection.Messages(limit)))
	return nil
}

func (s *Server) clearMessages(w http.ResponseWriter, _ *http.Request) error {
	s.deps.Connection.ClearMessages()
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) getConnection(w http.ResponseWriter, _ *http.Request) error {
	s.respondJSON(w, http.StatusOK, s.deps.Connection.Status())
	return nil
}

// connect starts a connection attempt; the outcome arrives on the websocket.
// An empty body reconnects to the current endpoint.
func (s *Server) connect(w http.ResponseWriter, r *http.Request) error {
	var req connectRequest
	if r.ContentLength != 0 {
		var err error
		if req, err = decodeJSON[connectRequest](r); err != nil {
			return err
		}
	}

	opts := mqtt.ConnectOptions{
		Broker:   strings.TrimSpace(req.Broker),
		ClientID: strings.TrimSpace(req.ClientID),
		Username: req.Username,
		Password: req.Password,
	}
	if err := s.deps.Connection.Connect(opts); err != nil {
		return badRequest("%v", err)
	}
	s.respondJSON(w, http.StatusAccepted, s.deps.Connection.Status())
	return nil
}

func (s *Server) disconnect(w http.ResponseWriter, _ *http.Request) error {
	s.deps.Connection.Disconnect()
	s.respondJSON(w, http.StatusOK, s.deps.Connection.Status())
	return nil
}

func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeTopic(r)
	if err != nil {
		return err
	}
	if err := s.deps.Connection.Subscribe(req.Topic); err != nil {
		return err
	}
	s.respondJSON(w, http.StatusOK, s.deps.Connection.Status())
	return nil
}

func (s *Server) unsubscribe(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeTopic(r)
	if err != nil {
		return err
	}
	if err := s.deps.Connection.Unsubscribe(req.Topic); err != nil {
		return err
	}
	s.respondJSON(w, http.StatusOK, s.deps.Connection.Status())
	return nil
}

func (s *Server) publish(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeJSON[publishRequest](r)
	if err != nil {
		return err
	}
	if strings.TrimSpace(req.Topic) == "" {
		return badRequest("topic is required")
	}
	err = s.deps.Connection.Publish(r.Context(), req.Topic, []byte(req.Payload))
	return writeSent(w, err)
}

func (s *Server) sendCommand(w http.ResponseWriter, r *http.Request) error {
	req, err := decodeJSON[commandRequest](r)
	if err != nil {
		return err
	}
	if strings.TrimSpace(req.Command) == "" {
		return badRequest("command is required")
	}
	err = s.deps.Commands.SendCommand(r.Context(), req.Command, req.Value)
	return writeSent(w, err)
}

// writeSent answers 204 for a confirmed publish and 202 for one the broker
// has not acknowledged yet
func writeSent(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, mqtt.ErrUnacknowledged):
		w.WriteHeader(http.StatusAccepted)
	case err != nil:
		return err
	default:
		w.WriteHeader(http.StatusNoContent)
	}
	return nil
}

func decodeTopic(r *http.Request) (topicRequest, error) {
	req, err := decodeJSON[topicRequest](r)
	if err != nil {
		return req, err
	}
	if strings.TrimSpace(req.Topic) == "" {
		return req, badRequest("topic is required")
	}
	return req, nil
}
