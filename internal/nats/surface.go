// Package nats is a second control surface: JSON commands in, state out.
//
// Subjects, for a base subject S:
//
//	S.command    control.Command as JSON; replies {"ok":true} or {"error":...}
//	S.state      retained-style broadcast of control.State
//	S.state.get  request, replied with the current control.State
package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/agusx1211/spatial-eq/internal/control"
)

// Connection is the part of *nats.Conn the surface uses.
type Connection interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
	Drain() error
	Close()
}

// StateFunc returns the current state for request-reply.
type StateFunc func() (control.State, error)

type reply struct {
	OK    bool   `json:"ok,omitempty"`
	Error string `json:"error,omitempty"`
}

type Surface struct {
	conn        Connection
	subject     string
	state       StateFunc
	commandChan chan<- control.Command
}

// Connect dials url, retrying a few times like a device waiting for its hub.
func Connect(url string, attempts int, wait time.Duration) (*nats.Conn, error) {
	var nc *nats.Conn
	var err error
	for i := 0; i < max(attempts, 1); i++ {
		nc, err = nats.Connect(url, nats.Name("spatial-eq"), nats.MaxReconnects(-1))
		if err == nil {
			logrus.WithField("url", url).Info("Connected to NATS")
			return nc, nil
		}
		logrus.WithFields(logrus.Fields{
			"attempt": i + 1,
			"of":      attempts,
		}).WithError(err).Warn("Failed to connect to NATS")
		time.Sleep(wait)
	}
	return nil, fmt.Errorf("failed to connect to NATS after %d attempts: %w", attempts, err)
}

func NewSurface(conn Connection, subject string, state StateFunc, cmdChan chan<- control.Command) *Surface {
	return &Surface{
		conn:        conn,
		subject:     subject,
		state:       state,
		commandChan: cmdChan,
	}
}

// Start subscribes to the command and state request subjects.
func (s *Surface) Start() error {
	subs := map[string]nats.MsgHandler{
		s.subject + ".command":   s.handleCommand,
		s.subject + ".state.get": s.handleStateRequest,
	}
	for subject, handler := range subs {
		if _, err := s.conn.Subscribe(subject, handler); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
	}
	logrus.WithField("subject", s.subject).Info("NATS control surface started")
	return nil
}

func (s *Surface) handleCommand(msg *nats.Msg) {
	var cmd control.Command
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		logrus.WithError(err).Warn("Ignoring malformed NATS command")
		s.respond(msg, reply{Error: fmt.Sprintf("malformed command: %v", err)})
		return
	}
	if cmd.Action == "" {
		s.respond(msg, reply{Error: "missing action"})
		return
	}

	select {
	case s.commandChan <- cmd:
		s.respond(msg, reply{OK: true})
	default:
		logrus.WithField("action", cmd.Action).Warn("Command channel full")
		s.respond(msg, reply{Error: "busy"})
	}
}

func (s *Surface) handleStateRequest(msg *nats.Msg) {
	st, err := s.state()
	if err != nil {
		s.respond(msg, reply{Error: err.Error()})
		return
	}
	data, err := json.Marshal(st)
	if err != nil {
		s.respond(msg, reply{Error: err.Error()})
		return
	}
	if msg.Reply != "" {
		if err := s.conn.Publish(msg.Reply, data); err != nil {
			logrus.WithError(err).Warn("Failed to reply with state")
		}
	}
}

func (s *Surface) respond(msg *nats.Msg, r reply) {
	if msg.Reply == "" {
		return
	}
	data, _ := json.Marshal(r)
	if err := s.conn.Publish(msg.Reply, data); err != nil {
		logrus.WithError(err).Warn("Failed to reply to NATS request")
	}
}

// PublishState broadcasts st on S.state.
func (s *Surface) PublishState(st control.State) {
	data, err := json.Marshal(st)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal state")
		return
	}
	if err := s.conn.Publish(s.subject+".state", data); err != nil {
		logrus.WithError(err).Warn("Failed to publish state")
	}
}

// Close drains pending messages and closes the connection.
func (s *Surface) Close() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Drain(); err != nil {
		logrus.WithError(err).Warn("Failed to drain NATS connection")
		s.conn.Close()
	}
	logrus.Info("NATS connection closed")
}
