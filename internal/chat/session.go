// Package chat runs the storefront chatbot box: the visitor's message goes
// out as one request and the reply is drawn while it streams in.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
	"github.com/angelmondragon/cartsync/pkg/logger"
	"github.com/angelmondragon/cartsync/pkg/metrics"
	"github.com/google/uuid"
)

const (
	PlaceholderText     = "..."
	ConnectionErrorText = "Error de conexión."

	defaultStreamTimeout = 2 * time.Minute
	readChunkSize        = 512
	opChat               = "chat"
)

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

type MessageStatus string

const (
	MessageStreaming MessageStatus = "streaming"
	MessageDone      MessageStatus = "done"
	MessageFailed    MessageStatus = "failed"
)

// Message is one bubble of the transcript. HTML is set for bot messages and
// is already sanitized.
type Message struct {
	ID     string
	Role   Role
	Text   string
	HTML   string
	Status MessageStatus
}

// Transcript is the published state of the chat window.
type Transcript struct {
	Open     bool
	Messages []Message
	Version  uint64
}

type API interface {
	StreamChat(ctx context.Context, message string) (io.ReadCloser, error)
}

type Params struct {
	API           API
	Logger        *logger.Logger
	Metrics       *metrics.SyncMetrics
	StreamTimeout time.Duration
}

type Session struct {
	api     API
	logg    *logger.Logger
	metrics *metrics.SyncMetrics
	timeout time.Duration
	md      *markdown

	mu         sync.Mutex
	transcript Transcript
	subs       map[int]func(Transcript)
	nextSub    int
}

func New(params Params) (*Session, error) {
	if params.API == nil {
		return nil, fmt.Errorf("storefront api required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	timeout := params.StreamTimeout
	if timeout <= 0 {
		timeout = defaultStreamTimeout
	}
	return &Session{
		api:        params.API,
		logg:       logg,
		metrics:    params.Metrics,
		timeout:    timeout,
		md:         newMarkdown(),
		transcript: Transcript{Messages: []Message{}},
		subs:       map[int]func(Transcript){},
	}, nil
}

func (s *Session) Open() {
	s.update(func() { s.transcript.Open = true })
}

func (s *Session) Close() {
	s.update(func() { s.transcript.Open = false })
}

func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Open
}

// Messages returns a copy of the transcript's messages.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.transcript.Messages...)
}

// Subscribe registers fn for every transcript change and returns a cancel func.
func (s *Session) Subscribe(fn func(Transcript)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Send posts text and streams the reply into a bot message. Blank text is
// ignored. On failure the bot message reads ConnectionErrorText.
func (s *Session) Send(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	botID := uuid.NewString()
	ctx = s.logg.WithFields(s.logg.WithOperation(ctx, opChat), map[string]any{"message_id": botID})

	s.update(func() {
		s.transcript.Messages = append(s.transcript.Messages,
			Message{ID: uuid.NewString(), Role: RoleUser, Text: trimmed, Status: MessageDone},
			Message{ID: botID, Role: RoleBot, Text: PlaceholderText, HTML: s.md.render(PlaceholderText), Status: MessageStreaming},
		)
	})

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()

	err := s.stream(ctx, botID, trimmed)
	s.metrics.ObserveRequest(opChat, outcomeOf(err), time.Since(start))
	if err != nil {
		s.setBot(botID, ConnectionErrorText, MessageFailed)
		s.logg.Warn(s.logg.WithFields(ctx, pkgerrors.Dump(err).Fields()), "chat.reply.failed")
		return err
	}
	s.logg.Debug(ctx, "chat.reply.complete")
	return nil
}

func (s *Session) stream(ctx context.Context, botID, message string) error {
	body, err := s.api.StreamChat(ctx, message)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	var acc []byte
	buf := make([]byte, readChunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
			s.setBot(botID, string(acc[:completePrefix(acc)]), MessageStreaming)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			if errors.Is(readErr, context.DeadlineExceeded) {
				return pkgerrors.Wrap(pkgerrors.CodeTimeout, readErr, "chat reply timed out")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, readErr, "read chat reply")
		}
	}
	s.setBot(botID, strings.ToValidUTF8(string(acc), string(utf8.RuneError)), MessageDone)
	return nil
}

// completePrefix returns the length of b without a trailing partial rune, so
// a multi-byte character split across reads is drawn only once whole.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}

func (s *Session) setBot(id, text string, status MessageStatus) {
	rendered := s.md.render(text)
	s.update(func() {
		for i := range s.transcript.Messages {
			if s.transcript.Messages[i].ID == id {
				s.transcript.Messages[i].Text = text
				s.transcript.Messages[i].HTML = rendered
				s.transcript.Messages[i].Status = status
				return
			}
		}
	})
}

func (s *Session) update(fn func()) {
	s.mu.Lock()
	fn()
	s.transcript.Version++
	out := s.transcript
	out.Messages = append([]Message(nil), s.transcript.Messages...)
	subs := make([]func(Transcript), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(out)
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case pkgerrors.IsCode(err, pkgerrors.CodeTimeout):
		return metrics.OutcomeTimeout
	}
	return metrics.OutcomeFailed
}
