package client

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/MarcoPoloResearchLab/soulmatch/internal/apperrors"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/messaging"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/realtime"
	"github.com/MarcoPoloResearchLab/soulmatch/internal/timeline"
	"go.uber.org/zap"
)

const (
	streamBufferSize   = 16
	maxStreamLineBytes = 1 << 20
)

// streamEvent is one dispatched server-sent event.
type streamEvent struct {
	name string
	data string
}

type messageStream struct {
	events    chan messaging.Message
	cancel    context.CancelFunc
	body      io.ReadCloser
	closeOnce sync.Once
}

func (s *messageStream) Events() <-chan messaging.Message {
	return s.events
}

func (s *messageStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.body.Close()
	})
	return err
}

// Subscribe opens the conversation's event stream. Events arrive on the subscription until
// it is closed, ctx ends, or the server closes the stream.
func (c *Client) Subscribe(ctx context.Context, conversationID string) (timeline.Subscription, error) {
	streamContext, cancel := context.WithCancel(ctx)
	request, err := c.newRequest(streamContext, opSubscribe, http.MethodGet, conversationPath(conversationID, "stream"), true, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	request.Header.Set("Accept", "text/event-stream")

	response, err := c.http.Do(request)
	if err != nil {
		cancel()
		return nil, apperrors.Upstream(opSubscribe, "request_failed", err)
	}
	if response.StatusCode != http.StatusOK {
		defer response.Body.Close()
		cancel()
		return nil, decodeFailure(opSubscribe, response)
	}

	stream := &messageStream{
		events: make(chan messaging.Message, streamBufferSize),
		cancel: cancel,
		body:   response.Body,
	}
	go c.consume(streamContext, conversationID, response.Body, stream.events)
	return stream, nil
}

func (c *Client) consume(ctx context.Context, conversationID string, body io.Reader, out chan<- messaging.Message) {
	defer close(out)
	err := readEvents(body, func(event streamEvent) bool {
		if event.name != realtime.EventMessageInserted {
			return true
		}
		var message messaging.Message
		if err := json.Unmarshal([]byte(event.data), &message); err != nil {
			c.logger.Warn("stream event decode failed", zap.String("conversation_id", conversationID), zap.Error(err))
			return true
		}
		select {
		case out <- message:
			return true
		case <-ctx.Done():
			return false
		}
	})
	if err != nil && ctx.Err() == nil {
		c.logger.Warn("message stream ended", zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

// readEvents parses a text/event-stream body and hands each event to handle until handle
// returns false or the body ends.
func readEvents(body io.Reader, handle func(streamEvent) bool) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), maxStreamLineBytes)

	var (
		name string
		data []string
	)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(data) > 0 {
				if !handle(streamEvent{name: name, data: strings.Join(data, "\n")}) {
					return nil
				}
			}
			name = ""
			data = data[:0]
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			name = value
		case "data":
			data = append(data, value)
		}
	}
	return scanner.Err()
}
