// Package msglog is the append-only, per-(community, channel) message log.
// Authorization is enforced inside the append path itself, so the log is the
// authoritative gate: no unauthorized message can enter regardless of caller.
package msglog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"huddle/api/internal/rbac"
	"huddle/api/internal/storage"
	"huddle/api/internal/util"
)

var ErrEmptyMessage = errors.New("msglog: message text is empty")

// Authorizer re-validates channel write permission at append time. This
// closes the window where a role is revoked between an external pre-check
// and the append.
type Authorizer interface {
	CanWrite(ctx context.Context, userID, community string, channel rbac.Channel) error
}

// Message is immutable once appended. Seq is the total order position within
// its channel; display order is timestamp ascending with Seq breaking ties.
type Message struct {
	ID         string       `json:"id"`
	Community  string       `json:"-"`
	Channel    rbac.Channel `json:"-"`
	Sender     string       `json:"sender"`
	SenderName string       `json:"senderName"`
	Text       string       `json:"text"`
	Timestamp  int64        `json:"timestamp"`
	Seq        int64        `json:"seq"`
}

func messagePrefix(community string, channel rbac.Channel) string {
	return fmt.Sprintf("message/%s/%s/", community, channel)
}

func messagePath(community string, channel rbac.Channel, seq int64) string {
	// zero-padded so storage path order equals append order
	return fmt.Sprintf("%s%020d", messagePrefix(community, channel), seq)
}

func seqPath(community string, channel rbac.Channel) string {
	return fmt.Sprintf("seq/message/%s/%s", community, channel)
}

type Log struct {
	storage    storage.Store
	authorizer Authorizer
}

func New(st storage.Store, authorizer Authorizer) *Log {
	return &Log{storage: st, authorizer: authorizer}
}

// Append validates, authorizes, orders, and persists one message. Empty text
// is rejected before the authorization check; the authorization result here
// is authoritative, not any earlier gate.
func (l *Log) Append(ctx context.Context, community string, channel rbac.Channel, sender, senderName, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyMessage
	}

	if err := l.authorizer.CanWrite(ctx, sender, community, channel); err != nil {
		return Message{}, err
	}

	seq, err := l.storage.Incr(ctx, seqPath(community, channel))
	if err != nil {
		return Message{}, err
	}

	message := Message{
		ID:         util.NewID("msg"),
		Community:  community,
		Channel:    channel,
		Sender:     sender,
		SenderName: senderName,
		Text:       text,
		Timestamp:  time.Now().UnixMilli(),
		Seq:        seq,
	}
	value, err := json.Marshal(message)
	if err != nil {
		return Message{}, fmt.Errorf("marshal message: %w", err)
	}
	if err := l.storage.Put(ctx, messagePath(community, channel, seq), value); err != nil {
		return Message{}, err
	}
	return message, nil
}

// Tail replays the channel's history ordered by timestamp ascending, ties
// broken by sequence. Restartable: each call re-reads from storage.
func (l *Log) Tail(ctx context.Context, community string, channel rbac.Channel) ([]Message, error) {
	entries, err := l.storage.List(ctx, messagePrefix(community, channel))
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(entries))
	for _, entry := range entries {
		var message Message
		if err := json.Unmarshal(entry.Value, &message); err != nil {
			continue
		}
		message.Community = community
		message.Channel = channel
		messages = append(messages, message)
	}
	sort.SliceStable(messages, func(i, j int) bool {
		if messages[i].Timestamp != messages[j].Timestamp {
			return messages[i].Timestamp < messages[j].Timestamp
		}
		return messages[i].Seq < messages[j].Seq
	})
	return messages, nil
}

// Subscribe delivers every new append on the channel, in append order, until
// cancelled.
func (l *Log) Subscribe(ctx context.Context, community string, channel rbac.Channel, fn func(Message)) (storage.CancelFunc, error) {
	return l.storage.Watch(ctx, messagePrefix(community, channel), func(event storage.Event) {
		if event.Deleted {
			return
		}
		value := event.Value
		if len(value) == 0 {
			// oversized notify payloads carry the path only; re-read
			read, err := l.storage.Get(ctx, event.Path)
			if err != nil {
				return
			}
			value = read
		}
		var message Message
		if err := json.Unmarshal(value, &message); err != nil {
			return
		}
		message.Community = community
		message.Channel = channel
		fn(message)
	})
}
