// Package fanout combines the message log and membership change feeds into
// one per-viewer session, so every active viewer of a community receives new
// messages and membership deltas as they happen, without polling.
package fanout

import (
	"context"
	"sync"

	"huddle/api/internal/membership"
	"huddle/api/internal/msglog"
	"huddle/api/internal/rbac"
	"huddle/api/internal/storage"
)

type Fanout struct {
	log     *msglog.Log
	members *membership.Store
}

func New(log *msglog.Log, members *membership.Store) *Fanout {
	return &Fanout{log: log, members: members}
}

// Session is one viewer's live subscription to a community. Ordering holds
// per source: messages arrive in append order per channel, membership
// snapshots in store-emission order. No ordering is promised between the two
// streams.
type Session struct {
	cancels []storage.CancelFunc
	once    sync.Once
}

// Close stops all delivery to this session. Safe to call more than once and
// concurrently with an in-flight delivery; other sessions are unaffected.
func (s *Session) Close() {
	s.once.Do(func() {
		for _, cancel := range s.cancels {
			cancel()
		}
	})
}

// Open subscribes the viewer to new messages on the requested channels and
// to membership changes of the community. Either callback may be nil if the
// viewer only wants the other stream.
func (f *Fanout) Open(ctx context.Context, community string, channels []rbac.Channel, onMessage func(msglog.Message), onMembers func([]membership.Membership)) (*Session, error) {
	session := &Session{}

	if onMessage != nil {
		for _, channel := range channels {
			cancel, err := f.log.Subscribe(ctx, community, channel, onMessage)
			if err != nil {
				session.Close()
				return nil, err
			}
			session.cancels = append(session.cancels, cancel)
		}
	}

	if onMembers != nil {
		cancel, err := f.members.Subscribe(ctx, community, onMembers)
		if err != nil {
			session.Close()
			return nil, err
		}
		session.cancels = append(session.cancels, cancel)
	}

	return session, nil
}
