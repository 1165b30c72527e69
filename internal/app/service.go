package app

import (
	"context"
	"net/http"
	"strings"

	"huddle/api/internal/auth"
	"huddle/api/internal/config"
	"huddle/api/internal/directory"
	"huddle/api/internal/fanout"
	"huddle/api/internal/membership"
	"huddle/api/internal/msglog"
	"huddle/api/internal/rbac"
	"huddle/api/internal/search"
	"huddle/api/internal/storage"
)

type CreateCommunityInput struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

type JoinCommunityInput struct {
	Code string `json:"code"`
	Role string `json:"role"`
}

type SendMessageInput struct {
	Text string `json:"text"`
}

type CommunityView struct {
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	Channels []string `json:"channels"`
}

type MemberView struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type MessageView struct {
	ID         string `json:"id"`
	Channel    string `json:"channel"`
	Sender     string `json:"sender"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
	Seq        int64  `json:"seq"`
}

// Service is the application facade. Every operation takes the verified
// caller identity; authorization is recomputed from storage on each call.
type Service struct {
	cfg      config.Config
	storage  storage.Store
	dir      *directory.Directory
	members  *membership.Store
	resolver *membership.Resolver
	authz    *membership.Authorizer
	log      *msglog.Log
	fanout   *fanout.Fanout
	search   *search.Service
}

func New(cfg config.Config, st storage.Store, searchService *search.Service) *Service {
	members := membership.NewStore(st)
	resolver := membership.NewResolver(members, st)
	authz := membership.NewAuthorizer(resolver)
	log := msglog.New(st, authz)
	return &Service{
		cfg:      cfg,
		storage:  st,
		dir:      directory.New(st, members),
		members:  members,
		resolver: resolver,
		authz:    authz,
		log:      log,
		fanout:   fanout.New(log, members),
		search:   searchService,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.storage.Ping(ctx)
}

// IdentityFromToken verifies a bearer token minted by the identity provider.
func (s *Service) IdentityFromToken(token string) (auth.Identity, error) {
	return auth.VerifyToken([]byte(s.cfg.JWTSecret), token)
}

// IssueIdentityToken signs a token with the configured access TTL, for
// deployments that co-locate the identity signer with this service.
func (s *Service) IssueIdentityToken(identity auth.Identity) (string, error) {
	return auth.IssueToken([]byte(s.cfg.JWTSecret), identity, s.cfg.AccessTTL)
}

func (s *Service) CreateCommunity(ctx context.Context, identity auth.Identity, input CreateCommunityInput) (CommunityView, error) {
	role := rbac.Normalize(input.Role)
	code, err := s.dir.Create(ctx, identity.ID, input.Name, role)
	if err != nil {
		return CommunityView{}, asDomainError(err)
	}
	community, err := s.dir.Lookup(ctx, code)
	if err != nil {
		return CommunityView{}, asDomainError(err)
	}
	return communityView(community), nil
}

func (s *Service) JoinCommunity(ctx context.Context, identity auth.Identity, input JoinCommunityInput) (CommunityView, error) {
	role := rbac.Normalize(input.Role)
	if err := s.dir.Join(ctx, identity.ID, role, input.Code); err != nil {
		return CommunityView{}, asDomainError(err)
	}
	community, err := s.dir.Lookup(ctx, input.Code)
	if err != nil {
		return CommunityView{}, asDomainError(err)
	}
	return communityView(community), nil
}

func (s *Service) ListUserCommunities(ctx context.Context, identity auth.Identity) ([]directory.UserCommunity, error) {
	communities, err := s.dir.ListForUser(ctx, identity.ID)
	if err != nil {
		return nil, asDomainError(err)
	}
	return communities, nil
}

func (s *Service) SendMessage(ctx context.Context, identity auth.Identity, code, channel string, input SendMessageInput) (MessageView, error) {
	code = directory.Canonicalize(code)
	message, err := s.log.Append(ctx, code, rbac.Channel(channel), identity.ID, identity.Name, input.Text)
	if err != nil {
		return MessageView{}, asDomainError(err)
	}
	s.search.IndexMessage(search.MessageRecord{
		ID:         message.ID,
		Community:  message.Community,
		Channel:    string(message.Channel),
		Sender:     message.Sender,
		SenderName: message.SenderName,
		Text:       message.Text,
		Timestamp:  message.Timestamp,
	})
	return messageView(message), nil
}

func (s *Service) Messages(ctx context.Context, identity auth.Identity, code, channel string) ([]MessageView, error) {
	code = directory.Canonicalize(code)
	if !rbac.ValidChannel(rbac.Channel(channel)) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "unknown channel", nil)
	}
	if err := s.requireMember(ctx, identity.ID, code); err != nil {
		return nil, err
	}
	messages, err := s.log.Tail(ctx, code, rbac.Channel(channel))
	if err != nil {
		return nil, asDomainError(err)
	}
	views := make([]MessageView, 0, len(messages))
	for _, message := range messages {
		views = append(views, messageView(message))
	}
	return views, nil
}

// SubscribeCommunity opens a realtime session covering every channel of the
// community plus its member roster. The caller owns the returned session and
// must close it.
func (s *Service) SubscribeCommunity(ctx context.Context, identity auth.Identity, code string, onMessage func(msglog.Message), onMembers func([]membership.Membership)) (*fanout.Session, error) {
	code = directory.Canonicalize(code)
	if err := s.requireMember(ctx, identity.ID, code); err != nil {
		return nil, err
	}
	session, err := s.fanout.Open(ctx, code, rbac.Channels(), onMessage, onMembers)
	if err != nil {
		return nil, asDomainError(err)
	}
	return session, nil
}

// SubscribeMessages follows one channel only; viewers that want the whole
// community use SubscribeCommunity.
func (s *Service) SubscribeMessages(ctx context.Context, identity auth.Identity, code, channel string, onMessage func(msglog.Message)) (*fanout.Session, error) {
	code = directory.Canonicalize(code)
	if !rbac.ValidChannel(rbac.Channel(channel)) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "unknown channel", nil)
	}
	if err := s.requireMember(ctx, identity.ID, code); err != nil {
		return nil, err
	}
	session, err := s.fanout.Open(ctx, code, []rbac.Channel{rbac.Channel(channel)}, onMessage, nil)
	if err != nil {
		return nil, asDomainError(err)
	}
	return session, nil
}

// SubscribeMembers follows roster changes only.
func (s *Service) SubscribeMembers(ctx context.Context, identity auth.Identity, code string, onMembers func([]membership.Membership)) (*fanout.Session, error) {
	code = directory.Canonicalize(code)
	if err := s.requireMember(ctx, identity.ID, code); err != nil {
		return nil, err
	}
	session, err := s.fanout.Open(ctx, code, nil, nil, onMembers)
	if err != nil {
		return nil, asDomainError(err)
	}
	return session, nil
}

func (s *Service) ListMembers(ctx context.Context, identity auth.Identity, code string) ([]MemberView, error) {
	code = directory.Canonicalize(code)
	if err := s.requireMember(ctx, identity.ID, code); err != nil {
		return nil, err
	}
	members, err := s.members.ListMembers(ctx, code)
	if err != nil {
		return nil, asDomainError(err)
	}
	views := make([]MemberView, 0, len(members))
	for _, member := range members {
		views = append(views, MemberView{
			UserID: member.UserID,
			Role:   string(s.resolver.DisplayRole(ctx, member.UserID, code)),
		})
	}
	return views, nil
}

func (s *Service) KickMember(ctx context.Context, identity auth.Identity, code, targetID string) error {
	code = directory.Canonicalize(code)
	if err := s.authz.CanKick(ctx, identity.ID, code, targetID); err != nil {
		return asDomainError(err)
	}
	return asDomainError(s.members.Detach(ctx, code, targetID))
}

func (s *Service) LeaveCommunity(ctx context.Context, identity auth.Identity, code string) error {
	code = directory.Canonicalize(code)
	return asDomainError(s.members.Detach(ctx, code, identity.ID))
}

func (s *Service) DeleteCommunity(ctx context.Context, identity auth.Identity, code string) error {
	code = directory.Canonicalize(code)
	if err := s.authz.CanDelete(ctx, identity.ID, code); err != nil {
		return asDomainError(err)
	}
	if err := s.dir.Delete(ctx, code); err != nil {
		return asDomainError(err)
	}
	s.search.DropCommunity(code)
	return nil
}

func (s *Service) SearchMessages(ctx context.Context, identity auth.Identity, query, code, channel string, limit int) (search.Response, error) {
	code = directory.Canonicalize(code)
	if strings.TrimSpace(query) == "" || code == "" {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "INVALID_QUERY", "q and community are required", nil)
	}
	if err := s.requireMember(ctx, identity.ID, code); err != nil {
		return search.Response{}, err
	}
	return s.search.Search(search.Query{
		Text:      query,
		Community: code,
		Channel:   channel,
		Limit:     limit,
	}), nil
}

func (s *Service) requireMember(ctx context.Context, userID, code string) error {
	if _, err := s.dir.Lookup(ctx, code); err != nil {
		return asDomainError(err)
	}
	if _, err := s.resolver.Resolve(ctx, userID, code); err != nil {
		return asDomainError(err)
	}
	return nil
}

func communityView(community directory.Community) CommunityView {
	channels := make([]string, 0, len(community.Channels))
	for _, channel := range community.Channels {
		channels = append(channels, string(channel))
	}
	return CommunityView{Code: community.Code, Name: community.Name, Channels: channels}
}

func messageView(message msglog.Message) MessageView {
	return MessageView{
		ID:         message.ID,
		Channel:    string(message.Channel),
		Sender:     message.Sender,
		SenderName: message.SenderName,
		Text:       message.Text,
		Timestamp:  message.Timestamp,
		Seq:        message.Seq,
	}
}
