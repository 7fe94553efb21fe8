package social

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"social-graph-service/backend/internal/appender"
	"social-graph-service/backend/internal/occurrence"
	"social-graph-service/backend/internal/ranking"
	"social-graph-service/backend/internal/relation"
	"social-graph-service/backend/internal/repo"
	"social-graph-service/backend/internal/schema"
	"social-graph-service/backend/internal/telemetry"
	"social-graph-service/backend/internal/txn"
)

// Service 社交关系的业务入口：先读旧状态，再让引擎构建事务，最后交给事务端口执行
//
// 内部不重试；冲突以 txn.ErrConflict 返回，由调用方决定是否重读重试
type Service struct {
	reader repo.Reader
	exec   repo.Executor

	likes      *relation.Kind[LikeStatus]
	pins       *relation.Kind[PinStatus]
	following  *relation.Kind[FollowStatus]
	followers  *relation.Kind[FollowStatus]
	userTopics *relation.Kind[TopicStatus]
	topicUsers *relation.Kind[TopicStatus]

	reports       *occurrence.Counter
	popular       *ranking.Feed
	notifications *appender.Appender

	metrics *telemetry.Metrics
	logger  *slog.Logger

	now       func() time.Time
	newHandle func() string
}

type Option func(*Service)

func WithMetrics(m *telemetry.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithHandles(gen func() string) Option { return func(s *Service) { s.newHandle = gen } }

// NewHandle 时间有序的 UUIDv7，feed 按 row key 升序即按时间先后
func NewHandle() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func New(reader repo.Reader, exec repo.Executor, reg *schema.Registry, modes Modes, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		reader:    reader,
		exec:      exec,
		likes:     likeKind(reg, modes.Likes),
		pins:      pinKind(reg, modes.Pins),
		logger:    logger,
		now:       time.Now,
		newHandle: NewHandle,
	}
	s.following, s.followers = followKinds(reg, modes.Follows)
	s.userTopics, s.topicUsers = topicKinds(reg, modes.TopicFollows)

	rc := schema.ContainerReports
	s.reports = &occurrence.Counter{
		Name:        "report",
		Occurrences: reg.MustTable(rc, schema.TableOccurrences),
		BySubject:   reg.MustTable(rc, schema.TableBySubject),
		ByActor:     reg.MustTable(rc, schema.TableByActor),
		Markers:     reg.MustTable(rc, schema.TableMarkers),
		Counts:      reg.MustTable(rc, schema.TableCount),
		Mode:        modes.Reports,
	}
	s.popular = &ranking.Feed{
		Name:        "popular",
		Ranks:       reg.MustTable(schema.ContainerPopular, schema.TableRanks),
		Expirations: reg.MustTable(schema.ContainerPopular, schema.TableExpirations),
		Mode:        modes.Popular,
	}
	s.notifications = appender.New("notifications",
		reg.MustTable(schema.ContainerNotifications, schema.TableFeed),
		reg.MustTable(schema.ContainerNotifications, schema.TableCount),
		exec, modes.Notifications, logger)

	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) execute(ctx context.Context, tx *txn.Transaction) error {
	return s.exec.Execute(ctx, tx).Err()
}

// chooseHandle 进入活跃状态（且与之前不同）时发新 handle，否则沿用旧的
func chooseHandle[S relation.Status](prev *relation.Record[S], status, none S, gen func() string) string {
	if prev == nil || (status != none && status != prev.Status) {
		return gen()
	}
	return prev.Handle
}

func nextRecord[S relation.Status](c relation.Change[S], prev *relation.Record[S]) *relation.Record[S] {
	rec := &relation.Record[S]{Handle: c.Handle, Status: c.Status, UpdatedAt: c.UpdatedAt, Version: 1}
	if prev != nil {
		rec.Version = prev.Version + 1
	}
	return rec
}

func transition[S relation.Status](ctx context.Context, s *Service, k *relation.Kind[S], scope, subject, object, actor string, status S) (*relation.Record[S], error) {
	prev, err := k.Read(ctx, s.reader, scope, subject, object)
	if err != nil {
		return nil, err
	}
	c := relation.Change[S]{
		Scope: scope, Subject: subject, Object: object, Actor: actor,
		Handle:    chooseHandle(prev, status, k.None, s.newHandle),
		Status:    status,
		UpdatedAt: s.now().UTC(),
	}
	tx, err := k.Transition(c, prev)
	if err != nil {
		return nil, err
	}
	if err := s.execute(ctx, tx); err != nil {
		return nil, err
	}
	return nextRecord(c, prev), nil
}

// Page 一页 feed 结果
type Page struct {
	Items []relation.Item `json:"items"`
	Next  string          `json:"next,omitempty"`
	Count int64           `json:"count"`
}

func page[S relation.Status](ctx context.Context, r repo.Reader, ns relation.Namespace[S], scope, subject string, status S, cursor string, limit int) (*Page, error) {
	items, next, err := ns.List(ctx, r, scope, subject, status, cursor, limit)
	if err != nil {
		return nil, err
	}
	n, err := ns.Count(ctx, r, scope, subject, status)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Next: next, Count: n}, nil
}

// ---- 点赞 ----

func (s *Service) SetLike(ctx context.Context, app, content, user string, liked bool) (*relation.Record[LikeStatus], error) {
	status := Unliked
	if liked {
		status = Liked
	}
	return transition(ctx, s, s.likes, app, content, user, user, status)
}

func (s *Service) Likes(ctx context.Context, app, content, cursor string, limit int) (*Page, error) {
	return page(ctx, s.reader, s.likes.Local(), app, content, Liked, cursor, limit)
}

func (s *Service) LikeState(ctx context.Context, app, content, user string) (*relation.Record[LikeStatus], error) {
	return s.likes.Read(ctx, s.reader, app, content, user)
}

// ---- 置顶 ----

func (s *Service) SetPin(ctx context.Context, app, user, topic string, pinned bool) (*relation.Record[PinStatus], error) {
	status := Unpinned
	if pinned {
		status = Pinned
	}
	return transition(ctx, s, s.pins, app, user, topic, user, status)
}

// Pins global=true 时跨应用
func (s *Service) Pins(ctx context.Context, app, user string, global bool, cursor string, limit int) (*Page, error) {
	ns := s.pins.Namespaces[0]
	if global {
		ns = s.pins.Namespaces[1]
	}
	return page(ctx, s.reader, ns, app, user, Pinned, cursor, limit)
}

// ---- 用户关注 ----

// SetFollow 关注关系两端（following / followers）在同一个事务里更新，共用一个 handle
func (s *Service) SetFollow(ctx context.Context, app, follower, followee string, status FollowStatus) (*relation.Record[FollowStatus], error) {
	if follower == followee {
		return nil, fmt.Errorf("%w: cannot follow yourself", txn.ErrInvalidArgument)
	}
	prevOut, err := s.following.Read(ctx, s.reader, app, follower, followee)
	if err != nil {
		return nil, err
	}
	prevIn, err := s.followers.Read(ctx, s.reader, app, followee, follower)
	if err != nil {
		return nil, err
	}
	out := relation.Change[FollowStatus]{
		Scope: app, Subject: follower, Object: followee, Actor: follower,
		Handle:    chooseHandle(prevOut, status, FollowNone, s.newHandle),
		Status:    status,
		UpdatedAt: s.now().UTC(),
	}
	in := out
	in.Subject, in.Object = followee, follower

	txOut, err := s.following.Transition(out, prevOut)
	if err != nil {
		return nil, err
	}
	txIn, err := s.followers.Transition(in, prevIn)
	if err != nil {
		return nil, err
	}
	if err := s.execute(ctx, txOut.Merge(txIn)); err != nil {
		return nil, err
	}
	return nextRecord(out, prevOut), nil
}

func (s *Service) Followers(ctx context.Context, app, user string, status FollowStatus, global bool, cursor string, limit int) (*Page, error) {
	ns := s.followers.Namespaces[0]
	if global {
		ns = s.followers.Namespaces[1]
	}
	return page(ctx, s.reader, ns, app, user, status, cursor, limit)
}

func (s *Service) Following(ctx context.Context, app, user string, status FollowStatus, global bool, cursor string, limit int) (*Page, error) {
	ns := s.following.Namespaces[0]
	if global {
		ns = s.following.Namespaces[1]
	}
	return page(ctx, s.reader, ns, app, user, status, cursor, limit)
}

// ---- 话题关注 ----

func (s *Service) SetTopicFollow(ctx context.Context, app, user, topic string, follow bool) (*relation.Record[TopicStatus], error) {
	status := TopicNone
	if follow {
		status = TopicFollow
	}
	prevUser, err := s.userTopics.Read(ctx, s.reader, app, user, topic)
	if err != nil {
		return nil, err
	}
	prevTopic, err := s.topicUsers.Read(ctx, s.reader, app, topic, user)
	if err != nil {
		return nil, err
	}
	c := relation.Change[TopicStatus]{
		Scope: app, Subject: user, Object: topic, Actor: user,
		Handle:    chooseHandle(prevUser, status, TopicNone, s.newHandle),
		Status:    status,
		UpdatedAt: s.now().UTC(),
	}
	rev := c
	rev.Subject, rev.Object = topic, user

	txUser, err := s.userTopics.Transition(c, prevUser)
	if err != nil {
		return nil, err
	}
	txTopic, err := s.topicUsers.Transition(rev, prevTopic)
	if err != nil {
		return nil, err
	}
	if err := s.execute(ctx, txUser.Merge(txTopic)); err != nil {
		return nil, err
	}
	return nextRecord(c, prevUser), nil
}

func (s *Service) TopicFollowers(ctx context.Context, app, topic, cursor string, limit int) (*Page, error) {
	return page(ctx, s.reader, s.topicUsers.Local(), app, topic, TopicFollow, cursor, limit)
}

func (s *Service) FollowedTopics(ctx context.Context, app, user, cursor string, limit int) (*Page, error) {
	return page(ctx, s.reader, s.userTopics.Local(), app, user, TopicFollow, cursor, limit)
}

// ---- 举报 ----

type Report struct {
	Handle   string    `json:"handle"`
	Reporter string    `json:"reporter"`
	Subject  string    `json:"subject"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
	// Counted 是否是该举报人对该对象的第一次举报
	Counted bool `json:"counted"`
}

func (s *Service) Report(ctx context.Context, app, subject, reporter, reason string) (*Report, error) {
	seen, err := s.reports.HasOccurred(ctx, s.reader, app, subject, reporter)
	if err != nil {
		return nil, err
	}
	r := &Report{Handle: s.newHandle(), Reporter: reporter, Subject: subject, Reason: reason, At: s.now().UTC(), Counted: !seen}
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	tx, err := s.reports.Record(occurrence.Occurrence{Scope: app, Subject: subject, Actor: reporter, Handle: r.Handle, Payload: payload}, seen)
	if err != nil {
		return nil, err
	}
	if err := s.execute(ctx, tx); err != nil {
		return nil, err
	}
	return r, nil
}

type ReportPage struct {
	Reports []Report `json:"reports"`
	Next    string   `json:"next,omitempty"`
	// Reporters 不同举报人数
	Reporters int64 `json:"reporters"`
}

func (s *Service) Reports(ctx context.Context, app, subject, cursor string, limit int) (*ReportPage, error) {
	rows, next, err := s.reports.ListBySubject(ctx, s.reader, app, subject, cursor, limit)
	if err != nil {
		return nil, err
	}
	n, err := s.reports.Count(ctx, s.reader, app, subject)
	if err != nil {
		return nil, err
	}
	out := &ReportPage{Reports: make([]Report, 0, len(rows)), Next: next, Reporters: n}
	for _, row := range rows {
		var r Report
		if err := json.Unmarshal(row.Value, &r); err != nil {
			return nil, fmt.Errorf("decode report %s: %w", row.Key, err)
		}
		out.Reports = append(out.Reports, r)
	}
	return out, nil
}

// ---- 热门 ----

// UpdatePopular 榜单已满且分数不够时 admitted=false
func (s *Service) UpdatePopular(ctx context.Context, app string, window ranking.Window, item string, score float64) (bool, error) {
	tx, admitted, err := s.popular.Bounded(ctx, s.reader, app, string(window), item, score, window.ExpiresAt(s.now()))
	if err != nil || !admitted {
		return false, err
	}
	if err := s.execute(ctx, tx); err != nil {
		return false, err
	}
	return true, nil
}

type RankPage struct {
	Items []repo.ScoredRow `json:"items"`
	Next  string           `json:"next,omitempty"`
}

func (s *Service) Popular(ctx context.Context, app string, window ranking.Window, cursor string, limit int) (*RankPage, error) {
	rows, next, err := s.popular.Query(ctx, s.reader, app, string(window), cursor, limit)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []repo.ScoredRow{}
	}
	return &RankPage{Items: rows, Next: next}, nil
}

// PrunePopular 删除 asOf 之前过期的条目，每条一个事务；返回已删除的条目
func (s *Service) PrunePopular(ctx context.Context, app string, window ranking.Window, asOf time.Time) ([]string, error) {
	expired, err := s.popular.PruneExpired(ctx, s.reader, app, string(window), asOf)
	if err != nil {
		return nil, err
	}
	removed := make([]string, 0, len(expired))
	for _, item := range expired {
		tx, err := s.popular.Remove(app, string(window), item)
		if err != nil {
			return removed, err
		}
		if err := s.execute(ctx, tx); err != nil {
			return removed, err
		}
		removed = append(removed, item)
	}
	return removed, nil
}

// ---- 通知 ----

// Notify 至少一次投递安全：同一 handle 重复投递返回 AlreadyPresent
func (s *Service) Notify(ctx context.Context, app, user, handle string, payload []byte) (appender.Outcome, error) {
	out, err := s.notifications.AppendOnce(ctx, user, app, handle, payload)
	if err == nil && s.metrics != nil {
		s.metrics.RecordAppend(s.notifications.Name, out.String())
	}
	return out, err
}

type NotificationPage struct {
	Items []Notification `json:"items"`
	Next  string         `json:"next,omitempty"`
	Count int64          `json:"count"`
}

type Notification struct {
	Handle  string          `json:"handle"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (s *Service) Notifications(ctx context.Context, app, user, cursor string, limit int) (*NotificationPage, error) {
	rows, next, err := s.notifications.List(ctx, s.reader, user, app, cursor, limit)
	if err != nil {
		return nil, err
	}
	n, err := s.notifications.Count(ctx, s.reader, user, app)
	if err != nil {
		return nil, err
	}
	out := &NotificationPage{Items: make([]Notification, 0, len(rows)), Next: next, Count: n}
	for _, row := range rows {
		out.Items = append(out.Items, Notification{Handle: row.Key, Payload: json.RawMessage(row.Value)})
	}
	return out, nil
}
