package social

import (
	"social-graph-service/backend/internal/relation"
	"social-graph-service/backend/internal/schema"
	"social-graph-service/backend/internal/txn"
)

type LikeStatus string

const (
	Unliked LikeStatus = "Unliked"
	Liked   LikeStatus = "Liked"
)

type PinStatus string

const (
	Unpinned PinStatus = "Unpinned"
	Pinned   PinStatus = "Pinned"
)

// FollowStatus 用户之间的关系
type FollowStatus string

const (
	FollowNone    FollowStatus = "None"
	FollowPending FollowStatus = "Pending"
	Follow        FollowStatus = "Follow"
	FollowBlocked FollowStatus = "Blocked"
)

func ParseFollowStatus(s string) (FollowStatus, bool) {
	switch st := FollowStatus(s); st {
	case FollowNone, FollowPending, Follow, FollowBlocked:
		return st, true
	}
	return "", false
}

type TopicStatus string

const (
	TopicNone   TopicStatus = "None"
	TopicFollow TopicStatus = "Follow"
)

// Modes 各功能的一致性模式
type Modes struct {
	Likes         txn.ConsistencyMode
	Pins          txn.ConsistencyMode
	Follows       txn.ConsistencyMode
	TopicFollows  txn.ConsistencyMode
	Reports       txn.ConsistencyMode
	Popular       txn.ConsistencyMode
	Notifications txn.ConsistencyMode
}

func scoped[S relation.Status](name string, feeds, counts schema.Table) relation.Namespace[S] {
	return relation.Namespace[S]{Name: name, Feeds: feeds, Counts: counts, Shard: relation.ScopedShard[S]}
}

func global[S relation.Status](feeds, counts schema.Table) relation.Namespace[S] {
	return relation.Namespace[S]{Name: "global", Feeds: feeds, Counts: counts, Shard: relation.GlobalShard[S]}
}

// 点赞：subject=内容，object=用户
func likeKind(reg *schema.Registry, mode txn.ConsistencyMode) *relation.Kind[LikeStatus] {
	c := schema.ContainerLikes
	return &relation.Kind[LikeStatus]{
		Name:       "like",
		None:       Unliked,
		Records:    reg.MustTable(c, schema.TableRecords),
		Namespaces: []relation.Namespace[LikeStatus]{scoped[LikeStatus]("app", reg.MustTable(c, schema.TableFeed), reg.MustTable(c, schema.TableCount))},
		Statuses:   []LikeStatus{Unliked, Liked},
		Mode:       mode,
	}
}

// 置顶：subject=用户，object=话题；本应用 + 全局
func pinKind(reg *schema.Registry, mode txn.ConsistencyMode) *relation.Kind[PinStatus] {
	c := schema.ContainerPins
	return &relation.Kind[PinStatus]{
		Name:    "pin",
		None:    Unpinned,
		Records: reg.MustTable(c, schema.TableRecords),
		Namespaces: []relation.Namespace[PinStatus]{
			scoped[PinStatus]("app", reg.MustTable(c, schema.TableFeed), reg.MustTable(c, schema.TableCount)),
			global[PinStatus](reg.MustTable(c, schema.TableGlobalFeed), reg.MustTable(c, schema.TableGlobalCount)),
		},
		Statuses: []PinStatus{Unpinned, Pinned},
		Mode:     mode,
	}
}

// followKinds following: subject=关注者；followers: subject=被关注者
func followKinds(reg *schema.Registry, mode txn.ConsistencyMode) (following, followers *relation.Kind[FollowStatus]) {
	c := schema.ContainerFollows
	statuses := []FollowStatus{FollowNone, FollowPending, Follow, FollowBlocked}
	following = &relation.Kind[FollowStatus]{
		Name:    "following",
		None:    FollowNone,
		Records: reg.MustTable(c, schema.TableFollowing),
		Namespaces: []relation.Namespace[FollowStatus]{
			scoped[FollowStatus]("app", reg.MustTable(c, schema.TableFollowingFeed), reg.MustTable(c, schema.TableFollowingCnt)),
			global[FollowStatus](reg.MustTable(c, schema.TableGlobalFwgFeed), reg.MustTable(c, schema.TableGlobalFwgCnt)),
		},
		Statuses: statuses,
		Mode:     mode,
	}
	followers = &relation.Kind[FollowStatus]{
		Name:    "followers",
		None:    FollowNone,
		Records: reg.MustTable(c, schema.TableFollowers),
		Namespaces: []relation.Namespace[FollowStatus]{
			scoped[FollowStatus]("app", reg.MustTable(c, schema.TableFollowersFeed), reg.MustTable(c, schema.TableFollowersCnt)),
			global[FollowStatus](reg.MustTable(c, schema.TableGlobalFwrFeed), reg.MustTable(c, schema.TableGlobalFwrCnt)),
		},
		Statuses: statuses,
		Mode:     mode,
	}
	return following, followers
}

// topicKinds userTopics: subject=用户；topicUsers: subject=话题
func topicKinds(reg *schema.Registry, mode txn.ConsistencyMode) (userTopics, topicUsers *relation.Kind[TopicStatus]) {
	c := schema.ContainerTopicFollows
	statuses := []TopicStatus{TopicNone, TopicFollow}
	userTopics = &relation.Kind[TopicStatus]{
		Name:       "usertopics",
		None:       TopicNone,
		Records:    reg.MustTable(c, schema.TableTopicFollows),
		Namespaces: []relation.Namespace[TopicStatus]{scoped[TopicStatus]("app", reg.MustTable(c, schema.TableUserTopicFeed), reg.MustTable(c, schema.TableUserTopicCnt))},
		Statuses:   statuses,
		Mode:       mode,
	}
	topicUsers = &relation.Kind[TopicStatus]{
		Name:       "topicusers",
		None:       TopicNone,
		Records:    reg.MustTable(c, schema.TableTopicFollowed),
		Namespaces: []relation.Namespace[TopicStatus]{scoped[TopicStatus]("app", reg.MustTable(c, schema.TableTopicUserFeed), reg.MustTable(c, schema.TableTopicUserCnt))},
		Statuses:   statuses,
		Mode:       mode,
	}
	return userTopics, topicUsers
}
