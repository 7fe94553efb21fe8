package schema

// 容器名
const (
	ContainerLikes         = "likes"
	ContainerPins          = "pins"
	ContainerFollows       = "follows"
	ContainerTopicFollows  = "topicfollows"
	ContainerReports       = "reports"
	ContainerPopular       = "popular"
	ContainerNotifications = "notifications"
)

// 表名
const (
	TableRecords       = "records"
	TableFeed          = "feed"
	TableCount         = "count"
	TableGlobalFeed    = "globalfeed"
	TableGlobalCount   = "globalcount"
	TableFollowers     = "followers"
	TableFollowing     = "following"
	TableFollowersFeed = "followersfeed"
	TableFollowingFeed = "followingfeed"
	TableFollowersCnt  = "followerscount"
	TableFollowingCnt  = "followingcount"
	TableGlobalFwrFeed = "globalfollowersfeed"
	TableGlobalFwrCnt  = "globalfollowerscount"
	TableGlobalFwgFeed = "globalfollowingfeed"
	TableGlobalFwgCnt  = "globalfollowingcount"
	TableTopicFollows  = "usertopics"
	TableTopicFollowed = "topicusers"
	TableUserTopicFeed = "usertopicsfeed"
	TableUserTopicCnt  = "usertopicscount"
	TableTopicUserFeed = "topicusersfeed"
	TableTopicUserCnt  = "topicuserscount"
	TableOccurrences   = "occurrences"
	TableBySubject     = "bysubject"
	TableByActor       = "byactor"
	TableMarkers       = "markers"
	TableRanks         = "ranks"
	TableExpirations   = "expirations"
)

// DefaultTables 服务用到的全部逻辑表；物理名可以在配置里覆盖
func DefaultTables() []Table {
	t := func(container, name string, kind Kind) Table {
		return Table{Container: container, Name: name, Physical: container + "_" + name, Kind: kind}
	}
	return []Table{
		t(ContainerLikes, TableRecords, KindObject),
		t(ContainerLikes, TableFeed, KindFeed),
		t(ContainerLikes, TableCount, KindCount),

		t(ContainerPins, TableRecords, KindObject),
		t(ContainerPins, TableFeed, KindFeed),
		t(ContainerPins, TableCount, KindCount),
		t(ContainerPins, TableGlobalFeed, KindFeed),
		t(ContainerPins, TableGlobalCount, KindCount),

		t(ContainerFollows, TableFollowers, KindObject),
		t(ContainerFollows, TableFollowing, KindObject),
		t(ContainerFollows, TableFollowersFeed, KindFeed),
		t(ContainerFollows, TableFollowingFeed, KindFeed),
		t(ContainerFollows, TableFollowersCnt, KindCount),
		t(ContainerFollows, TableFollowingCnt, KindCount),
		t(ContainerFollows, TableGlobalFwrFeed, KindFeed),
		t(ContainerFollows, TableGlobalFwrCnt, KindCount),
		t(ContainerFollows, TableGlobalFwgFeed, KindFeed),
		t(ContainerFollows, TableGlobalFwgCnt, KindCount),

		t(ContainerTopicFollows, TableTopicFollows, KindObject),
		t(ContainerTopicFollows, TableTopicFollowed, KindObject),
		t(ContainerTopicFollows, TableUserTopicFeed, KindFeed),
		t(ContainerTopicFollows, TableUserTopicCnt, KindCount),
		t(ContainerTopicFollows, TableTopicUserFeed, KindFeed),
		t(ContainerTopicFollows, TableTopicUserCnt, KindCount),

		t(ContainerReports, TableOccurrences, KindFeed),
		t(ContainerReports, TableBySubject, KindFeed),
		t(ContainerReports, TableByActor, KindFeed),
		t(ContainerReports, TableMarkers, KindObject),
		t(ContainerReports, TableCount, KindCount),

		{Container: ContainerPopular, Name: TableRanks, Physical: "popular_ranks", Kind: KindRank, MaxFeedLength: 1000},
		t(ContainerPopular, TableExpirations, KindRank),

		t(ContainerNotifications, TableFeed, KindFeed),
		t(ContainerNotifications, TableCount, KindCount),
	}
}
