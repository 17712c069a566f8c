package common

type SessionState uint

const (
	QueuesView SessionState = iota
	DeliveriesView
	InboxLogView
	FollowsView
	FollowRemoteView
	AuditView
)
