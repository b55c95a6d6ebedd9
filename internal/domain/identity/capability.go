package identity

type Action string

const (
	ActionOpenSession     Action = "session.open"
	ActionViewSession     Action = "session.view"
	ActionViewHistory     Action = "session.history"
	ActionViewHistoryLive Action = "session.history.live"
	ActionReadJournal     Action = "session.journal"
	ActionStartDispute    Action = "dispute.start"
	ActionChangeStatus    Action = "dispute.status"
	ActionToggleChat      Action = "chat.toggle"
	ActionSendMessage     Action = "message.send"
	ActionSendPrivate     Action = "message.send_private"
	ActionJoinLot         Action = "lot.join"
	ActionSubmitBid       Action = "bid.submit"
	ActionCancelOwnBid    Action = "bid.cancel_own"
	ActionCancelAnyBid    Action = "bid.cancel_any"
	ActionClassify        Action = "participant.classify"
	ActionDeclareWinner   Action = "lot.declare_winner"
	ActionFileResource    Action = "resource.file"
	ActionSubmitReasoning Action = "resource.reasoning"
	ActionCounterArgue    Action = "resource.counter_argument"
	ActionAdvanceResource Action = "resource.advance"
	ActionDecideResource  Action = "resource.decide"
	ActionTick            Action = "system.tick"
	ActionManageCluster   Action = "cluster.manage"
)

func actions(list ...Action) map[Action]struct{} {
	out := make(map[Action]struct{}, len(list))
	for _, a := range list {
		out[a] = struct{}{}
	}
	return out
}

var capabilities = map[Role]map[Action]struct{}{
	RoleCitizen: actions(
		ActionViewSession,
		ActionViewHistory,
	),
	RoleSupplier: actions(
		ActionViewSession,
		ActionViewHistory,
		ActionSendMessage,
		ActionJoinLot,
		ActionSubmitBid,
		ActionCancelOwnBid,
		ActionFileResource,
		ActionSubmitReasoning,
		ActionCounterArgue,
	),
	RoleAuctioneer: actions(
		ActionOpenSession,
		ActionViewSession,
		ActionViewHistory,
		ActionViewHistoryLive,
		ActionReadJournal,
		ActionStartDispute,
		ActionChangeStatus,
		ActionToggleChat,
		ActionSendMessage,
		ActionSendPrivate,
		ActionCancelAnyBid,
		ActionClassify,
		ActionDeclareWinner,
		ActionAdvanceResource,
	),
	RoleAuthority: actions(
		ActionViewSession,
		ActionViewHistory,
		ActionSendMessage,
		ActionDecideResource,
	),
	RoleAdmin: actions(
		ActionViewSession,
		ActionViewHistory,
		ActionViewHistoryLive,
		ActionReadJournal,
		ActionManageCluster,
	),
	RoleSupport: actions(
		ActionViewSession,
		ActionViewHistory,
	),
	RoleSystem: actions(
		ActionTick,
	),
}

// Can is the single capability check used at the store boundary.
func Can(role Role, a Action) bool {
	allowed, ok := capabilities[role]
	if !ok {
		return false
	}
	_, ok = allowed[a]
	return ok
}
