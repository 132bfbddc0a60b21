package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

type Stash struct {
	stash []stashElem
}

type stashElem struct {
	msg    any
	sender *actor.PID
}

func (stash *Stash) Stash(ctx actor.Context, msg any) {
	stash.stash = append(stash.stash, stashElem{
		msg:    msg,
		sender: ctx.Sender(),
	})
}

// UnstashAll re-enqueues every stashed message in arrival order, keeping the
// original sender.
func (stash *Stash) UnstashAll(ctx actor.Context) {
	for _, elem := range stash.stash {
		ctx.RequestWithCustomSender(ctx.Self(), elem.msg, elem.sender)
	}
	stash.stash = nil
}

// Next removes the oldest stashed message and returns it along with its
// sender, without going through the mailbox again.
func (stash *Stash) Next() (any, *actor.PID, bool) {
	if len(stash.stash) == 0 {
		return nil, nil, false
	}
	first := stash.stash[0]
	stash.stash = stash.stash[1:]
	return first.msg, first.sender, true
}
