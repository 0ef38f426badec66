package rpcprofiler

import (
	"context"
	"fmt"

	"github.com/nmslite/profilerd/internal/profiler/errs"
)

// Client issues remote profiler commands against another attachment's
// Listener, the Go shape of ProfilerIpc::internalSendAndReceive: check
// liveness, lazily ensure the listener exists, then exchange one
// command under the channel's mutex.
type Client struct {
	registry *Registry
	isAlive  LivenessChecker
	resolve  ResolveDispatcher
}

func NewClient(registry *Registry, isAlive LivenessChecker, resolve ResolveDispatcher) *Client {
	return &Client{registry: registry, isAlive: isAlive, resolve: resolve}
}

// Call sends tag/payload to targetAttachmentID on behalf of
// callerUserName (empty if the caller holds the
// PROFILE_ANY_ATTACHMENT-equivalent privilege, per spec section 6),
// and returns the decoded response payload.
func (c *Client) Call(ctx context.Context, targetAttachmentID int64, callerUserName string, tag Tag, in any) (any, error) {
	// Step 1: liveness probe — the exclusive no-wait lock check.
	if !c.isAlive(targetAttachmentID) {
		return nil, errs.New(errs.KindAttachmentNotActive,
			fmt.Sprintf("cannot start remote profile session: attachment %d is not active", targetAttachmentID))
	}

	// Step 2: ensure the listener exists — the shared waiting lock
	// whose acquisition fires blockingAst.
	c.registry.ensureListener(targetAttachmentID, c.resolve)

	ch := c.registry.channelFor(targetAttachmentID)

	// Step 3: guard the channel for the duration of one exchange
	// (ProfilerIpc::Guard) — this only serializes concurrent callers
	// targeting the same attachment. The listener never takes this
	// lock: the post/wait pair below is what hands the header off to
	// it safely, so holding ch.mu across the wait can't deadlock
	// against the listener.
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.header.tag = tag
	ch.header.userName = callerUserName
	ch.header.payload = in

	// Step 4: clear-then-post-then-wait, exactly the original's
	// eventClear/eventPost/eventWait ordering.
	clear(ch.clientEvent)
	post(ch.serverEvent)

	if err := wait(ctx, ch.clientEvent); err != nil {
		return nil, errs.Wrap(errs.KindProtocol, "remote profiler command timed out", err)
	}

	// Step 5: decode the response.
	switch ch.header.tag {
	case TagResponse:
		return ch.header.payload, nil
	case TagException:
		msg, _ := ch.header.payload.(string)
		return nil, errs.New(errs.KindProtocol, msg)
	default:
		return nil, errs.New(errs.KindProtocol, fmt.Sprintf("unexpected response tag %s", ch.header.tag))
	}
}
