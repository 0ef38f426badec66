package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nmslite/profilerd/internal/attachment"
	"github.com/nmslite/profilerd/internal/authn"
	"github.com/nmslite/profilerd/internal/profiler/errs"
	"github.com/nmslite/profilerd/internal/rpcprofiler"
)

var validate = validator.New()

// Handlers implements the eight profiler session-lifecycle operations
// of spec section 6 as chi handlers, routing each either to the
// caller's own attachment (the common case) or, with
// ProfileAnyAttachment, to a named remote one via rpcprofiler.Client.
type Handlers struct {
	attachments   *attachment.Registry
	rpcClient     *rpcprofiler.Client
	authSvc       *authn.Service
	defaultPlugin string
}

func NewHandlers(attachments *attachment.Registry, rpcClient *rpcprofiler.Client, authSvc *authn.Service, defaultPlugin string) *Handlers {
	return &Handlers{attachments: attachments, rpcClient: rpcClient, authSvc: authSvc, defaultPlugin: defaultPlugin}
}

// Login exchanges admin credentials for a bearer token scoped to the
// caller's attachment id (query parameter, defaulting to a fresh one).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[authn.LoginRequest](w, r)
	if !ok {
		return
	}
	if err := validate.Struct(req); err != nil {
		sendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid login request", err.Error())
		return
	}

	attachmentID := parseAttachmentIDQuery(r)

	resp, err := h.authSvc.Login(req.Username, req.Password, attachmentID)
	if err != nil {
		sendError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", err.Error(), nil)
		return
	}
	sendJSON(w, http.StatusOK, resp)
}

// targetAttachment resolves which attachment this request addresses:
// the "attachmentID" URL path parameter if present and the caller has
// ProfileAnyAttachment (or it equals the caller's own id), else the
// caller's own attachment, creating it on first reference.
func (h *Handlers) targetAttachment(w http.ResponseWriter, r *http.Request) (*attachment.Attachment, bool) {
	claims, ok := claimsFromContext(r)
	if !ok {
		sendError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing request claims", nil)
		return nil, false
	}

	targetID := claims.AttachmentID
	if raw := chi.URLParam(r, "attachmentID"); raw != "" {
		parsed, err := parseInt64(raw)
		if err != nil {
			sendError(w, r, http.StatusBadRequest, "INVALID_ID", "invalid attachment id", nil)
			return nil, false
		}
		targetID = parsed
	}

	if !claims.AuthorizeAttachment(targetID) {
		sendError(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient privilege: PROFILE_ANY_ATTACHMENT", nil)
		return nil, false
	}

	a, ok := h.attachments.Get(targetID)
	if !ok {
		if targetID == claims.AttachmentID {
			// First profiler call from this attachment's own token:
			// treat it as the attachment connecting (spec section 3).
			a = h.attachments.Attach(targetID, claims.Username)
			return a, true
		}
		sendError(w, r, http.StatusNotFound, "NOT_FOUND", "attachment is not active", nil)
		return nil, false
	}
	return a, true
}

// remoteCallerUserName returns the user name to stamp on a remote
// rpcprofiler exchange: empty if the caller holds
// ProfileAnyAttachment (bypassing the remote privilege check), else
// the caller's own user name — spec section 6's
// locksmith(PROFILE_ANY_ATTACHMENT) branch.
func remoteCallerUserName(claims *authn.Claims) string {
	if claims.ProfileAnyAttachment {
		return ""
	}
	return claims.Username
}

// isRemote reports whether targetID differs from the caller's own
// attachment, meaning the request must cross rpcprofiler instead of
// calling the local profiler.Manager directly.
func isRemote(claims *authn.Claims, targetID int64) bool {
	return targetID != claims.AttachmentID
}

func (h *Handlers) StartSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r)
	if !ok {
		sendError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing request claims", nil)
		return
	}
	in, ok := decodeJSON[rpcprofiler.StartSessionInput](w, r)
	if !ok {
		return
	}
	if err := validate.Struct(in); err != nil {
		sendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid start session request", err.Error())
		return
	}
	if in.PluginName == "" {
		in.PluginName = h.defaultPlugin
	}

	a, ok := h.targetAttachment(w, r)
	if !ok {
		return
	}

	if isRemote(claims, a.ID) {
		out, err := h.rpcClient.Call(r.Context(), a.ID, remoteCallerUserName(claims), rpcprofiler.TagStartSession, in)
		if writeCallResult(w, r, out, err) {
			return
		}
		return
	}

	out, err := a.StartSession(r.Context(), in)
	if writeErr(w, r, err) {
		return
	}
	sendJSON(w, http.StatusOK, out)
}

func (h *Handlers) CancelSession(w http.ResponseWriter, r *http.Request) {
	h.dispatchVoid(w, r, rpcprofiler.TagCancelSession, rpcprofiler.CancelSessionInput{},
		func(ctx context.Context, a *attachment.Attachment) error { return a.CancelSession(ctx) })
}

func (h *Handlers) Discard(w http.ResponseWriter, r *http.Request) {
	h.dispatchVoid(w, r, rpcprofiler.TagDiscard, rpcprofiler.DiscardInput{},
		func(ctx context.Context, a *attachment.Attachment) error { return a.Discard(ctx) })
}

func (h *Handlers) FinishSession(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeJSON[rpcprofiler.FinishSessionInput](w, r)
	if !ok {
		return
	}
	h.dispatchVoid(w, r, rpcprofiler.TagFinishSession, in,
		func(ctx context.Context, a *attachment.Attachment) error { return a.FinishSession(ctx, in.Flush) })
}

func (h *Handlers) Flush(w http.ResponseWriter, r *http.Request) {
	h.dispatchVoid(w, r, rpcprofiler.TagFlush, rpcprofiler.FlushInput{},
		func(ctx context.Context, a *attachment.Attachment) error { return a.Flush(ctx) })
}

func (h *Handlers) PauseSession(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeJSON[rpcprofiler.PauseSessionInput](w, r)
	if !ok {
		return
	}
	h.dispatchVoid(w, r, rpcprofiler.TagPauseSession, in,
		func(ctx context.Context, a *attachment.Attachment) error { return a.PauseSession(ctx, in.Flush) })
}

func (h *Handlers) ResumeSession(w http.ResponseWriter, r *http.Request) {
	h.dispatchVoid(w, r, rpcprofiler.TagResumeSession, rpcprofiler.ResumeSessionInput{},
		func(ctx context.Context, a *attachment.Attachment) error { return a.ResumeSession(ctx) })
}

func (h *Handlers) SetFlushInterval(w http.ResponseWriter, r *http.Request) {
	in, ok := decodeJSON[rpcprofiler.SetFlushIntervalInput](w, r)
	if !ok {
		return
	}
	if err := validate.Struct(in); err != nil {
		sendError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid flush interval request", err.Error())
		return
	}
	h.dispatchVoid(w, r, rpcprofiler.TagSetFlushInterval, in,
		func(ctx context.Context, a *attachment.Attachment) error { return a.SetFlushInterval(ctx, in.FlushInterval) })
}

// dispatchVoid handles the seven fire-and-acknowledge operations
// (every operation except StartSession): route
// local or remote, translate the error, and respond 204 on success.
func (h *Handlers) dispatchVoid(w http.ResponseWriter, r *http.Request, tag rpcprofiler.Tag, in any, local func(context.Context, *attachment.Attachment) error) {
	claims, ok := claimsFromContext(r)
	if !ok {
		sendError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing request claims", nil)
		return
	}

	a, ok := h.targetAttachment(w, r)
	if !ok {
		return
	}

	var err error
	if isRemote(claims, a.ID) {
		_, err = h.rpcClient.Call(r.Context(), a.ID, remoteCallerUserName(claims), tag, in)
	} else {
		err = local(r.Context(), a)
	}

	if writeErr(w, r, err) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeCallResult writes a remote StartSession response, returning
// true once the response has been written (success or error).
func writeCallResult(w http.ResponseWriter, r *http.Request, out any, err error) bool {
	if writeErr(w, r, err) {
		return true
	}
	sendJSON(w, http.StatusOK, out)
	return true
}

// writeErr translates a profiler error into an HTTP response and
// reports whether it wrote one.
func writeErr(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errs.Is(err, errs.KindAttachmentNotActive):
		sendError(w, r, http.StatusConflict, string(errs.KindAttachmentNotActive), err.Error(), nil)
	case errs.Is(err, errs.KindInvalidFlushInterval):
		sendError(w, r, http.StatusBadRequest, string(errs.KindInvalidFlushInterval), err.Error(), nil)
	case errs.Is(err, errs.KindPluginNotFound):
		sendError(w, r, http.StatusBadRequest, string(errs.KindPluginNotFound), err.Error(), nil)
	case errs.Is(err, errs.KindInsufficientPrivilege):
		sendError(w, r, http.StatusForbidden, string(errs.KindInsufficientPrivilege), err.Error(), nil)
	case errs.Is(err, errs.KindProtocol):
		sendError(w, r, http.StatusBadGateway, string(errs.KindProtocol), err.Error(), nil)
	default:
		sendError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
	}
	return true
}

func parseAttachmentIDQuery(r *http.Request) int64 {
	raw := r.URL.Query().Get("attachment_id")
	if raw == "" {
		// No caller-supplied id: mint one scoped to this login, the
		// way a fresh engine attachment gets a fresh attachment id.
		return int64(uuid.New().ID())
	}
	id, err := parseInt64(raw)
	if err != nil {
		return int64(uuid.New().ID())
	}
	return id
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
