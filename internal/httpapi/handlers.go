// Package httpapi holds the HTTP handlers for the API binary.
// Keep these thin: parse/validate input, call internal services, return JSON.
package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"agentsdr/internal/audit"
	"agentsdr/internal/auth"
	"agentsdr/internal/calls"
	"agentsdr/internal/callsched"
	"agentsdr/internal/digest"
	"agentsdr/internal/orgs"
	"agentsdr/internal/pipeline"
	"agentsdr/internal/rbac"
	"agentsdr/internal/reporting"
	"agentsdr/internal/telephony"
	"agentsdr/pkg/logger"
)

// Handlers groups HTTP handlers for dependency injection.

type Handlers struct {
	Orgs      *orgs.Service
	Calls     *calls.Store
	Pipeline  *pipeline.Service
	Schedules *callsched.Service
	Digests   *digest.Service
	Reporting *reporting.Service
	Audit     *audit.Service

	// WebhookSecret authenticates vendor webhook posts. Empty disables
	// the check (local development only).
	WebhookSecret string
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

// failFrom maps domain sentinels onto HTTP statuses.
func failFrom(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orgs.ErrNotFound),
		errors.Is(err, calls.ErrNotFound),
		errors.Is(err, callsched.ErrNotFound),
		errors.Is(err, digest.ErrNotFound):
		fail(c, http.StatusNotFound, "not found")
	case errors.Is(err, orgs.ErrInvalidArgument),
		errors.Is(err, calls.ErrInvalidArgument),
		errors.Is(err, callsched.ErrInvalidArgument),
		errors.Is(err, digest.ErrInvalidArgument):
		fail(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, orgs.ErrAlreadyMember):
		fail(c, http.StatusConflict, "already a member")
	case errors.Is(err, orgs.ErrLastOwner):
		fail(c, http.StatusConflict, "organization must keep at least one owner")
	case errors.Is(err, orgs.ErrInviteExpired):
		fail(c, http.StatusGone, "invitation expired")
	case errors.Is(err, callsched.ErrNotClaimable),
		errors.Is(err, digest.ErrNotRunnable):
		fail(c, http.StatusConflict, "not in a runnable state")
	default:
		fail(c, http.StatusInternalServerError, "internal error")
	}
}

func callerID(c *gin.Context) (string, bool) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil || userID == "" {
		fail(c, http.StatusUnauthorized, "authentication required")
		return "", false
	}
	return userID, true
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// --- Organizations ---

func (h Handlers) CreateOrg(c *gin.Context) {
	userID, authed := callerID(c)
	if !authed {
		return
	}
	var req orgs.CreateOrgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	org, err := h.Orgs.Create(c.Request.Context(), userID, req)
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusCreated, org)
}

func (h Handlers) ListOrgs(c *gin.Context) {
	userID, authed := callerID(c)
	if !authed {
		return
	}
	out, err := h.Orgs.ListForUser(c.Request.Context(), userID)
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

func (h Handlers) GetOrg(c *gin.Context) {
	org, err := h.Orgs.Get(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, org)
}

// --- Members ---

func (h Handlers) ListMembers(c *gin.Context) {
	out, err := h.Orgs.ListMembers(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (h Handlers) ChangeMemberRole(c *gin.Context) {
	actorID, authed := callerID(c)
	if !authed {
		return
	}
	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	orgID := c.Param("org_id")
	memberID := c.Param("user_id")
	if err := h.Orgs.ChangeMemberRole(c.Request.Context(), orgID, memberID, req.Role); err != nil {
		failFrom(c, err)
		return
	}
	if h.Audit != nil {
		h.Audit.MemberChange(c.Request.Context(), orgID, actorID, rbac.OrgRole(c), memberID, "role changed to "+req.Role)
	}
	ok(c, http.StatusOK, gin.H{"user_id": memberID, "role": req.Role})
}

func (h Handlers) RemoveMember(c *gin.Context) {
	actorID, authed := callerID(c)
	if !authed {
		return
	}
	orgID := c.Param("org_id")
	memberID := c.Param("user_id")
	if err := h.Orgs.RemoveMember(c.Request.Context(), orgID, memberID); err != nil {
		failFrom(c, err)
		return
	}
	if h.Audit != nil {
		h.Audit.MemberChange(c.Request.Context(), orgID, actorID, rbac.OrgRole(c), memberID, "member removed")
	}
	c.Status(http.StatusNoContent)
}

// --- Invitations ---

func (h Handlers) CreateInvitation(c *gin.Context) {
	userID, authed := callerID(c)
	if !authed {
		return
	}
	var req orgs.InviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	inv, err := h.Orgs.Invite(c.Request.Context(), c.Param("org_id"), userID, req)
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusCreated, inv)
}

func (h Handlers) ListInvitations(c *gin.Context) {
	out, err := h.Orgs.ListInvitations(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

func (h Handlers) RevokeInvitation(c *gin.Context) {
	if err := h.Orgs.RevokeInvitation(c.Request.Context(), c.Param("org_id"), c.Param("invitation_id")); err != nil {
		failFrom(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type acceptInvitationRequest struct {
	Token string `json:"token"`
}

// AcceptInvitation redeems an invitation token for the caller. It is not
// org-scoped: the token itself names the org.
func (h Handlers) AcceptInvitation(c *gin.Context) {
	userID, authed := callerID(c)
	if !authed {
		return
	}
	var req acceptInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		fail(c, http.StatusBadRequest, "token required")
		return
	}
	member, err := h.Orgs.AcceptInvitation(c.Request.Context(), userID, req.Token)
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, member)
}

// --- Calls ---

func (h Handlers) ListCalls(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	out, err := h.Calls.Records(c.Request.Context(), c.Param("org_id"), limit, offset)
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

func (h Handlers) GetCall(c *gin.Context) {
	out, err := h.Calls.Detail(c.Request.Context(), c.Param("org_id"), c.Param("call_record_id"))
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

type processCallRequest struct {
	CallID string `json:"call_id"`
}

// ProcessCall runs the full pipeline for a vendor call id. Partial
// failures still return the result body so the caller can see what was
// persisted.
func (h Handlers) ProcessCall(c *gin.Context) {
	var req processCallRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CallID == "" {
		fail(c, http.StatusBadRequest, "call_id required")
		return
	}
	res, err := h.Pipeline.ProcessCall(c.Request.Context(), c.Param("org_id"), req.CallID)
	h.pipelineResponse(c, req.CallID, res, err)
}

// RetryCRMSync re-runs only the CRM step for a processed call.
func (h Handlers) RetryCRMSync(c *gin.Context) {
	res, err := h.Pipeline.RetrySync(c.Request.Context(), c.Param("org_id"), c.Param("call_record_id"))
	if err != nil {
		var ce *pipeline.CRMSyncError
		if errors.As(err, &ce) {
			c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": ce.Error(), "data": res})
			return
		}
		if errors.Is(err, pipeline.ErrNoSummary) {
			fail(c, http.StatusConflict, "call has no summary to sync")
			return
		}
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (h Handlers) pipelineResponse(c *gin.Context, callID string, res pipeline.Result, err error) {
	orgID := c.Param("org_id")
	if h.Audit != nil && (err == nil || res.Success) {
		h.Audit.CallProcessed(c.Request.Context(), orgID, callID, res.CRMSuccess)
	}
	if err == nil {
		ok(c, http.StatusOK, res)
		return
	}

	var (
		vf *pipeline.VendorFetchError
		se *pipeline.SummarizationError
		ce *pipeline.CRMSyncError
	)
	switch {
	case errors.As(err, &vf):
		fail(c, http.StatusBadGateway, vf.Error())
	case errors.As(err, &se):
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": se.Error(), "data": res})
	case errors.As(err, &ce):
		// Call data persisted; only the CRM push failed.
		c.JSON(http.StatusOK, gin.H{"success": true, "data": res, "crm_error": ce.Error()})
	default:
		failFrom(c, err)
	}
}

// --- Vendor webhook ---

// VendorWebhook ingests call-completed events posted by the voicebot
// vendor. Auth is a shared secret header, not a user token.
func (h Handlers) VendorWebhook(c *gin.Context) {
	if h.WebhookSecret != "" {
		got := c.GetHeader("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.WebhookSecret)) != 1 {
			logger.FromGin(c).Warn("webhook rejected", "reason", "bad secret", "remote", c.ClientIP())
			fail(c, http.StatusUnauthorized, "invalid webhook secret")
			return
		}
	}
	orgID := c.Param("org_id")
	var ev telephony.WebhookEvent
	if err := c.ShouldBindJSON(&ev); err != nil || ev.CallID == "" {
		fail(c, http.StatusBadRequest, "call_id required")
		return
	}

	res, err := h.Pipeline.ProcessWebhook(c.Request.Context(), orgID, ev)

	// Settle the originating schedule regardless of pipeline outcome; the
	// vendor call itself is finished.
	if h.Schedules != nil {
		if serr := h.Schedules.CompleteByCall(c.Request.Context(), orgID, ev.CallID); serr != nil && !errors.Is(serr, callsched.ErrNotFound) {
			fail(c, http.StatusInternalServerError, "schedule settlement failed")
			return
		}
	}
	h.pipelineResponse(c, ev.CallID, res, err)
}

// --- Call schedules ---

func (h Handlers) CreateCallSchedule(c *gin.Context) {
	userID, authed := callerID(c)
	if !authed {
		return
	}
	var req callsched.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	sched, err := h.Schedules.Create(c.Request.Context(), c.Param("org_id"), userID, req)
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusCreated, sched)
}

func (h Handlers) ListCallSchedules(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	out, err := h.Schedules.List(c.Request.Context(), c.Param("org_id"), limit, offset)
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

func (h Handlers) GetCallSchedule(c *gin.Context) {
	out, err := h.Schedules.Get(c.Request.Context(), c.Param("org_id"), c.Param("schedule_id"))
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

func (h Handlers) CancelCallSchedule(c *gin.Context) {
	if err := h.Schedules.Cancel(c.Request.Context(), c.Param("org_id"), c.Param("schedule_id")); err != nil {
		failFrom(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ExecuteCallSchedule fires a schedule immediately, subject to the same
// claim the scheduler uses.
func (h Handlers) ExecuteCallSchedule(c *gin.Context) {
	orgID := c.Param("org_id")
	scheduleID := c.Param("schedule_id")
	sched, err := h.Schedules.Execute(c.Request.Context(), orgID, scheduleID)
	if h.Audit != nil {
		h.Audit.ScheduleExecuted(c.Request.Context(), orgID, scheduleID, sched.CallID, err)
	}
	if err != nil {
		if errors.Is(err, callsched.ErrConcurrencyLimited) {
			fail(c, http.StatusTooManyRequests, "org call concurrency limit reached")
			return
		}
		var ee *callsched.ExecutionError
		if errors.As(err, &ee) {
			fail(c, http.StatusBadGateway, ee.Error())
			return
		}
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, sched)
}

// --- Email schedules ---

func (h Handlers) CreateEmailSchedule(c *gin.Context) {
	userID, authed := callerID(c)
	if !authed {
		return
	}
	var req digest.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	sched, err := h.Digests.Create(c.Request.Context(), c.Param("org_id"), userID, req)
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusCreated, sched)
}

func (h Handlers) ListEmailSchedules(c *gin.Context) {
	out, err := h.Digests.List(c.Request.Context(), c.Param("org_id"))
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

func (h Handlers) GetEmailSchedule(c *gin.Context) {
	out, err := h.Digests.Get(c.Request.Context(), c.Param("org_id"), c.Param("schedule_id"))
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

func (h Handlers) DeleteEmailSchedule(c *gin.Context) {
	if err := h.Digests.Delete(c.Request.Context(), c.Param("org_id"), c.Param("schedule_id")); err != nil {
		failFrom(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

func (h Handlers) SetEmailScheduleActive(c *gin.Context) {
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		fail(c, http.StatusBadRequest, "active required")
		return
	}
	if err := h.Digests.SetActive(c.Request.Context(), c.Param("org_id"), c.Param("schedule_id"), *req.Active); err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"active": *req.Active})
}

// RunEmailSchedule forces an immediate delivery outside the schedule.
func (h Handlers) RunEmailSchedule(c *gin.Context) {
	orgID := c.Param("org_id")
	scheduleID := c.Param("schedule_id")
	content, err := h.Digests.RunNow(c.Request.Context(), orgID, scheduleID)
	if h.Audit != nil {
		h.Audit.DigestSent(c.Request.Context(), orgID, scheduleID, content.Count, err)
	}
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"subject": content.Subject, "summaries": content.Count})
}

// --- Reporting ---

func (h Handlers) CallsSummary(c *gin.Context) {
	to := time.Now().UTC()
	from := to.Add(-time.Duration(intQuery(c, "hours", 24*7)) * time.Hour)
	out, err := h.Reporting.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		OrgID: c.Param("org_id"),
		Range: reporting.TimeRange{From: from, To: to},
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

func (h Handlers) SchedulingSummary(c *gin.Context) {
	out, err := h.Reporting.SchedulingSummary(c.Request.Context(), reporting.SchedulingSummaryRequest{
		OrgID: c.Param("org_id"),
		Now:   time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, reporting.ErrInvalidRequest) {
			fail(c, http.StatusBadRequest, err.Error())
			return
		}
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// --- Audit ---

func (h Handlers) ListAuditEvents(c *gin.Context) {
	out, err := h.Audit.ListByOrg(c.Request.Context(), c.Param("org_id"), intQuery(c, "limit", 100))
	if err != nil {
		failFrom(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}
