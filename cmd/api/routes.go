package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"agentsdr/internal/httpapi"
	"agentsdr/internal/rbac"
)

// registerRoutes mounts the public surface and the authenticated v1 API.
// Org-scoped groups resolve the caller's membership from the :org_id param.
func registerRoutes(r *gin.Engine, requireToken gin.HandlerFunc, h httpapi.Handlers, resolver rbac.RoleResolver) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Vendor callbacks authenticate with a shared secret, not a user token.
	r.POST("/webhooks/voicebot/:org_id", h.VendorWebhook)

	v1 := r.Group("/v1")
	v1.Use(requireToken)

	v1.POST("/orgs", h.CreateOrg)
	v1.GET("/orgs", h.ListOrgs)
	v1.POST("/invitations/accept", h.AcceptInvitation)

	anyMember := rbac.RequireOrgRole(resolver, rbac.RoleOwner, rbac.RoleAdmin, rbac.RoleMember)
	managers := rbac.RequireOrgRole(resolver, rbac.RoleOwner, rbac.RoleAdmin)
	owners := rbac.RequireOrgRole(resolver, rbac.RoleOwner)

	org := v1.Group("/orgs/:org_id")
	{
		read := org.Group("", anyMember)
		read.GET("", h.GetOrg)
		read.GET("/members", h.ListMembers)
		read.GET("/calls", h.ListCalls)
		read.GET("/calls/:call_record_id", h.GetCall)
		read.GET("/call-schedules", h.ListCallSchedules)
		read.GET("/call-schedules/:schedule_id", h.GetCallSchedule)
		read.GET("/email-schedules", h.ListEmailSchedules)
		read.GET("/email-schedules/:schedule_id", h.GetEmailSchedule)
		read.GET("/reports/calls", h.CallsSummary)
		read.GET("/reports/scheduling", h.SchedulingSummary)

		manage := org.Group("", managers)
		manage.POST("/invitations", h.CreateInvitation)
		manage.GET("/invitations", h.ListInvitations)
		manage.DELETE("/invitations/:invitation_id", h.RevokeInvitation)
		manage.POST("/calls/process", h.ProcessCall)
		manage.POST("/calls/:call_record_id/crm-sync", h.RetryCRMSync)
		manage.POST("/call-schedules", h.CreateCallSchedule)
		manage.DELETE("/call-schedules/:schedule_id", h.CancelCallSchedule)
		manage.POST("/call-schedules/:schedule_id/execute", h.ExecuteCallSchedule)
		manage.POST("/email-schedules", h.CreateEmailSchedule)
		manage.DELETE("/email-schedules/:schedule_id", h.DeleteEmailSchedule)
		manage.PATCH("/email-schedules/:schedule_id/active", h.SetEmailScheduleActive)
		manage.POST("/email-schedules/:schedule_id/run", h.RunEmailSchedule)
		manage.GET("/audit-events", h.ListAuditEvents)

		own := org.Group("", owners)
		own.PATCH("/members/:user_id/role", h.ChangeMemberRole)
		own.DELETE("/members/:user_id", h.RemoveMember)
	}
}
