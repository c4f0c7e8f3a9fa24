package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Router wires every route. Only health and the Telnyx webhook are open; the
// rest sit behind the internal bearer token.
func Router(h *Handler, internalToken string) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/v1")

	v1.GET("/health", h.Health)
	v1.POST("/inbound", h.Inbound)

	internal := v1.Group("", RequireBearer(internalToken))

	internal.GET("/scheduler/status", h.SchedulerStatus)
	internal.POST("/scheduler/start", h.SchedulerStart)
	internal.POST("/scheduler/stop", h.SchedulerStop)

	internal.GET("/messages/sent", h.ListSentMessages)

	internal.POST("/bursts", h.SendBurst)
	internal.POST("/sms", h.SendSMS)
	internal.POST("/mms", h.SendMMS)
	internal.POST("/mms/group", h.SendGroupMMS)

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "hr-lambda-telnyx")
	})

	return r
}
