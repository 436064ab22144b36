package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts the alarm ingest and introspection endpoints. bearer
// guards the /v1 group when non-empty. gatherer may be nil to skip /metrics.
func RegisterRoutes(r *gin.Engine, h *Handler, bearer string, gatherer prometheus.Gatherer) {
	r.GET("/-/healthy", h.Healthy)
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1", BearerAuth(bearer))
	v1.POST("/alarms", h.PostAlarms)
	v1.GET("/webhook/targets", h.ListTargets)
	v1.GET("/webhook/transformers", h.ListTransformers)
}
