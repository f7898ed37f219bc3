package handlers

import (
	"math"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kha1n3vol3/BitaxePID/internal/config"
	"github.com/kha1n3vol3/BitaxePID/internal/interfaces"
	"github.com/kha1n3vol3/BitaxePID/internal/pools"
	"github.com/kha1n3vol3/BitaxePID/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler serves the read-only operational surface: latest telemetry,
// sample history, pool ranking, and prometheus gauges. It only reads shared
// state and never blocks the sampling loop.
type HTTPHandler struct {
	registry     *stats.Registry
	poolRegistry *pools.Registry
	log          interfaces.ILogger
}

func NewHTTPHandler(registry *stats.Registry, poolRegistry *pools.Registry, promReg *prometheus.Registry, log interfaces.ILogger) *gin.Engine {
	handl := &HTTPHandler{
		registry:     registry,
		poolRegistry: poolRegistry,
		log:          log,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.GET("/healthcheck", handl.HealthCheck)
	r.GET("/metrics", handl.GetMetrics)
	r.GET("/metrics/history", handl.GetHistory)
	r.GET("/pools", handl.GetPools)

	if promReg != nil {
		r.GET("/metrics/prometheus", gin.WrapH(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))
	}

	err := r.SetTrustedProxies(nil)
	if err != nil {
		panic(err)
	}

	return r
}

func (h *HTTPHandler) HealthCheck(ctx *gin.Context) {
	ctx.JSON(200, gin.H{
		"status":  "healthy",
		"version": config.BuildVersion,
	})
}

// GetMetrics returns the most recent telemetry record per device.
func (h *HTTPHandler) GetMetrics(ctx *gin.Context) {
	ctx.JSON(200, h.registry.Latest())
}

func (h *HTTPHandler) GetHistory(ctx *gin.Context) {
	ctx.JSON(200, h.registry.History())
}

func (h *HTTPHandler) GetPools(ctx *gin.Context) {
	records := h.poolRegistry.Records()
	rows := make([]PoolRow, 0, len(records))
	for _, rec := range records {
		row := PoolRow{
			Endpoint: rec.Endpoint,
			Fee:      rec.Fee,
		}
		if rec.LatencyMS != nil && !math.IsInf(*rec.LatencyMS, 1) {
			row.LatencyMS = rec.LatencyMS
		}
		if rec.LastTested != nil {
			t := rec.LastTested.Format(time.RFC3339)
			row.LastTested = &t
		}
		rows = append(rows, row)
	}
	ctx.JSON(200, rows)
}
