package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/emanehab99/gstar-stats/internal/aggregate"
	"github.com/emanehab99/gstar-stats/internal/core"
	"github.com/emanehab99/gstar-stats/internal/logging"
	"github.com/emanehab99/gstar-stats/internal/version"
)

var log = logging.For("api")

// ReportBuilder assembles (or fetches) the report for a period.
type ReportBuilder func(ctx context.Context, p core.Period) (core.Report, error)

type ReportHandler struct {
	Build ReportBuilder
}

func NewReportHandler(build ReportBuilder) *ReportHandler {
	return &ReportHandler{Build: build}
}

// NewRouter wires the read-only report view.
func NewRouter(h *ReportHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", h.Health)
	v1 := r.Group("/api/v1")
	{
		v1.GET("/reports/:year/:quarter", h.GetReport)
		v1.GET("/datasets/categorize", h.CategorizeDataset)
	}
	return r
}

func (h *ReportHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": version.Get()})
}

func (h *ReportHandler) GetReport(c *gin.Context) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "year must be a number"})
		return
	}
	q, err := strconv.Atoi(c.Param("quarter"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "quarter must be a number"})
		return
	}
	p, err := core.QuarterPeriod(core.Quarter(q), year)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rep, err := h.Build(c.Request.Context(), p)
	if err != nil {
		log.WithField("event", "report_failed").WithField("period", p.Key()).WithError(err).Error("report build failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report unavailable"})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *ReportHandler) CategorizeDataset(c *gin.Context) {
	name := c.Query("name")
	category, ok := aggregate.CategorizeDataset(name)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "category": category})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithField("event", "http_request").
			WithField("method", c.Request.Method).
			WithField("path", c.FullPath()).
			WithField("status", c.Writer.Status()).
			WithField("duration", time.Since(start)).
			Debug("request served")
	}
}
