package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pellet_stove/internal/service"
)

const (
	errApplySchedule = "failed to queue schedule change"
	errSetScheduler  = "failed to queue scheduler switch"
)

// ScheduleEntryRequest is the body of PUT /schedule/{index}.
type ScheduleEntryRequest struct {
	Active bool `json:"active" example:"true"`
	// 1=Monday .. 7=Sunday; 0 is accepted as Sunday.
	Day    int `json:"day" example:"1"`
	Hour   int `json:"hour" example:"6"`
	Minute int `json:"minute" example:"30"`
	// Target power level, clamped to 1..5.
	Power int `json:"power" example:"3"`
}

type enabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// @Summary      Weekly schedule
// @Tags         schedule
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "enabled, entries"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/schedule [get]
// @Security     BearerAuth
func (h *Handler) getSchedule(c *gin.Context) {
	ctx := c.Request.Context()
	st := h.services.Monitoring.Status(ctx)
	c.JSON(http.StatusOK, gin.H{
		"enabled": st.SchedulerEnabled,
		"entries": h.services.Schedule.Entries(ctx),
	})
}

// @Summary      Schedule summary
// @Description  One line per slot after a "Global: ENABLED|DISABLED" header, e.g. "#0 act=1 day=1 06:30 power=3".
// @Tags         schedule
// @Produce      plain
// @Success      200  {string}  string
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/schedule/summary [get]
// @Security     BearerAuth
func (h *Handler) getScheduleSummary(c *gin.Context) {
	c.String(http.StatusOK, h.services.Schedule.Summary(c.Request.Context()))
}

// @Summary      Update one schedule slot
// @Tags         schedule
// @Accept       json
// @Produce      json
// @Param        index  path   int                   true  "Slot 0..7"
// @Param        body   body   ScheduleEntryRequest  true  "Slot payload"
// @Success      202    {object}  map[string]interface{}
// @Failure      400    {object}  map[string]string
// @Failure      401    {object}  map[string]string
// @Failure      503    {object}  map[string]string
// @Router       /api/v1/schedule/{index} [put]
// @Security     BearerAuth
func (h *Handler) putScheduleEntry(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slot index"})
		return
	}
	var req ScheduleEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	err = h.services.Schedule.Apply(c.Request.Context(), service.ScheduleParams{
		Index:  index,
		Active: req.Active,
		Day:    req.Day,
		Hour:   req.Hour,
		Minute: req.Minute,
		Power:  req.Power,
	})
	if err != nil {
		h.serviceError(c, errApplySchedule, "schedule_apply_failed", err, "index", index)
		return
	}
	h.respondAccepted(c, gin.H{"index": index})
}

// @Summary      Enable or disable the weekly schedule
// @Tags         schedule
// @Accept       json
// @Produce      json
// @Success      202  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/schedule/enabled [post]
// @Security     BearerAuth
func (h *Handler) setSchedulerEnabled(c *gin.Context) {
	var req enabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if err := h.services.Schedule.SetEnabled(c.Request.Context(), *req.Enabled); err != nil {
		h.serviceError(c, errSetScheduler, "schedule_set_enabled_failed", err)
		return
	}
	h.respondAccepted(c, gin.H{"enabled": *req.Enabled})
}
