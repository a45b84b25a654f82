package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pellet_stove/internal/service"
)

const (
	statusOK       = "ok"
	statusAccepted = "accepted"

	errStartStove      = "failed to queue start"
	errShutdownStove   = "failed to queue shutdown"
	errSetPower        = "failed to queue power change"
	errSetTimer        = "failed to queue timer change"
	errQueueBusy       = "command queue busy, retry later"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// serviceError maps typed service errors onto status codes. Validation
// messages are safe to echo; anything else is logged and hidden.
func (h *Handler) serviceError(c *gin.Context, userMsg, logKey string, err error, kv ...interface{}) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrQueueBusy):
		h.logAndJSONError(c, http.StatusServiceUnavailable, errQueueBusy, logKey, err, kv...)
	case errors.Is(err, service.ErrNotSimulating):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logAndJSONError(c, http.StatusInternalServerError, userMsg, logKey, err, kv...)
	}
}

// Commands are queued, not executed, so the reply is 202 with the status
// as it stands right now.
func (h *Handler) respondAccepted(c *gin.Context, extra gin.H) {
	resp := gin.H{"status": statusAccepted}
	for k, v := range extra {
		resp[k] = v
	}
	resp["state"] = h.services.Monitoring.Status(c.Request.Context())
	c.JSON(http.StatusAccepted, resp)
}

type powerRequest struct {
	Level *int `json:"level" binding:"required"`
}

// SetPowerRequest is an exported model for Swagger docs of the power payload.
type SetPowerRequest struct {
	// Target power level. Values outside 1..5 are clamped.
	Level int `json:"level" example:"3"`
}

type timerRequest struct {
	Minutes *int `json:"minutes" binding:"required"`
}

// SetTimerRequest is an exported model for Swagger docs of the timer payload.
type SetTimerRequest struct {
	// Minutes until auto-shutdown; 0 disables. Raised to the minimum
	// on-time and capped at 480.
	Minutes int `json:"minutes" example:"90"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Start stove
// @Tags         stove
// @Produce      json
// @Success      202  {object}  map[string]interface{}  "status, state"
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/stove/start [post]
// @Security     BearerAuth
func (h *Handler) startStove(c *gin.Context) {
	if err := h.services.Stove.Start(c.Request.Context()); err != nil {
		h.serviceError(c, errStartStove, "stove_start_failed", err)
		return
	}
	h.respondAccepted(c, nil)
}

// @Summary      Shut the stove down
// @Description  Refused by the controller while the minimum on-time has not elapsed; the refusal arms the timer for the earliest safe moment.
// @Tags         stove
// @Produce      json
// @Success      202  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/stove/shutdown [post]
// @Security     BearerAuth
func (h *Handler) shutdownStove(c *gin.Context) {
	if err := h.services.Stove.Shutdown(c.Request.Context()); err != nil {
		h.serviceError(c, errShutdownStove, "stove_shutdown_failed", err)
		return
	}
	h.respondAccepted(c, nil)
}

// @Summary      Set power level
// @Tags         stove
// @Accept       json
// @Produce      json
// @Param        body  body   SetPowerRequest  true  "Power payload"
// @Success      202   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/stove/power [post]
// @Security     BearerAuth
func (h *Handler) setPower(c *gin.Context) {
	var req powerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if err := h.services.Stove.SetPower(c.Request.Context(), *req.Level); err != nil {
		h.serviceError(c, errSetPower, "stove_set_power_failed", err, "level", *req.Level)
		return
	}
	h.respondAccepted(c, gin.H{"level": *req.Level})
}

// @Summary      Set auto-shutdown timer
// @Tags         stove
// @Accept       json
// @Produce      json
// @Param        body  body   SetTimerRequest  true  "Timer payload"
// @Success      202   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/stove/timer [post]
// @Security     BearerAuth
func (h *Handler) setTimer(c *gin.Context) {
	var req timerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	if err := h.services.Stove.SetTimer(c.Request.Context(), *req.Minutes); err != nil {
		h.serviceError(c, errSetTimer, "stove_set_timer_failed", err, "minutes", *req.Minutes)
		return
	}
	h.respondAccepted(c, gin.H{"minutes": *req.Minutes})
}

// @Summary      Get stove status
// @Tags         stove
// @Produce      json
// @Success      200  {object}  models.StoveStatus
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/stove/state [get]
// @Security     BearerAuth
func (h *Handler) getState(c *gin.Context) {
	c.JSON(http.StatusOK, h.services.Monitoring.Status(c.Request.Context()))
}
