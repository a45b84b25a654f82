package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const errSim = "simulator request failed"

type simStateRequest struct {
	Code *int `json:"code" binding:"required"`
}

type simPowerRequest struct {
	Level *int `json:"level" binding:"required"`
}

type simAmbientRequest struct {
	Celsius *float64 `json:"celsius" binding:"required"`
}

type simFailureRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// bindOrBadRequest binds the JSON body into dst and answers 400 on failure.
func bindOrBadRequest(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return false
	}
	return true
}

func (h *Handler) simDone(c *gin.Context, err error, logKey string) {
	if err != nil {
		h.serviceError(c, errSim, logKey, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusOK})
}

// @Summary      Force the simulated run state
// @Tags         simulator
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      409  {object}  map[string]string  "not running the simulator"
// @Router       /api/v1/sim/state [post]
// @Security     BearerAuth
func (h *Handler) simForceState(c *gin.Context) {
	var req simStateRequest
	if !bindOrBadRequest(c, &req) {
		return
	}
	h.simDone(c, h.services.Simulator.ForceState(c.Request.Context(), *req.Code), "sim_force_state_failed")
}

// @Summary      Force the simulated power level
// @Tags         simulator
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/sim/power [post]
// @Security     BearerAuth
func (h *Handler) simForcePower(c *gin.Context) {
	var req simPowerRequest
	if !bindOrBadRequest(c, &req) {
		return
	}
	h.simDone(c, h.services.Simulator.ForcePower(c.Request.Context(), *req.Level), "sim_force_power_failed")
}

// @Summary      Force the simulated ambient temperature
// @Tags         simulator
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/sim/ambient [post]
// @Security     BearerAuth
func (h *Handler) simForceAmbient(c *gin.Context) {
	var req simAmbientRequest
	if !bindOrBadRequest(c, &req) {
		return
	}
	h.simDone(c, h.services.Simulator.ForceAmbient(c.Request.Context(), *req.Celsius), "sim_force_ambient_failed")
}

// @Summary      Toggle simulated line failure
// @Tags         simulator
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/v1/sim/failure [post]
// @Security     BearerAuth
func (h *Handler) simSetFailure(c *gin.Context) {
	var req simFailureRequest
	if !bindOrBadRequest(c, &req) {
		return
	}
	h.simDone(c, h.services.Simulator.SetFailureMode(c.Request.Context(), *req.Enabled), "sim_failure_mode_failed")
}
