package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"pellet_stove/internal/micronova"
)

const errProbe = "failed to read board memory"

func parseKind(s string) (micronova.Kind, bool) {
	switch strings.ToLower(s) {
	case "ram":
		return micronova.RAM, true
	case "eeprom":
		return micronova.EEPROM, true
	}
	return 0, false
}

// @Summary      Read a raw board address
// @Description  addr accepts decimal or 0x-prefixed hex. An empty byte list means the board did not answer.
// @Tags         diagnostics
// @Produce      json
// @Param        kind  path   string  true  "Memory bank"  Enums(ram,eeprom)
// @Param        addr  path   string  true  "Address 0..255"  example(0x21)
// @Success      200   {object}  service.ProbeResult
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/diag/{kind}/{addr} [get]
// @Security     BearerAuth
func (h *Handler) probe(c *gin.Context) {
	kind, ok := parseKind(c.Param("kind"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind must be ram or eeprom"})
		return
	}
	addr, err := strconv.ParseUint(c.Param("addr"), 0, 8)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "addr must be 0..255 (decimal or 0x hex)"})
		return
	}
	res, err := h.services.Diagnostics.Probe(c.Request.Context(), kind, byte(addr))
	if err != nil {
		h.serviceError(c, errProbe, "diag_probe_failed", err, "kind", kind.String(), "addr", addr)
		return
	}
	c.JSON(http.StatusOK, res)
}
