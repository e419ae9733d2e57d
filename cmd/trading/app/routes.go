package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"aklineservice/internal/domain"
	"aklineservice/pkg/apperrors"
)

// registerRoutes wires the HTTP surface needed to drive the reader and
// report liveness. These handlers take raw query parameters and return
// plain JSON arrays; the full request/response envelope belongs to the
// separate API service.
func (a *App) registerRoutes() {
	a.engine.GET("/healthz", a.handleHealthz)
	a.engine.GET("/api/v1/klines", a.handleReadKlines)
}

func (a *App) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *App) handleReadKlines(c *gin.Context) {
	symbol := domain.Symbol(c.Query("symbol"))
	res := domain.Resolution(c.Query("resolution"))

	begin, err := parseDate(c.Query("begin"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid begin date"})
		return
	}
	end, err := parseDate(c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end date"})
		return
	}

	candles, err := a.reader.Read(c.Request.Context(), symbol, res, begin, end)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "resolution": res, "candles": candles})
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	return time.ParseInLocation("2006-01-02", s, time.Local)
}

func statusForError(err error) int {
	ae, ok := err.(*apperrors.AppError)
	if !ok {
		return http.StatusInternalServerError
	}
	switch ae.Kind {
	case apperrors.KindUnknownSymbol, apperrors.KindUnsupportedResolution:
		return http.StatusBadRequest
	case apperrors.KindVendorUnavailable, apperrors.KindStorageUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
