package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"memtest-go/internal/export"
)

// ResultSource is what the admin routes read from the results store.
type ResultSource interface {
	export.Source
	Counts(ctx context.Context) (map[string]int64, error)
}

// AdminHandler serves result downloads to the study team.
type AdminHandler struct {
	log     *zap.Logger
	results ResultSource
	now     func() time.Time
}

func NewAdminHandler(log *zap.Logger, results ResultSource, now func() time.Time) *AdminHandler {
	if now == nil {
		now = time.Now
	}
	return &AdminHandler{log: log, results: results, now: now}
}

// Export downloads all results. format=xlsx (default) sends one workbook with
// a sheet per table; format=csv sends the table named by table=.
func (h *AdminHandler) Export(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", "xlsx"))
	if format != "xlsx" && format != "csv" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be xlsx or csv"})
		return
	}

	tables, err := export.Collect(c.Request.Context(), h.results)
	if err != nil {
		h.log.Error("Failed to collect results for export", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load results"})
		return
	}

	stamp := h.now().UTC().Format("20060102-150405")
	switch format {
	case "csv":
		name := c.Query("table")
		t, ok := export.Find(tables, name)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown table %q", name)})
			return
		}
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="memtest-%s-%s.csv"`, strings.ToLower(t.Name), stamp))
		c.Status(http.StatusOK)
		if err := export.WriteCSV(c.Writer, t); err != nil {
			h.log.Error("Failed to write CSV export", zap.String("table", t.Name), zap.Error(err))
		}
	default:
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="memtest-results-%s.xlsx"`, stamp))
		c.Status(http.StatusOK)
		if err := export.WriteXLSX(c.Writer, tables); err != nil {
			h.log.Error("Failed to write workbook export", zap.Error(err))
		}
	}
	h.log.Info("Results exported", zap.String("format", format), zap.String("admin", c.GetString("admin")))
}

// Status reports the number of stored rows per table.
func (h *AdminHandler) Status(c *gin.Context) {
	counts, err := h.results.Counts(c.Request.Context())
	if err != nil {
		h.log.Error("Failed to count results", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count results"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tables": counts})
}
