package handler

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/aifraenkel/artist-finance-manager-sub002/internal/domain/entity"
	"github.com/aifraenkel/artist-finance-manager-sub002/internal/domain/repository"
)

// RegistrationAdmin is the maintenance surface of service.RegistrationService.
type RegistrationAdmin interface {
	CleanupExpiredRegistrations(ctx context.Context) (int64, error)
	ListRegistrations(ctx context.Context, filter repository.PendingRegistrationFilter) ([]*entity.PendingRegistration, error)
}

// AdminHandler обрабатывает служебные запросы, защищенные X-Admin-Key
type AdminHandler struct {
	registrations RegistrationAdmin
}

func NewAdminHandler(registrations RegistrationAdmin) *AdminHandler {
	return &AdminHandler{registrations: registrations}
}

// CleanupExpiredRegistrations обрабатывает POST /admin/cleanupExpiredRegistrations
func (h *AdminHandler) CleanupExpiredRegistrations(c *gin.Context) {
	deleted, err := h.registrations.CleanupExpiredRegistrations(c.Request.Context())
	if err != nil {
		respondServiceError(c, "CleanupExpiredRegistrations", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"deleted": deleted,
	})
}

// ExportRegistrations обрабатывает GET /admin/registrations/export?status=&email=&format=xlsx|csv
func (h *AdminHandler) ExportRegistrations(c *gin.Context) {
	status := entity.RegistrationStatus(c.Query("status"))
	switch status {
	case "", entity.RegistrationStatusPending, entity.RegistrationStatusCompleted, entity.RegistrationStatusExpired:
	default:
		respondError(c, http.StatusBadRequest, CodeInvalidRequest, "status must be one of pending, completed, expired")
		return
	}

	format := c.DefaultQuery("format", "xlsx")
	if format != "xlsx" && format != "csv" {
		respondError(c, http.StatusBadRequest, CodeInvalidRequest, "format must be xlsx or csv")
		return
	}

	recs, err := h.registrations.ListRegistrations(c.Request.Context(), repository.PendingRegistrationFilter{
		Status: status,
		Email:  c.Query("email"),
	})
	if err != nil {
		respondServiceError(c, "ExportRegistrations", err)
		return
	}

	filename := fmt.Sprintf("registrations_%s", time.Now().UTC().Format("20060102_150405"))
	if format == "csv" {
		h.exportCSV(c, recs, filename)
		return
	}
	h.exportXLSX(c, recs, filename)
}

var exportHeaders = []string{"Token", "Email", "Name", "Status", "Created At", "Expires At", "Verified At", "IP Address", "Continue URL"}

func exportRow(r *entity.PendingRegistration) []string {
	verifiedAt := ""
	if r.VerifiedAt != nil {
		verifiedAt = r.VerifiedAt.UTC().Format(time.RFC3339)
	}
	ip := ""
	if r.IPAddress != nil {
		ip = *r.IPAddress
	}
	return []string{
		maskToken(r.Token),
		sanitizeForExcel(r.Email),
		sanitizeForExcel(r.Name),
		string(r.Status),
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.ExpiresAt.UTC().Format(time.RFC3339),
		verifiedAt,
		sanitizeForExcel(ip),
		sanitizeForExcel(r.ContinueURL),
	}
}

// exportCSV пишет выгрузку в CSV с BOM для Excel
func (h *AdminHandler) exportCSV(c *gin.Context, recs []*entity.PendingRegistration, filename string) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))
	c.Status(http.StatusOK)

	c.Writer.Write([]byte{0xEF, 0xBB, 0xBF})

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	writer.Write(exportHeaders)
	for _, r := range recs {
		writer.Write(exportRow(r))
	}
}

// exportXLSX пишет выгрузку через StreamWriter
func (h *AdminHandler) exportXLSX(c *gin.Context, recs []*entity.PendingRegistration, filename string) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Registrations"
	f.SetSheetName("Sheet1", sheetName)

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		log.Printf("[AdminHandler] Failed to create StreamWriter: %v", err)
		respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to create Excel file")
		return
	}

	if err := sw.SetRow("A1", toCells(exportHeaders)); err != nil {
		log.Printf("[AdminHandler] Failed to write header row: %v", err)
	}
	for i, r := range recs {
		cell := fmt.Sprintf("A%d", i+2)
		if err := sw.SetRow(cell, toCells(exportRow(r))); err != nil {
			log.Printf("[AdminHandler] Failed to write row %d: %v", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		log.Printf("[AdminHandler] Flush failed: %v", err)
		respondError(c, http.StatusInternalServerError, CodeInternal, "Failed to create Excel file")
		return
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		log.Printf("[AdminHandler] Failed to write Excel response: %v", err)
	}
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

// maskToken оставляет только префикс: выгрузка не должна позволять использовать ссылки
func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:8] + "…"
}

// sanitizeForExcel экранирует данные для защиты от formula injection в Excel/CSV
func sanitizeForExcel(s string) string {
	if len(s) == 0 {
		return s
	}
	// Символы, начинающие формулу в Excel/LibreOffice: = + - @ \t \r
	if s[0] == '=' || s[0] == '+' || s[0] == '-' || s[0] == '@' || s[0] == '\t' || s[0] == '\r' {
		return "'" + s
	}
	return s
}

// Health обрабатывает GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
