package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/jobhive/cv-insight/internal/config"
	"github.com/jobhive/cv-insight/internal/dto"
	"github.com/jobhive/cv-insight/internal/model"
	"github.com/jobhive/cv-insight/internal/repository"
	"github.com/jobhive/cv-insight/internal/response"
	"github.com/jobhive/cv-insight/internal/usecase"
	"github.com/jobhive/cv-insight/internal/util"
)

// AnalysisUsecaseInterface lets tests stand in a fake for the usecase.
type AnalysisUsecaseInterface interface {
	Submit(ctx context.Context, in usecase.SubmitInput) (*usecase.SubmitResult, error)
	GetResult(ctx context.Context, userID, id uuid.UUID) (*model.AnalysisRecord, error)
	History(ctx context.Context, userID uuid.UUID, status string, page, limit int) ([]model.AnalysisRecord, int64, error)
	Reanalyze(ctx context.Context, userID, id uuid.UUID, in usecase.ReanalyzeInput) (*usecase.SubmitResult, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	Analytics(ctx context.Context, userID uuid.UUID, days int) (*repository.Analytics, error)
}

// HealthChecker reports per-dependency status for the health endpoint.
type HealthChecker func(ctx context.Context) map[string]string

type AnalysisHandler struct {
	uc     AnalysisUsecaseInterface
	cfg    *config.UploadConfig
	health HealthChecker
}

func NewAnalysisHandler(uc AnalysisUsecaseInterface, cfg *config.UploadConfig, health HealthChecker) *AnalysisHandler {
	return &AnalysisHandler{uc: uc, cfg: cfg, health: health}
}

// RegisterRoutes mounts the analysis API. auth runs on everything except
// /health; userLimiter additionally guards uploads.
func (h *AnalysisHandler) RegisterRoutes(app *fiber.App, auth fiber.Handler, userLimiter fiber.Handler) {
	api := app.Group("/api/v1/analyses")
	api.Get("/health", h.Health)

	api.Use(auth)
	api.Post("/upload", userLimiter, h.Upload)
	api.Get("/results/:id", h.Result)
	api.Get("/history", h.History)
	api.Post("/reanalyze/:id", h.Reanalyze)
	api.Get("/analytics", h.Analytics)
	api.Delete("/:id", h.Delete)
}

func (h *AnalysisHandler) userID(c *fiber.Ctx) (uuid.UUID, error) {
	raw, _ := c.Locals("userId").(string)
	return uuid.Parse(raw)
}

var pdfMagic = []byte("%PDF-")

func (h *AnalysisHandler) Upload(c *fiber.Ctx) error {
	userID, err := h.userID(c)
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusUnauthorized,
			Message: "invalid user identity",
		}, err)
	}

	experienceLevel := c.FormValue("experienceLevel")
	if !model.ValidExperienceLevel(experienceLevel) {
		return validationError(c, "experienceLevel", "experienceLevel must be one of entry, mid, senior, executive")
	}
	major := strings.TrimSpace(c.FormValue("major"))
	if len(major) < 2 || len(major) > 100 {
		return validationError(c, "major", "major must be between 2 and 100 characters")
	}
	var targetJobID *uuid.UUID
	if raw := c.FormValue("jobId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return validationError(c, "jobId", "jobId must be a valid identifier")
		}
		targetJobID = &id
	}

	file, err := c.FormFile("cv")
	if err != nil {
		return validationError(c, "cv", "cv file is required")
	}
	if file.Size > h.cfg.MaxFileSize {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusRequestEntityTooLarge,
			Message: fmt.Sprintf("cv file is too large (max %d MB)", h.cfg.MaxFileSize/(1024*1024)),
		})
	}
	if ext := strings.ToLower(filepath.Ext(file.Filename)); ext != ".pdf" {
		return validationError(c, "cv", "only PDF files are accepted")
	}
	if ct := file.Header.Get("Content-Type"); ct != "" && ct != "application/pdf" && ct != "application/octet-stream" {
		return validationError(c, "cv", "only PDF files are accepted")
	}

	src, err := file.Open()
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "cannot read uploaded file",
		}, err)
	}
	defer src.Close()
	data := make([]byte, file.Size)
	if _, err := io.ReadFull(src, data); err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "cannot read uploaded file",
		}, err)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return validationError(c, "cv", "file does not look like a PDF")
	}

	result, err := h.uc.Submit(c.UserContext(), usecase.SubmitInput{
		UserID:          userID,
		Filename:        filepath.Base(file.Filename),
		Data:            data,
		ExperienceLevel: experienceLevel,
		Major:           major,
		TargetJobID:     targetJobID,
	})
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "failed to submit analysis",
		}, err)
	}

	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusAccepted,
		Message: "Analysis scheduled",
		Data: fiber.Map{
			"analysisId":    result.AnalysisID,
			"status":        result.Status,
			"estimatedTime": result.EstimatedTime.String(),
		},
	})
}

func (h *AnalysisHandler) Result(c *fiber.Ctx) error {
	userID, err := h.userID(c)
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusUnauthorized,
			Message: "invalid user identity",
		}, err)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return notFound(c)
	}
	record, err := h.uc.GetResult(c.UserContext(), userID, id)
	if err != nil {
		if errors.Is(err, usecase.ErrNotFound) {
			return notFound(c)
		}
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "failed to fetch analysis",
		}, err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusOK,
		Message: "Analysis fetched",
		Data:    record,
	})
}

func (h *AnalysisHandler) History(c *fiber.Ctx) error {
	userID, err := h.userID(c)
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusUnauthorized,
			Message: "invalid user identity",
		}, err)
	}
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit", "10"))
	if limit < 1 || limit > 100 {
		limit = 10
	}
	status := c.Query("status")
	if status != "" && !model.ValidStatus(status) {
		return validationError(c, "status", "unknown status filter")
	}

	records, total, err := h.uc.History(c.UserContext(), userID, status, page, limit)
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "failed to fetch history",
		}, err)
	}

	items := make([]dto.AnalysisSummaryDTO, 0, len(records))
	for i := range records {
		items = append(items, dto.NewAnalysisSummaryDTO(&records[i]))
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:       fiber.StatusOK,
		Message:    "History fetched",
		Data:       items,
		Pagination: response.NewPagination(page, limit, total, len(items)),
	})
}

func (h *AnalysisHandler) Reanalyze(c *fiber.Ctx) error {
	userID, err := h.userID(c)
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusUnauthorized,
			Message: "invalid user identity",
		}, err)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return notFound(c)
	}

	var in usecase.ReanalyzeInput
	if level := c.FormValue("experienceLevel"); level != "" {
		if !model.ValidExperienceLevel(level) {
			return validationError(c, "experienceLevel", "experienceLevel must be one of entry, mid, senior, executive")
		}
		in.ExperienceLevel = &level
	}
	if major := strings.TrimSpace(c.FormValue("major")); major != "" {
		if len(major) < 2 || len(major) > 100 {
			return validationError(c, "major", "major must be between 2 and 100 characters")
		}
		in.Major = &major
	}
	if raw := c.FormValue("jobId"); raw != "" {
		jobID, err := uuid.Parse(raw)
		if err != nil {
			return validationError(c, "jobId", "jobId must be a valid identifier")
		}
		in.TargetJobID = &jobID
	}

	result, err := h.uc.Reanalyze(c.UserContext(), userID, id, in)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrNotFound):
			return notFound(c)
		case errors.Is(err, usecase.ErrConflict):
			return util.ErrorResponse(c, util.ErrorResponseFormat{
				Code:    fiber.StatusConflict,
				Message: "analysis is already being processed",
			})
		default:
			return util.ErrorResponse(c, util.ErrorResponseFormat{
				Message: "failed to schedule reanalysis",
			}, err)
		}
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusOK,
		Message: "Reanalysis scheduled",
		Data: fiber.Map{
			"analysisId": result.AnalysisID,
			"status":     result.Status,
		},
	})
}

func (h *AnalysisHandler) Delete(c *fiber.Ctx) error {
	userID, err := h.userID(c)
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusUnauthorized,
			Message: "invalid user identity",
		}, err)
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return notFound(c)
	}
	if err := h.uc.Delete(c.UserContext(), userID, id); err != nil {
		if errors.Is(err, usecase.ErrNotFound) {
			return notFound(c)
		}
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "failed to delete analysis",
		}, err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusOK,
		Message: "Analysis deleted",
	})
}

func (h *AnalysisHandler) Analytics(c *fiber.Ctx) error {
	userID, err := h.userID(c)
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Code:    fiber.StatusUnauthorized,
			Message: "invalid user identity",
		}, err)
	}
	days, _ := strconv.Atoi(c.Query("days", "30"))
	stats, err := h.uc.Analytics(c.UserContext(), userID, days)
	if err != nil {
		return util.ErrorResponse(c, util.ErrorResponseFormat{
			Message: "failed to compute analytics",
		}, err)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusOK,
		Message: "Analytics computed",
		Data:    stats,
	})
}

func (h *AnalysisHandler) Health(c *fiber.Ctx) error {
	deps := map[string]string{}
	if h.health != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
		defer cancel()
		deps = h.health(ctx)
	}
	return util.SuccessResponse(c, util.SuccessResponseFormat{
		Code:    fiber.StatusOK,
		Message: "ok",
		Data: fiber.Map{
			"status":       "up",
			"dependencies": deps,
		},
	})
}

func validationError(c *fiber.Ctx, field, message string) error {
	return util.ErrorResponse(c, util.ErrorResponseFormat{
		Code:    fiber.StatusBadRequest,
		Message: message,
		Details: fiber.Map{"field": field},
	})
}

func notFound(c *fiber.Ctx) error {
	return util.ErrorResponse(c, util.ErrorResponseFormat{
		Code:    fiber.StatusNotFound,
		Message: "analysis not found",
	})
}
