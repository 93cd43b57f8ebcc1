package handler

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gradeflow-api/internal/dto"
	"github.com/noah-isme/gradeflow-api/internal/service"
	"github.com/noah-isme/gradeflow-api/internal/utils"
)

// RubricHandler manages rubric authoring endpoints.
type RubricHandler struct {
	service   service.RubricService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRubricHandler builds a rubric handler instance.
func NewRubricHandler(service service.RubricService, validator *validator.Validate, logger zerolog.Logger) *RubricHandler {
	return &RubricHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "rubric_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *RubricHandler) Register(router fiber.Router) {
	router.Post("", h.create)
	router.Get("/:examId", h.listByExam)
}

func (h *RubricHandler) create(c *fiber.Ctx) error {
	var payload dto.RubricCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	rubric, err := h.service.Create(c.Context(), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "rubric frozen", rubric)
}

func (h *RubricHandler) listByExam(c *fiber.Ctx) error {
	examID := strings.TrimSpace(c.Params("examId"))
	if examID == "" {
		return utils.SendError(c, fiber.StatusBadRequest, "exam id is required")
	}

	rubrics, err := h.service.ListByExam(c.Context(), examID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "rubrics retrieved", rubrics)
}

func (h *RubricHandler) handleError(c *fiber.Ctx, err error) error {
	logger := requestLogger(h.logger, c)

	switch {
	case isValidationError(err):
		return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "invalid rubric payload", validationDetails(err))
	case errors.Is(err, service.ErrRubricStepSum), errors.Is(err, service.ErrRubricPathTaken):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		logger.Error().Err(err).Msg("rubric operation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "rubric operation failed")
	}
}
