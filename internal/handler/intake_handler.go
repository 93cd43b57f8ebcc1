package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gradeflow-api/internal/dto"
	"github.com/noah-isme/gradeflow-api/internal/service"
	"github.com/noah-isme/gradeflow-api/internal/utils"
)

// IntakeHandler accepts answer-sheet uploads.
type IntakeHandler struct {
	service   service.IntakeService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewIntakeHandler builds an intake handler instance.
func NewIntakeHandler(service service.IntakeService, validator *validator.Validate, logger zerolog.Logger) *IntakeHandler {
	return &IntakeHandler{
		service:   service,
		validator: validator,
		logger:    logger.With().Str("component", "intake_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *IntakeHandler) Register(router fiber.Router) {
	router.Post("", h.create)
}

func (h *IntakeHandler) create(c *fiber.Ctx) error {
	payload := dto.IntakeRequest{
		ExamID:    strings.TrimSpace(c.FormValue("exam_id")),
		StudentID: strings.TrimSpace(c.FormValue("student_id")),
	}

	if value := strings.TrimSpace(c.FormValue("priority")); value != "" {
		priority, err := strconv.Atoi(value)
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid priority")
		}
		payload.Priority = priority
	}

	if score, err := parseFormFloat(c, "mcq_score"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	} else if score != nil {
		payload.McqScore = score
	}
	if max, err := parseFormFloat(c, "mcq_max"); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	} else if max != nil {
		payload.McqMax = max
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "multipart form is required")
	}

	files := form.File["files"]

	response, err := h.service.Create(c.UserContext(), payload, files)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "submission accepted", response)
}

func (h *IntakeHandler) handleError(c *fiber.Ctx, err error) error {
	logger := requestLogger(h.logger, c)

	switch {
	case errors.Is(err, service.ErrDuplicateSubmission):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrExamNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNoFiles):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case isValidationError(err):
		return utils.SendErrorWithDetails(c, fiber.StatusBadRequest, "invalid submission payload", validationDetails(err))
	default:
		logger.Error().Err(err).Msg("intake failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to accept submission")
	}
}

func parseFormFloat(c *fiber.Ctx, key string) (*float64, error) {
	value := strings.TrimSpace(c.FormValue(key))
	if value == "" {
		return nil, nil
	}

	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, errors.New("invalid " + key)
	}

	return &parsed, nil
}
