package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/keyturn/go-keyturn-server/metrics"
	"github.com/keyturn/go-keyturn-server/types"
)

// RotationAction is the closed set of protocol operations. The wire
// action string is decoded once; dispatch is an exhaustive switch, so an
// unknown action can never fall through to a real operation.
type RotationAction int

const (
	ActionUnknown RotationAction = iota
	ActionStart
	ActionComplete
	ActionStatus
	ActionRollback
)

func ParseRotationAction(s string) RotationAction {
	switch s {
	case "start":
		return ActionStart
	case "complete":
		return ActionComplete
	case "status":
		return ActionStatus
	case "rollback":
		return ActionRollback
	default:
		return ActionUnknown
	}
}

// RotationProtocol is the protocol surface the API dispatches into,
// implemented by services.RotationService
type RotationProtocol interface {
	Start(owner string) (*types.OutputStartRotation, error)
	Complete(owner string, input *types.InputCompleteRotation) error
	Status(owner, rotationID string) (*types.RotationTicket, error)
	Rollback(owner, rotationID string) error
}

type RotationApi struct {
	rotation RotationProtocol
	validate *validator.Validate
}

func NewRotationApi(rotation RotationProtocol) *RotationApi {
	if rotation == nil {
		panic("rotation service cannot be nil")
	}
	return &RotationApi{
		rotation: rotation,
		validate: validator.New(),
	}
}

// Key rotation protocol endpoint
// @Summary Key rotation protocol endpoint
// @Description Runs one of the rotation operations: start, complete, status, rollback
// @Tags Rotation
// @Param action query string true "one of start, complete, status, rollback"
// @Param body body types.InputCompleteRotation false "operation input (unused for start)"
// @Success 200 {object} types.OutputSuccess
// @Failure 400 {object} api.ApiError "invalid input, key mismatch or ticket already finalized"
// @Failure 401 {object} api.ApiError "missing or invalid bearer token"
// @Failure 403 {object} api.ApiError "alias namespace not allowed or deprecation window expired"
// @Failure 404 {object} api.ApiError "ticket not found"
// @Failure 429 {object} api.ApiError "rotation cooldown or daily cap"
// @Security Bearer
// @Accept json
// @Produce json
// @Router /api/v1/rotation [post]
func (ra *RotationApi) Rotation(c *gin.Context) {
	owner := c.GetString("ownerAddress")
	if owner == "" {
		ApiErrorf(c, http.StatusUnauthorized, "not authorized")
		return
	}

	switch ParseRotationAction(c.Query("action")) {
	case ActionStart:
		ra.start(c, owner)
	case ActionComplete:
		ra.complete(c, owner)
	case ActionStatus:
		ra.status(c, owner)
	case ActionRollback:
		ra.rollback(c, owner)
	case ActionUnknown:
		ApiErrorf(c, http.StatusBadRequest, "unknown action")
	}
}

func (ra *RotationApi) start(c *gin.Context, owner string) {
	out, err := ra.rotation.Start(owner)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrCooldownActive):
			metrics.RotationDeniedMetricsCount.Inc()
			ApiErrorReason(c, http.StatusTooManyRequests, "cooldown", "rotation cooldown not elapsed")
		case errors.Is(err, types.ErrDailyCapReached):
			metrics.RotationDeniedMetricsCount.Inc()
			ApiErrorReason(c, http.StatusTooManyRequests, "daily_cap", "daily rotation cap reached")
		default:
			ApiErrorf(c, http.StatusInternalServerError, "failed to start rotation")
		}
		return
	}
	metrics.RotationStartedMetricsCount.Inc()
	c.JSON(http.StatusOK, out)
}

func (ra *RotationApi) complete(c *gin.Context, owner string) {
	var input types.InputCompleteRotation
	if err := c.ShouldBindJSON(&input); err != nil {
		ApiErrorf(c, http.StatusBadRequest, "invalid input")
		return
	}
	if err := ra.validate.Struct(&input); err != nil {
		var vErr validator.ValidationErrors
		if errors.As(err, &vErr) {
			ApiErrorf(c, http.StatusBadRequest, "%s", ValidatorErrorToUser(vErr))
		} else {
			ApiErrorf(c, http.StatusBadRequest, "invalid input")
		}
		return
	}

	if err := ra.rotation.Complete(owner, &input); err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			ApiErrorf(c, http.StatusNotFound, "rotation not found")
		case errors.Is(err, types.ErrConflict):
			ApiErrorf(c, http.StatusBadRequest, "rotation already finalized")
		case errors.Is(err, types.ErrKeyMismatch):
			ApiErrorf(c, http.StatusBadRequest, "old signing key mismatch")
		case errors.Is(err, types.ErrInvalidPublicKey):
			ApiErrorf(c, http.StatusBadRequest, "invalid new public key")
		case errors.Is(err, types.ErrDomainNotAllowed):
			ApiErrorf(c, http.StatusForbidden, "alias namespace not allowed")
		case errors.Is(err, types.ErrBadRequest):
			ApiErrorf(c, http.StatusBadRequest, "invalid input")
		default:
			ApiErrorf(c, http.StatusInternalServerError, "failed to complete rotation")
		}
		return
	}
	metrics.RotationCompletedMetricsCount.Inc()
	c.JSON(http.StatusOK, types.OutputSuccess{Success: true})
}

func (ra *RotationApi) status(c *gin.Context, owner string) {
	var input types.InputRotationRef
	if err := c.ShouldBindJSON(&input); err != nil || input.RotationID == "" {
		ApiErrorf(c, http.StatusBadRequest, "rotationId is required")
		return
	}

	ticket, err := ra.rotation.Status(owner, input.RotationID)
	if err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			ApiErrorf(c, http.StatusNotFound, "rotation not found")
		case errors.Is(err, types.ErrBadRequest):
			ApiErrorf(c, http.StatusBadRequest, "invalid input")
		default:
			ApiErrorf(c, http.StatusInternalServerError, "failed to read rotation status")
		}
		return
	}
	c.JSON(http.StatusOK, ticket)
}

func (ra *RotationApi) rollback(c *gin.Context, owner string) {
	var input types.InputRotationRef
	if err := c.ShouldBindJSON(&input); err != nil || input.RotationID == "" {
		ApiErrorf(c, http.StatusBadRequest, "rotationId is required")
		return
	}

	if err := ra.rotation.Rollback(owner, input.RotationID); err != nil {
		switch {
		case errors.Is(err, types.ErrNotFound):
			ApiErrorf(c, http.StatusNotFound, "rotation not found")
		case errors.Is(err, types.ErrConflict):
			ApiErrorf(c, http.StatusBadRequest, "rotation not completed")
		case errors.Is(err, types.ErrWindowExpired):
			ApiErrorReason(c, http.StatusForbidden, "window_expired", "deprecation window expired")
		case errors.Is(err, types.ErrBadRequest):
			ApiErrorf(c, http.StatusBadRequest, "invalid input")
		default:
			ApiErrorf(c, http.StatusInternalServerError, "failed to roll back rotation")
		}
		return
	}
	metrics.RotationRolledBackMetricsCount.Inc()
	c.JSON(http.StatusOK, types.OutputSuccess{Success: true})
}
