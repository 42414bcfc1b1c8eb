package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/tripmatch-backend/internal/ai"
	"github.com/shinyyama/tripmatch-backend/internal/reqctx"
)

type AIHandler struct {
	estimator ai.WeightEstimator
}

// NewAIHandler accepts a nil estimator; the endpoint then answers 503.
func NewAIHandler(estimator ai.WeightEstimator) *AIHandler {
	return &AIHandler{estimator: estimator}
}

// EstimateWeight suggests a per-unit weight for a product. The value is advisory; the
// shopper still submits weightKg explicitly.
func (h *AIHandler) EstimateWeight(c echo.Context) error {
	if h.estimator == nil {
		return c.JSON(http.StatusServiceUnavailable, NewErrorResponse("unavailable", "weight estimation is not configured"))
	}
	if _, ok, werr := actorFrom(c); !ok {
		return werr
	}
	var req ai.WeightQuery
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	if strings.TrimSpace(req.ProductName) == "" {
		return badRequest(c, "productName is required")
	}
	est, err := h.estimator.Estimate(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, ai.ErrNoEstimate) || errors.Is(err, ai.ErrParseFailed) {
			return c.JSON(http.StatusUnprocessableEntity, NewErrorResponse("no_estimate", "could not estimate a weight for this product"))
		}
		log.Printf("[weight] rid=%s stage=estimate_fail err=%v", reqctx.RID(c.Request().Context()), err)
		return c.JSON(http.StatusBadGateway, NewErrorResponse("upstream_error", "failed to call gemini"))
	}
	return c.JSON(http.StatusOK, est)
}
