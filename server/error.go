package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
)

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func statusOf(code errors.Code) int {
	switch code {
	case errors.AuthorizationError:
		return http.StatusForbidden
	case errors.NotFoundError:
		return http.StatusNotFound
	case errors.BoundsError, errors.IllegalArgumentError, errors.InsufficientFundsError:
		return http.StatusBadRequest
	case errors.StateError, errors.TimingError:
		return http.StatusConflict
	case errors.UnsupportedError:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

func HTTPErrorHandler(err error, c echo.Context) {
	if code, ok := errors.CoderOf(err); ok {
		status := statusOf(code.ErrorCode())
		if !c.Response().Committed {
			_ = c.JSON(status, &errorResponse{
				Code:    int(code.ErrorCode()),
				Message: err.Error(),
			})
		}
		return
	}
	c.Echo().DefaultHTTPErrorHandler(err, c)
}
