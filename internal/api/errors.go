package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/linkreach/linkreach/internal/dataset"
	"github.com/linkreach/linkreach/internal/executor"
	"github.com/linkreach/linkreach/internal/filestore"
	"github.com/linkreach/linkreach/internal/filtergen"
	"github.com/linkreach/linkreach/internal/packager"
	"github.com/linkreach/linkreach/internal/pipeline"
	"github.com/linkreach/linkreach/internal/session"
)

type errorClass struct {
	status    int
	code      string
	retryable bool
}

func classify(err error) errorClass {
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest):
		return errorClass{http.StatusBadRequest, "INVALID_REQUEST", false}
	case errors.Is(err, dataset.ErrMalformedInput):
		return errorClass{http.StatusBadRequest, "MALFORMED_INPUT", false}
	case errors.Is(err, packager.ErrUnsupportedFormat):
		return errorClass{http.StatusBadRequest, "UNSUPPORTED_FORMAT", false}
	case errors.Is(err, filestore.ErrTooLarge):
		return errorClass{http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", false}
	case errors.Is(err, session.ErrUnknownSession):
		return errorClass{http.StatusNotFound, "UNKNOWN_SESSION", false}
	case errors.Is(err, filtergen.ErrGenerationTimeout):
		return errorClass{http.StatusGatewayTimeout, "GENERATION_TIMEOUT", true}
	case errors.Is(err, filtergen.ErrGenerationFailure):
		return errorClass{http.StatusBadGateway, "GENERATION_FAILED", true}
	case errors.Is(err, executor.ErrExecutionFailure):
		return errorClass{http.StatusUnprocessableEntity, "EXECUTION_FAILED", false}
	}
	return errorClass{http.StatusInternalServerError, "INTERNAL", true}
}

// writeDomainError maps a pipeline error to its status. Internal errors are
// logged and replaced with a generic detail.
func writeDomainError(ctx context.Context, deps Dependencies, w http.ResponseWriter, err error) {
	class := classify(err)
	detail := err.Error()
	if class.status == http.StatusInternalServerError {
		if deps.Logger != nil {
			deps.Logger.ErrorContext(ctx, "request failed", "error", err)
		}
		detail = "internal server error"
	}
	writeError(ctx, w, class.status, class.code, detail, class.retryable)
}
