package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"charm.land/fantasy"

	"github.com/dotcommander/yar/internal/config"
	"github.com/dotcommander/yar/internal/errs"
	"github.com/dotcommander/yar/internal/research"
)

// ReasonForError turns a failed run into a user-facing error.
func (s *Service) ReasonForError(err error, mod config.Model) errs.Error {
	var e errs.Error
	if errors.As(err, &e) && e.Reason != "" {
		return e
	}
	if errors.Is(err, context.Canceled) {
		return errs.Error{Err: err, Reason: "Research canceled."}
	}
	var providerErr *fantasy.ProviderError
	if errors.As(err, &providerErr) {
		return s.reasonForProviderError(providerErr, mod)
	}
	switch {
	case errors.Is(err, research.ErrEmptyReport):
		return errs.Error{Err: err, Reason: fmt.Sprintf("The %s model returned an empty report.", mod.API)}
	case errors.Is(err, research.ErrEmptyTopic):
		return errs.Error{Err: err, Reason: "Please provide a research topic."}
	}
	return errs.Error{Err: err, Reason: fmt.Sprintf("There was a problem with the %s API request.", mod.API)}
}

func (s *Service) reasonForProviderError(err *fantasy.ProviderError, mod config.Model) errs.Error {
	cfg := s.cfg
	title := fantasy.ErrorTitleForStatusCode(err.StatusCode)

	switch err.StatusCode {
	case http.StatusNotFound:
		if mod.Fallback != "" {
			return errs.Error{
				Err:    errs.UserErrorf("Try the fallback model: yar --model %s", mod.Fallback),
				Reason: fmt.Sprintf("Missing model '%s' for API '%s'.", cfg.Model, cfg.API),
			}
		}
		return errs.Error{Err: err, Reason: fmt.Sprintf("Missing model '%s' for API '%s'.", cfg.Model, cfg.API)}

	case http.StatusBadRequest:
		if isContextLengthExceeded(err) {
			return errs.Error{
				Err:    errs.UserErrorf("Lower scrape-max-chars or search-pick in the settings."),
				Reason: "Maximum prompt size exceeded.",
			}
		}
		if title == "" {
			title = fmt.Sprintf("%s API request error.", mod.API)
		}
		return errs.Error{Err: err, Reason: title}
	}

	if title == "" {
		if err.IsRetryable() {
			title = "Retryable API error."
		} else {
			title = fmt.Sprintf("%s API request error.", mod.API)
		}
	}
	return errs.Error{Err: err, Reason: title}
}

func isContextLengthExceeded(err *fantasy.ProviderError) bool {
	return strings.Contains(strings.ToLower(err.Message), "context_length_exceeded") ||
		strings.Contains(strings.ToLower(string(err.ResponseBody)), "context_length_exceeded")
}
