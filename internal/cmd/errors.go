package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/huh"

	"github.com/dotcommander/yar/internal/errs"
	"github.com/dotcommander/yar/internal/present"
)

func handleError(w io.Writer, err error) {
	s := present.StderrStyles()
	format := "\n%s\n\n"

	var ferr flagParseError
	if errors.As(err, &ferr) {
		args := []any{
			fmt.Sprintf(
				"Check out %s %s",
				s.InlineCode.Render("yar -h"),
				s.Comment.Render("for help."),
			),
			fmt.Sprintf(
				ferr.ReasonFormat(),
				s.InlineCode.Render(ferr.Flag()),
			),
		}
		fmt.Fprintf(w, format+"%s\n\n", args...)
		return
	}

	var merr errs.Error
	if errors.As(err, &merr) {
		formatArgs := []any{s.ErrPadding.Render(s.ErrorHeader.String(), merr.Reason)}
		if merr.Err != nil && !errors.Is(merr.Err, huh.ErrUserAborted) && !errors.Is(merr.Err, context.Canceled) {
			format += "%s\n\n"
			formatArgs = append(formatArgs, s.ErrPadding.Render(s.ErrorDetails.Render(err.Error())))
		}
		fmt.Fprintf(w, format, formatArgs...)
		return
	}

	fmt.Fprintf(w, format, s.ErrPadding.Render(s.ErrorDetails.Render(err.Error())))
}
