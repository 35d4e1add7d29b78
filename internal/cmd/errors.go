package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dotcommander/toolchat/internal/errs"
	"github.com/dotcommander/toolchat/internal/present"
)

func handleError(w io.Writer, err error) {
	styles := present.StderrStyles()
	format := "\n%s\n\n"

	var ferr flagParseError
	if errors.As(err, &ferr) && ferr.Flag() != "" {
		fmt.Fprintf(w, format+"%s\n\n",
			fmt.Sprintf(
				"Check out %s %s",
				styles.InlineCode.Render("toolchat -h"),
				styles.Comment.Render("for help."),
			),
			fmt.Sprintf(ferr.ReasonFormat(), styles.InlineCode.Render(ferr.Flag())),
		)
		return
	}

	var terr errs.Error
	if errors.As(err, &terr) {
		args := []any{styles.ErrPadding.Render(styles.ErrorHeader.String(), terr.Reason)}
		if terr.Err != nil && !errors.Is(terr.Err, context.Canceled) {
			format += "%s\n\n"
			args = append(args, styles.ErrPadding.Render(styles.ErrorDetails.Render(terr.Err.Error())))
		}
		fmt.Fprintf(w, format, args...)
		return
	}

	fmt.Fprintf(w, format, styles.ErrPadding.Render(styles.ErrorDetails.Render(err.Error())))
}
