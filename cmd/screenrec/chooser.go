package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// promptChooser asks on the terminal where to save a finished recording.
// An empty answer accepts the suggestion, "-" discards the recording.
type promptChooser struct {
	in  *bufio.Reader
	out io.Writer
}

func newPromptChooser(in io.Reader, out io.Writer) *promptChooser {
	return &promptChooser{in: bufio.NewReader(in), out: out}
}

func (c *promptChooser) ChooseDestination(ctx context.Context, suggested string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	fmt.Fprintf(c.out, "Save recording to [%s] ('-' discards): ", suggested)
	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, err
	}
	answer := strings.TrimSpace(line)
	switch {
	case answer == "":
		return suggested, true, nil
	case answer == "-":
		return "", false, nil
	}
	if strings.HasSuffix(answer, string(filepath.Separator)) {
		answer = filepath.Join(answer, filepath.Base(suggested))
	}
	if filepath.Ext(answer) == "" {
		answer += ".mp4"
	}
	return answer, true, nil
}
