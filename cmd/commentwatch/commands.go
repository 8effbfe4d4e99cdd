package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/recipememo-api/internal/comments"
)

type commandKind int

const (
	cmdNone commandKind = iota
	cmdSubmit
	cmdRetract
	cmdLike
)

type command struct {
	kind commandKind
	arg  string
}

var errUnknownCommand = errors.New("unknown command (use /del <id> or /like <id>)")

// parseCommand reads one stdin line. Plain text is submitted as a comment.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{kind: cmdNone}, nil
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSubmit, arg: line}, nil
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	var kind commandKind
	switch name {
	case "/del":
		kind = cmdRetract
	case "/like":
		kind = cmdLike
	default:
		return command{}, errUnknownCommand
	}
	if arg == "" {
		return command{}, fmt.Errorf("%s needs a comment id", name)
	}
	return command{kind: kind, arg: arg}, nil
}

func renderEvent(w io.Writer, ev comments.Event) {
	switch ev.Kind {
	case comments.EventSubmitFailed:
		fmt.Fprintf(w, "! comment not posted: %v (draft: %q)\n", ev.Err, ev.Draft)
	case comments.EventRetractFailed:
		fmt.Fprintf(w, "! could not delete %s: %v\n", ev.CommentID, ev.Err)
	case comments.EventReactionFailed:
		fmt.Fprintf(w, "! could not update like on %s: %v\n", ev.CommentID, ev.Err)
	case comments.EventStale:
		fmt.Fprintf(w, "! feed interrupted, view may be stale: %v\n", ev.Err)
	}
	if ev.Stale && ev.Kind != comments.EventStale {
		fmt.Fprintln(w, "(stale)")
	}
	renderView(w, ev.View)
}

func renderView(w io.Writer, view []comments.Comment) {
	fmt.Fprintf(w, "--- %d comment(s)\n", len(view))
	for _, c := range view {
		marker := " "
		if c.Pending {
			marker = "…"
		}
		name := c.AuthorName
		if name == "" {
			name = c.AuthorID
		}
		fmt.Fprintf(w, "%s %s  %s: %s  ♥%d\n", marker, c.ID, name, c.Text, c.Likes)
	}
}
