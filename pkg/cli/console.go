package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/repository"
	"github.com/romirm/advice-app/pkg/usecase/conversation"
	"github.com/romirm/advice-app/pkg/usecase/history"
)

const consoleHelp = `Commands:
  /skip           get advice now without answering more questions
  /restart        start the clarifying questions over
  /pick <n>       talk to perspective n
  /back           leave the conversation with a perspective
  /new            ask a new question
  /history        list past conversations
  /resume <id>    reopen a past conversation
  /quit           exit`

// console turns lines typed by the user into controller intents and renders
// the resulting view as text
type console struct {
	ctrl *conversation.Controller
	repo repository.Repository
	w    io.Writer
	// wait shows a busy indicator until the returned function is called
	wait func(label string) func()
}

func newConsole(ctrl *conversation.Controller, repo repository.Repository, w io.Writer) *console {
	return &console{
		ctrl: ctrl,
		repo: repo,
		w:    w,
		wait: func(string) func() { return func() {} },
	}
}

func spinnerWait(w io.Writer) func(string) func() {
	return func(label string) func() {
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
		s.Suffix = " " + label
		s.Start()
		return s.Stop
	}
}

func (c *console) greet(ctx context.Context) {
	fmt.Fprintln(c.w, "Ask anything you would like advice on. Type /help for commands.")
	c.render(ctx)
}

// handle processes one input line. It returns false when the user quits.
func (c *console) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	if strings.HasPrefix(line, "/") {
		return c.command(ctx, line)
	}

	view := c.ctrl.View(ctx)
	switch {
	case view.Mode == conversation.ModeGathering:
		c.run(ctx, "thinking...", func() error { return c.ctrl.AnswerFollowUp(ctx, line) })
	case view.Mode == conversation.ModeSingle:
		c.run(ctx, view.Selected+" is typing...", func() error { return c.ctrl.SendInSingle(ctx, line) })
	case len(view.Perspectives) > 0:
		if n, err := strconv.Atoi(line); err == nil {
			c.pick(ctx, n)
			return true
		}
		fmt.Fprintln(c.w, "Pick a perspective with /pick <n>, or ask something new with /new")
	default:
		c.run(ctx, "thinking...", func() error { return c.ctrl.SubmitQuestion(ctx, line) })
	}
	return true
}

func (c *console) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return false
	case "/help":
		fmt.Fprintln(c.w, consoleHelp)
	case "/skip":
		c.run(ctx, "generating advice...", func() error { return c.ctrl.SkipGathering(ctx) })
	case "/restart":
		c.run(ctx, "", c.ctrl.RestartGathering)
	case "/back":
		c.run(ctx, "", c.ctrl.GoBack)
	case "/new":
		c.run(ctx, "", c.ctrl.Reset)
	case "/pick":
		n, err := strconv.Atoi(arg)
		if err != nil {
			fmt.Fprintln(c.w, "Usage: /pick <n>")
			return true
		}
		c.pick(ctx, n)
	case "/history":
		c.history(ctx)
	case "/resume":
		c.resume(ctx, model.RecordID(arg))
	default:
		fmt.Fprintf(c.w, "Unknown command %s. Type /help for commands.\n", name)
	}
	return true
}

func (c *console) pick(ctx context.Context, n int) {
	perspectives := c.ctrl.View(ctx).Perspectives
	if n < 1 || n > len(perspectives) {
		fmt.Fprintf(c.w, "Choose a number between 1 and %d\n", len(perspectives))
		return
	}
	name := perspectives[n-1].Name
	c.run(ctx, "", func() error { return c.ctrl.SelectPerspective(ctx, name) })
}

func (c *console) history(ctx context.Context) {
	if c.repo == nil {
		fmt.Fprintln(c.w, "History is not available")
		return
	}
	records, err := history.List(ctx, c.repo, c.ctrl.UserID(), 10)
	if err != nil {
		c.printError(err)
		return
	}
	writeRecordList(c.w, records)
}

func (c *console) resume(ctx context.Context, id model.RecordID) {
	if id == "" {
		fmt.Fprintln(c.w, "Usage: /resume <id>")
		return
	}
	if c.repo == nil {
		fmt.Fprintln(c.w, "History is not available")
		return
	}
	record, err := history.Get(ctx, c.repo, c.ctrl.UserID(), id)
	if err != nil {
		c.printError(err)
		return
	}
	c.run(ctx, "", func() error { return c.ctrl.Resume(record) })
}

func (c *console) run(ctx context.Context, label string, fn func() error) {
	var err error
	if label == "" {
		err = fn()
	} else {
		stop := c.wait(label)
		err = fn()
		stop()
	}

	if err != nil {
		c.printError(err)
		return
	}
	c.render(ctx)
}

func (c *console) printError(err error) {
	switch {
	case errors.Is(err, model.ErrGenerationFailed):
		fmt.Fprintln(c.w, "Sorry, advice could not be generated. Please try again.")
	case errors.Is(err, conversation.ErrAdviceExists):
		fmt.Fprintln(c.w, "Advice for this question is already here. Use /new to ask another one.")
	case errors.Is(err, conversation.ErrInvalidMode):
		fmt.Fprintln(c.w, "That is not available right now.")
	case errors.Is(err, model.ErrRecordNotFound), errors.Is(err, history.ErrForbidden):
		fmt.Fprintln(c.w, "Conversation not found.")
	default:
		fmt.Fprintf(c.w, "Error: %v\n", err)
	}
}

func (c *console) render(ctx context.Context) {
	v := c.ctrl.View(ctx)

	switch v.Mode {
	case conversation.ModeGathering:
		if g := v.Gathering; g != nil {
			fmt.Fprintf(c.w, "\n(%d/%d) %s\n", g.Index+1, g.Total, g.CurrentQuestion)
		}

	case conversation.ModeSingle:
		if n := len(v.Conversation); n > 0 && v.Conversation[n-1].Role == model.RoleAssistant {
			fmt.Fprintf(c.w, "\n[%s] %s\n", v.Selected, v.Conversation[n-1].Content)
		}

	default:
		if len(v.Perspectives) == 0 {
			fmt.Fprintln(c.w, "\nWhat's on your mind?")
			return
		}
		fmt.Fprintf(c.w, "\n%s\n", v.Question)
		for i, p := range v.Perspectives {
			fmt.Fprintf(c.w, "\n%d. %s (%s)\n   %s\n", i+1, p.Name, p.Trait, p.Advice)
		}
		fmt.Fprintln(c.w, "\nTalk to one of them with /pick <n>")
	}
}
