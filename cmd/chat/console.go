package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"chatsync/internal/pkg/chat/presentation/view"
)

const helpText = `type a line to send it
/delete <id>   delete one of your messages (an id prefix is enough)
/reload        fetch the conversation again
/quit          leave`

// console drives a mounted view from line-oriented input and re-renders the
// transcript after every change.
type console struct {
	view       *view.MessageSyncView
	transcript view.Transcript

	mu  sync.Mutex // serialises writes to out
	out io.Writer
}

func newConsole(v *view.MessageSyncView, t view.Transcript, out io.Writer) *console {
	return &console{view: v, transcript: t, out: out}
}

// Run mounts the view, processes lines from in until /quit, EOF or ctx is
// done, and unmounts.
func (c *console) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.view.OnChange(c.render)
	if err := c.view.Mount(ctx); err != nil {
		return err
	}
	defer c.view.Unmount()
	c.render()
	c.printf("%s\n", helpText)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				c.view.Wait()
				return nil
			}
			if quit := c.handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// handle runs one input line and reports whether the console should stop.
func (c *console) handle(ctx context.Context, line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		c.view.Send(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(trimmed, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true
	case "/reload":
		c.view.Reload(ctx)
	case "/delete":
		if arg == "" {
			c.printf("usage: /delete <id>\n")
			return false
		}
		id, ok := c.view.LookupID(arg)
		if !ok {
			c.printf("no single message matches %q\n", arg)
			return false
		}
		c.view.Delete(ctx, id)
	case "/help":
		c.printf("%s\n", helpText)
	default:
		c.printf("unknown command %s, try /help\n", cmd)
	}
	return false
}

func (c *console) render() {
	out := c.transcript.Render(c.view.Messages(), c.view.Avatars())
	state := c.view.State()
	c.printf("\n── %s · %s ──\n%s\n", c.view.ConversationID(), state, out)
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}
