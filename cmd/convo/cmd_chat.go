package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ashtin/convo/src/apiclient"
	"github.com/ashtin/convo/src/chatservice"
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// ChatCmd runs an interactive streaming chat session.
type ChatCmd struct {
	New bool `help:"Start a new conversation instead of resuming the active one"`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx := context.Background()

	app, err := buildApp(ctx, cli)
	if err != nil {
		return err
	}
	defer app.Close()

	conversationID := ""
	if !c.New {
		if active := app.Store.ActiveConversation(); active != nil {
			conversationID = active.ID
			fmt.Println(titleStyle.Render(active.Title))
		}
	}
	if conversationID == "" {
		conversationID = app.Store.CreateConversation(ctx)
		fmt.Println(titleStyle.Render("New Chat"))
	}
	fmt.Println(hintStyle.Render("Ctrl+C cancels a reply, Ctrl+D or /quit exits."))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(promptStyle.Render("you> "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "/quit" {
			return nil
		}

		// Interrupt cancels the in-flight reply, not the session.
		sendCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		result := streamAndPrint(sendCtx, app.Service, conversationID, text)
		stop()

		if result.Failed() {
			fmt.Println(errorStyle.Render(result.Error))
		}
	}
}

// streamAndPrint sends the message and prints decoded fragments as they
// arrive, via the service's event topic.
func streamAndPrint(ctx context.Context, svc *chatservice.Service, conversationID, text string) apiclient.CompletionResult {
	return streamTo(ctx, svc, conversationID, text, os.Stdout)
}

// streamTo is streamAndPrint with an explicit destination. Termination never
// depends on observing a particular event: the topic drops events for a full
// subscriber buffer, so once Send returns, the subscription is cancelled and
// the printer exits after draining whatever is left.
func streamTo(ctx context.Context, svc *chatservice.Service, conversationID, text string, w io.Writer) apiclient.CompletionResult {
	events, cancel := svc.Events().Subscribe(256)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if ev.ConversationID != conversationID || ev.Done {
				continue
			}
			fmt.Fprint(w, ev.Delta)
		}
	}()

	result := svc.Send(ctx, conversationID, text)
	cancel()
	<-done
	fmt.Fprintln(w)
	return result
}
