package main

import (
	"context"
	"fmt"
)

// ListCmd prints the conversation collection, most recently touched first.
type ListCmd struct{}

func (c *ListCmd) Run(cli *CLI) error {
	ctx := context.Background()

	app, err := buildApp(ctx, cli)
	if err != nil {
		return err
	}
	defer app.Close()

	conversations := app.Store.Conversations()
	if len(conversations) == 0 {
		fmt.Println(hintStyle.Render("No conversations yet."))
		return nil
	}

	active := app.Store.ActiveConversation()
	for _, conv := range conversations {
		marker := "  "
		if active != nil && conv.ID == active.ID {
			marker = promptStyle.Render("* ")
		}
		fmt.Printf("%s%s  %s\n", marker, titleStyle.Render(conv.Title),
			hintStyle.Render(fmt.Sprintf("%s · %d messages · %s",
				conv.ID[:8], len(conv.Messages), conv.UpdatedAt.Format("2006-01-02 15:04"))))
	}
	return nil
}

// DeleteCmd removes one conversation by id (or unambiguous id prefix).
type DeleteCmd struct {
	ID string `arg:"" help:"Conversation id or id prefix"`
}

func (c *DeleteCmd) Run(cli *CLI) error {
	ctx := context.Background()

	app, err := buildApp(ctx, cli)
	if err != nil {
		return err
	}
	defer app.Close()

	id, err := resolveID(app, c.ID)
	if err != nil {
		return err
	}
	app.Store.DeleteConversation(ctx, id)
	fmt.Println("deleted", id)
	return nil
}

// ClearCmd empties the conversation collection.
type ClearCmd struct{}

func (c *ClearCmd) Run(cli *CLI) error {
	ctx := context.Background()

	app, err := buildApp(ctx, cli)
	if err != nil {
		return err
	}
	defer app.Close()

	app.Store.ClearAll(ctx)
	fmt.Println("all conversations deleted")
	return nil
}

// resolveID expands an id prefix to a full conversation id.
func resolveID(app *App, prefix string) (string, error) {
	var match string
	for _, conv := range app.Store.Conversations() {
		if conv.ID == prefix {
			return conv.ID, nil
		}
		if len(prefix) >= 4 && len(conv.ID) >= len(prefix) && conv.ID[:len(prefix)] == prefix {
			if match != "" {
				return "", fmt.Errorf("ambiguous conversation id %q", prefix)
			}
			match = conv.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no conversation matching %q", prefix)
	}
	return match, nil
}
