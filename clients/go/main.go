// Command chatdeck is a terminal client for the chatdeck gateway.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/eldtechnologies/chatdeck/clients/go/chatdeck"
)

type command struct {
	args string
	help string
	min  int
	run  func(c *chatdeck.Client, args []string) error
}

var commands = []struct {
	name string
	command
}{
	{"me", command{"", "Show the signed-in user", 0, showMe}},
	{"chats", command{"", "List chats", 0, listChats}},
	{"new", command{"<model> [title]", "Create a chat", 1, newChat}},
	{"rename", command{"<chat_id> <title>", "Rename a chat", 2, renameChat}},
	{"delete", command{"<chat_id>", "Delete a chat", 1, deleteChat}},
	{"read", command{"<chat_id>", "Read recent messages", 1, readMessages}},
	{"post", command{"<chat_id> <text>", "Post a user message", 2, postMessage}},
	{"status", command{"<chat_id>", "Show reply wait state", 1, showStatus}},
	{"favorites", command{"[model...]", "Show or replace favorite models", 0, favorites}},
	{"health", command{"", "Check server health", 0, health}},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	name, args := os.Args[1], os.Args[2:]
	if name == "help" || name == "-h" || name == "--help" {
		usage()
		return
	}

	for _, c := range commands {
		if c.name != name {
			continue
		}
		if len(args) < c.min {
			fmt.Fprintf(os.Stderr, "Usage: chatdeck %s %s\n", c.name, c.args)
			os.Exit(1)
		}
		if err := c.run(chatdeck.NewClientFromEnv(), args); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}
		return
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n", name)
	usage()
	os.Exit(1)
}

func showMe(c *chatdeck.Client, _ []string) error {
	user, err := c.Me()
	if err != nil {
		return err
	}
	return printJSON(user)
}

func listChats(c *chatdeck.Client, _ []string) error {
	resp, err := c.ListChats(20, 0)
	if err != nil {
		return err
	}
	for _, ch := range resp.Chats {
		fmt.Printf("  %s  %s (%s)\n", ch.ID, ch.Title, ch.Model)
	}
	if resp.Total > len(resp.Chats) {
		fmt.Printf("  ... %d more\n", resp.Total-len(resp.Chats))
	}
	return nil
}

func newChat(c *chatdeck.Client, args []string) error {
	chat, err := c.CreateChat(strings.Join(args[1:], " "), args[0])
	if err != nil {
		return err
	}
	fmt.Println("Created:", chat.ID)
	return nil
}

func renameChat(c *chatdeck.Client, args []string) error {
	chat, err := c.RenameChat(args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Printf("Renamed: %s -> %s\n", chat.ID, chat.Title)
	return nil
}

func deleteChat(c *chatdeck.Client, args []string) error {
	if err := c.DeleteChat(args[0]); err != nil {
		return err
	}
	fmt.Println("Deleted:", args[0])
	return nil
}

func readMessages(c *chatdeck.Client, args []string) error {
	resp, err := c.GetMessages(args[0], 20, chatdeck.Cursor{})
	if err != nil {
		return err
	}
	if resp.HasMore {
		fmt.Println("  (older messages not shown)")
	}
	for _, msg := range resp.Messages {
		marker := ""
		if msg.Staged {
			marker = " (sending)"
		}
		fmt.Printf("[%s] %s%s: %s\n",
			time.UnixMilli(msg.Timestamp).Format(time.DateTime), msg.Role, marker, msg.Content)
	}
	return nil
}

func postMessage(c *chatdeck.Client, args []string) error {
	msg, err := c.PostMessage(args[0], chatdeck.PostMessageRequest{
		Content: strings.Join(args[1:], " "),
		Role:    "user",
	})
	if err != nil {
		return err
	}
	fmt.Println("Posted:", msg.ID)
	return nil
}

func showStatus(c *chatdeck.Client, args []string) error {
	st, err := c.GetStatus(args[0])
	if err != nil {
		return err
	}
	return printJSON(st)
}

func favorites(c *chatdeck.Client, args []string) error {
	var (
		list []string
		err  error
	)
	if len(args) > 0 {
		list, err = c.SetFavorites(args)
	} else {
		list, err = c.Favorites()
	}
	if err != nil {
		return err
	}
	for _, m := range list {
		fmt.Println(" ", m)
	}
	return nil
}

func health(c *chatdeck.Client, _ []string) error {
	resp, err := c.Health()
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func usage() {
	fmt.Println("chatdeck CLI\n\nUsage: chatdeck <command> [args]\n\nCommands:")
	for _, c := range commands {
		fmt.Printf("  %-28s %s\n", strings.TrimSpace(c.name+" "+c.args), c.help)
	}
	fmt.Println(`
Environment:
  CHATDECK_URL      Gateway URL (default: http://localhost:8080)
  CHATDECK_COOKIE   Session cookie name (default: __session)
  CHATDECK_SESSION  Session cookie value`)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
