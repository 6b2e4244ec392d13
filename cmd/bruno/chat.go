package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/bruno/internal/chat"
	"golang.org/x/term"
)

func newChatCmd() *cobra.Command {
	var (
		user   string
		stream bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to Bruno from the terminal",
		Long: `Sends one message when given as arguments. Without arguments, reads
messages line by line from stdin until EOF or "exit".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, args, user, stream)
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", defaultUser(), "user id to chat as")
	cmd.Flags().BoolVar(&stream, "stream", false, "print the reply as it is generated")
	return cmd
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

func runChat(cmd *cobra.Command, args []string, user string, stream bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	if len(args) > 0 {
		return chatTurn(ctx, a.service, out, user, strings.Join(args, " "), stream)
	}

	in := cmd.InOrStdin()
	interactive := isTerminal(in)
	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, "you> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		if err := chatTurn(ctx, a.service, out, user, line, stream); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// chatTurn runs one turn and prints the reply.
func chatTurn(ctx context.Context, svc *chat.Service, out io.Writer, user, text string, stream bool) error {
	req := chat.Request{Platform: "cli", UserID: user, UserName: user, Text: text}

	if !stream {
		rep, err := svc.Reply(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, rep.Response.Text)
		return nil
	}

	emitted := false
	rep, err := svc.ReplyStream(ctx, req, func(fragment string) error {
		emitted = true
		_, err := io.WriteString(out, fragment)
		return err
	})
	if err != nil {
		return err
	}
	// Failures and ability answers arrive without fragments.
	if !emitted {
		fmt.Fprint(out, rep.Response.Text)
	}
	fmt.Fprintln(out)
	return nil
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
