// A headless chatline client: connects, claims a nickname, and relays
// between stdin/stdout and the wire. Bare input broadcasts; /msg and /ai
// address one user or the assistant. Any richer UI can replace this program
// without the server noticing.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/chatline/chatline/internal/codec"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "chatline: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var (
		addr      string
		nick      string
		key       string
		codecName string
		askKey    bool
	)

	fs := flag.NewFlagSet("chatline", flag.ContinueOnError)
	fs.StringVarP(&addr, "addr", "a", "localhost:5000", "Server address")
	fs.StringVarP(&nick, "nick", "n", "", "Nickname to claim")
	fs.StringVarP(&key, "key", "k", "demo-key", "Shared payload key")
	fs.StringVar(&codecName, "codec", "xor", "Payload codec: xor or secretbox")
	fs.BoolVar(&askKey, "ask-key", false, "Prompt for the shared key instead of taking it from a flag")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if nick == "" {
		return fmt.Errorf("a nickname is required (use --nick)")
	}
	if askKey {
		prompted, err := promptKey()
		if err != nil {
			return err
		}
		key = prompted
	}

	cipher, err := codec.New(codecName, []byte(key))
	if err != nil {
		return err
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "NICK::%s\n", nick); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	// Close the socket when the context expires so both loops unblock.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		printIncoming(conn, cipher)
	}()

	sendErr := sendLoop(conn, cipher)
	conn.Close() // unblocks the receive loop

	select {
	case <-ctx.Done():
		return nil
	default:
	}
	<-recvDone
	return sendErr
}

func promptKey() (string, error) {
	fmt.Fprint(os.Stderr, "Shared key: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read key: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("shared key must not be empty")
	}
	return string(raw), nil
}

// printIncoming decodes server lines onto stdout until the connection drops.
func printIncoming(conn net.Conn, cipher codec.Cipher) {
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case strings.HasPrefix(line, "USERLIST::"):
			fmt.Printf("* online: %s\n", strings.ReplaceAll(line[len("USERLIST::"):], ",", ", "))
		case strings.HasPrefix(line, "MSG::"):
			parts := strings.SplitN(line, "::", 3)
			if len(parts) != 3 {
				continue
			}
			text, err := cipher.Decode(parts[2])
			if err != nil {
				text = "(message could not be decoded)"
			}
			fmt.Printf("[%s] %s\n", parts[1], text)
		}
	}
	fmt.Println("* disconnected")
}

// sendLoop encodes stdin lines onto the wire until EOF or /quit.
func sendLoop(conn net.Conn, cipher codec.Cipher) error {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		input := strings.TrimSpace(sc.Text())
		if input == "" {
			continue
		}

		target := "*"
		text := input
		switch {
		case input == "/quit":
			return nil
		case strings.HasPrefix(input, "/msg "):
			rest := strings.TrimSpace(input[len("/msg "):])
			to, body, ok := strings.Cut(rest, " ")
			if !ok {
				fmt.Println("* usage: /msg <nick> <text>")
				continue
			}
			target, text = to, body
		case strings.HasPrefix(input, "/ai "):
			target, text = "AI", strings.TrimSpace(input[len("/ai "):])
		case strings.HasPrefix(input, "/"):
			fmt.Println("* commands: /msg <nick> <text>, /ai <text>, /quit")
			continue
		}

		enc, err := cipher.Encode(text)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(conn, "MSG::%s::%s\n", target, enc); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}
	return sc.Err()
}
