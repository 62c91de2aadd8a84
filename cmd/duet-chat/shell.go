package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/duet-protocol/duet-go/pkg/transport"
)

// peer abstracts the side-specific operations the shell needs.
type peer interface {
	send(text string) error
	sendReliable(text string) error
	peers() []string
	messages() []transport.Message
}

type clientPeer struct {
	client *transport.Client
}

func (p clientPeer) send(text string) error {
	return p.client.SendBytes([]byte(text))
}

func (p clientPeer) sendReliable(text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return p.client.SendBytesReliable(ctx, []byte(text))
}

func (p clientPeer) peers() []string {
	if !p.client.IsConnected() {
		return nil
	}
	return []string{p.client.ServerEndpoint().String()}
}

func (p clientPeer) messages() []transport.Message {
	return p.client.Messages()
}

type serverPeer struct {
	server *transport.Server
}

func (p serverPeer) send(text string) error {
	return p.server.SendBytes([]byte(text))
}

func (p serverPeer) sendReliable(string) error {
	// Clients treat marked datagrams as acknowledgment echoes, so the
	// server has no reliable send path.
	return fmt.Errorf("reliable send is client-only")
}

func (p serverPeer) peers() []string {
	eps := p.server.Participants()
	out := make([]string, len(eps))
	for i, ep := range eps {
		out[i] = ep.String()
	}
	return out
}

func (p serverPeer) messages() []transport.Message {
	return p.server.Messages()
}

// shell is the interactive command loop.
type shell struct {
	rl *readline.Instance
}

func newShell(prompt string) (*shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &shell{rl: rl}, nil
}

// printf writes through readline so output does not mangle the prompt.
func (s *shell) printf(format string, args ...any) {
	fmt.Fprintf(s.rl.Stdout(), format, args...)
}

func (s *shell) run(p peer) error {
	defer s.rl.Close()

	s.printHelp()

	for {
		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			s.printf("exiting\n")
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		cmd, rest, _ := strings.Cut(input, " ")
		rest = strings.TrimSpace(rest)

		switch strings.ToLower(cmd) {
		case "help", "?":
			s.printHelp()

		case "send", "s":
			if rest == "" {
				s.printf("usage: send <text>\n")
				continue
			}
			if err := p.send(rest); err != nil {
				s.printf("send failed: %v\n", err)
			}

		case "sendr", "sr":
			if rest == "" {
				s.printf("usage: sendr <text>\n")
				continue
			}
			if err := p.sendReliable(rest); err != nil {
				s.printf("reliable send failed: %v\n", err)
			} else {
				s.printf("delivered\n")
			}

		case "peers":
			peers := p.peers()
			if len(peers) == 0 {
				s.printf("no peers\n")
				continue
			}
			for _, ep := range peers {
				s.printf("  %s\n", ep)
			}

		case "log", "l":
			msgs := p.messages()
			if len(msgs) == 0 {
				s.printf("no messages\n")
				continue
			}
			for _, m := range msgs {
				s.printf("  %s [%s] %s\n", m.Received.Format("15:04:05.000"), m.From, m.Payload)
			}

		case "quit", "exit", "q":
			s.printf("exiting\n")
			return nil

		default:
			s.printf("unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *shell) printHelp() {
	s.printf(`commands:
  send <text>   send a message (fire and forget)
  sendr <text>  send a message with delivery confirmation
  peers         list connected peers
  log           show received messages
  quit          exit
`)
}
