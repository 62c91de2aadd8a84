// Command duet-chat is an interactive demo for the duet transport.
//
// It runs either as a server or as a client and provides a small shell
// for exchanging messages.
//
// Usage:
//
//	duet-chat -serve <port> [flags]
//	duet-chat -connect <addr> [flags]
//	duet-chat -discover [flags]
//
// Flags:
//
//	-serve int       Serve on the given port (0 = ephemeral)
//	-connect string  Connect to "host" or "host:port"
//	-discover        Browse mDNS for a server and connect to it
//	-advertise       Advertise the server via mDNS (with -serve)
//	-name string     mDNS instance name (default "duet-chat")
//	-config string   YAML configuration file
//	-log string      Write CBOR protocol events to this file
//	-verbose         Print protocol events to stderr
//
// Examples:
//
//	# Host a chat on port 12345, visible on the local network
//	duet-chat -serve 12345 -advertise
//
//	# Join it explicitly, with a protocol event log
//	duet-chat -connect 192.168.1.10:12345 -log session.cbor
//
//	# Or find it via mDNS
//	duet-chat -discover
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/duet-protocol/duet-go/pkg/discovery"
	"github.com/duet-protocol/duet-go/pkg/endpoint"
	"github.com/duet-protocol/duet-go/pkg/log"
	"github.com/duet-protocol/duet-go/pkg/transport"
	"github.com/duet-protocol/duet-go/pkg/version"
)

type options struct {
	servePort int
	connect   string
	discover  bool
	advertise bool
	name      string
	config    string
	logFile   string
	verbose   bool
}

func main() {
	var opts options
	flag.IntVar(&opts.servePort, "serve", -1, "serve on the given port (0 = ephemeral)")
	flag.StringVar(&opts.connect, "connect", "", `connect to "host" or "host:port"`)
	flag.BoolVar(&opts.discover, "discover", false, "browse mDNS for a server and connect to it")
	flag.BoolVar(&opts.advertise, "advertise", false, "advertise the server via mDNS (with -serve)")
	flag.StringVar(&opts.name, "name", "duet-chat", "mDNS instance name")
	flag.StringVar(&opts.config, "config", "", "YAML configuration file")
	flag.StringVar(&opts.logFile, "log", "", "write CBOR protocol events to this file")
	flag.BoolVar(&opts.verbose, "verbose", false, "print protocol events to stderr")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "duet-chat: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	modes := 0
	if opts.servePort >= 0 {
		modes++
	}
	if opts.connect != "" {
		modes++
	}
	if opts.discover {
		modes++
	}
	if modes != 1 {
		return fmt.Errorf("exactly one of -serve, -connect or -discover is required")
	}

	var config transport.Config
	if opts.config != "" {
		loaded, err := loadConfig(opts.config)
		if err != nil {
			return err
		}
		config = loaded
	}

	var loggers []log.Logger
	if opts.logFile != "" {
		fileLogger, err := log.NewFileLogger(opts.logFile)
		if err != nil {
			return err
		}
		defer fileLogger.Close()
		loggers = append(loggers, fileLogger)
	}
	if opts.verbose {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
		loggers = append(loggers, log.NewSlogAdapter(slog.New(handler)))
	}
	switch len(loggers) {
	case 0:
	case 1:
		config.Logger = loggers[0]
	default:
		config.Logger = log.NewMultiLogger(loggers...)
	}

	if opts.servePort >= 0 {
		return runServer(opts, config)
	}
	return runClient(opts, config)
}

func runServer(opts options, config transport.Config) error {
	shell, err := newShell("server> ")
	if err != nil {
		return err
	}

	server := transport.NewServer(transport.ServerConfig{
		KeepAliveInterval: config.KeepAliveInterval,
		Logger:            config.Logger,
		OnMessage: func(msg transport.Message) {
			shell.printf("[%s] %s\n", msg.From, msg.Payload)
		},
		OnConnect: func(ep endpoint.Endpoint) {
			shell.printf("* %s joined\n", ep)
		},
		OnDisconnect: func(ep endpoint.Endpoint) {
			shell.printf("* %s left\n", ep)
		},
	})
	if err := server.Start(opts.servePort); err != nil {
		return err
	}
	defer server.ForceStop()

	shell.printf("listening on port %d\n", server.Port())

	if opts.advertise {
		adv, err := discovery.Advertise(discovery.ServerInfo{
			Instance: opts.name,
			Port:     server.Port(),
			Version:  version.Current,
		})
		if err != nil {
			return fmt.Errorf("mDNS advertise failed: %w", err)
		}
		defer adv.Shutdown()
		shell.printf("advertising %q via mDNS\n", opts.name)
	}

	return shell.run(serverPeer{server})
}

func runClient(opts options, config transport.Config) error {
	address := opts.connect
	if opts.discover {
		found, err := discoverServer()
		if err != nil {
			return err
		}
		address = found
	}

	shell, err := newShell("client> ")
	if err != nil {
		return err
	}

	client := transport.NewClient(config)
	if err := client.Connect(context.Background(), address); err != nil {
		return err
	}
	defer client.ForceStop()

	shell.printf("connected to %s\n", client.ServerEndpoint())
	return shell.run(clientPeer{client})
}

// discoverServer browses mDNS and returns the address of the first
// server found.
func discoverServer() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	found, err := discovery.Browse(ctx)
	if err != nil {
		return "", err
	}

	fmt.Println("browsing for servers...")
	for d := range found {
		if addr := d.Addr(); addr != "" {
			fmt.Printf("found %q at %s\n", d.Instance, addr)
			return addr, nil
		}
	}
	return "", fmt.Errorf("no server found within 5s")
}
