// This file contains the commands that drive a live client session.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"wabridge/internal/browser"
	"wabridge/internal/client"
	"wabridge/internal/config"
	"wabridge/internal/store"
)

var (
	sendTo      string
	sendText    string
	sendMedia   string
	sendMime    string
	sendCaption string
	sendLat     float64
	sendLon     float64
	sendNoSeen  bool
	watchEvents []string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Connect and stream events to stdout until interrupted",
	RunE:  runWatch,
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message to a chat",
	RunE:  runSend,
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List chats as JSON",
	RunE:  withClient(func(ctx context.Context, c *client.Client) error {
		chats, err := c.GetChats(ctx)
		if err != nil {
			return err
		}
		return printJSON(chats)
	}),
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List contacts as JSON",
	RunE: withClient(func(ctx context.Context, c *client.Client) error {
		contacts, err := c.GetContacts(ctx)
		if err != nil {
			return err
		}
		return printJSON(contacts)
	}),
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the remote connection state",
	RunE: withClient(func(ctx context.Context, c *client.Client) error {
		state, err := c.GetState(ctx)
		if err != nil {
			return err
		}
		fmt.Println(string(state))
		return nil
	}),
}

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "Destination chat id (e.g. 4915…@c.us)")
	sendCmd.Flags().StringVar(&sendText, "text", "", "Text body")
	sendCmd.Flags().StringVar(&sendMedia, "media", "", "Path to a media file to attach")
	sendCmd.Flags().StringVar(&sendMime, "mime", "", "Media MIME type (inferred from the extension when empty)")
	sendCmd.Flags().StringVar(&sendCaption, "caption", "", "Caption for the attached media")
	sendCmd.Flags().Float64Var(&sendLat, "lat", 0, "Location latitude")
	sendCmd.Flags().Float64Var(&sendLon, "lon", 0, "Location longitude")
	sendCmd.Flags().BoolVar(&sendNoSeen, "no-seen", false, "Do not mark the chat seen before sending")
	_ = sendCmd.MarkFlagRequired("to")

	watchCmd.Flags().StringSliceVar(&watchEvents, "events", nil, "Only print these event kinds")
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()
	return ctx, cancel
}

func buildRuntime(cfg *config.Config) *browser.Runtime {
	return browser.New(browser.Config{
		DebuggerURL:       cfg.Browser.DebuggerURL,
		Launch:            cfg.Browser.Launch,
		Headless:          cfg.Browser.Headless,
		AppURL:            cfg.Browser.AppURL,
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.Browser.NavigationTimeout(),
	}, logger)
}

// connect starts the runtime, restores a persisted session when one exists,
// and initializes the client.
func connect(ctx context.Context) (*client.Client, func(), error) {
	rt := buildRuntime(cfg)
	if err := rt.Start(ctx); err != nil {
		return nil, nil, err
	}

	c := client.New(rt, client.Options{
		ID:                  cfg.Client.ID,
		DefaultSendSeen:     cfg.Client.DefaultSendSeen,
		WaitForKeepSignedIn: cfg.Client.WaitForKeepSignedIn,
	}, logger)

	var sessions *store.SessionStore
	if cfg.Store.Enabled {
		var err error
		sessions, err = store.Open(cfg.Store.Path, logger)
		if err != nil {
			_ = rt.Close()
			return nil, nil, err
		}

		if saved, err := sessions.Load(c.ID()); err == nil {
			logger.Info("restoring persisted session", zap.String("client", c.ID()))
			if err := c.RestoreSession(ctx, saved); err != nil {
				logger.Warn("session restore failed, pairing required", zap.Error(err))
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			logger.Warn("session load failed", zap.Error(err))
		}

		c.On(client.EventAuthenticated, func(ev client.Event) {
			if err := sessions.Save(c.ID(), ev.Session); err != nil {
				logger.Warn("session save failed", zap.Error(err))
			}
		})
	}

	cleanup := func() {
		if err := c.Destroy(context.Background()); err != nil {
			logger.Warn("client teardown failed", zap.Error(err))
		}
		if sessions != nil {
			_ = sessions.Close()
		}
	}

	if err := c.Initialize(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("initialize client: %w", err)
	}
	return c, cleanup, nil
}

func withClient(fn func(context.Context, *client.Client) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		c, cleanup, err := connect(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		return fn(ctx, c)
	}
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	wanted := map[client.EventKind]bool{}
	for _, name := range watchEvents {
		wanted[client.EventKind(name)] = true
	}

	c, cleanup, err := connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	printEvent := func(ev client.Event) {
		if len(wanted) > 0 && !wanted[ev.Kind] {
			return
		}
		out := map[string]interface{}{"event": ev.Kind}
		if ev.Message != nil {
			out["message"] = ev.Message
		}
		if ev.RevokedPrevious != nil {
			out["previous"] = ev.RevokedPrevious
		}
		if ev.Kind == client.EventMessageAck {
			out["ack"] = ev.Ack
		}
		if ev.State != "" {
			out["state"] = ev.State
		}
		_ = printJSON(out)
	}

	done := make(chan struct{})
	for _, kind := range []client.EventKind{
		client.EventMessageCreate,
		client.EventMessageReceived,
		client.EventMessageRevokedEveryone,
		client.EventMessageRemovedByMe,
		client.EventMessageAck,
		client.EventStateChanged,
	} {
		c.On(kind, printEvent)
	}
	c.On(client.EventDisconnected, func(ev client.Event) {
		printEvent(ev)
		close(done)
	})

	logger.Info("watching, interrupt to stop")
	select {
	case <-ctx.Done():
	case <-done:
		logger.Info("session disconnected")
	}
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	var content client.MessageContent
	switch {
	case sendText != "":
		content.Text = sendText
	case sendMedia != "":
		data, err := os.ReadFile(sendMedia)
		if err != nil {
			return fmt.Errorf("read media file: %w", err)
		}
		mimeType := sendMime
		if mimeType == "" {
			mimeType = mime.TypeByExtension(filepath.Ext(sendMedia))
		}
		if mimeType == "" {
			return fmt.Errorf("cannot infer MIME type for %s, pass --mime", sendMedia)
		}
		content.Media = &client.MediaAttachment{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(data),
			Filename: filepath.Base(sendMedia),
		}
		content.Caption = sendCaption
	case sendLat != 0 || sendLon != 0:
		content.Location = &client.Location{Latitude: sendLat, Longitude: sendLon}
	default:
		return fmt.Errorf("one of --text, --media or --lat/--lon is required")
	}

	var opts *client.SendOptions
	if sendNoSeen {
		seen := false
		opts = &client.SendOptions{SendSeen: &seen}
	}

	c, cleanup, err := connect(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	msg, err := c.SendMessage(ctx, sendTo, content, opts)
	if err != nil {
		return err
	}
	logger.Info("message sent", zap.String("id", msg.ID.Serialized))
	return printJSON(msg)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
