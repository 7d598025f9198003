package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"clickstream/api/tracker"
)

// action is one line of a replay script.
type action struct {
	Action    string `json:"action"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
	X         int    `json:"x,omitempty"`
	Y         int    `json:"y,omitempty"`
	Tag       string `json:"tag,omitempty"`
	InputType string `json:"inputType,omitempty"`
	ID        string `json:"id,omitempty"`
	Class     string `json:"class,omitempty"`
	Text      string `json:"text,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Millis    int    `json:"ms,omitempty"`
}

var replayCmd = &cobra.Command{
	Use:   "replay [file]",
	Short: "Replay a JSON-lines interaction script through the agent",
	Long: `Replay reads one action per line from file (or stdin) and feeds it to the
collection agent. Actions: navigate, click, resize, offline, online, hide,
show, flush, sleep.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := io.Reader(os.Stdin)
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open script: %w", err)
			}
			defer f.Close()
			in = f
		}

		cfg, err := agentConfig(cmd)
		if err != nil {
			return err
		}
		url, _ := cmd.Flags().GetString("url")
		title, _ := cmd.Flags().GetString("title")
		env := tracker.NewStaticEnvironment(tracker.PageInfo{
			URL:            url,
			Title:          title,
			UserAgent:      "trackctl/1.0",
			ScreenWidth:    1920,
			ScreenHeight:   1080,
			ViewportWidth:  1280,
			ViewportHeight: 720,
		})
		cfg.Environment = env
		transport := tracker.NewHTTPTransport(cfg.Endpoint, nil, cfg.Logger)
		cfg.Transport = transport
		cfg.Beacon = transport

		t, err := tracker.New(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		t.Start(ctx)
		n, err := replay(ctx, t, env, in)
		t.Close()
		transport.Wait()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "replayed %d actions for session %s\n", n, t.SessionID())
		return nil
	},
}

func init() {
	replayCmd.Flags().String("url", "http://localhost:3000/", "Initial page URL")
	replayCmd.Flags().String("title", "Home", "Initial page title")
}

func replay(ctx context.Context, t *tracker.Tracker, env *tracker.StaticEnvironment, in io.Reader) (int, error) {
	scanner := bufio.NewScanner(in)
	n := 0
	for line := 1; scanner.Scan(); line++ {
		raw := scanner.Bytes()
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}
		var a action
		if err := json.Unmarshal(raw, &a); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		if err := apply(ctx, t, env, a); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
	}
	return n, scanner.Err()
}

func apply(ctx context.Context, t *tracker.Tracker, env *tracker.StaticEnvironment, a action) error {
	switch a.Action {
	case "navigate":
		env.Navigate(a.URL, a.Title)
		t.TrackPageView()
	case "click":
		t.TrackClick(tracker.ClickTarget{
			X: a.X, Y: a.Y, Tag: a.Tag, InputType: a.InputType,
			ID: a.ID, Class: a.Class, Text: a.Text,
		})
	case "resize":
		env.Resize(a.Width, a.Height)
	case "offline":
		t.SetOnline(false)
	case "online":
		t.SetOnline(true)
	case "hide":
		t.VisibilityChanged(false)
		t.PageHide()
	case "show":
		t.VisibilityChanged(true)
	case "flush":
		if err := t.Flush(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "flush failed, events stay queued: %v\n", err)
		}
	case "sleep":
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(a.Millis) * time.Millisecond):
		}
	default:
		return fmt.Errorf("unknown action %q", a.Action)
	}
	return nil
}
