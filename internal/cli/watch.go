package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"dmchat/internal/reconciler"
)

func (a *App) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <chat-id>",
		Short: "Follow a chat live until interrupted",
		Long: `Print the history of a chat, then every message, edit and deletion as it
happens. Lines start with + for new messages, ~ for edits and - for deletions.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: a.requireSession,
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := a.Reconciler.Open(ctx, chatID); err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = a.Reconciler.Close(closeCtx)
			}()

			w := newWatcher(cmd.OutOrStdout(), a.API.ResolveURL, a.now)
			for {
				w.render(a.Reconciler.Snapshot())
				select {
				case <-ctx.Done():
					return nil
				case <-a.Reconciler.Changes():
				}
			}
		},
	}
}

// watcher prints the difference between consecutive views of one chat.
type watcher struct {
	out       io.Writer
	resolve   func(string) string
	now       func() time.Time
	seen      map[int64]string
	order     []int64
	connected bool
	loaded    bool
	failed    bool
}

func newWatcher(out io.Writer, resolve func(string) string, now func() time.Time) *watcher {
	return &watcher{out: out, resolve: resolve, now: now, seen: make(map[int64]string)}
}

func (w *watcher) render(v reconciler.View) {
	if v.Connected != w.connected {
		w.connected = v.Connected
		if v.Connected {
			fmt.Fprintln(w.out, "-- live")
		} else {
			fmt.Fprintln(w.out, "-- offline")
		}
	}
	if v.Err != nil && !w.failed {
		w.failed = true
		fmt.Fprintln(w.out, "! could not load messages")
	}
	if !v.Loading && !w.loaded {
		w.loaded = true
		if len(v.Messages) == 0 && v.Err == nil {
			fmt.Fprintln(w.out, "No messages yet")
		}
	}

	present := make(map[int64]struct{}, len(v.Messages))
	now := w.now()
	for _, m := range v.Messages {
		present[m.ID] = struct{}{}
		content, ok := w.seen[m.ID]
		switch {
		case !ok:
			writeMessage(w.out, "+ ", m, w.resolve, now)
			w.order = append(w.order, m.ID)
		case content != m.Content:
			fmt.Fprintf(w.out, "~ [%d] edited: %s\n", m.ID, m.Content)
		}
		w.seen[m.ID] = m.Content
	}

	kept := w.order[:0]
	for _, id := range w.order {
		if _, ok := present[id]; ok {
			kept = append(kept, id)
			continue
		}
		delete(w.seen, id)
		fmt.Fprintf(w.out, "- [%d] deleted\n", id)
	}
	w.order = kept
}
