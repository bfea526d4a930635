package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"dmchat/internal/api"
	"dmchat/internal/config"
	"dmchat/internal/notify"
	"dmchat/internal/reconciler"
	"dmchat/internal/redis"
	"dmchat/internal/services"
	"dmchat/internal/session"
	"dmchat/internal/websocket"
	"dmchat/pkg/logger"
)

// App is the wired client: session, API, live channel, reconciler and the
// services built on them.
type App struct {
	Sessions   *session.Manager
	API        *api.Client
	Auth       *services.AuthService
	Chats      *services.ChatService
	Reconciler *reconciler.Reconciler
	Notifier   *notify.Notifier
	Log        *logger.Logger

	in     io.Reader
	reader *bufio.Reader
	out    io.Writer
	errOut io.Writer
	now    func() time.Time
}

type Options struct {
	HTTPTimeout time.Duration
	NotifyTTL   time.Duration
	Logger      *logger.Logger
	In          io.Reader
	Out         io.Writer
	Err         io.Writer
}

func NewApp(apiURL, wsURL string, store session.Store, opts Options) *App {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	apiOpts := []api.Option{api.WithLogger(log)}
	if opts.HTTPTimeout > 0 {
		apiOpts = append(apiOpts, api.WithTimeout(opts.HTTPTimeout))
	}

	sessions := session.NewManager(store, log)
	client := api.NewClient(apiURL, sessions, apiOpts...)
	notifier := notify.New(opts.NotifyTTL, log)
	dialer := websocket.NewDialer(wsURL, sessions, log)
	rec := reconciler.New(client, reconciler.LiveChannel(dialer),
		reconciler.WithNotifier(notifier),
		reconciler.WithLogger(log),
	)

	a := &App{
		Sessions:   sessions,
		API:        client,
		Auth:       services.NewAuthService(client, sessions, notifier, log),
		Chats:      services.NewChatService(client, sessions, notifier, log),
		Reconciler: rec,
		Notifier:   notifier,
		Log:        log,
		in:         opts.In,
		out:        opts.Out,
		errOut:     opts.Err,
		now:        time.Now,
	}
	if a.in == nil {
		a.in = os.Stdin
	}
	if a.out == nil {
		a.out = os.Stdout
	}
	if a.errOut == nil {
		a.errOut = os.Stderr
	}
	a.reader = bufio.NewReader(a.in)
	return a
}

// OpenSessionStore returns the session store selected by cfg and a func
// releasing it.
func OpenSessionStore(ctx context.Context, cfg *config.Config) (session.Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Session.Store {
	case config.SessionStoreMemory:
		return session.NewMemoryStore(), noop, nil
	case config.SessionStoreFile, "":
		return session.NewFileStore(cfg.Session.File), noop, nil
	case config.SessionStoreRedis:
		client, err := redis.Connect(ctx, redis.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return redis.NewSessionStore(client, cfg.Session.Profile, cfg.Session.TTL), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
}

func (a *App) readLine(prompt string) (string, error) {
	fmt.Fprint(a.errOut, prompt)
	line, err := a.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readPassword reads without echo when stdin is a terminal.
func (a *App) readPassword(prompt string) (string, error) {
	f, ok := a.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return a.readLine(prompt)
	}
	fmt.Fprint(a.errOut, prompt)
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(a.errOut)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// flushNotices prints what the notifier collected during a command.
func (a *App) flushNotices() {
	for _, n := range a.Notifier.Active() {
		w := a.out
		if n.Level == notify.LevelError {
			w = a.errOut
		}
		fmt.Fprintln(w, n.Text)
		a.Notifier.Dismiss(n.ID)
	}
}
