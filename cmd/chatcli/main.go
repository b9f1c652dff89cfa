package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string        `env:"CHAT_SERVER_URL,default=http://localhost:8080"`
	Username  string        `env:"CHAT_USERNAME"`
	Email     string        `env:"CHAT_EMAIL"`
	Password  string        `env:"CHAT_PASSWORD"`
	Timeout   time.Duration `env:"CHAT_TIMEOUT,default=10s"`
	Colours   bool          `env:"CHAT_COLOURS,default=true"`
	LogLevel  string        `env:"LOG_LEVEL,default=INFO"`
}

const usage = `usage: chatcli <command> [args]

  register                         create the CHAT_USERNAME account
  listen [groupId...]              stream events, joining the given groups
  send <userId> <text...>          direct message
  post <groupId> <text...>         group message
  group <name> [memberId...]       create a group
  history user|group <id> [page]   print a conversation page
`

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string) (int, error) {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if len(args) == 0 {
		fmt.Print(usage)
		return exitConfig, nil
	}
	if config.Username == "" || config.Password == "" {
		return exitConfig, errors.New("CHAT_USERNAME and CHAT_PASSWORD are required")
	}
	if !config.Colours {
		color.Disable()
	}

	log := logs.GetLoggerFromString(config.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := newAPIClient(config.ServerURL, config.Timeout)

	if args[0] == "register" {
		email := config.Email
		if email == "" {
			email = config.Username + "@example.com"
		}
		s, err := client.Register(ctx, config.Username, email, config.Password)
		if err != nil {
			return exitRuntime, err
		}
		color.Green.Printf("Registered %s as %s\n", config.Username, s.UserID)
		return exitOK, nil
	}

	s, err := client.Login(ctx, config.Username, config.Password)
	if err != nil {
		return exitRuntime, fmt.Errorf("login failed: %w", err)
	}
	log.Debug("Logged in", "user_id", s.UserID)

	switch cmd, rest := args[0], args[1:]; cmd {
	case "listen":
		err = listen(ctx, log, client, s, rest)
	case "send":
		if len(rest) < 2 {
			return exitConfig, errors.New(usage)
		}
		err = client.SendDirect(ctx, rest[0], strings.Join(rest[1:], " "))
	case "post":
		if len(rest) < 2 {
			return exitConfig, errors.New(usage)
		}
		err = client.SendGroup(ctx, rest[0], strings.Join(rest[1:], " "))
	case "group":
		if len(rest) < 1 {
			return exitConfig, errors.New(usage)
		}
		var g group
		if g, err = client.CreateGroup(ctx, rest[0], rest[1:]); err == nil {
			color.Green.Printf("Group %s created: %s (%d members)\n", g.Name, g.ID, len(g.Members))
		}
	case "history":
		if len(rest) < 2 {
			return exitConfig, errors.New(usage)
		}
		page := 0
		if len(rest) > 2 {
			if page, err = strconv.Atoi(rest[2]); err != nil {
				return exitConfig, fmt.Errorf("page must be a number: %w", err)
			}
		}
		var h historyPage
		if h, err = client.History(ctx, rest[0], rest[1], page); err == nil {
			renderHistory(os.Stdout, s.UserID, h)
		}
	default:
		return exitConfig, fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
	if err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}

type event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// listen prints every pushed event until Ctrl+C or until the server closes the socket.
func listen(ctx context.Context, log *slog.Logger, client *apiClient, s session, groups []string) error {
	ws, err := client.Dial(ctx)
	if err != nil {
		return fmt.Errorf("could not open websocket: %w", err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = ws.Close()
	}()

	for _, groupID := range groups {
		frame := map[string]any{"event": "join_group", "data": map[string]string{"groupId": groupID}}
		if err := ws.WriteJSON(frame); err != nil {
			return fmt.Errorf("join %s: %w", groupID, err)
		}
	}
	color.Cyan.Printf(">>> Connected as %s (Ctrl+C to quit)...\n", s.UserID)

	events := make(chan event)
	readErr := make(chan error, 1)
	go func() {
		for {
			var e event
			if err := ws.ReadJSON(&e); err != nil {
				readErr <- err
				return
			}
			select {
			case events <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				color.Yellow.Printf("Server closed the connection: %d %s\n", closeErr.Code, closeErr.Text)
				return nil
			}
			return fmt.Errorf("websocket read: %w", err)
		case e := <-events:
			printEvent(s.UserID, e)
		}
	}
}

func printEvent(self string, e event) {
	switch e.Event {
	case "message", "group_message":
		var m message
		if err := json.Unmarshal(e.Data, &m); err != nil {
			color.Red.Printf("unreadable %s: %v\n", e.Event, err)
			return
		}
		where := "direct"
		if m.GroupID != "" {
			where = "group " + shortID(m.GroupID)
		}
		author := shortID(m.SenderID)
		if m.SenderID == self {
			author = "me"
		}
		fmt.Printf("[%s] %s %s: %s\n",
			m.CreatedAt.Local().Format(time.TimeOnly),
			color.FgDarkGray.Render(where),
			color.OpBold.Render(author),
			m.Content)
	case "group_joined":
		color.Green.Printf("joined %s\n", string(e.Data))
	case "error":
		color.Red.Printf("error %s\n", string(e.Data))
	default:
		color.Yellow.Printf("%s %s\n", e.Event, string(e.Data))
	}
}

func renderHistory(w io.Writer, self string, h historyPage) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Time", "From", "Content"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)

	for _, m := range h.Messages {
		from := shortID(m.SenderID)
		if m.SenderID == self {
			from = "me"
		}
		table.Append([]string{m.CreatedAt.Local().Format(time.DateTime), from, m.Content})
	}
	table.Render()

	footer := fmt.Sprintf("page %d/%d, %d message(s)", h.CurrentPage, h.TotalPages, h.TotalMessages)
	if h.Clamped {
		footer += " (requested page was past the end)"
	}
	fmt.Fprintln(w, footer)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
