package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"agromind/internal/client"
	"agromind/internal/constants"
	"agromind/internal/models"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version = "dev"
)

const usage = `Usage: agromind-client [flags] <command> [args]

Commands:
  groups [-create NAME [-description TEXT]]   list or create groups
  send -group ID [-image PATH] TEXT...        send a message, queueing it when offline
  sync [-group ID]                            resend queued messages and print the group
  watch -group ID                             print the group on every live change
  pin MESSAGE_ID                              pin a message

Flags:
`

// options are the global flags shared by every command
type options struct {
	serverURL string
	queueDir  string
	userID    string
	userName  string
	lang      string
	verbose   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "agromind-client: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	var opts options
	fs := flag.NewFlagSet("agromind-client", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&opts.serverURL, "server", fmt.Sprintf("http://localhost:%d", constants.DefaultServerPort), "Base URL of the AgroMind server")
	fs.StringVar(&opts.queueDir, "queue-dir", defaultQueueDir(), "Directory of the offline outbox")
	fs.StringVar(&opts.userID, "user", "", "Author ID attached to sent messages")
	fs.StringVar(&opts.userName, "name", constants.DefaultUserName, "Author name attached to sent messages")
	fs.StringVar(&opts.lang, "lang", constants.DefaultMessageLanguage, "Language tag of sent messages")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	showVersion := fs.Bool("version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Fprintf(out, "agromind-client %s\n", Version)
		return nil
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("no command given")
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.WarnLevel)
	if opts.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	cli, err := newCLI(opts, out, logger)
	if err != nil {
		return err
	}
	defer cli.Close()

	command, rest := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "groups":
		return cli.groups(ctx, rest)
	case "send":
		return cli.send(ctx, rest)
	case "sync":
		return cli.sync(ctx, rest)
	case "watch":
		return cli.watch(ctx, rest)
	case "pin":
		return cli.pin(ctx, rest)
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func defaultQueueDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "agromind", "outbox")
	}
	return ".agromind-outbox"
}

// cli binds the commands to one store client and outbox
type cli struct {
	opts   options
	out    io.Writer
	logger *logrus.Logger
	api    *client.StoreClient
	outbox *client.Queue
}

func newCLI(opts options, out io.Writer, logger *logrus.Logger) (*cli, error) {
	outbox, err := client.OpenQueue(opts.queueDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open outbox: %w", err)
	}
	return &cli{
		opts:   opts,
		out:    out,
		logger: logger,
		api:    client.NewStoreClient(opts.serverURL, nil, logger),
		outbox: outbox,
	}, nil
}

func (c *cli) Close() {
	if err := c.outbox.Close(); err != nil {
		c.logger.WithError(err).Warn("Failed to close outbox")
	}
}

func (c *cli) controller(live client.Live) *client.Controller {
	return client.NewController(c.api, c.outbox, live, c.render, c.logger)
}

func (c *cli) render(groupID string, messages []*models.Message) {
	fmt.Fprintf(c.out, "== %s (%d messages)\n", groupID, len(messages))
	for _, m := range messages {
		marker := " "
		if m.Pinned {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s  %s: %s", marker, m.CreatedAt.Local().Format(time.DateTime), m.AuthorName, m.Text)
		if m.ImageRef != "" {
			line += " [" + m.ImageRef + "]"
		}
		if m.IsReply() {
			line += " ^" + *m.ParentID
		}
		fmt.Fprintf(c.out, "%s  (%s)\n", line, m.ID)
	}
}

func (c *cli) groups(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("groups", flag.ContinueOnError)
	fs.SetOutput(c.out)
	create := fs.String("create", "", "Name of a group to create")
	description := fs.String("description", "", "Description of the created group")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *create != "" {
		group, err := c.api.CreateGroup(ctx, *create, *description)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "created %s  %s\n", group.ID, group.Name)
		return nil
	}

	groups, err := c.api.ListGroups(ctx)
	if err != nil {
		return err
	}
	for _, g := range groups {
		fmt.Fprintf(c.out, "%s  %s  %s\n", g.ID, g.Name, g.Description)
	}
	return nil
}

func (c *cli) send(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	fs.SetOutput(c.out)
	groupID := fs.String("group", "", "Group to send to")
	imagePath := fs.String("image", "", "Image file to attach")
	parentID := fs.String("parent", "", "Message this one replies to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *groupID == "" {
		return fmt.Errorf("send: -group is required")
	}

	draft := models.MessageDraft{
		AuthorID:   c.opts.userID,
		AuthorName: c.opts.userName,
		Text:       strings.Join(fs.Args(), " "),
		Language:   c.opts.lang,
	}
	if *parentID != "" {
		draft.ParentID = parentID
	}

	var attachment *client.Attachment
	if *imagePath != "" {
		data, err := os.ReadFile(*imagePath) // #nosec G304 - path supplied by the local user
		if err != nil {
			return fmt.Errorf("send: %w", err)
		}
		attachment = &client.Attachment{FileName: filepath.Base(*imagePath), Data: data}
	}

	result, err := c.controller(nil).SendMessage(ctx, *groupID, draft, attachment)
	if err != nil {
		return err
	}
	if result.Queued {
		fmt.Fprintln(c.out, result.Notice)
		return nil
	}
	fmt.Fprintf(c.out, "sent %s\n", result.Message.ID)
	return nil
}

func (c *cli) sync(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.SetOutput(c.out)
	groupID := fs.String("group", "", "Group to print after draining")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctrl := c.controller(nil)
	report, err := ctrl.Drain(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "outbox: %d attempted, %d sent, %d still queued\n", report.Attempted, report.Sent, report.Failed)

	if *groupID == "" {
		return nil
	}
	return ctrl.SelectGroup(ctx, *groupID)
}

func (c *cli) watch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(c.out)
	groupID := fs.String("group", "", "Group to watch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *groupID == "" {
		return fmt.Errorf("watch: -group is required")
	}

	live := client.NewLiveConnection(liveURL(c.opts.serverURL), c.logger)
	ctrl := c.controller(live)

	go func() {
		if err := live.Run(ctx); err != nil && ctx.Err() == nil {
			c.logger.WithError(err).Error("Live connection stopped")
		}
	}()

	if err := ctrl.Sync(ctx); err != nil {
		c.logger.WithError(err).Warn("Initial sync failed")
	}
	if err := ctrl.SelectGroup(ctx, *groupID); err != nil {
		c.logger.WithError(err).Warn("Initial fetch failed")
	}

	if err := ctrl.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (c *cli) pin(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("pin: expected exactly one message ID")
	}
	msg, err := c.api.PinMessage(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "pinned %s\n", msg.ID)
	return nil
}

// liveURL maps the server base URL to its WebSocket endpoint
func liveURL(serverURL string) string {
	u := strings.TrimSuffix(serverURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}
