package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/yisona/remote"
	"github.com/jacentio/yisona/sqlpass"
	"github.com/jacentio/yisona/store"
)

// ErrUsage is returned for a missing or malformed subcommand.
var ErrUsage = errors.New("usage: yisona [flags] get|number|set|create|cc|delete|dump|query|remote ...")

// Runner executes subcommands.
type Runner struct {
	cfg    Config
	out    io.Writer
	logger *slog.Logger

	// openBackend is replaced in tests.
	openBackend func(ctx context.Context) (store.Backend, error)
}

// NewRunner creates a Runner writing results to out.
func NewRunner(cfg Config, out io.Writer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{cfg: cfg, out: out, logger: logger}
	r.openBackend = r.defaultBackend
	return r
}

// NewLogger returns the text logger used by the command.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Run dispatches args[0] as a subcommand.
func (r *Runner) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "query":
		if len(rest) != 2 {
			return fmt.Errorf("%w: query <db> <sql>", ErrUsage)
		}
		return r.query(ctx, rest[0], rest[1])
	case "remote":
		return r.runRemote(ctx, rest)
	}

	s, err := r.openStore(ctx)
	if err != nil {
		return err
	}

	switch cmd {
	case "get":
		if len(rest) != 1 {
			return fmt.Errorf("%w: get <path>", ErrUsage)
		}
		v, err := s.Get(ctx, rest[0])
		if err != nil {
			return err
		}
		return r.print(v)
	case "number":
		if len(rest) != 1 {
			return fmt.Errorf("%w: number <path>", ErrUsage)
		}
		n, err := s.GetNumber(ctx, rest[0])
		if err != nil {
			return err
		}
		return r.print(n)
	case "set":
		if len(rest) != 2 {
			return fmt.Errorf("%w: set <path> <value>", ErrUsage)
		}
		if err := s.Set(ctx, rest[0], ParseValue(rest[1])); err != nil {
			return err
		}
		r.logger.Info("updated key", "path", rest[0])
		return nil
	case "create":
		if len(rest) != 2 {
			return fmt.Errorf("%w: create <path> <value>", ErrUsage)
		}
		overwrote, err := s.Create(ctx, rest[0], ParseValue(rest[1]))
		if err != nil {
			return err
		}
		r.logger.Info("created key", "path", rest[0], "overwrote", overwrote)
		return nil
	case "cc":
		if len(rest) != 2 {
			return fmt.Errorf("%w: cc <path> <default>", ErrUsage)
		}
		existed, err := s.CreateOrGet(ctx, rest[0], ParseValue(rest[1]))
		if err != nil {
			return err
		}
		return r.printExisted(existed)
	case "delete":
		if len(rest) != 1 {
			return fmt.Errorf("%w: delete <path>", ErrUsage)
		}
		return s.Delete(ctx, rest[0])
	case "dump":
		return r.print(s.Snapshot())
	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

func (r *Runner) runRemote(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: remote get|number|set|delete|cc ...", ErrUsage)
	}
	c, err := remote.New(remote.Config{
		BaseURL: r.cfg.RemoteURL,
		Token:   r.cfg.Token,
		Timeout: r.cfg.Timeout,
		Cache:   r.cfg.Cache,
		Logger:  r.logger,
	})
	if err != nil {
		return err
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "get":
		path := ""
		if len(rest) > 1 {
			return fmt.Errorf("%w: remote get [path]", ErrUsage)
		}
		if len(rest) == 1 {
			path = rest[0]
		}
		v, err := c.Get(ctx, path)
		if err != nil {
			return err
		}
		return r.print(v)
	case "number":
		if len(rest) != 1 {
			return fmt.Errorf("%w: remote number <path>", ErrUsage)
		}
		n, err := c.GetNumber(ctx, rest[0])
		if err != nil {
			return err
		}
		return r.print(n)
	case "set":
		if len(rest) != 2 {
			return fmt.Errorf("%w: remote set <path> <value>", ErrUsage)
		}
		return c.Set(ctx, rest[0], ParseValue(rest[1]))
	case "delete":
		if len(rest) != 1 {
			return fmt.Errorf("%w: remote delete <path>", ErrUsage)
		}
		return c.Delete(ctx, rest[0])
	case "cc":
		if len(rest) != 2 {
			return fmt.Errorf("%w: remote cc <path> <default>", ErrUsage)
		}
		existed, err := c.CreateOrGet(ctx, rest[0], ParseValue(rest[1]))
		if err != nil {
			return err
		}
		return r.printExisted(existed)
	default:
		return fmt.Errorf("%w: unknown remote command %q", ErrUsage, cmd)
	}
}

func (r *Runner) query(ctx context.Context, dsn, q string) error {
	rows, err := sqlpass.Query(ctx, dsn, q)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := r.printCompact(row); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) openStore(ctx context.Context) (*store.Store, error) {
	backend, err := r.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, backend, store.Config{
		CreateMissing: r.cfg.CreateMissing,
		Logger:        r.logger,
	})
}

func (r *Runner) defaultBackend(ctx context.Context) (store.Backend, error) {
	if r.cfg.Backend != BackendDynamoDB {
		return store.NewFileBackend(r.cfg.File), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return store.NewDynamoBackend(dynamodb.NewFromConfig(awsCfg), r.cfg.Table, r.cfg.DocumentID), nil
}

func (r *Runner) printExisted(existed bool) error {
	if existed {
		_, err := fmt.Fprintln(r.out, "existed")
		return err
	}
	_, err := fmt.Fprintln(r.out, "created")
	return err
}

func (r *Runner) print(v any) error {
	if s, ok := v.(string); ok {
		_, err := fmt.Fprintln(r.out, s)
		return err
	}
	enc := json.NewEncoder(r.out)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", store.DefaultIndent)
	return enc.Encode(v)
}

func (r *Runner) printCompact(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// ParseValue interprets a command-line value as JSON, falling back to the
// raw string. "42" is a number, "true" a bool, "{\"a\":1}" a mapping, and
// "hello" a string.
func ParseValue(raw string) any {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return raw
	}
	if _, err := dec.Token(); err != io.EOF {
		return raw
	}
	return v
}
