package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"paylog/internal/amqp"
	"paylog/internal/cli"
	"paylog/internal/config"
	"paylog/internal/core"
	"paylog/internal/log"
	"paylog/internal/services"
	"paylog/internal/storage"
)

var errUsage = errors.New("usage")

type app struct {
	cfg    *config.Config
	logger *log.Logger
	opts   storage.Options
	out    io.Writer

	// opened lazily: migrate commands work on the schema directly
	store *storage.Store
}

func newApp(stdout, stderr io.Writer) (*app, error) {
	cfg, logger, err := cli.Bootstrap(cli.Options{Component: log.ComponentCLI, LogOutput: stderr})
	if err != nil {
		return nil, err
	}
	opts, err := cli.StoreOptions(cfg)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, opts: opts, out: stdout}, nil
}

func (a *app) open(ctx context.Context) (*storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := cli.OpenStore(ctx, a.cfg, a.logger, false)
	if err != nil {
		return nil, err
	}
	a.store = store
	return store, nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}

func (a *app) clock() services.Clock {
	return services.SystemClock(a.cfg.Location())
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (a *app) migrate(sub string, args []string) error {
	switch sub {
	case "up":
		if err := storage.RunMigrations(a.opts); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "migrations applied")
	case "down":
		fs := newFlags("migrate down")
		steps := fs.Int("steps", 1, "migrations to roll back")
		if err := fs.Parse(args); err != nil || *steps < 1 {
			return errUsage
		}
		if err := storage.MigrateDown(a.opts, *steps); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "rolled back %d migration(s)\n", *steps)
	case "version":
		v, dirty, err := storage.MigrationVersion(a.opts)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "version %d dirty=%t\n", v, dirty)
	default:
		return errUsage
	}
	return nil
}

func (a *app) currency(ctx context.Context, sub string, args []string) error {
	store, err := a.open(ctx)
	if err != nil {
		return err
	}
	catalog := services.NewCatalogService(store, a.clock())

	switch sub {
	case "list":
		fs := newFlags("currency list")
		all := fs.Bool("all", false, "include inactive currencies")
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		cs, err := catalog.ListCurrencies(ctx, *all)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCODE\tNAME\tACTIVE")
		for _, c := range cs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%t\n", c.ID, c.Code, c.Name, c.IsActive)
		}
		return w.Flush()
	case "add":
		fs := newFlags("currency add")
		inactive := fs.Bool("inactive", false, "add the currency disabled")
		if err := fs.Parse(args); err != nil || fs.NArg() != 2 {
			return errUsage
		}
		c, err := catalog.AddCurrency(ctx, fs.Arg(0), fs.Arg(1), !*inactive)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "added %s (id %d, active=%t)\n", c.Code, c.ID, c.IsActive)
	case "activate", "deactivate":
		if len(args) != 1 {
			return errUsage
		}
		c, err := catalog.SetCurrencyActive(ctx, args[0], sub == "activate")
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s active=%t\n", c.Code, c.IsActive)
	case "delete":
		if len(args) != 1 {
			return errUsage
		}
		if err := catalog.DeleteCurrency(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "deleted %s\n", args[0])
	default:
		return errUsage
	}
	return nil
}

func (a *app) balance(ctx context.Context, sub string, args []string) error {
	store, err := a.open(ctx)
	if err != nil {
		return err
	}
	balances := services.NewBalanceService(store, a.clock())

	switch sub {
	case "recompute":
		fs := newFlags("balance recompute")
		user := fs.String("user", "", "only this user id")
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		if *user == "" {
			n, err := balances.RecomputeAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "recomputed %d user(s)\n", n)
			return nil
		}
		id, err := strconv.ParseInt(*user, 10, 64)
		if err != nil || id < 1 {
			return errUsage
		}
		b, err := balances.RecomputeUser(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "user %d: %s\n", id, describeBalance(b))
	case "check":
		fs := newFlags("balance check")
		repair := fs.Bool("repair", false, "recompute drifting users")
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		auditor := services.NewBalanceAuditor(balances, services.BalanceAuditorConfig{Repair: *repair})
		drifts, err := auditor.Audit(ctx)
		if err != nil {
			return err
		}
		for _, d := range drifts {
			fmt.Fprintf(a.out, "user %d: cached %s, live %s\n", d.UserID, describeBalance(d.Cached), describeLive(d.Live))
		}
		switch {
		case len(drifts) == 0:
			fmt.Fprintln(a.out, "all cached balances match")
		case *repair:
			fmt.Fprintf(a.out, "repaired %d user(s)\n", len(drifts))
		default:
			return fmt.Errorf("%d cached balance(s) drifted", len(drifts))
		}
	default:
		return errUsage
	}
	return nil
}

func (a *app) events(ctx context.Context, sub string, args []string) error {
	if sub != "watch" || len(args) != 0 {
		return errUsage
	}
	if !a.cfg.AMQPEnabled() {
		return errors.New("AMQP_URL is not set")
	}
	client, err := amqp.NewClient(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue)
	if err != nil {
		return err
	}
	defer client.Close()

	err = client.ConsumeBalanceChanged(ctx, func(msg *amqp.BalanceChangedMessage) error {
		body, err := msg.ToJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.out, string(body))
		return err
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func describeBalance(b *core.DebtorBalance) string {
	if b == nil {
		return "none"
	}
	return core.FormatAmount(b.Balance) + " " + b.Currency.Code
}

func describeLive(b core.Balance) string {
	if b.Currency == nil {
		return "none"
	}
	return core.FormatAmount(b.Total) + " " + b.Currency.Code
}
