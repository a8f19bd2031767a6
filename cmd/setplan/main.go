// Command setplan switches an account's plan by hand. Support staff use it
// for refunds, comps and accounts billed outside Stripe.
//
//	setplan -account acc_123 -plan pro-60day
//	setplan -account acc_123 -plan free -create=false
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ZaidMomin2003/talxify/internal"
	"github.com/ZaidMomin2003/talxify/internal/domain"
	"github.com/ZaidMomin2003/talxify/internal/repository"
	"github.com/ZaidMomin2003/talxify/internal/service"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type options struct {
	account string
	plan    domain.PlanID
	create  bool
}

func parseFlags(args []string, catalog *domain.Catalog) (options, error) {
	fs := flag.NewFlagSet("setplan", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts options
	var plan string
	fs.StringVar(&opts.account, "account", "", "account id (required)")
	fs.StringVar(&plan, "plan", "", "plan id (required)")
	fs.BoolVar(&opts.create, "create", true, "create the account on the free plan first if it does not exist")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.account = strings.TrimSpace(opts.account)
	if opts.account == "" {
		return options{}, fmt.Errorf("-account is required")
	}

	opts.plan = domain.PlanID(strings.TrimSpace(plan))
	if _, ok := catalog.Plan(opts.plan); !ok {
		var ids []string
		for _, id := range catalog.PlanIDs() {
			ids = append(ids, string(id))
		}
		return options{}, fmt.Errorf("-plan must be one of %s, got %q", strings.Join(ids, ", "), plan)
	}
	return opts, nil
}

func run(args []string, out io.Writer) error {
	catalog := domain.DefaultCatalog()
	opts, err := parseFlags(args, catalog)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	logger := internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	quota := service.NewQuotaService(repository.NewStore(db), service.QuotaConfig{
		Catalog: catalog,
		Retry:   service.DefaultRetryConfig(),
	}, logger)

	return setPlan(ctx, quota, opts, out)
}

func setPlan(ctx context.Context, quota service.QuotaService, opts options, out io.Writer) error {
	if opts.create {
		created, err := quota.EnsureAccount(ctx, opts.account)
		if err != nil {
			return fmt.Errorf("ensure account: %w", err)
		}
		if created {
			fmt.Fprintf(out, "created account %s on the free plan\n", opts.account)
		}
	}

	if err := quota.SetPlan(ctx, opts.account, opts.plan, service.PlanSourceAdmin); err != nil {
		return fmt.Errorf("set plan: %w", err)
	}

	report, err := quota.Usage(ctx, opts.account)
	if err != nil {
		return fmt.Errorf("read usage: %w", err)
	}
	printReport(out, report)
	return nil
}

func printReport(out io.Writer, report *service.UsageReport) {
	fmt.Fprintf(out, "account %s is on %s", report.AccountID, report.Plan)
	if !report.PeriodEnd.IsZero() {
		fmt.Fprintf(out, " until %s", report.PeriodEnd.Format(time.DateOnly))
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FEATURE\tUSED\tLIMIT")
	for _, u := range report.Features {
		limit := "unlimited"
		if !u.Limit.Unlimited {
			limit = fmt.Sprint(u.Limit.N)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", u.Feature, u.Used, limit)
	}
	tw.Flush()
}

func main() {
	log.SetFlags(0)
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("setplan: %v", err)
	}
}
