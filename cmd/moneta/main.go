package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"moneta/internal/amqp"
	"moneta/internal/analytics"
	"moneta/internal/backup"
	"moneta/internal/cli"
	"moneta/internal/core"
	"moneta/internal/services"
)

const usage = `Usage: moneta <command> [flags]

Commands:
  add        add a transaction
  list       list transactions
  status     show budget statuses
  breakdown  show expense breakdown by category
  trend      show income/expense trend buckets
  export     write transactions as CSV to stdout
  import     read transactions from a CSV file
  backup     create an encrypted backup bundle
  restore    restore the ledger from a bundle
  erase      delete all data and destroy the master key
`

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := cli.LoadAndValidateConfig(logger)
	ctx := context.Background()

	store := cli.InitStore(ctx, logger, cfg)
	codec := backup.NewCodec(store, cfg.Platform, nil)

	// The broker is optional; without it backups simply skip the hand-off
	// announcement.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, backups will not be announced", "error", err)
		}
	}

	svc := services.NewLedgerService(store, codec, amqpClient, cfg.BackupDir)
	defer svc.Close()

	var err error
	switch os.Args[1] {
	case "add":
		err = runAdd(ctx, svc, os.Args[2:])
	case "list":
		err = runList(ctx, svc)
	case "status":
		err = runStatus(ctx, svc)
	case "breakdown":
		err = runBreakdown(ctx, svc, os.Args[2:])
	case "trend":
		err = runTrend(ctx, svc, os.Args[2:])
	case "export":
		err = svc.ExportCSV(ctx, os.Stdout)
	case "import":
		err = runImport(ctx, svc, os.Args[2:])
	case "backup":
		err = runBackup(ctx, svc, os.Args[2:])
	case "restore":
		err = runRestore(ctx, svc, os.Args[2:])
	case "erase":
		err = runErase(ctx, svc, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("Command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func runAdd(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	amount := fs.String("amount", "", "signed decimal amount (negative = expense)")
	description := fs.String("description", "", "transaction description")
	category := fs.String("category", "", "category label")
	date := fs.String("date", "", "occurrence date YYYY-MM-DD (default today)")
	merchant := fs.String("merchant", "", "merchant name")
	notes := fs.String("notes", "", "free-form notes")
	fs.Parse(args)

	parsed, err := core.ParseAmount(*amount)
	if err != nil {
		return err
	}

	occurredAt := time.Now()
	if *date != "" {
		occurredAt, err = time.Parse("2006-01-02", *date)
		if err != nil {
			return fmt.Errorf("parse date: %w", err)
		}
	}

	id, err := svc.AddTransaction(ctx, core.Transaction{
		Amount:      parsed,
		Description: *description,
		Category:    *category,
		OccurredAt:  occurredAt,
		Merchant:    *merchant,
		Notes:       *notes,
	})
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func runList(ctx context.Context, svc *services.LedgerService) error {
	txs, err := svc.Transactions(ctx)
	if err != nil {
		return err
	}
	for _, t := range txs {
		fmt.Printf("%s  %s  %10s  %-20s  %s\n",
			t.ID, t.OccurredAt.Format("2006-01-02"),
			core.FormatAmount(t.Amount), t.Category, t.Description)
	}
	return nil
}

func runStatus(ctx context.Context, svc *services.LedgerService) error {
	statuses, err := svc.BudgetStatuses(ctx, time.Now())
	if err != nil {
		return err
	}
	for _, st := range statuses {
		flagText := ""
		switch {
		case st.OverBudget:
			flagText = "  OVER BUDGET"
		case st.Warning:
			flagText = "  warning"
		}
		fmt.Printf("%-20s  %s / %s spent (%s%%)%s\n",
			st.Budget.Category,
			core.FormatAmount(st.Spent), core.FormatAmount(st.Budget.Limit),
			st.Percentage.StringFixed(1), flagText)
	}
	return nil
}

func parseRange(fs *flag.FlagSet, args []string) (start, end time.Time, err error) {
	from := fs.String("from", "", "range start YYYY-MM-DD (default 30 days ago)")
	to := fs.String("to", "", "range end YYYY-MM-DD (default today)")
	fs.Parse(args)

	end = time.Now()
	start = end.AddDate(0, 0, -30)
	if *from != "" {
		start, err = time.Parse("2006-01-02", *from)
		if err != nil {
			return start, end, fmt.Errorf("parse -from: %w", err)
		}
	}
	if *to != "" {
		end, err = time.Parse("2006-01-02", *to)
		if err != nil {
			return start, end, fmt.Errorf("parse -to: %w", err)
		}
	}
	return start, end, nil
}

func runBreakdown(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("breakdown", flag.ExitOnError)
	start, end, err := parseRange(fs, args)
	if err != nil {
		return err
	}

	rows, err := svc.CategoryBreakdown(ctx, start, end)
	if err != nil {
		return err
	}
	for _, row := range rows {
		fmt.Printf("%-20s  %10s  %s%%\n",
			row.Category, core.FormatAmount(row.Amount), row.Percentage.StringFixed(1))
	}
	return nil
}

func runTrend(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("trend", flag.ExitOnError)
	byMonth := fs.Bool("monthly", false, "bucket by month instead of day")
	start, end, err := parseRange(fs, args)
	if err != nil {
		return err
	}

	granularity := analytics.ByDay
	layout := "2006-01-02"
	if *byMonth {
		granularity = analytics.ByMonth
		layout = "2006-01"
	}

	points, err := svc.TrendSeries(ctx, start, end, granularity)
	if err != nil {
		return err
	}
	for _, p := range points {
		fmt.Printf("%s  income %10s  expenses %10s  balance %10s\n",
			p.Start.Format(layout),
			core.FormatAmount(p.Income), core.FormatAmount(p.Expenses), core.FormatAmount(p.Balance))
	}
	return nil
}

func runImport(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	file := fs.String("file", "", "CSV file to import")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("import: -file is required")
	}
	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	report, err := svc.ImportCSV(ctx, f)
	for _, rowErr := range report.Errors {
		fmt.Fprintf(os.Stderr, "%v\n", rowErr)
	}
	if err != nil {
		return err
	}
	fmt.Printf("imported %d transactions\n", len(report.Transactions))
	return nil
}

func runBackup(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	passphrase := fs.String("passphrase", "", "backup passphrase")
	fs.Parse(args)

	if *passphrase == "" {
		return fmt.Errorf("backup: -passphrase is required")
	}
	path, err := svc.CreateBackup(ctx, *passphrase)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runRestore(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	file := fs.String("file", "", "bundle file to restore")
	passphrase := fs.String("passphrase", "", "backup passphrase")
	fs.Parse(args)

	if *file == "" || *passphrase == "" {
		return fmt.Errorf("restore: -file and -passphrase are required")
	}
	return svc.RestoreBackup(ctx, *file, *passphrase)
}

func runErase(ctx context.Context, svc *services.LedgerService, args []string) error {
	fs := flag.NewFlagSet("erase", flag.ExitOnError)
	confirm := fs.Bool("yes", false, "confirm irreversible erase")
	fs.Parse(args)

	if !*confirm {
		return fmt.Errorf("erase is irreversible, pass -yes to confirm")
	}
	if err := svc.EraseAll(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Ledger erased")
	return nil
}
