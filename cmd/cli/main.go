package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/twocents/internal/app"
	"github.com/dvloznov/twocents/internal/billing"
	"github.com/dvloznov/twocents/internal/config"
	"github.com/dvloznov/twocents/internal/domain"
	"github.com/dvloznov/twocents/internal/logger"
	"github.com/dvloznov/twocents/internal/report"
	"github.com/dvloznov/twocents/internal/store"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	commands := map[string]func(zerolog.Logger){
		"summary":    runSummary,
		"add":        runAdd,
		"txns":       runTxns,
		"goals":      runGoals,
		"bills":      runBills,
		"pay":        runPay,
		"unpay":      runUnpay,
		"contribute": runContribute,
		"category":   runCategory,
		"currency":   runCurrency,
		"import":     runImport,
		"export":     runExport,
		"backup":     runBackup,
		"restore":    runRestore,
		"xlsx":       runXLSX,
		"watch":      runWatch,
	}

	switch cmd := os.Args[1]; cmd {
	case "help", "-h", "--help":
		printUsage()
	default:
		run, ok := commands[cmd]
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
			printUsage()
			os.Exit(1)
		}
		run(log)
	}
}

func printUsage() {
	fmt.Println("twocents CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  summary     Show this month's income, spending and budgets")
	fmt.Println("  add         Add a transaction")
	fmt.Println("  txns        List, remove or clear transactions")
	fmt.Println("  goals       List or add savings and debt goals")
	fmt.Println("  bills       List, add or remove recurring bills")
	fmt.Println("  pay         Pay a bill for this cycle")
	fmt.Println("  unpay       Reset a bill's paid status")
	fmt.Println("  contribute  Contribute to a goal")
	fmt.Println("  category    Add, update or remove a spending category")
	fmt.Println("  currency    Set the currency symbol")
	fmt.Println("  import      Import a JSON snapshot")
	fmt.Println("  export      Export everything to a JSON snapshot")
	fmt.Println("  backup      Upload a snapshot to the backup bucket")
	fmt.Println("  restore     Import a snapshot from the backup bucket")
	fmt.Println("  xlsx        Write a month's transactions to an Excel workbook (local or gs://)")
	fmt.Println("  watch       Print changes as they sync")
	fmt.Println("  help        Show this help message")
	fmt.Println("\nEvery command accepts -config PATH.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// command is a parsed subcommand with its config.
type command struct {
	fs         *flag.FlagSet
	configPath *string
	cfg        *config.Config
	log        zerolog.Logger
}

func newCommand(name string, log zerolog.Logger) *command {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return &command{
		fs:         fs,
		configPath: fs.String("config", "", "Path to a YAML config file"),
		log:        log,
	}
}

// parse parses the flags and loads the config, applying its log level.
func (c *command) parse() {
	c.fs.Parse(os.Args[2:])

	cfg, err := config.Load(*c.configPath)
	if err != nil {
		c.log.Fatal().Err(err).Msg("Failed to load config")
	}
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		c.log.Fatal().Err(err).Msg("Invalid log level")
	}
	c.cfg = cfg
	c.log = c.log.Level(level)
}

// open starts an app and loads every store. The caller closes it.
func (c *command) open(ctx context.Context) *app.App {
	a, err := app.Open(ctx, c.cfg, c.log)
	if err != nil {
		c.log.Fatal().Err(err).Str("backend", c.cfg.Backend.Kind).Msg("Failed to open backend")
	}
	if err := a.Init(ctx); err != nil {
		a.Close()
		c.log.Fatal().Err(err).Msg("Failed to load data")
	}
	return a
}

// arg returns the first positional argument or exits with usage.
func (c *command) arg(what string) string {
	if c.fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: cli %s [options] %s\n", c.fs.Name(), what)
		os.Exit(2)
	}
	return c.fs.Arg(0)
}

func mustClose(a *app.App, log zerolog.Logger) {
	if err := a.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close backend")
	}
}

func parseMonth(s string, log zerolog.Logger) report.Month {
	if s == "" {
		return report.MonthOf(billing.Today(time.Now()))
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		log.Fatal().Err(err).Str("month", s).Msg("Month must look like 2025-05")
	}
	return report.Month{Year: t.Year(), Month: t.Month()}
}

func parseDate(s string, log zerolog.Logger) civil.Date {
	if s == "" {
		return billing.Today(time.Now())
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		log.Fatal().Err(err).Str("date", s).Msg("Date must look like 2025-05-01")
	}
	return d
}

func money(currency string, v float64) string {
	if v < 0 {
		return fmt.Sprintf("-%s%.2f", currency, -v)
	}
	return fmt.Sprintf("%s%.2f", currency, v)
}

func table() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

func runSummary(log zerolog.Logger) {
	c := newCommand("summary", log)
	month := c.fs.String("month", "", "Month as YYYY-MM (defaults to this month)")
	c.parse()

	ctx := context.Background()
	a := c.open(ctx)
	defer mustClose(a, c.log)

	m := parseMonth(*month, c.log)
	txns := a.Ledger.Get()
	settings := a.Settings.Get()
	cur := settings.Currency

	s := report.Monthly(txns, m)
	fmt.Printf("Summary for %s\n\n", m)
	fmt.Printf("  Income        %s\n", money(cur, s.Income))
	fmt.Printf("  Spending      %s\n", money(cur, s.Spending))
	fmt.Printf("  Net           %s\n", money(cur, s.Net))
	fmt.Printf("  Savings rate  %.1f%%\n\n", s.SavingsRate)

	w := table()
	fmt.Fprintln(w, "CATEGORY\tSPENT\tLIMIT\tUSED")
	for _, row := range report.CategoryProgress(txns, settings.Categories, m) {
		mark := ""
		switch {
		case row.Over:
			mark = " over budget"
		case row.NearLimit:
			mark = " near limit"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%%s\n", row.Category.Name, money(cur, row.Spent), money(cur, row.Category.Limit), row.Percent, mark)
	}
	w.Flush()

	if settings.CoupleMode.Enabled {
		p := report.PartnerTotals(report.InMonth(txns, m), settings.CoupleMode)
		fmt.Printf("\n  %s spent %s, %s spent %s\n", p.Partner1.Name, money(cur, p.Partner1.Spending), p.Partner2.Name, money(cur, p.Partner2.Spending))
		if from, to, amount := p.Settlement(); amount > 0 {
			fmt.Printf("  %s owes %s %s\n", from, to, money(cur, amount))
		}
	}

	rows := billing.Rows(a.Bills.Get(), billing.Today(time.Now()))
	if due := billing.TotalDue(rows); due > 0 {
		fmt.Printf("\n  Bills still due this cycle: %s\n", money(cur, due))
	}
}

func runAdd(log zerolog.Logger) {
	c := newCommand("add", log)
	amount := c.fs.Float64("amount", 0, "Amount (always positive)")
	income := c.fs.Bool("income", false, "Record income instead of an expense")
	category := c.fs.String("category", "", "Spending category (defaults to the first category)")
	note := c.fs.String("note", "", "Optional note")
	who := c.fs.String("who", "", "Partner name when couple mode is on")
	date := c.fs.String("date", "", "Date as YYYY-MM-DD (defaults to today)")
	goal := c.fs.String("goal", "", "Goal id to contribute the amount to")
	c.parse()

	abs := *amount
	if abs < 0 {
		abs = -abs
	}
	if abs == 0 {
		c.log.Fatal().Msg("Usage: cli add -amount N [-income] [-category NAME]")
	}

	ctx := context.Background()
	a := c.open(ctx)
	defer mustClose(a, c.log)

	t := domain.NewTransaction{
		Date:   parseDate(*date, c.log),
		Amount: abs,
		Note:   *note,
		Who:    *who,
	}
	if !*income {
		t.Amount = -abs
		t.Category = strings.TrimSpace(*category)
		if t.Category == "" {
			cats := a.Settings.Get().Categories
			if len(cats) == 0 {
				c.log.Fatal().Msg("No categories configured; pass -category")
			}
			t.Category = cats[0].Name
		}
	}

	added, contribution, err := a.AddTransaction(ctx, t, *goal)
	if err != nil {
		c.log.Fatal().Err(err).Msg("Failed to add transaction")
	}
	fmt.Printf("Added %s on %s (%s)\n", money(a.Settings.Get().Currency, added.Amount), added.Date, added.ID)
	printContribution(contribution)
}

func printContribution(c *store.Contribution) {
	if c == nil {
		return
	}
	fmt.Printf("Goal %q is now at %.2f\n", c.Goal.Name, c.Goal.Current)
	if c.JustCompleted {
		fmt.Printf("Goal %q completed!\n", c.Goal.Name)
	}
}

func runTxns(log zerolog.Logger) {
	c := newCommand("txns", log)
	month := c.fs.String("month", "", "Only show this month (YYYY-MM)")
	limit := c.fs.Int("limit", 20, "Maximum rows to show (0 for all)")
	remove := c.fs.String("remove", "", "Remove the transaction with this id")
	clearAll := c.fs.Bool("clear", false, "Delete every transaction")
	c.parse()

	ctx := context.Background()
	a := c.open(ctx)
	defer mustClose(a, c.log)

	switch {
	case *clearAll:
		if err := a.Ledger.Clear(ctx); err != nil {
			c.log.Fatal().Err(err).Msg("Failed to clear transactions")
		}
		fmt.Println("All transactions removed.")
		return
	case *remove != "":
		if err := a.Ledger.Remove(ctx, *remove); err != nil {
			c.log.Fatal().Err(err).Msg("Failed to remove transaction")
		}
		fmt.Printf("Removed %s\n", *remove)
		return
	}

	txns := a.Ledger.Get()
	if *month != "" {
		txns = report.InMonth(txns, parseMonth(*month, c.log))
	}
	if *limit > 0 && len(txns) > *limit {
		txns = txns[:*limit]
	}

	cur := a.Settings.Get().Currency
	w := table()
	fmt.Fprintln(w, "DATE\tAMOUNT\tCATEGORY\tWHO\tNOTE\tID")
	for _, t := range txns {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", t.Date, money(cur, t.Amount), t.Category, t.Who, t.Note, t.ID)
	}
	w.Flush()
}

func runGoals(log zerolog.Logger) {
	c := newCommand("goals", log)
	name := c.fs.String("add", "", "Create a goal with this name")
	target := c.fs.Float64("target", 0, "Target amount for a savings goal")
	debt := c.fs.Float64("debt", 0, "Outstanding balance for a debt goal")
	category := c.fs.String("category", string(domain.GoalSavings), "Goal category")
	categories := c.fs.String("link-categories", "", "Comma separated spending categories to link")
	remove := c.fs.String("remove", "", "Remove the goal with this id")
	c.parse()

	ctx := context.Background()
	a := c.open(ctx)
	defer mustClose(a, c.log)

	switch {
	case *remove != "":
		if err := a.Goals.Remove(ctx, *remove); err != nil {
			c.log.Fatal().Err(err).Msg("Failed to remove goal")
		}
		fmt.Printf("Removed %s\n", *remove)
		return
	case *name != "":
		g := domain.Goal{
			Name:     *name,
			Target:   *target,
			Category: domain.GoalCategory(*category),
		}
		if *debt > 0 {
			g.IsDebt = true
			g.Current = *debt
			g.OriginalDebt = domain.Ptr(*debt)
			g.Category = domain.GoalDebt
		}
		if !g.Category.Valid() {
			c.log.Fatal().Str("category", *category).Msg("Unknown goal category")
		}
		for _, cat := range strings.Split(*categories, ",") {
			if cat = strings.TrimSpace(cat); cat != "" {
				g.LinkedCategories = append(g.LinkedCategories, cat)
			}
		}
		added, err := a.Goals.Add(ctx, g)
		if err != nil {
			c.log.Fatal().Err(err).Msg("Failed to add goal")
		}
		fmt.Printf("Added goal %q (%s)\n", added.Name, added.ID)
		return
	}

	cur := a.Settings.Get().Currency
	w := table()
	fmt.Fprintln(w, "NAME\tKIND\tCURRENT\tTARGET\tPROGRESS\tID")
	for _, g := range a.Goals.Get() {
		kind, goalTarget := string(g.Category), money(cur, g.Target)
		if g.IsDebt {
			kind, goalTarget = "debt", "-"
		}
		done := ""
		if g.CompletedAt != nil {
			done = " done"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f%%%s\t%s\n", g.Name, kind, money(cur, g.Current), goalTarget, g.Progress()*100, done, g.ID)
	}
	w.Flush()
}

func runBills(log zerolog.Logger) {
	c := newCommand("bills", log)
	name := c.fs.String("add", "", "Create a bill with this name")
	amount := c.fs.Float64("amount", 0, "Monthly amount")
	due := c.fs.Int("due", 1, "Day of month the bill is due (1-31)")
	goal := c.fs.String("goal", "", "Goal id paid into when the bill is paid")
	category := c.fs.String("category", "", "Spending category of the payment")
	remove := c.fs.String("remove", "", "Remove the bill with this id")
	c.parse()

	ctx := context.Background()
	a := c.open(ctx)
	defer mustClose(a, c.log)

	switch {
	case *remove != "":
		if err := a.Bills.Remove(ctx, *remove); err != nil {
			c.log.Fatal().Err(err).Msg("Failed to remove bill")
		}
		fmt.Printf("Removed %s\n", *remove)
		return
	case *name != "":
		added, err := a.Bills.Add(ctx, domain.Bill{
			Name:         *name,
			Amount:       *amount,
			DueDay:       *due,
			LinkedGoalID: *goal,
			Category:     *category,
		})
		if err != nil {
			c.log.Fatal().Err(err).Msg("Failed to add bill")
		}
		fmt.Printf("Added bill %q due on day %d (%s)\n", added.Name, added.DueDay, added.ID)
		return
	}

	cur := a.Settings.Get().Currency
	rows := billing.Rows(a.Bills.Get(), billing.Today(time.Now()))
	w := table()
	fmt.Fprintln(w, "NAME\tAMOUNT\tNEXT DUE\tSTATUS\tID")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Bill.Name, money(cur, r.Bill.Amount), r.NextDue, r.Status, r.Bill.ID)
	}
	w.Flush()
	fmt.Printf("\nStill due this cycle: %s\n", money(cur, billing.TotalDue(rows)))
}

func runPay(log zerolog.Logger) {
	c := newCommand("pay", log)
	date := c.fs.String("date", "", "Payment date as YYYY-MM-DD (defaults to today)")
	c.parse()
	id := c.arg("BILL_ID")

	ctx := context.Background()
	a := c.open(ctx)
	defer mustClose(a, c.log)

	p, err := a.PayBill(ctx, id, parseDate(*date, c.log))
	if err != nil {
		c.log.Fatal().Err(err).Msg("Failed to pay bill")
	}
	fmt.Printf("Paid %q: %s recorded\n", p.Bill.Name, money(a.Settings.Get().Currency, p.Transaction.Amount))
	printContribution(p.Contribution)
}

func runUnpay(log zerolog.Logger) {
	c := newCommand("unpay", log)
	c.parse()
	id := c.arg("BILL_ID")

	ctx := context.Background()
	a := c.open(ctx)
	defer mustClose(a, c.log)

	if err := a.Bills.ResetPaid(ctx, id); err != nil {
		c.log.Fatal().Err(err).Msg("Failed to reset bill")
	}
	fmt.Printf("Bill %s marked unpaid\n", id)
}

func runContribute(log zerolog.Logger) {
	c := newCommand("contribute", log)
	amount := c.fs.Float64("amount", 0, "Amount to contribute (or pay off for debt goals)")
	c.parse()
	id := c.arg("GOAL_ID")

	ctx := context.Background()
	a := c.open(ctx)
	defer mustClose(a, c.log)

	contribution, err := a.Goals.Contribute(ctx, id, *amount, time.Now())
	if err != nil {
		c.log.Fatal().Err(err).Msg("Failed to contribute")
	}
	printContribution(&contribution)
}

func runCategory(log zerolog.Logger) {
	c := newCommand("category", log)
	name := c.fs.String("name", "", "Category name (matched case-insensitively)")
	limit := c.fs.Float64("limit", -1, "Monthly limit (omit to keep the current limit)")
	remove := c.fs.String("remove", "", "Remove the category with this id")
	c.parse()

	ctx := context.Background()
	a := c.open(ctx)
	defer mustClose(a, c.log)

	var job interface{ Wait(context.Context) error }
	switch {
	case *remove != "":
		job = a.Settings.RemoveCategory(ctx, *remove)
	case *name != "":
		u := store.CategoryUpsert{Name: *name}
		if *limit >= 0 {
			u.Limit = domain.Set(*limit)
		}
		job = a.Settings.UpsertCategory(ctx, u)
	default:
		w := table()
		fmt.Fprintln(w, "NAME\tLIMIT\tID")
		s := a.Settings.Get()
		for _, cat := range s.Categories {
			fmt.Fprintf(w, "%s\t%s\t%s\n", cat.Name, money(s.Currency, cat.Limit), cat.ID)
		}
		w.Flush()
		return
	}

	if err := job.Wait(ctx); err != nil {
		c.log.Fatal().Err(err).Msg("Failed to save categories")
	}
	fmt.Println("Categories saved.")
}

func runCurrency(log zerolog.Logger) {
	c := newCommand("currency", log)
	c.parse()
	symbol := c.arg("SYMBOL")

	ctx := context.Background()
	a := c.open(ctx)
	defer mustClose(a, c.log)

	if err := a.Settings.SetCurrency(ctx, symbol).Wait(ctx); err != nil {
		c.log.Fatal().Err(err).Msg("Failed to save currency")
	}
	fmt.Printf("Currency set to %s\n", a.Settings.Get().Currency)
}

func runWatch(log zerolog.Logger) {
	c := newCommand("watch", log)
	c.parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := c.open(ctx)
	defer mustClose(a, c.log)

	ledger := store.Bind[[]domain.Transaction](a.Ledger)
	defer ledger.Close()
	goals := store.Bind[[]domain.Goal](a.Goals)
	defer goals.Close()
	bills := store.Bind[[]domain.Bill](a.Bills)
	defer bills.Close()
	settings := store.Bind[*domain.Settings](a.Settings)
	defer settings.Close()

	fmt.Printf("Watching %s (%d transactions, %d goals, %d bills). Ctrl-C to stop.\n",
		a.Session().PartitionKey(), len(ledger.Current()), len(goals.Current()), len(bills.Current()))

	for {
		select {
		case <-ctx.Done():
			return
		case txns := <-ledger.Updates():
			fmt.Printf("%s  ledger: %d transactions\n", time.Now().Format(time.TimeOnly), len(txns))
		case gs := <-goals.Updates():
			fmt.Printf("%s  goals: %d goals\n", time.Now().Format(time.TimeOnly), len(gs))
		case bs := <-bills.Updates():
			fmt.Printf("%s  bills: %d bills\n", time.Now().Format(time.TimeOnly), len(bs))
		case s := <-settings.Updates():
			fmt.Printf("%s  settings: currency %s, %d categories\n", time.Now().Format(time.TimeOnly), s.Currency, len(s.Categories))
		}
	}
}
