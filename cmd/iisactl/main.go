// Command iisactl inspects the candidate database from a terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/garnizeh/iisa/internal/candidates"
	"github.com/garnizeh/iisa/internal/config"
	"github.com/garnizeh/iisa/internal/db"
	"github.com/garnizeh/iisa/internal/geo"
	"github.com/garnizeh/iisa/internal/persist"
	"github.com/garnizeh/iisa/internal/repository/sqlite"
	"github.com/garnizeh/iisa/pkg/models"
	"github.com/olekukonko/tablewriter"
)

const usage = `usage: iisactl [-config file] <command> [args]

commands:
  list [-q term] [-city name] [-min age] [-max age]   list candidates
  stats                                               dashboard statistics
  cities [filter]                                     known cities
  rm <id>                                             delete a candidate still inside its edit window
`

func main() {
	configPath := flag.String("config", "", "Path to config YAML file")
	verbose := flag.Bool("v", false, "Log storage diagnostics to stderr")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	if err := run(context.Background(), *configPath, logger, flag.Args(), os.Stdout); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, logger *slog.Logger, args []string, out io.Writer) error {
	cmd, args := args[0], args[1:]

	if cmd == "cities" {
		lookup, err := geo.LoadDefault()
		if err != nil {
			return err
		}
		filter := ""
		if len(args) > 0 {
			filter = args[0]
		}
		printCities(out, lookup.Filter(filter))
		return nil
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	database, err := db.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	store, err := candidates.New(ctx, persist.New(sqlite.New(database, logger), logger), candidates.Options{
		EditWindow: cfg.Store.EditWindow,
		Logger:     logger,
		Observe:    true,
	})
	if err != nil {
		return err
	}
	defer store.Stop()

	switch cmd {
	case "list":
		fs := flag.NewFlagSet("list", flag.ContinueOnError)
		var f candidates.Filter
		fs.StringVar(&f.Term, "q", "", "match name or email")
		fs.StringVar(&f.City, "city", "", "exact city")
		fs.IntVar(&f.MinAge, "min", 0, "minimum age")
		fs.IntVar(&f.MaxAge, "max", 0, "maximum age")
		if err := fs.Parse(args); err != nil {
			return err
		}
		printCandidates(out, store.Search(f))
	case "stats":
		printStats(out, store.DashboardStats(), store.EditWindow())
	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("rm takes exactly one candidate id")
		}
		if !store.Remove(ctx, args[0]) {
			return fmt.Errorf("candidate %s not found or no longer editable", args[0])
		}
		color.Green("Removed candidate %s.", args[0])
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

func printCandidates(out io.Writer, list []models.Candidate) {
	if len(list) == 0 {
		color.Yellow("No candidates found")
		return
	}
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"ID", "Name", "Email", "Age", "City", "Submitted", "Editable"})
	for _, c := range list {
		editable := "no"
		if c.CanEdit {
			editable = "yes"
		}
		table.Append([]string{
			c.ID,
			c.FullName,
			c.Email,
			strconv.Itoa(c.Age),
			c.City,
			c.SubmissionDate.Local().Format(time.DateTime),
			editable,
		})
	}
	table.Render()
}

func printStats(out io.Writer, st models.DashboardStats, window time.Duration) {
	color.Cyan("\n=== Dashboard ===")
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Candidates", strconv.Itoa(st.TotalCandidates)})
	table.Append([]string{"Visits", strconv.Itoa(st.TotalVisits)})
	table.Append([]string{"Registration rate", fmt.Sprintf("%.2f%%", st.RegistrationRate)})
	table.Append([]string{fmt.Sprintf("Edited within %s", window), fmt.Sprintf("%.1f%%", st.EditedWithinWindow)})
	table.Append([]string{"Not edited within window", fmt.Sprintf("%.1f%%", st.NotEditedWithinWindow)})
	table.Render()

	if len(st.AgeBreakdown) == 0 {
		return
	}
	color.Yellow("\nAge Distribution")
	ages := tablewriter.NewWriter(out)
	ages.SetHeader([]string{"Age", "Candidates"})
	for _, a := range st.AgeBreakdown {
		ages.Append([]string{strconv.Itoa(a.Age), strconv.Itoa(a.Count)})
	}
	ages.Render()
}

func printCities(out io.Writer, cities []models.City) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"City", "Longitude", "Latitude"})
	for _, c := range cities {
		table.Append([]string{c.Name, strconv.FormatFloat(c.Long, 'f', 4, 64), strconv.FormatFloat(c.Latt, 'f', 4, 64)})
	}
	table.Render()
}
