package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/lox/climatrend/internal/climatology"
	"github.com/lox/climatrend/internal/ghcnd"
	"github.com/lox/climatrend/internal/station"
	"github.com/lox/climatrend/internal/store"
)

type CLI struct {
	DB          string `help:"Path to SQLite database." default:"data/climatrend.db"`
	Station     string `help:"GHCND station id (e.g. USW00094728)." env:"GHCND_STATION" required:""`
	Token       string `help:"NOAA CDO API token." env:"NOAA_CDO_TOKEN"`
	MetricsAddr string `help:"Expose Prometheus metrics on this address while running." env:"METRICS_ADDR"`

	Info     InfoCmd     `cmd:"" help:"Print station metadata and local data bounds."`
	Update   UpdateCmd   `cmd:"" help:"Fetch missing years and recompute the climatology table."`
	Backfill BackfillCmd `cmd:"" help:"Run an update against the GHCND FTP archive instead of the API."`
	Trends   TrendsCmd   `cmd:"" help:"Rank calendar days by temperature trend strength."`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var cli CLI
	ktx := kong.Parse(&cli,
		kong.Name("climatrend"),
		kong.Description("Per-calendar-day climate trend statistics for a single GHCND station."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	if cli.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cli.MetricsAddr, mux); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	ktx.FatalIfErrorf(ktx.Run(&cli))
}

func openStore(cli *CLI) (*store.Store, func(), error) {
	if dir := filepath.Dir(cli.DB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data folder: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cli.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, func() { db.Close() }, nil
}

func openSession(ctx context.Context, cli *CLI, provider station.Provider, opts ...station.Option) (*station.Session, func(), error) {
	st, closeDB, err := openStore(cli)
	if err != nil {
		return nil, nil, err
	}
	sess, err := station.New(ctx, provider, st, cli.Station, opts...)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return sess, closeDB, nil
}

type InfoCmd struct{}

func (c *InfoCmd) Run(ctx context.Context, cli *CLI) error {
	sess, closeDB, err := openSession(ctx, cli, ghcnd.NewClient(cli.Station, cli.Token))
	if err != nil {
		return err
	}
	defer closeDB()

	info := sess.Info()
	fmt.Printf("station:  GHCND:%s (%s)\n", info.StationID, info.Name)
	fmt.Printf("coverage: %d-%d\n", info.FirstYear, info.LastYear)
	if sess.HasData() {
		days := sess.Series()
		fmt.Printf("local:    %d days, %s to %s\n", len(days),
			days[0].Date.Format("2006-01-02"), days[len(days)-1].Date.Format("2006-01-02"))
	} else {
		fmt.Println("local:    no data yet")
	}
	return nil
}

type UpdateCmd struct{}

func (c *UpdateCmd) Run(ctx context.Context, cli *CLI) error {
	sess, closeDB, err := openSession(ctx, cli, ghcnd.NewClient(cli.Station, cli.Token))
	if err != nil {
		return err
	}
	defer closeDB()
	return sess.Update(ctx)
}

type BackfillCmd struct{}

func (c *BackfillCmd) Run(ctx context.Context, cli *CLI) error {
	provider := ghcnd.NewBulkProvider(
		ghcnd.NewClient(cli.Station, cli.Token),
		ghcnd.NewBulkClient(cli.Station),
	)
	sess, closeDB, err := openSession(ctx, cli, provider)
	if err != nil {
		return err
	}
	defer closeDB()
	return sess.Update(ctx)
}

type TrendsCmd struct {
	By        string `help:"Weight column." enum:"-log_p*abs_slope,-log_p*slope,slope,p_slope" default:"-log_p*abs_slope"`
	Ascending bool   `help:"Rank weakest trend first."`
	Limit     int    `help:"Days to print per metric." default:"10"`
}

func (c *TrendsCmd) Run(ctx context.Context, cli *CLI) error {
	sess, closeDB, err := openSession(ctx, cli, ghcnd.NewClient(cli.Station, cli.Token),
		station.WithRenderer(&trendTable{Limit: c.Limit}))
	if err != nil {
		return err
	}
	defer closeDB()

	return sess.Render(os.Stdout, climatology.RankOptions{By: c.By, Ascending: c.Ascending})
}
