package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/impfwatch/impfwatch/internal/adapter/driven/identity"
	"github.com/impfwatch/impfwatch/internal/adapter/driven/impfzentren"
	"github.com/impfwatch/impfwatch/internal/adapter/driven/ntfy"
	sqliteadapter "github.com/impfwatch/impfwatch/internal/adapter/driven/sqlite"
	"github.com/impfwatch/impfwatch/internal/application"
	"github.com/impfwatch/impfwatch/internal/config"
	"github.com/impfwatch/impfwatch/internal/domain/model"
)

const dateLayout = "2006-01-02"

var flags struct {
	citizenID    string
	earliestDay  string
	latestDay    string
	doseType     string
	variant      string
	firstVaccine string
	interval     time.Duration
	book         bool
	limit        int
}

var rootCmd = &cobra.Command{
	Use:   "impfwatch",
	Short: "Appointment checker and booker for Bavarian vaccination centres",
	Long: `impfwatch polls the Bavarian vaccination portal for a matching
appointment slot, notifies when one appears, and optionally books it.
Without --interval a single check is made.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runPoll(cmd.Context())
	},
}

var appointmentsCmd = &cobra.Command{
	Use:   "appointments",
	Short: "List the citizen's upcoming booked appointments",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runAppointments(cmd.Context())
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded poll attempts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runHistory(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flags.citizenID, "citizen-id", "", "citizen ID from the portal address bar (overrides IMPFWATCH_CITIZEN_ID)")
	rootCmd.Flags().StringVar(&flags.earliestDay, "earliest-day", "", "earliest acceptable day, YYYY-MM-DD (default today)")
	rootCmd.Flags().StringVar(&flags.latestDay, "latest-day", "", "latest acceptable day, YYYY-MM-DD (default no limit)")
	rootCmd.Flags().StringVar(&flags.doseType, "type", "", "vaccination type: FIRST, SECOND or BOOST")
	rootCmd.Flags().StringVar(&flags.variant, "variant", "", "vaccine variant filter, e.g. OMC_BA4-5")
	rootCmd.Flags().StringVar(&flags.firstVaccine, "first-vaccine", "", "vaccine code of the first dose (required with --type SECOND)")
	rootCmd.Flags().DurationVar(&flags.interval, "interval", 0, "interval between checks; if not passed, only one check is made")
	rootCmd.Flags().BoolVar(&flags.book, "book", false, "book the appointment if found")
	historyCmd.Flags().IntVar(&flags.limit, "limit", 20, "number of attempts to show")

	cobra.CheckErr(rootCmd.MarkFlagRequired("type"))

	rootCmd.AddCommand(appointmentsCmd, historyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// loadConfig loads the environment config and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if flags.citizenID != "" {
		cfg.CitizenID = flags.citizenID
	}
	if flags.interval > 0 {
		cfg.PollInterval = flags.interval
	}
	return cfg, nil
}

// newSlotClient wires the session manager and the appointments client. The
// session refresh loop runs until ctx is canceled.
func newSlotClient(ctx context.Context, cfg *config.Config) (*impfzentren.Client, error) {
	if !cfg.HasCredentials() {
		return nil, fmt.Errorf("IMPFWATCH_USERNAME, IMPFWATCH_PASSWORD and IMPFWATCH_CITIZEN_ID (or --citizen-id) are required")
	}

	sessions, err := identity.NewSessionManager(
		model.Credentials{Username: cfg.Username, Password: cfg.Password},
		identity.Config{
			AuthURL:         cfg.AuthURL,
			TokenURL:        cfg.TokenURL,
			RedirectURI:     cfg.PortalURL,
			ClientID:        cfg.ClientID,
			RefreshInterval: cfg.RefreshInterval,
		},
		identity.NewKeycloakForms(),
	)
	if err != nil {
		return nil, err
	}
	go sessions.Run(ctx)

	return impfzentren.NewClient(cfg.APIURL, cfg.CitizenID, sessions), nil
}

// buildQuery converts the search flags into a validated query.
func buildQuery() (model.Query, error) {
	var earliest time.Time
	if flags.earliestDay != "" {
		parsed, err := time.Parse(dateLayout, flags.earliestDay)
		if err != nil {
			return model.Query{}, fmt.Errorf("invalid --earliest-day %q: %w", flags.earliestDay, err)
		}
		earliest = parsed
	}

	var latest *time.Time
	if flags.latestDay != "" {
		parsed, err := time.Parse(dateLayout, flags.latestDay)
		if err != nil {
			return model.Query{}, fmt.Errorf("invalid --latest-day %q: %w", flags.latestDay, err)
		}
		latest = &parsed
	}

	doseType, err := model.ParseVaccinationType(flags.doseType)
	if err != nil {
		return model.Query{}, err
	}

	var variant *model.Variant
	if flags.variant != "" {
		v, err := model.ParseVariant(flags.variant)
		if err != nil {
			return model.Query{}, err
		}
		variant = &v
	}

	var firstVaccine *model.Vaccine
	if flags.firstVaccine != "" {
		v, err := model.VaccineFromID(flags.firstVaccine)
		if err != nil {
			return model.Query{}, err
		}
		firstVaccine = &v
	}

	return model.NewQuery(earliest, latest, doseType, variant, firstVaccine)
}

func runPoll(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	query, err := buildQuery()
	if err != nil {
		return err
	}

	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}

	slots, err := newSlotClient(ctx, cfg)
	if err != nil {
		return err
	}

	notifier := ntfy.NewNotifier(cfg.NtfyServer, cfg.NtfyTopic, cfg.PortalURL+"overview/"+cfg.CitizenID)
	attempts := sqliteadapter.NewAttemptRepo(db)

	pollSvc := application.NewPollService(slots, notifier, attempts, cfg.CitizenID, cfg.PollInterval, flags.book)

	slog.Info("impfwatch started",
		"citizen_id", cfg.CitizenID,
		"poll_interval", cfg.PollInterval,
		"book", flags.book,
		"earliest_day", query.EarliestDay.Format(dateLayout),
	)

	result, err := pollSvc.Run(ctx, query)
	if err != nil {
		return err
	}
	slog.Info("polling finished", "outcome", string(result.Outcome))

	if result.Outcome == model.OutcomeBooked {
		printAppointments(ctx, slots)
	}

	return nil
}

func runAppointments(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slots, err := newSlotClient(ctx, cfg)
	if err != nil {
		return err
	}

	printAppointments(ctx, slots)
	return nil
}

func printAppointments(ctx context.Context, slots *impfzentren.Client) {
	appointments, err := slots.ListUpcoming(ctx)
	if err != nil {
		slog.Error("error retrieving appointments", "error", err)
		return
	}

	if len(appointments) == 0 {
		slog.Info("no appointments found")
		return
	}

	for _, a := range appointments {
		slog.Info("upcoming appointment",
			"site", a.SiteName,
			"address", a.SiteAddress,
			"date", a.Date,
			"time", a.Time,
		)
	}
}

func runHistory(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}

	attempts, err := sqliteadapter.NewAttemptRepo(db).ListRecent(ctx, flags.limit)
	if err != nil {
		return err
	}

	if len(attempts) == 0 {
		slog.Info("no attempts recorded")
		return nil
	}

	for _, a := range attempts {
		slog.Info("attempt",
			"at", a.At.Format(time.RFC3339),
			"outcome", string(a.Outcome),
			"slot_date", a.SlotDate,
			"slot_time", a.SlotTime,
			"site", a.SiteName,
		)
	}

	return nil
}
