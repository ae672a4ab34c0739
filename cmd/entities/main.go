package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/emu-entities/internal/cluster"
	"github.com/emu-entities/internal/config"
	"github.com/emu-entities/internal/db"
	"github.com/emu-entities/internal/debug"
	"github.com/emu-entities/internal/export"
	"github.com/emu-entities/internal/extract"
	"github.com/emu-entities/internal/geocode"
	"github.com/emu-entities/internal/nlp"
	"github.com/emu-entities/internal/parties"
	"github.com/emu-entities/internal/postal"
	"github.com/emu-entities/internal/reconcile"
	"github.com/emu-entities/internal/records"
	"github.com/emu-entities/internal/store"
)

var envFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "entities",
		Short: "EMu catalogue entity extraction",
		Long:  `Extracts named entities from EMu XML and CSV exports, clusters near-duplicates and reconciles them against known parties`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadConfig(envFile)
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Environment file to load before the default .env search")

	rootCmd.AddCommand(createExtractCmd())
	rootCmd.AddCommand(createReconcileCmd())
	rootCmd.AddCommand(createPingCmd())
	rootCmd.AddCommand(createRunsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// createExtractCmd creates the extract subcommand
func createExtractCmd() *cobra.Command {
	var (
		processor  string
		labels     []string
		dumpPath   string
		csvPath    string
		xlsxPath   string
		doCluster  bool
		threshold  int
		workers    int
		storeRun   bool
		runLabel   string
		localDebug bool
	)

	cmd := &cobra.Command{
		Use:   "extract [--ents LABEL...] [file]",
		Short: "Extract entities from an EMu XML or CSV export",
		Long: `Extracts named entities from an EMu XML or CSV export.

Labels for --ents may be comma separated, repeated, or listed before the file:
  entities extract --ents PERSON,ORG catalogue.xml
  entities extract --ents PERSON --ents ORG catalogue.xml
  entities extract --ents PERSON ORG catalogue.xml`,
		Args: cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			localDebug = localDebug || config.GetEnvBool("DEBUG", false)
			debug.Init(localDebug)
			debug.DebugHeader(localDebug)
			defer debug.DebugFooter(localDebug)

			ctx, cancel := signalContext()
			defer cancel()

			var datafile string
			var err error
			labels, datafile, err = labelsAndFile(cmd.Flags().Changed("ents"), labels, args)
			if err != nil {
				debug.Fatalf("%v", err)
			}
			if !cmd.Flags().Changed("processor") {
				processor = config.GetEnv("NLP_PROCESSOR", processor)
			}
			if !cmd.Flags().Changed("workers") {
				workers = config.GetEnvInt("NER_WORKERS", workers)
			}
			if workers <= 0 {
				workers = runtime.NumCPU()
			}

			recognizer, err := nlp.New(ctx, nlp.Config{
				Processor:  processor,
				SpacyURL:   config.GetEnv("SPACY_URL", "http://localhost:5006"),
				SpacyModel: config.GetEnv("SPACY_MODEL", nlp.DefaultSpacyModel),
				StanzaURL:  config.GetEnv("STANZA_URL", "http://localhost:5005"),
				StanzaLang: config.GetEnv("STANZA_LANG", nlp.DefaultStanzaLang),
				Timeout:    config.GetEnvSeconds("NLP_TIMEOUT_SECONDS", nlp.DefaultTimeout),
				Debug:      localDebug,
			})
			if err != nil {
				debug.Fatalf("Failed to start %s: %v", processor, err)
			}

			reader, err := records.Open(datafile)
			if err != nil {
				debug.Fatalf("Failed to open %s: %v", datafile, err)
			}
			defer reader.Close()

			pipeline := extract.NewPipeline(recognizer)
			pipeline.Labels = extract.ParseLabels(labels)
			pipeline.Workers = workers
			pipeline.Debug = localDebug

			set, stats, err := pipeline.Run(ctx, reader)
			if err != nil {
				debug.Fatalf("Extraction failed: %v", err)
			}
			debug.Info("extracted entities",
				"records", stats.Records,
				"lines", stats.Lines,
				"entities", stats.Entities,
				"occurrences", stats.Occurrences,
				"took", stats.Duration.Round(time.Millisecond))

			if doCluster {
				var merges []cluster.Merge
				set, merges = cluster.Cluster(localDebug, set, threshold)
				debug.Info("clustered entities", "merges", len(merges), "entities", set.Len())
			}

			wrote := false
			if dumpPath != "" {
				if err := export.SaveJSON(dumpPath, set); err != nil {
					debug.Fatalf("Failed to write %s: %v", dumpPath, err)
				}
				debug.Info("wrote JSON", "path", dumpPath)
				wrote = true
			}
			if csvPath != "" {
				if err := export.SaveCSV(csvPath, set); err != nil {
					debug.Fatalf("Failed to write %s: %v", csvPath, err)
				}
				debug.Info("wrote CSV", "path", csvPath)
				wrote = true
			}
			if xlsxPath != "" {
				if err := export.WriteXLSX(xlsxPath, set); err != nil {
					debug.Fatalf("Failed to write %s: %v", xlsxPath, err)
				}
				debug.Info("wrote XLSX", "path", xlsxPath)
				wrote = true
			}

			if storeRun {
				runs, closeDB := openStore(ctx)
				defer closeDB()
				if runLabel == "" {
					runLabel = filepath.Base(datafile)
				}
				runID, err := runs.SaveRun(ctx, store.RunInfo{
					Label:      runLabel,
					SourceFile: datafile,
					Processor:  processor,
					Clustered:  doCluster,
				}, set)
				if err != nil {
					debug.Fatalf("Failed to store run: %v", err)
				}
				debug.Info("stored run", "run", runID)
				wrote = true
			}

			if !wrote {
				if err := export.WriteJSON(os.Stdout, set); err != nil {
					debug.Fatalf("Failed to write JSON: %v", err)
				}
			}
		},
	}

	cmd.Flags().StringVar(&processor, "processor", nlp.Stanza, "NLP engine: stanza, spacy or prose")
	cmd.Flags().StringSliceVar(&labels, "ents", extract.DefaultLabels, "Entity labels to keep")
	cmd.Flags().StringVar(&dumpPath, "dump", "", "Write entities as JSON to this file")
	cmd.Flags().StringVar(&csvPath, "csv", "", "Write entities as CSV to this file")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "Write entities as an Excel workbook to this file")
	cmd.Flags().BoolVar(&doCluster, "cluster", false, "Merge near-duplicate entity strings")
	cmd.Flags().IntVar(&threshold, "threshold", cluster.DefaultThreshold, "Minimum token sort ratio for clustering")
	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent recognition workers (0 = one per CPU)")
	cmd.Flags().BoolVar(&storeRun, "store", false, "Save the run to the database")
	cmd.Flags().StringVar(&runLabel, "label", "", "Label for the stored run")
	cmd.Flags().BoolVar(&localDebug, "debug", false, "Enable debug output")

	return cmd
}

// labelsAndFile takes the data file from the last positional argument. Any
// arguments before it are further --ents labels, which lets the labels be
// listed with spaces.
func labelsAndFile(entsSet bool, labels, args []string) ([]string, string, error) {
	if len(args) == 0 {
		return nil, "", fmt.Errorf("no data file given")
	}
	file := args[len(args)-1]
	extra := args[:len(args)-1]
	if len(extra) > 0 && !entsSet {
		return nil, "", fmt.Errorf("expected one data file, got %d arguments", len(args))
	}
	return append(append([]string{}, labels...), extra...), file, nil
}

// createReconcileCmd creates the reconcile subcommand
func createReconcileCmd() *cobra.Command {
	var (
		partiesFile  string
		threshold    int
		geocoderURL  string
		rateLimit    float64
		parseAddress bool
		localDebug   bool
	)

	cmd := &cobra.Command{
		Use:   "reconcile [csv]",
		Short: "Match extracted entities against known parties and geocode places, in place",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			localDebug = localDebug || config.GetEnvBool("DEBUG", false)
			debug.Init(localDebug)

			ctx, cancel := signalContext()
			defer cancel()

			if !cmd.Flags().Changed("parties") {
				partiesFile = config.GetEnv("PARTIES_FILE", partiesFile)
			}
			if !cmd.Flags().Changed("geocoder-url") {
				geocoderURL = config.GetEnv("GEOCODER_URL", geocoderURL)
			}
			if !cmd.Flags().Changed("rate") {
				rateLimit = config.GetEnvFloat("GEOCODER_RATE", rateLimit)
			}

			list, err := parties.Load(partiesFile)
			if err != nil {
				debug.Fatalf("Failed to load parties: %v", err)
			}
			fmt.Printf("Loaded %d known parties from %s\n", list.Len(), partiesFile)

			geocoder := geocode.NewArcGIS(geocoderURL,
				geocode.WithTimeout(config.GetEnvSeconds("GEOCODER_TIMEOUT_SECONDS", geocode.DefaultTimeout)),
				geocode.WithRate(rateLimit),
				geocode.WithDebug(localDebug))

			var addr reconcile.AddressParser
			if parseAddress {
				addr = postal.NewParser()
			}

			r := reconcile.New(parties.NewMatcher(list, threshold), geocoder, addr)
			r.Debug = localDebug

			stats, err := r.File(ctx, args[0])
			if err != nil {
				debug.Fatalf("Reconciliation failed: %v", err)
			}

			fmt.Printf("\n=== Reconciliation Complete ===\n")
			fmt.Printf("Rows: %d\n", stats.Rows)
			fmt.Printf("Parties matched: %d\n", stats.Matched)
			fmt.Printf("Places geocoded: %d\n", stats.Geocoded)
		},
	}

	cmd.Flags().StringVar(&partiesFile, "parties", parties.DefaultFile, "Authority CSV with NamFullName and irn columns")
	cmd.Flags().IntVar(&threshold, "threshold", cluster.DefaultThreshold, "Minimum token sort ratio for a party match")
	cmd.Flags().StringVar(&geocoderURL, "geocoder-url", geocode.DefaultURL, "ArcGIS geocode server URL")
	cmd.Flags().Float64Var(&rateLimit, "rate", 0, "Maximum geocoding requests per second (0 = unlimited)")
	cmd.Flags().BoolVar(&parseAddress, "parse-address", false, "Split geocoded addresses into road, city, postcode and country with libpostal")
	cmd.Flags().BoolVar(&localDebug, "debug", false, "Enable debug output")

	return cmd
}

// createPingCmd creates a command to test database connectivity
func createPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			runs, closeDB := openStore(ctx)
			defer closeDB()

			fmt.Println("Database connection successful!")

			count, err := runs.CountRuns(ctx)
			if err != nil {
				debug.Error("failed to count runs", "err", err)
				return
			}
			fmt.Printf("Stored runs: %d\n", count)
		},
	}
}

// createRunsCmd lists stored runs
func createRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List stored extraction runs",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			runs, closeDB := openStore(ctx)
			defer closeDB()

			list, err := runs.ListRuns(ctx)
			if err != nil {
				debug.Fatalf("Failed to list runs: %v", err)
			}
			if len(list) == 0 {
				fmt.Println("No runs stored")
				return
			}

			fmt.Printf("%-6s %-20s %-8s %-9s %9s %12s  %s\n", "RUN", "CREATED", "ENGINE", "CLUSTERED", "ENTITIES", "OCCURRENCES", "LABEL")
			for _, r := range list {
				fmt.Printf("%-6d %-20s %-8s %-9v %9d %12d  %s\n",
					r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Processor, r.Clustered,
					r.Entities, r.Occurrences, r.Label)
			}
		},
	}
}

// openStore connects to the database and makes sure the run tables exist
func openStore(ctx context.Context) (*store.Store, func()) {
	dbConn, err := db.NewConnection()
	if err != nil {
		debug.Fatalf("Failed to connect to database: %v", err)
	}

	runs := store.New(dbConn.DB)
	if err := runs.EnsureSchema(ctx); err != nil {
		dbConn.Close()
		debug.Fatalf("Failed to prepare schema: %v", err)
	}
	return runs, func() { dbConn.Close() }
}
