package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/application"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/domain"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/infrastructure/roster"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/internal/infrastructure/sqlite"
)

const defaultServerURL = "http://localhost:8012"

func newStagesCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the production stages in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := application.StageCatalog()
			if opts.json {
				return writeJSON(cmd, catalog)
			}

			rows := make([][]string, 0, len(catalog.Stages))
			for _, s := range catalog.Stages {
				terminal := ""
				if s.Terminal {
					terminal = "yes"
				}
				rows = append(rows, []string{strconv.Itoa(s.Ordinal), s.Stage, s.Name, terminal})
			}
			printTable(cmd, []string{"#", "Stage", "Name", "Terminal"}, rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft})
			return nil
		},
	}
}

func newRankCommand(opts *cliOptions) *cobra.Command {
	var (
		rosterPath string
		stageFlag  string
		complexity string
	)

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank the roster's eligible workers for a stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stage, err := domain.ParseStage(stageFlag)
			if err != nil {
				return fmt.Errorf("--stage: %w", err)
			}
			hint, err := domain.ParseComplexityHint(complexity)
			if err != nil {
				return fmt.Errorf("--complexity: %w", err)
			}

			r, err := roster.Load(rosterPath)
			if err != nil {
				return err
			}
			pool, err := r.GetActiveWorkers(cmd.Context(), domain.WorkerFilter{
				Specialization:   stage,
				AvailabilityDate: time.Now().UTC(),
			})
			if err != nil {
				return err
			}

			ranked := domain.RankWorkersForStage(stage, hint, pool)
			dto := &application.RankingsDTO{
				Stage:      string(stage),
				Complexity: string(hint),
				Rankings:   make([]application.WorkerScoreDTO, 0, len(ranked)),
			}
			for _, s := range ranked {
				dto.Rankings = append(dto.Rankings, application.ToWorkerScoreDTO(s))
			}
			if opts.json {
				return writeJSON(cmd, dto)
			}

			if len(dto.Rankings) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No eligible workers for %s\n", stage.DisplayName())
				return nil
			}
			rows := make([][]string, 0, len(dto.Rankings))
			for i, s := range dto.Rankings {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					s.WorkerID,
					formatScore(s.Score),
					formatScore(s.Factors.Specialization),
					formatScore(s.Factors.Workload),
					formatScore(s.Factors.Quality),
					formatScore(s.Factors.Efficiency),
					formatScore(s.Factors.Complexity),
				})
			}
			printTable(cmd,
				[]string{"#", "Worker", "Score", "Spec", "Load", "Quality", "Speed", "Complexity"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight})
			return nil
		},
	}

	cmd.Flags().StringVar(&rosterPath, "roster", os.Getenv("WORKER_ROSTER_PATH"), "Worker roster TOML file")
	cmd.Flags().StringVar(&stageFlag, "stage", "", "Stage to rank workers for")
	cmd.Flags().StringVar(&complexity, "complexity", "", "Complexity hint (low, medium, high, very_high)")
	_ = cmd.MarkFlagRequired("stage")

	return cmd
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

func newPipelineCommand(opts *cliOptions) *cobra.Command {
	var (
		serverURL string
		actorID   string
		actorRole string
		live      bool
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Show active batches grouped by stage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/pipeline"
			if live {
				path += "/live"
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			var view application.PipelineDTO
			if err := getJSON(ctx, strings.TrimRight(serverURL, "/")+path, actorID, actorRole, &view); err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, view)
			}

			rows := make([][]string, 0)
			for _, group := range view.Stages {
				if len(group.Batches) == 0 {
					rows = append(rows, []string{group.Name, "-", "", "", ""})
					continue
				}
				for _, b := range group.Batches {
					rows = append(rows, []string{
						group.Name,
						b.BatchNumber,
						b.Priority,
						b.QualityStatus,
						strconv.Itoa(len(b.OrderIDs)),
					})
				}
			}
			printTable(cmd, []string{"Stage", "Batch", "Priority", "Quality", "Orders"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight})
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", envOr("PRODUCTION_API_URL", defaultServerURL), "Production service base URL")
	cmd.Flags().StringVar(&actorID, "actor-id", envOr("PRODUCTION_ACTOR_ID", "productionctl"), "Actor id sent with the request")
	cmd.Flags().StringVar(&actorRole, "actor-role", string(domain.RoleSupervisor), "Actor role sent with the request")
	cmd.Flags().BoolVar(&live, "live", false, "Read the projection maintained from the change feed")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	return cmd
}

// apiError is the service's error body
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func getJSON(ctx context.Context, url, actorID, actorRole string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Actor-ID", actorID)
	req.Header.Set("X-Actor-Role", actorRole)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e apiError
		if json.Unmarshal(body, &e) == nil && e.Code != "" {
			return fmt.Errorf("%s: %s (%d)", e.Code, e.Message, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	return json.Unmarshal(body, out)
}

func newMigrateCommand() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade a SQLite production database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := sqlite.Open(cmd.Context(), sqlite.Config{Path: path})
			if err != nil {
				return err
			}
			defer store.Close()

			// Open applies pending migrations
			if err := store.HealthCheck(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema is current: %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "sqlite", envOr("SQLITE_PATH", "production.db"), "SQLite database file")

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
