package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/SalesCoach/internal/api"
	"github.com/BTreeMap/SalesCoach/internal/config"
	"github.com/BTreeMap/SalesCoach/internal/flow"
	"github.com/BTreeMap/SalesCoach/internal/models"
	"github.com/BTreeMap/SalesCoach/internal/rpc"
)

// newSectorsCmd creates the sectors command
func newSectorsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "sectors",
		Short:       "List the business sectors available for simulations",
		Args:        cobra.NoArgs,
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, args []string) error {
			sectors, err := a.client.ListSectors(cmd.Context())
			if err != nil {
				return a.remoteError(err)
			}
			fmt.Fprint(a.stdout, a.printer.Sectors(sectors))
			return nil
		},
	}
}

// simulationFlags are the flag form of a simulation configuration.
type simulationFlags struct {
	file   string
	resume int64
	cfg    models.SimulationConfig
}

var simulationFlagNames = []string{
	"type", "objective", "lead", "avatar", "language", "sales-type",
	"product-service", "sector", "custom-sector", "scenario", "name", "document",
}

// newSimulateCmd creates the simulate command
func newSimulateCmd(a *app) *cobra.Command {
	var sf simulationFlags

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Start a practice conversation and wait for its feedback",
		Long: `Start a practice conversation. The configuration comes from --file, from the
individual flags, from the simulation preset in the configuration file, or from an
interactive wizard, in that order.

The conversation opens in your browser. End it there, with ` + "`salescoach end <id>`" + `,
or by pressing Ctrl+C here; the feedback report is printed once it is ready.`,
		Args:        cobra.NoArgs,
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(a, cmd, sf)
		},
	}

	f := cmd.Flags()
	f.StringVar(&sf.file, "file", "", "YAML file with the simulation configuration")
	f.Int64Var(&sf.resume, "resume", 0, "resume watching an existing conversation instead of starting one")
	f.StringVar((*string)(&sf.cfg.SimulationType), "type", "", "simulation type: llamada, zoom or presencial")
	f.StringVar((*string)(&sf.cfg.Objective), "objective", "", "objective: identificar_necesidades, manejar_objecciones, cierre_consultivo or venta_completa")
	f.StringVar((*string)(&sf.cfg.LeadTemperature), "lead", "", "lead temperature: frio, tibio or caliente")
	f.StringVar((*string)(&sf.cfg.AvatarGender), "avatar", "", "avatar: male or female")
	f.StringVar((*string)(&sf.cfg.Language), "language", "", "conversation language: es or en")
	f.StringVar((*string)(&sf.cfg.SalesType), "sales-type", "", "B2B or B2C")
	f.StringVar((*string)(&sf.cfg.ProductService), "product-service", "", "product or service")
	f.StringVar(&sf.cfg.SectorCode, "sector", "", "sector code, see `salescoach sectors`")
	f.StringVar(&sf.cfg.CustomSector, "custom-sector", "", "sector name when --sector is OTHER")
	f.StringVar(&sf.cfg.CustomScenario, "scenario", "", "custom scenario for the avatar")
	f.StringVar(&sf.cfg.ConversationName, "name", "", "conversation name")
	f.StringSliceVar(&sf.cfg.SupportDocuments, "document", nil, "supporting document to reference (repeatable)")
	cmd.MarkFlagsMutuallyExclusive("file", "resume")

	return cmd
}

// simulationConfig resolves the configuration of a new simulation.
func (a *app) simulationConfig(cmd *cobra.Command, sf simulationFlags) (models.SimulationConfig, error) {
	if sf.file != "" {
		slog.Debug("Simulate: configuration from file", "path", sf.file)
		return config.LoadSimulation(sf.file)
	}
	for _, name := range simulationFlagNames {
		if cmd.Flags().Changed(name) {
			slog.Debug("Simulate: configuration from flags")
			return sf.cfg, nil
		}
	}
	if a.cfg.Simulation != nil {
		slog.Debug("Simulate: configuration from preset")
		return *a.cfg.Simulation, nil
	}

	sectors, err := a.client.ListSectors(cmd.Context())
	if err != nil {
		if rpc.IsUnauthorized(err) {
			return models.SimulationConfig{}, a.remoteError(err)
		}
		a.notifier.Warning("Could not load the sector list: %v", err)
	}
	return a.wizard.Simulation(sectors)
}

func runSimulate(a *app, cmd *cobra.Command, sf simulationFlags) error {
	ctx := cmd.Context()

	var simCfg models.SimulationConfig
	if sf.resume == 0 {
		var err error
		if simCfg, err = a.simulationConfig(cmd, sf); err != nil {
			return err
		}
		if err := simCfg.Validate(); err != nil {
			return err
		}
		if err := checkDocuments(simCfg.SupportDocuments); err != nil {
			return err
		}
	}

	lock, err := a.lock(cmd)
	if err != nil {
		return err
	}
	defer lock.Release()

	timer := a.newTimer()
	defer timer.Stop()
	coord := flow.NewCoordinator(a.client,
		flow.WithTimer(timer),
		flow.WithOpener(a.opener()),
		flow.WithObserver(a.notifier),
		flow.WithPollInterval(a.cfg.PollInterval),
		flow.WithFeedbackAttempts(a.cfg.FeedbackAttempts),
		flow.WithDemoDomains(a.cfg.DemoDomains))
	defer coord.Close()

	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()
	g, gctx := errgroup.WithContext(waitCtx)
	bgCtx, stopBackground := context.WithCancel(gctx)

	// media errors from the conversation page are reported to the loopback server
	srv := api.NewServer(api.WithAddr(a.cfg.CallbackAddr))
	if err := srv.Listen(); err != nil {
		slog.Warn("Simulate: callback server unavailable", "error", err)
	} else {
		g.Go(func() error { return srv.Serve(bgCtx) })
		g.Go(func() error {
			for {
				select {
				case e := <-srv.Events():
					if e.Kind == api.EventMediaError {
						a.notifier.Warning("%s", e.Message)
					}
				case <-bgCtx.Done():
					return nil
				}
			}
		})
	}

	// first Ctrl+C ends the conversation, the second one stops waiting
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	g.Go(func() error {
		ending := false
		for {
			select {
			case <-sigCh:
				if !ending && coord.Snapshot().State == flow.StateAwaitingEnd {
					ending = true
					a.notifier.Info("Ending the conversation... press Ctrl+C again to stop waiting")
					if err := coord.End(); err != nil {
						slog.Warn("Simulate: end request rejected", "error", err)
					}
					continue
				}
				cancelWait()
				return nil
			case <-bgCtx.Done():
				return nil
			}
		}
	})

	err = a.watchSimulation(waitCtx, coord, sf.resume, simCfg)
	stopBackground()
	if gerr := g.Wait(); err == nil && gerr != nil {
		err = gerr
	}
	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() == nil {
		if conv := coord.Snapshot().Conversation; conv != nil {
			a.notifier.Info("Stopped waiting. Get the report later with `salescoach feedback %d`", conv.ID)
		}
		return nil
	}
	return err
}

const keepWaitingPrompt = "Feedback is not ready yet. Keep waiting?"

// watchSimulation launches or resumes the conversation and waits for its outcome,
// offering to keep waiting when the feedback takes longer than the attempt budget.
func (a *app) watchSimulation(ctx context.Context, coord *flow.Coordinator, resumeID int64, simCfg models.SimulationConfig) error {
	if resumeID != 0 {
		conv, err := a.client.GetConversation(ctx, resumeID)
		if err != nil {
			return a.remoteError(fmt.Errorf("failed to load conversation %d: %w", resumeID, err))
		}
		if err := coord.Resume(ctx, conv); err != nil {
			return err
		}
	} else if err := coord.Launch(ctx, simCfg); err != nil {
		return a.remoteError(err)
	}

	for {
		snap, err := coord.Wait(ctx)
		if err != nil {
			return err
		}
		if snap.State == flow.StateReady {
			fmt.Fprint(a.stdout, a.printer.FeedbackReport(snap.Feedback))
			return nil
		}
		if !snap.Exhausted {
			return fmt.Errorf("simulation stopped in state %s", snap.State)
		}

		again, err := a.wizard.Confirm(keepWaitingPrompt, true)
		if err != nil || !again {
			if snap.Conversation != nil {
				a.notifier.Info("Get the report later with `salescoach feedback %d`", snap.Conversation.ID)
			}
			return nil
		}
		if err := coord.Reload(); err != nil {
			return err
		}
	}
}

// newEndCmd creates the end command
func newEndCmd(a *app) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:         "end <conversation-id>",
		Short:       "End a running conversation",
		Args:        cobra.ExactArgs(1),
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseConversationID(args[0])
			if err != nil {
				return err
			}
			if _, err := a.client.EndConversation(cmd.Context(), id); err != nil {
				return a.remoteError(fmt.Errorf("failed to end conversation %d: %w", id, err))
			}
			a.notifier.Success("Conversation %d ended", id)
			if !wait {
				return nil
			}
			return a.showFeedback(cmd.Context(), id)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the feedback report")

	return cmd
}

// newFeedbackCmd creates the feedback command
func newFeedbackCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "feedback <conversation-id>",
		Short:       "Show the feedback report of an ended conversation",
		Args:        cobra.ExactArgs(1),
		Annotations: requiresAuth,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseConversationID(args[0])
			if err != nil {
				return err
			}
			return a.showFeedback(cmd.Context(), id)
		},
	}
}

// showFeedback requests the feedback of a conversation and prints it once available.
func (a *app) showFeedback(ctx context.Context, id int64) error {
	timer := a.newTimer()
	defer timer.Stop()

	a.notifier.Info("Generating feedback...")
	fb, err := flow.Await(ctx, a.client, timer, id,
		flow.WithAwaiterInterval(a.cfg.PollInterval),
		flow.WithAwaiterAttempts(a.cfg.FeedbackAttempts),
		flow.WithAwaiterCallbacks(flow.AwaiterCallbacks{
			OnMissing: func(attempt, limit int) {
				a.notifier.Info("Generating feedback... attempt %d/%d", attempt, limit)
			},
			OnTriggerFailed: func(err error) {
				slog.Warn("Feedback: generation request failed", "conversation_id", id, "error", err)
			},
		}),
		flow.WithReload(func() bool {
			again, err := a.wizard.Confirm(keepWaitingPrompt, true)
			return err == nil && again
		}))
	if errors.Is(err, flow.ErrFeedbackExhausted) {
		return fmt.Errorf("feedback for conversation %d is not ready yet, try again in a moment", id)
	}
	if err != nil {
		return a.remoteError(err)
	}
	fmt.Fprint(a.stdout, a.printer.FeedbackReport(fb))
	return nil
}

// checkDocuments makes sure every support document exists and is within the size limit.
func checkDocuments(paths []string) error {
	var errs []error
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("support document %s: %w", path, err))
			continue
		}
		if info.IsDir() {
			errs = append(errs, fmt.Errorf("support document %s is a directory", path))
			continue
		}
		if err := models.ValidateDocument(path, info.Size()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func parseConversationID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid conversation id %q", s)
	}
	return id, nil
}
