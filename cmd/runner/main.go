// Terminal front-end for one category sitting of the test battery. Scenes
// are paced by a simulated audio clock, speech capture is stood in by typed
// input, and all progress goes through the configured persistence backend.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mquintela/falatest/internal/capture"
	"github.com/mquintela/falatest/internal/config"
	"github.com/mquintela/falatest/internal/domain"
	"github.com/mquintela/falatest/internal/flow"
	"github.com/mquintela/falatest/internal/phase"
	"github.com/mquintela/falatest/internal/scene"
	"github.com/mquintela/falatest/internal/store"
)

func main() {
	// Logs go to stderr; stdout belongs to the test presentation.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("Sitting aborted", "error", err)
		fmt.Println("\nSomething went wrong and the test cannot continue. Please ask for help.")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	local, err := store.OpenLocal(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer local.Close()

	var gateway store.Gateway = local
	if cfg.Backend == config.BackendRemote {
		gateway = store.NewRemote(cfg.APIBaseURL, cfg.APIToken)
	}
	slog.Info("Backend selected", "backend", cfg.Backend)

	ui := &terminalUI{in: bufio.NewScanner(os.Stdin)}

	ctrl := flow.New(flow.Options{
		Gateway: gateway,
		Recency: local,
		Capture: ui.newCapturer,
		Category: domain.Category{
			ID:            cfg.CategoryID,
			Name:          cfg.CategoryName,
			QuestionCount: cfg.QuestionCount,
		},
		Primary:         cfg.Primary(),
		QuestionSetPath: cfg.QuestionSetPath,
		SceneConfigPath: cfg.SceneConfigPath,
		IntroThreshold:  cfg.IntroThreshold,
	})

	if err := ctrl.Boot(ctx); err != nil {
		return err
	}

	for {
		switch ctrl.State() {
		case flow.StateIntroScene, flow.StateRemediationIntro, flow.StateOutroScene:
			ui.playScene(ctx, ctrl.CurrentScene())
			if err := ctrl.SceneDone(ctx); err != nil {
				return err
			}
		case flow.StateTranscription:
			if err := ui.runTranscription(ctx, ctrl); err != nil {
				return err
			}
		case flow.StateRemediation:
			if err := ui.runRemediation(ctx, ctrl); err != nil {
				return err
			}
		case flow.StateDone:
			fmt.Println("\nAll done. Parabéns!")
			return nil
		case flow.StateError:
			return ctrl.Err()
		default:
			return fmt.Errorf("unexpected flow state %s", ctrl.State())
		}
	}
}

// terminalUI drives the sitting from stdin/stdout. Speech capture is typed:
// each StartCapture hands out a scripted capturer that the prompt loop
// feeds with the typed line.
type terminalUI struct {
	in  *bufio.Scanner
	mic *capture.Scripted
}

func (ui *terminalUI) newCapturer() capture.Capturer {
	ui.mic = capture.NewScripted()
	return ui.mic
}

func (ui *terminalUI) prompt(label string) string {
	fmt.Print(label)
	if !ui.in.Scan() {
		return ""
	}
	return strings.TrimSpace(ui.in.Text())
}

// playScene walks the timeline on a simulated audio clock, printing the
// display set whenever it changes.
func (ui *terminalUI) playScene(ctx context.Context, tl *scene.Timeline) {
	if tl == nil {
		return
	}
	player := scene.NewPlayer(*tl, silentAudio{}, nil)
	if err := player.Start(ctx); err != nil {
		slog.Warn("scene playback failed, skipping", "audio", tl.Audio, "error", err)
		return
	}

	fmt.Printf("\n--- scene (%s) ---\n", tl.Audio)
	end := 0.0
	for _, ev := range tl.Events {
		if ev.At > end {
			end = ev.At
		}
	}

	var shown string
	render := func() {
		if cur := strings.Join(player.Display(), " | "); cur != shown {
			shown = cur
			fmt.Printf("  [%s]\n", cur)
		}
	}
	render()
	for t := 0.0; t <= end; t += 0.5 {
		player.OnTimeUpdate(t)
		render()
		time.Sleep(50 * time.Millisecond)
	}
	player.OnEnded()
	render()
	ui.prompt("--- scene over, enter to continue --- ")
}

func (ui *terminalUI) runTranscription(ctx context.Context, ctrl *flow.Controller) error {
	tc := ctrl.Transcription()
	for !tc.Done() {
		q := tc.Current()
		if q == nil {
			break
		}
		fmt.Printf("\nQuestion %d: %s\n", q.ID, q.PromptText)
		if q.PromptText2 != "" {
			fmt.Printf("            %s\n", q.PromptText2)
		}
		for _, opt := range tc.Options() {
			fmt.Printf("  (%s)\n", opt.ImagePath)
		}
		if notice := tc.CaptureNotice(); notice != "" {
			fmt.Println("  !", notice)
		}

		switch tc.State() {
		case phase.StateIdle:
			if ui.prompt("  enter = speak, s = skip: ") == "s" {
				if err := tc.Skip(ctx); err != nil {
					fmt.Println("  ! could not save, try again")
				}
				continue
			}
			tc.StartCapture(ctx)
			if tc.State() != phase.StateRecording {
				continue // degraded to the edit path
			}
			spoken := ui.prompt("  (speaking) say the answer: ")
			// Emitting the typed line is the "capture stopped" event.
			ui.mic.Emit(capture.Result{Text: spoken})
		case phase.StateReviewing:
			fmt.Printf("  heard: %q\n", tc.Transcript())
			if ui.prompt("  is that right? y/n: ") == "y" {
				if err := tc.AcceptTranscript(ctx); err != nil {
					fmt.Println("  ! could not save, try again")
				}
			} else {
				tc.RejectTranscript()
			}
		case phase.StateEditing:
			text := ui.prompt("  type the answer: ")
			if text == "" {
				continue
			}
			if err := tc.SubmitEdit(ctx, text); err != nil {
				fmt.Println("  ! could not save, try again")
			}
		}
	}
	return ctrl.TranscriptionDone(ctx, tc.RemediationQueue())
}

func (ui *terminalUI) runRemediation(ctx context.Context, ctrl *flow.Controller) error {
	rc := ctrl.Remediation()
	for !rc.Done() {
		item := rc.Current()
		if item == nil {
			break
		}
		fmt.Printf("\nOnce more: %s\n", item.Question.PromptText)
		for i, opt := range item.Options {
			fmt.Printf("  %d) %s (%s)\n", i+1, opt.Label, opt.ImagePath)
		}
		pick, err := strconv.Atoi(ui.prompt("  pick a picture: "))
		if err != nil || pick < 1 || pick > len(item.Options) {
			fmt.Println("  ! pick one of the numbers shown")
			continue
		}
		if err := rc.Select(ctx, item.Options[pick-1].ID); err != nil {
			fmt.Println("  ! could not save, try again")
		}
	}
	return ctrl.RemediationDone(ctx)
}

// silentAudio is the simulated audio element: playback always starts and
// position is driven by the caller's clock.
type silentAudio struct{}

func (silentAudio) Play(context.Context) error { return nil }
func (silentAudio) Stop()                      {}
