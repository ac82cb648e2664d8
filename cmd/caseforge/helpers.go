package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gruhno/caseforge/internal/batch"
	"github.com/gruhno/caseforge/internal/config"
	"github.com/gruhno/caseforge/internal/contextbuild"
	"github.com/gruhno/caseforge/internal/observability"
	"github.com/gruhno/caseforge/internal/packager"
	"github.com/gruhno/caseforge/internal/pipeline"
	"github.com/gruhno/caseforge/internal/store"
)

// runtime bundles everything a pipeline command needs.
type runtime struct {
	cfg    *config.Config
	store  *store.Store
	client *batch.OpenAIClient
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	st, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	client, err := batch.NewOpenAIClient(cfg.OpenAIAPIKey)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &runtime{cfg: cfg, store: st, client: client}, nil
}

func (rt *runtime) close() {
	rt.store.Close()
}

func (rt *runtime) runner() *pipeline.Runner {
	return pipeline.NewRunner(rt.store, rt.client, os.Stdout)
}

func (rt *runtime) options(kind packager.RequestKind) pipeline.Options {
	return pipeline.Options{
		Kind:        kind,
		Model:       rt.cfg.Model,
		Temperature: rt.cfg.Temperature,
		ModelKey:    rt.cfg.ModelKey,
		Owner:       rt.cfg.ServiceAccount,
		StateDir:    rt.cfg.StateDir,
		Context: contextbuild.Options{
			IncludeBranch: true,
			CrossCategory: kind == packager.KindUsecaseCandidates,
			MaxChars:      rt.cfg.MaxContextChars,
		},
		PollInterval: time.Duration(rt.cfg.PollIntervalSeconds) * time.Second,
	}
}

func parseKind(raw string) (packager.RequestKind, error) {
	switch packager.RequestKind(raw) {
	case packager.KindProcessDetails:
		return packager.KindProcessDetails, nil
	case packager.KindUsecaseCandidates:
		return packager.KindUsecaseCandidates, nil
	}
	return "", fmt.Errorf("unknown kind %q (expected %s or %s)",
		raw, packager.KindProcessDetails, packager.KindUsecaseCandidates)
}

// confirm prompts on stdin and returns whether the user answered yes.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func printSummary(s *pipeline.Summary) {
	fmt.Println()
	observability.NewPrinter(os.Stdout).PrintRunSummary(s)
}
