// Lambda entry point. One deployment per kind, selected with KIRJA_KIND.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/kirja/internal/app"
	"github.com/yairfalse/kirja/internal/config"
	"github.com/yairfalse/kirja/pkg/inventory"
)

// runner is the part of app.App the handler needs.
type runner interface {
	Run(ctx context.Context, kind inventory.Kind) (inventory.Result, error)
}

// newHandler returns the function handed to the Lambda runtime. The event
// payload is ignored. Warm invocations share r, but each Run builds and
// drops its own AWS session.
func newHandler(r runner, kind inventory.Kind) func(context.Context, json.RawMessage) (inventory.Result, error) {
	return func(ctx context.Context, _ json.RawMessage) (inventory.Result, error) {
		result, err := r.Run(ctx, kind)
		if err != nil {
			return inventory.Result{}, err
		}
		return result, nil
	}
}

func setup(ctx context.Context) (*app.App, inventory.Kind, error) {
	kind, err := inventory.ParseKind(os.Getenv("KIRJA_KIND"))
	if err != nil {
		return nil, "", fmt.Errorf("KIRJA_KIND: %w", err)
	}

	cfg, err := config.LoadOrDefault(os.Getenv("KIRJA_CONFIG"))
	if err != nil {
		return nil, "", err
	}
	if err := app.SetupLogging(cfg.Log.Level, app.LogJSON); err != nil {
		return nil, "", err
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, "", err
	}
	return a, kind, nil
}

func main() {
	ctx := context.Background()

	a, kind, err := setup(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}

	log.Info().Str("kind", kind.String()).Msg("kirja lambda starting")
	lambda.StartWithOptions(newHandler(a, kind),
		lambda.WithEnableSIGTERM(func() {
			if err := a.Close(context.Background()); err != nil {
				log.Warn().Err(err).Msg("shutdown")
			}
		}),
	)
}
