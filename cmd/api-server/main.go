// Command api-server serves the Krishna Marketing storefront, admin and
// delivery APIs.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	grocer "github.com/krishna-marketing/grocer/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, t *app.Telemetry) error {
		cfg, err := grocer.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "config")
		}
		lg.Info("Starting grocer",
			zap.String("mail_provider", cfg.Mail.Provider),
			zap.Int("rate_limit", cfg.RateLimit.Max),
			zap.Duration("rate_window", cfg.RateLimit.Window),
			zap.Duration("request_timeout", cfg.RequestTimeout),
		)
		return grocer.Run(ctx, lg, t, cfg)
	})
}
