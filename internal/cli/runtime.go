package cli

import (
	"context"
	"io"

	"atsbeaters/internal/ai"
	"atsbeaters/internal/common"
	"atsbeaters/internal/config"
	"atsbeaters/internal/errors"
	"atsbeaters/internal/export"
	"atsbeaters/internal/fetch"
	"atsbeaters/internal/observability"
	"atsbeaters/internal/session"
)

// runtime holds the dependencies shared by commands. Expensive ones are
// built on first use so offline commands never touch the network.
type runtime struct {
	cfg    *config.Config
	logger *errors.Logger
	obs    *observability.ObservabilityManager
	vault  config.SecretReader
	stdin  io.Reader
	stdout io.Writer
	args   []string

	exportOpts []export.Option

	gateway ai.Gateway
	store   session.Store
	sess    *session.Session
	closers []func()
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// gatewayFor returns the model gateway, creating the Gemini service once
func (rt *runtime) gatewayFor() (ai.Gateway, error) {
	if rt.gateway != nil {
		return rt.gateway, nil
	}
	var opts []ai.ServiceOption
	if rt.obs != nil {
		opts = append(opts, ai.WithRecorder(rt.obs))
	}
	svc, err := ai.NewService(rt.cfg, rt.logger, opts...)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() { _ = svc.Close() })
	rt.gateway = svc
	return svc, nil
}

// session opens the configured store once
func (rt *runtime) session(ctx context.Context) (*session.Session, error) {
	if rt.sess != nil {
		return rt.sess, nil
	}
	if rt.store == nil {
		store, closeStore, err := session.OpenStore(ctx, rt.cfg.Session.Backend, rt.cfg.Session.DataDir, rt.cfg.Session.DatabaseURL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, closeStore)
		rt.store = store
	}
	rt.sess = session.New(rt.store)
	return rt.sess, nil
}

func (rt *runtime) files() *common.FileProcessor {
	return common.NewFileProcessor(rt.logger,
		common.WithStdin(rt.stdin),
		common.WithLimits(rt.cfg.App.MaxFileSize, rt.cfg.App.MaxImageSize))
}

func (rt *runtime) output() *common.OutputHandler {
	return common.NewOutputHandlerTo(rt.logger, rt.stdout)
}

func (rt *runtime) fetcher() *fetch.Fetcher {
	return fetch.New(rt.cfg.Fetch, rt.logger)
}

func (rt *runtime) exporter() *export.Exporter {
	return export.New(rt.cfg.Export, rt.logger, rt.exportOpts...)
}
