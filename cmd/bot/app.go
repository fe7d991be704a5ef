package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"randomwiki/internal/driver/telegram"
	"randomwiki/internal/kernel"
	"randomwiki/internal/ops"
	"randomwiki/internal/store"
	"randomwiki/internal/wikipedia"
	"randomwiki/modules/help"
	"randomwiki/modules/wiki"
	"randomwiki/pkg/content"
	"randomwiki/pkg/relay"
)

const (
	telegramDriverName   = "telegram"
	unknownCommandReply  = "❌ Unknown command. Use /help to see available commands."
	handlerErrorReply    = "❌ An error occurred. Please try again later."
	telegramDeepLinkBase = "https://t.me/"
)

// contentServices bundles the content layer registered into the kernel.
type contentServices struct {
	source  content.Source
	cache   content.Cache
	history content.History
	shares  content.Shares
	locales content.Locales
}

func run() error {
	if err := loadDotEnv(defaultDotEnvPath); err != nil {
		return err
	}

	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))
	metrics := ops.NewMetrics()
	kernelRuntime := buildKernelRuntime(logger, cfg, metrics)

	telegramRuntime, err := telegram.BuildRuntime(telegramDriverName, logger, cfg.credentials, cfg.telegram)
	if err != nil {
		return fmt.Errorf("build telegram runtime: %w", err)
	}
	if err := kernelRuntime.RegisterDriver(telegramRuntime.Driver); err != nil {
		return fmt.Errorf("register driver %s: %w", telegramDriverName, err)
	}

	services, err := buildContentServices(cfg, metrics)
	if err != nil {
		return err
	}
	if err := registerRuntimeServices(kernelRuntime, logger, telegramRuntime.Dispatcher, services); err != nil {
		return err
	}

	shareLinkBase := func() string {
		return resolveShareLinkBase(cfg.publicBaseURL, telegramRuntime.Identity.Username())
	}
	if err := registerRuntimeModules(context.Background(), kernelRuntime, cfg, logger, metrics, shareLinkBase); err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runServices(signalCtx, logger, cfg, kernelRuntime, metrics)
}

// runServices runs the kernel and, when configured, the ops server until one
// of them fails or ctx is canceled.
func runServices(
	ctx context.Context,
	logger *slog.Logger,
	cfg appConfig,
	kernelRuntime *kernel.Kernel,
	metrics *ops.Metrics,
) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		defer cancel()
		if err := kernelRuntime.Run(groupCtx); err != nil {
			return fmt.Errorf("run kernel: %w", err)
		}
		return nil
	})

	if cfg.opsListenAddr != "" {
		server, err := ops.NewServer(
			cfg.opsListenAddr,
			metrics,
			ops.WithLogger(logger),
			ops.WithShutdownTimeout(cfg.shutdownTimeout),
		)
		if err != nil {
			cancel()
			_ = group.Wait()
			return fmt.Errorf("new ops server: %w", err)
		}
		group.Go(func() error {
			return server.Run(groupCtx)
		})
	}

	return group.Wait()
}

func buildKernelRuntime(logger *slog.Logger, cfg appConfig, metrics *ops.Metrics) *kernel.Kernel {
	return kernel.New(
		kernel.WithLogger(logger),
		kernel.WithModuleHookTimeout(cfg.moduleHookTimeout),
		kernel.WithShutdownTimeout(cfg.shutdownTimeout),
		kernel.WithDefaultSubscriptionBuffer(cfg.subscriptionBuffer),
		kernel.WithDefaultSubscriptionWorkers(cfg.subscriptionWorkers),
		kernel.WithDefaultHandlerTimeout(cfg.handlerTimeout),
		kernel.WithUnknownCommandReply(unknownCommandReply),
		kernel.WithHandlerErrorReply(handlerErrorReply),
		kernel.WithDeliveryObserver(metrics),
	)
}

func buildContentServices(cfg appConfig, metrics *ops.Metrics) (contentServices, error) {
	shares, err := store.NewShareRegistry(
		store.WithShareTTL(cfg.shareTTL),
		store.WithShareCapacity(cfg.shareCapacity),
	)
	if err != nil {
		return contentServices{}, fmt.Errorf("new share registry: %w", err)
	}

	return contentServices{
		source: wikipedia.New(
			wikipedia.WithTimeout(cfg.upstream.requestTimeout),
			wikipedia.WithUserAgent(cfg.upstream.userAgent),
			wikipedia.WithObserver(metrics),
		),
		cache: store.NewContentCache(
			store.WithContentTTL(cfg.contentTTL),
			store.WithContentObserver(metrics),
		),
		history: store.NewHistoryLog(),
		shares:  shares,
		locales: store.NewLocaleRegistry(),
	}, nil
}

func registerRuntimeServices(
	kernelRuntime *kernel.Kernel,
	logger *slog.Logger,
	dispatcher relay.Dispatcher,
	services contentServices,
) error {
	if dispatcher == nil {
		return fmt.Errorf("register dispatcher service: nil dispatcher")
	}

	registrations := []struct {
		name    string
		service any
	}{
		{name: relay.ServiceLogger, service: logger},
		{name: relay.ServiceDispatcher, service: dispatcher},
		{name: content.ServiceSource, service: services.source},
		{name: content.ServiceCache, service: services.cache},
		{name: content.ServiceHistory, service: services.history},
		{name: content.ServiceShares, service: services.shares},
		{name: content.ServiceLocales, service: services.locales},
	}
	for _, registration := range registrations {
		if err := kernelRuntime.RegisterService(registration.name, registration.service); err != nil {
			return fmt.Errorf("register %s service: %w", registration.name, err)
		}
	}

	return nil
}

func registerRuntimeModules(
	ctx context.Context,
	kernelRuntime *kernel.Kernel,
	cfg appConfig,
	logger *slog.Logger,
	metrics *ops.Metrics,
	shareLinkBase func() string,
) error {
	wikiModule, err := wiki.New(
		cfg.wiki,
		wiki.WithLogger(logger),
		wiki.WithCommandObserver(metrics),
		wiki.WithShareLinkBase(shareLinkBase),
	)
	if err != nil {
		return fmt.Errorf("new wiki module: %w", err)
	}
	if err := kernelRuntime.RegisterModule(ctx, wikiModule); err != nil {
		return fmt.Errorf("register wiki module: %w", err)
	}
	if err := kernelRuntime.RegisterModule(ctx, help.New()); err != nil {
		return fmt.Errorf("register help module: %w", err)
	}

	return nil
}

// resolveShareLinkBase prefers the configured public URL and falls back to
// the bot's t.me link once its username is known.
func resolveShareLinkBase(publicBaseURL string, botUsername string) string {
	if publicBaseURL != "" {
		return publicBaseURL
	}
	if botUsername == "" {
		return ""
	}

	return telegramDeepLinkBase + botUsername
}
