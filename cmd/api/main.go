package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pcoscare/companion/internal/chatstream"
	"github.com/pcoscare/companion/internal/config"
	"github.com/pcoscare/companion/internal/handler"
	"github.com/pcoscare/companion/internal/model/intake"
	"github.com/pcoscare/companion/internal/service/analysis"
	"github.com/pcoscare/companion/internal/service/conversation"
	intakeService "github.com/pcoscare/companion/internal/service/intake"
	"github.com/pcoscare/companion/internal/service/speech"
	"github.com/pcoscare/companion/internal/upstream"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	client := upstream.NewClient(cfg.Upstream.Timeout)

	// 对话流不设整体超时，卡顿由空闲计时器处理
	opts := []chatstream.Option{chatstream.WithIdleTimeout(cfg.Chat.IdleTimeout)}
	if cfg.Chat.GreetingEnabled {
		greeting := cfg.Chat.Greeting
		if greeting == "" {
			greeting = chatstream.DefaultGreeting
		}
		opts = append(opts, chatstream.WithGreeting(greeting))
	}
	conversations := conversation.NewRegistry(chatstream.NewHTTPTransport(cfg.Upstream.ChatURL, nil), opts...)
	log.Printf("assessment conversations stream from %s", cfg.Upstream.ChatURL)

	speechService := speech.NewService(speech.Options{
		TranscribeURL: cfg.Upstream.TranscribeURL,
		TTSURL:        cfg.Upstream.TTSURL,
		Language:      cfg.Speech.Language,
		MaxRecording:  cfg.Speech.MaxRecording,
		HTTPClient:    client,
	})

	analysisService := analysis.NewService(cfg.Upstream.PredictURL, cfg.Analysis.ConfidenceThreshold, client)

	svcs := handler.Services{
		Conversations: conversations,
		Speech:        speechService,
		Analyzer:      analysisService,
	}

	catalog, err := intake.LoadCatalog()
	if err != nil {
		log.Printf("warning: failed to load sample catalog: %v", err)
		log.Println("continuing without intake forms")
	} else {
		svcs.Intake = intakeService.NewService(intakeService.Webhooks{
			Consultation:     cfg.Intake.ConsultationURL,
			Booking:          cfg.Intake.BookingURL,
			SampleCollection: cfg.Intake.SampleCollectionURL,
			Chatbase:         cfg.Intake.ChatbaseURL,
		}, catalog, client)
	}

	router := handler.NewRouter(svcs, cfg.Server.AllowedOrigins)

	// 关闭开始时取消进行中的对话流
	startServer(ctx, cfg.Server, router, conversations.CloseAll)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, onShutdown func()) {
	addr := serverCfg.Addr
	srv := newServer(addr, router, onShutdown)

	log.Printf("PCOS companion backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func newServer(addr string, router http.Handler, onShutdown func()) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if onShutdown != nil {
		srv.RegisterOnShutdown(onShutdown)
	}
	return srv
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
