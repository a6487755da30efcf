package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vcp-chain/auditlog/pkg/anchor"
	_ "github.com/vcp-chain/auditlog/pkg/anchor/providers"
	"github.com/vcp-chain/auditlog/pkg/chain"
	"github.com/vcp-chain/auditlog/pkg/config"
	"github.com/vcp-chain/auditlog/pkg/event"
	"github.com/vcp-chain/auditlog/pkg/merkle"
	"github.com/vcp-chain/auditlog/pkg/signer"
	"github.com/vcp-chain/auditlog/pkg/store"
	"github.com/vcp-chain/auditlog/pkg/store/pgindex"
	"github.com/vcp-chain/auditlog/pkg/webhook"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

var startServer = runServer

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		startServer(getenvDefault("VCP_CONFIG", "vcp_sidecar.yaml"))
		return 0
	}

	switch args[1] {
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		startServer(args[1])
		return 0
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: vcpsidecar [config.yaml]")
	fmt.Fprintln(w, "\nRuns the VeritasChain audit log sidecar: event ingestion,")
	fmt.Fprintln(w, "Merkle accumulation, and periodic external anchoring.")
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

//nolint:gocognit
func runServer(configPath string) {
	log.Println("[vcpsidecar] loading configuration")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := slog.Default()
	ctx := context.Background()

	sgn, err := loadOrGenerateSigner(cfg)
	if err != nil {
		log.Fatalf("init signer: %v", err)
	}
	log.Println("[vcpsidecar] signer: ready")

	st, err := store.Open(cfg.EventLogPath, logger)
	if err != nil {
		log.Fatalf("open event store: %v", err)
	}
	log.Printf("[vcpsidecar] event store: %s (%d events replayed)", cfg.EventLogPath, st.Count())

	var policy chain.ChainingPolicy
	switch {
	case cfg.Chaining.UsePerTier:
		policy = chain.PerTierChain{Enabled: cfg.ChainingEnabledTiers()}
	case !cfg.Chaining.Enabled:
		policy = chain.PerTierChain{Enabled: map[event.Tier]bool{}}
	default:
		policy = chain.AlwaysChain{}
	}

	lastAnchoredIdx, hasAnchored, err := anchor.LoadLastAnchoredIndex(cfg.AnchorDB)
	if err != nil {
		log.Fatalf("load anchor recovery state: %v", err)
	}
	recovery := chain.RecoveryState{LastAnchoredIndex: lastAnchoredIdx, HasAnchored: hasAnchored}

	var pgIdx *pgindex.Index
	if cfg.PostgresDSN != "" {
		pgIdx, err = pgindex.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open postgres secondary index: %v", err)
		}
		log.Println("[vcpsidecar] postgres secondary index: ready")
	}

	asm := chain.New(st, sgn, merkle.New(), policy, recovery, secondaryIndexOrNil(pgIdx), logger)
	log.Println("[vcpsidecar] chain assembler: ready")

	provider, err := anchor.New(cfg.Provider.Name, map[string]string{
		"proof_dir":          cfg.Provider.ProofDir,
		"bitcoin_rpc_url":    cfg.Provider.BitcoinRPCURL,
		"tsa_url":            cfg.Provider.TSAURL,
		"opentimestamps_url": cfg.Provider.OpenTimestampsURL,
	})
	if err != nil {
		log.Fatalf("init anchor provider %q: %v", cfg.Provider.Name, err)
	}

	coord, err := anchor.NewCoordinator(asm, provider, cfg.AnchorDB, cfg.Provider.ProofDir, cfg.AnchorCadence.MinInterval(), logger)
	if err != nil {
		log.Fatalf("init anchor coordinator: %v", err)
	}
	log.Printf("[vcpsidecar] anchor coordinator: provider=%s interval=%s", cfg.Provider.Name, cfg.AnchorCadence.MinInterval())

	coordCtx, cancelCoord := context.WithCancel(ctx)
	go coord.Run(coordCtx)

	var auth *webhook.Authenticator
	if cfg.Auth.Enabled {
		auth = webhook.NewAuthenticator([]byte(cfg.Auth.HMACSecret), cfg.Auth.ExpectedAud)
	}
	srv := webhook.New(asm, st, coord, sgn, auth, webhookIndexOrNil(pgIdx), logger)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Mux(),
	}

	go func() {
		log.Printf("[vcpsidecar] listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[vcpsidecar] http server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("[vcpsidecar] shutting down")

	cancelCoord()
	_ = httpServer.Shutdown(ctx)
	_ = st.Close()
	if pgIdx != nil {
		_ = pgIdx.Close()
	}
}

// secondaryIndexOrNil avoids wrapping a nil *pgindex.Index in a
// non-nil chain.SecondaryIndex interface value, which would make the
// assembler's nil check pass even when no index is configured.
func secondaryIndexOrNil(idx *pgindex.Index) chain.SecondaryIndex {
	if idx == nil {
		return nil
	}
	return idx
}

// webhookIndexOrNil is secondaryIndexOrNil's counterpart for the
// webhook's read-side SecondaryIndex interface.
func webhookIndexOrNil(idx *pgindex.Index) webhook.SecondaryIndex {
	if idx == nil {
		return nil
	}
	return idx
}

func loadOrGenerateSigner(cfg *config.Config) (signer.Signer, error) {
	if cfg.Keys.PrivateKeyPath != "" {
		if _, err := os.Stat(cfg.Keys.PrivateKeyPath); err == nil {
			return signer.LoadEd25519(cfg.Keys.PrivateKeyPath, cfg.Keys.PublicKeyPath)
		}
	}
	if _, err := os.Stat(cfg.Keys.PublicKeyPath); err == nil && cfg.Keys.PrivateKeyPath == "" {
		return signer.LoadEd25519PublicOnly(cfg.Keys.PublicKeyPath)
	}

	sgn, err := signer.GenerateEd25519()
	if err != nil {
		return nil, err
	}
	if cfg.Keys.PrivateKeyPath != "" {
		if err := sgn.Save(cfg.Keys.PrivateKeyPath, cfg.Keys.PublicKeyPath); err != nil {
			return nil, err
		}
		log.Printf("[vcpsidecar] generated new keypair at %s", cfg.Keys.PrivateKeyPath)
	}
	return sgn, nil
}
