package main

import (
	"net/http"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/Yoo1tic/gcli-nexus/internal/auth/google"
	"github.com/Yoo1tic/gcli-nexus/internal/catalog"
	"github.com/Yoo1tic/gcli-nexus/internal/config"
	"github.com/Yoo1tic/gcli-nexus/internal/db"
	"github.com/Yoo1tic/gcli-nexus/internal/db/models"
	"github.com/Yoo1tic/gcli-nexus/internal/logging"
	"github.com/Yoo1tic/gcli-nexus/internal/pool"
	"github.com/Yoo1tic/gcli-nexus/internal/proxy"
	"github.com/Yoo1tic/gcli-nexus/internal/proxy/handlers"
	"github.com/Yoo1tic/gcli-nexus/internal/thoughtsig"
	"github.com/Yoo1tic/gcli-nexus/internal/upstream/antigravity"
	"github.com/Yoo1tic/gcli-nexus/internal/upstream/codex"
	"github.com/Yoo1tic/gcli-nexus/internal/upstream/geminicli"
	"github.com/Yoo1tic/gcli-nexus/internal/version"
)

func main() {
	logging.Setup()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	store := db.NewCredentialStore(database)

	// Every routable model gets its catalog mask up front.
	if err := catalog.Register(cfg.Antigravity.ModelList...); err != nil {
		log.Fatalf("Failed to register antigravity models: %v", err)
	}
	if err := catalog.Register(cfg.GeminiCli.ModelList...); err != nil {
		log.Fatalf("Failed to register geminicli models: %v", err)
	}
	if err := catalog.Register(cfg.Codex.ModelList...); err != nil {
		log.Fatalf("Failed to register codex models: %v", err)
	}

	// Each upstream pool loads only its own provider's rows: Antigravity
	// and GeminiCli share Google identities, Codex runs on ChatGPT-issued
	// ones with its own token endpoint.
	googleCreds, err := store.ListActiveByProvider(models.ProviderGoogle)
	if err != nil {
		log.Fatalf("Failed to load google credentials: %v", err)
	}
	codexCreds, err := store.ListActiveByProvider(models.ProviderCodex)
	if err != nil {
		log.Fatalf("Failed to load codex credentials: %v", err)
	}

	// Import the Codex CLI's auth.json when present (won't fail if missing).
	codexAuthPath := os.Getenv("NEXUS_CODEX_AUTH")
	if codexAuthPath == "" {
		codexAuthPath = codex.DefaultAuthPath()
	}
	if cred, errLoad := codex.LoadAuthJSON(codexAuthPath); errLoad != nil {
		log.Infof("Codex provider not seeded from auth.json: %v", errLoad)
	} else if _, errUpsert := store.Upsert(cred); errUpsert != nil {
		log.Warnf("Failed to store codex credential: %v", errUpsert)
	} else {
		codexCreds = mergeCredential(codexCreds, *cred)
	}

	actorOpts := func(name string, refresher pool.TokenRefresher) pool.Options {
		return pool.Options{
			Name:             name,
			Refresher:        refresher,
			Store:            store,
			RefreshThreshold: cfg.RefreshThreshold.Std(),
			RefreshTimeout:   cfg.RefreshTimeout.Std(),
		}
	}
	googleRefresher := &pool.OAuthRefresher{Config: google.OAuthConfig("")}
	antigravityActor := pool.Spawn(actorOpts("antigravity", googleRefresher), googleCreds)
	geminiCliActor := pool.Spawn(actorOpts("geminicli", googleRefresher), googleCreds)
	codexActor := pool.Spawn(actorOpts("codex", codex.NewRefresher()), codexCreds)

	thoughtSig := thoughtsig.NewService(cfg.SignatureTTL.Std(), cfg.SignatureCapacity, thoughtsig.DefaultPolicy())

	deps := &handlers.Deps{
		Cfg:               cfg,
		ThoughtSig:        thoughtSig,
		AntigravityActor:  antigravityActor,
		GeminiCliActor:    geminiCliActor,
		CodexActor:        codexActor,
		AntigravityClient: antigravity.NewClient(cfg.RequestTimeout.Std(), cfg.RetryMaxAttempts, cfg.Antigravity.BaseURL),
		GeminiCliClient:   geminicli.NewClient(cfg.RequestTimeout.Std(), cfg.RetryMaxAttempts, cfg.GeminiCli.BaseURL),
		CodexClient:       codex.NewClient(cfg.RequestTimeout.Std(), cfg.RetryMaxAttempts, cfg.Codex.BaseURL),
	}

	flow := google.NewFlow(cfg.NexusKey, cfg.CookieHashKey, cfg.CookieBlockKey, store,
		antigravityActor, geminiCliActor)

	r := proxy.NewRouter(deps, flow)

	log.Infof("gcli-nexus %s (%s) starting on http://%s", version.Version, version.Commit, cfg.Addr())
	log.Infof("Gemini API:      http://%s/gemini/v1beta/models", cfg.Addr())
	log.Infof("Antigravity API: http://%s/antigravity/v1beta/models", cfg.Addr())
	log.Infof("Codex API:       http://%s/codex/v1", cfg.Addr())

	if err := http.ListenAndServe(cfg.Addr(), r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// mergeCredential replaces the matching row (by id) or appends.
func mergeCredential(creds []models.Credential, cred models.Credential) []models.Credential {
	for i := range creds {
		if creds[i].ID == cred.ID {
			creds[i] = cred
			return creds
		}
	}
	return append(creds, cred)
}
