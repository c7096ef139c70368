package main

import (
	"log"
	"net/http"
	"os"
)

func main() {
	cfg := LoadConfig()
	appliedTimeout := ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf("Config loaded. ListenAddr=%s LLMProvider=%s StoreMode=%s OptimizeTimeout=%s ExternalHTTPTimeout=%s",
		cfg.ListenAddr, cfg.LLMProvider, storeMode(cfg), cfg.OptimizeTimeout(), appliedTimeout)

	store, err := NewEntityStore(cfg)
	if err != nil {
		log.Fatalf("Failed to init entity store: %v", err)
	}
	defer store.Close()

	os.MkdirAll(cfg.UploadDir, 0755)
	log.Printf("Upload dir: %s", cfg.UploadDir)

	var glossary *DeviceGlossary
	if cfg.DeviceGlossaryPath != "" {
		glossary, err = LoadDeviceGlossary(cfg.DeviceGlossaryPath)
		if err != nil {
			log.Fatalf("Failed to load device glossary: %v", err)
		}
		log.Printf("Device glossary loaded from %s (%d terms)", cfg.DeviceGlossaryPath, len(glossary.Terms))
	}

	notifier := NewNotifier(cfg)
	srv := NewServer(cfg, store, glossary, invokeLLM, notifier)
	defer srv.Shutdown()

	StartAutoOptimizeScheduler(cfg, srv)

	log.Printf("Starting energy optimization service on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, srv.Router()); err != nil {
		log.Fatalf("HTTP server error: %v", err)
	}
}

func storeMode(cfg Config) string {
	if cfg.EntityStoreURL != "" {
		return "remote"
	}
	return "sqlite"
}
