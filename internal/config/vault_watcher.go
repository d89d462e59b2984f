package config

import (
	"fmt"
	"sync"
	"time"

	"atsbeaters/internal/errors"
)

// KeyReloadCallback is called when a rotated API key is available from Vault
type KeyReloadCallback func(apiKey string, err error)

// VaultWatcher polls the Gemini API key secret and reports rotations.
// A rotation is a KVv2 version greater than the last one seen.
type VaultWatcher struct {
	mu sync.RWMutex

	client         SecretReader
	secretPath     string
	pollInterval   time.Duration
	reloadCallback KeyReloadCallback
	logger         *errors.Logger

	stopChan    chan struct{}
	running     bool
	lastVersion int64
}

// NewVaultWatcher creates a new VaultWatcher
func NewVaultWatcher(client SecretReader, secretPath string, pollInterval time.Duration, reloadCallback KeyReloadCallback, logger *errors.Logger) *VaultWatcher {
	return &VaultWatcher{
		client:         client,
		secretPath:     secretPath,
		pollInterval:   pollInterval,
		reloadCallback: reloadCallback,
		logger:         logger,
		stopChan:       make(chan struct{}),
	}
}

// Start records the current secret version and begins polling for newer ones
func (vw *VaultWatcher) Start() error {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	if vw.running {
		return fmt.Errorf("vault watcher is already running")
	}
	if vw.pollInterval <= 0 {
		return fmt.Errorf("vault watcher poll interval must be positive")
	}
	if _, err := vw.checkForUpdates(); err != nil {
		return fmt.Errorf("failed to read initial secret version: %w", err)
	}
	vw.running = true
	go vw.pollLoop()
	if vw.logger != nil {
		vw.logger.Info("Vault watcher started", "secret_path", vw.secretPath, "poll_interval", vw.pollInterval)
	}
	return nil
}

// Stop stops the Vault watcher
func (vw *VaultWatcher) Stop() {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	if !vw.running {
		return
	}
	close(vw.stopChan)
	vw.running = false
	if vw.logger != nil {
		vw.logger.Info("Vault watcher stopped")
	}
}

// pollLoop polls Vault for secret changes
func (vw *VaultWatcher) pollLoop() {
	ticker := time.NewTicker(vw.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			vw.poll()
		case <-vw.stopChan:
			return
		}
	}
}

// poll runs one check and invokes the callback on rotation
func (vw *VaultWatcher) poll() {
	changed, err := vw.checkForUpdates()
	if err != nil {
		if vw.logger != nil {
			vw.logger.LogError(err, "Failed to check Vault for updates")
		}
		return
	}
	if !changed {
		return
	}

	key, err := vw.client.GetStringSecret(vw.secretPath, GeminiKeyField)
	if err == nil && key == "" {
		err = fmt.Errorf("rotated secret at %s has an empty %s", vw.secretPath, GeminiKeyField)
	}
	if err != nil {
		if vw.logger != nil {
			vw.logger.LogError(err, "Failed to fetch rotated API key from Vault")
		}
		vw.reloadCallback("", err)
		return
	}

	if vw.logger != nil {
		vw.logger.Info("Gemini API key rotated in Vault, triggering reload", "version", vw.version())
	}
	vw.reloadCallback(key, nil)
}

// checkForUpdates checks if the Vault secret version has changed
func (vw *VaultWatcher) checkForUpdates() (bool, error) {
	secret, err := vw.client.GetSecretV2(vw.secretPath)
	if err != nil {
		return false, fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == nil {
		return false, fmt.Errorf("secret not found at path: %s", vw.secretPath)
	}
	if secret.Version > vw.lastVersion {
		initial := vw.lastVersion == 0
		vw.lastVersion = secret.Version
		return !initial, nil
	}
	return false, nil
}

func (vw *VaultWatcher) version() int64 {
	return vw.lastVersion
}

// Status returns the current status of the VaultWatcher for the doctor command
func (vw *VaultWatcher) Status() map[string]any {
	vw.mu.RLock()
	defer vw.mu.RUnlock()
	return map[string]any{
		"running":       vw.running,
		"poll_interval": vw.pollInterval.String(),
		"secret_path":   vw.secretPath,
		"last_version":  vw.lastVersion,
	}
}
