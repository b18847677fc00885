package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/custodia-vault/custodia/interfaces"
)

// Factory creates storage backends from URI strings and aggregates them for
// redundant storage.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a backend factory.
func NewFactory(log *slog.Logger) *Factory {
	return &Factory{log: log}
}

// StorageBackendFor creates a storage backend from a location URI.
// The URI format is [scheme]://[auth@]host[:port][/path][?params]
//
// Supported schemes:
//   - file:///var/lib/custodia/payloads
//   - ipfs://ipfs.example.com:5001/
//   - s3://ACCESS:SECRET@bucket/prefix?region=us-west-2[&endpoint=...]
//   - vault://vault.example.com:8200/secret/custodia[?token=...&tls=true]
func (f *Factory) StorageBackendFor(location interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	u, err := url.Parse(location.Raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return f.createFileBackend(u)
	case "ipfs":
		return f.createIPFSBackend(u)
	case "s3":
		return f.createS3Backend(u)
	case "vault":
		return f.createVaultBackend(u)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

// CreateMultiBackend creates a multi-storage backend from a list of location
// URIs, skipping URIs whose backend cannot be constructed. Returns an error
// if no valid backend could be created at all.
func (f *Factory) CreateMultiBackend(locations []interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(locations))

	for _, location := range locations {
		backend, err := f.StorageBackendFor(location)
		if err != nil {
			f.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("location_uri", location.Raw))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends among %d URIs", len(locations))
	}
	if len(backends) == 1 {
		return backends[0], nil
	}
	return NewMultiStorageBackend(backends, f.log), nil
}

func (f *Factory) createFileBackend(u *url.URL) (interfaces.StorageBackend, error) {
	baseDir := u.Path
	if u.Host != "" {
		// Relative form like file://data/payloads
		baseDir = u.Host + u.Path
	}
	if baseDir == "" {
		return nil, fmt.Errorf("%w: file URI needs a path", interfaces.ErrInvalidLocationURI)
	}
	return NewFileBackend(baseDir, f.log)
}

func (f *Factory) createIPFSBackend(u *url.URL) (interfaces.StorageBackend, error) {
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: ipfs URI needs a host", interfaces.ErrInvalidLocationURI)
	}
	port := u.Port()
	if port == "" {
		port = "5001"
	}
	return NewIPFSBackend(host, port, f.log)
}

func (f *Factory) createS3Backend(u *url.URL) (interfaces.StorageBackend, error) {
	bucket := u.Host
	if bucket == "" {
		return nil, fmt.Errorf("%w: s3 URI needs a bucket", interfaces.ErrInvalidLocationURI)
	}

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	region := u.Query().Get("region")
	if region == "" {
		region = "us-east-1"
	}
	endpoint := u.Query().Get("endpoint")
	prefix := strings.TrimPrefix(u.Path, "/")

	return NewS3Backend(bucket, prefix, region, endpoint, accessKey, secretKey, f.log)
}

func (f *Factory) createVaultBackend(u *url.URL) (interfaces.StorageBackend, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("%w: vault URI needs a host", interfaces.ErrInvalidLocationURI)
	}

	scheme := "http"
	if u.Query().Get("tls") == "true" {
		scheme = "https"
	}
	address := fmt.Sprintf("%s://%s", scheme, u.Host)

	parts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
	mountPath := "secret"
	dataPath := "custodia"
	if len(parts) > 0 && parts[0] != "" {
		mountPath = parts[0]
	}
	if len(parts) > 1 {
		dataPath = parts[1]
	}

	token := u.Query().Get("token")
	if token == "" {
		token = os.Getenv("VAULT_TOKEN")
	}

	return NewVaultKVBackend(address, mountPath, dataPath, token, f.log)
}
