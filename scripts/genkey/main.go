// genkey generates the secrets Kenkyu needs when KENKYU_AUTH_ENABLED=true.
//
// Usage (run from the repo root):
//
//	go run scripts/genkey/main.go [-client research-bot]
//
// Writes:
//
//	data/jwt_private.pem  (mode 0600; keep this secret)
//	data/jwt_public.pem   (mode 0600)
//
// With -client, it also prints a fresh API key for that client and the
// KENKYU_API_CLIENTS entry holding its argon2id hash. The key is shown once;
// only the hash belongs in configuration.
//
// The server generates ephemeral keys when KENKYU_JWT_PRIVATE_KEY is unset,
// but those are discarded on every restart, invalidating all issued tokens.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ashita-ai/kenkyu/internal/auth"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dir := flag.String("dir", "data", "directory for the PEM files")
	client := flag.String("client", "", "also generate an API key for this client ID")
	flag.Parse()

	privPath := filepath.Join(*dir, "jwt_private.pem")
	pubPath := filepath.Join(*dir, "jwt_public.pem")

	if err := writeKeyPair(*dir, privPath, pubPath); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", privPath)
	fmt.Printf("wrote %s\n", pubPath)

	if *client != "" {
		apiKey, entry, err := clientEntry(*client)
		if err != nil {
			return err
		}
		fmt.Printf("\napi key for %s (shown once): %s\n", *client, apiKey)
		fmt.Printf("KENKYU_API_CLIENTS=%s\n", entry)
	}
	return nil
}

func writeKeyPair(dir, privPath, pubPath string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}

	// Refuse to overwrite existing keys; that would invalidate live tokens.
	for _, path := range []string{privPath, pubPath} {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists; delete it first if you want to rotate keys", path)
		}
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	if err := writePEM(privPath, "PRIVATE KEY", privDER); err != nil {
		return err
	}

	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}
	return writePEM(pubPath, "PUBLIC KEY", pubDER)
}

func writePEM(path, blockType string, der []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // operator-supplied path
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// clientEntry returns a random API key and its "id:hash" configuration entry.
func clientEntry(clientID string) (apiKey, entry string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate api key: %w", err)
	}
	apiKey = "kk_" + base64.RawURLEncoding.EncodeToString(buf)
	hash, err := auth.HashAPIKey(apiKey)
	if err != nil {
		return "", "", err
	}
	return apiKey, clientID + ":" + hash, nil
}
