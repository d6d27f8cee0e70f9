package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/convention-registry/member-api/internal/platform/auth/sessiontoken"
	"github.com/convention-registry/member-api/internal/platform/config"
)

// Tiny dev-only session token issuer.
//
// It signs tokens with the same SESSION_TOKEN_* settings the API verifies, so local
// requests can exercise real bearer auth without the login service.

func main() {
	port := getenv("PORT", "5556")
	ttl := getenvDuration("TTL", 30*time.Minute)

	cfg, err := config.LoadSessionTokenConfigFromEnv()
	if err != nil {
		log.Fatalf("invalid token config: %v", err)
	}
	tokens := sessiontoken.New(cfg)

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Mint a token:
	//   GET /token?email=alice@example.org&roles=member_admin,admin_admin
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		email := strings.TrimSpace(r.URL.Query().Get("email"))
		if email == "" {
			http.Error(w, "missing email", http.StatusBadRequest)
			return
		}

		sess := sessiontoken.Session{Email: email}
		for _, role := range strings.Split(r.URL.Query().Get("roles"), ",") {
			switch strings.TrimSpace(role) {
			case "":
			case "member_admin":
				sess.MemberAdmin = true
			case "member_list":
				sess.MemberList = true
			case "admin_admin":
				sess.AdminAdmin = true
			default:
				http.Error(w, "unknown role "+role, http.StatusBadRequest)
				return
			}
		}

		token, err := tokens.Mint(sess, ttl)
		if err != nil {
			http.Error(w, "failed to mint token", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": token,
			"email": sess.Email,
			"iss":   cfg.Issuer,
			"aud":   cfg.Audience,
			"exp":   time.Now().Add(ttl).Unix(),
		})
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("devtoken listening on :%s (iss=%s aud=%s ttl=%s)", port, cfg.Issuer, cfg.Audience, ttl)
	log.Fatal(srv.ListenAndServe())
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
