package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"teenbudget.org/internal/audit"
	"teenbudget.org/internal/auth"
	"teenbudget.org/internal/obs"
)

const (
	serviceName         = "teenbudget-api"
	defaultMaxBodyBytes = 1 << 20
)

// ReadyProbe checks the backends the service cannot work without.
// Unset fields are skipped.
type ReadyProbe struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// AuthService is the account flow the HTTP surface exposes.
type AuthService interface {
	RequestSignup(ctx context.Context, req auth.SignupRequest) error
	ResendCode(ctx context.Context, email string) error
	VerifySignup(ctx context.Context, email, code string) error
	SignIn(ctx context.Context, email, password string, extended bool) (auth.Session, error)
	RequestPasswordReset(ctx context.Context, email string) error
	CompletePasswordReset(ctx context.Context, token, newPassword string) error
	ValidateToken(token string) bool
	FetchProfile(ctx context.Context, token string) (auth.Profile, error)
}

// Options tunes the HTTP surface. Zero values select defaults.
type Options struct {
	Version        string
	CORSOrigins    []string
	RateBurst      int
	RatePerSec     float64
	MailRateBurst  int
	MailRatePerSec float64
	MaxBodyBytes   int64

	// TrustForwardedFor keys rate limits on the first X-Forwarded-For hop.
	TrustForwardedFor bool
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	auth       AuthService
	readyProbe readinessChecker
	version    string
	origins    []string
	limiter    *limiterSet
	maxBody    int64
}

func New(svc AuthService, rp readinessChecker, opts Options) *API {
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 10
	}
	if opts.MailRateBurst <= 0 {
		opts.MailRateBurst = 3
	}
	if opts.MailRatePerSec <= 0 {
		opts.MailRatePerSec = 1
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	a := &API{
		mux:        http.NewServeMux(),
		auth:       svc,
		readyProbe: rp,
		version:    opts.Version,
		origins:    opts.CORSOrigins,
		limiter:    newLimiterSet(opts.RateBurst, opts.RatePerSec, opts.TrustForwardedFor),
		maxBody:    opts.MaxBodyBytes,
	}
	mailLimit := newLimiterSet(opts.MailRateBurst, opts.MailRatePerSec, opts.TrustForwardedFor).middleware

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	// account flow; routes that send mail get a stricter per-IP budget
	a.mux.Handle("/signup", mailLimit(http.HandlerFunc(a.handleSignup)))
	a.mux.Handle("/resend", mailLimit(http.HandlerFunc(a.handleResend)))
	a.mux.Handle("/resend-code", mailLimit(http.HandlerFunc(a.handleResend)))
	a.mux.Handle("/password-reset-request", mailLimit(http.HandlerFunc(a.handlePasswordResetRequest)))
	a.mux.HandleFunc("/verify-email", a.handleVerifyEmail)
	a.mux.HandleFunc("/signin", a.handleSignIn)
	a.mux.HandleFunc("/password-reset", a.handlePasswordReset)
	a.mux.HandleFunc("/token-validation", a.handleTokenValidation)
	a.mux.HandleFunc("/user-data", a.handleUserData)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBody)
	h = a.limiter.middleware(h)
	h = CORS(h, a.origins)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorKind(w, r, code, msg, "")
}

func writeErrorKind(w http.ResponseWriter, r *http.Request, code int, msg, kind string) {
	payload := map[string]any{
		"error": msg,
	}
	if kind != "" {
		payload["kind"] = kind
	}
	if rid := audit.RequestID(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

// decodeBody fills dst from a JSON body or, for form posts, from the form
// fields named by dst's json tags.
func decodeBody(r *http.Request, dst any) error {
	if isFormPost(r) {
		return decodeForm(r, dst)
	}
	return decodeJSON(r, dst)
}

// decodeJSON reads exactly one JSON value. Unknown fields are ignored so
// older clients that post extra form fields keep working.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return errors.New("malformed JSON body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func isFormPost(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "application/x-www-form-urlencoded"
}

// decodeForm sets the string and bool fields of the struct dst points to.
// Bools accept "on" as well as strconv.ParseBool values.
func decodeForm(r *http.Request, dst any) error {
	if err := r.ParseForm(); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errors.New("request body too large")
		}
		return errors.New("malformed form body")
	}
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return errors.New("form target must be a struct pointer")
	}
	v = v.Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		values := r.PostForm[name]
		if name == "" || name == "-" || len(values) == 0 {
			continue
		}
		field := v.Field(i)
		switch field.Kind() {
		case reflect.String:
			field.SetString(values[0])
		case reflect.Bool:
			b, err := parseFormBool(values[0])
			if err != nil {
				return fmt.Errorf("invalid value for %s", name)
			}
			field.SetBool(b)
		}
	}
	return nil
}

func parseFormBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on":
		return true, nil
	case "":
		return false, nil
	}
	return strconv.ParseBool(s)
}
