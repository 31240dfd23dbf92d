package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/omnipdf/qrauth/internal/qrauth/metrics"
	"github.com/omnipdf/qrauth/internal/qrauth/service"
	"github.com/omnipdf/qrauth/internal/qrauth/store"
	"github.com/omnipdf/qrauth/pkg/httpx"
	"github.com/omnipdf/qrauth/pkg/jwtx"
	"github.com/omnipdf/qrauth/pkg/slogx"

	_ "github.com/omnipdf/qrauth/api/qrauth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Sessions

	QRService *service.QRService
	Metrics   *metrics.Recorder

	// PayloadBaseURL prefixes the token in the qrPayload of create responses.
	PayloadBaseURL string

	// WatchInterval is how often an open watch socket re-reads its session.
	WatchInterval time.Duration

	// WatchOrigins lists extra origins allowed to open watch sockets.
	WatchOrigins []string

	// AllowQRApprover lets credentials minted by a QR login approve other
	// QR sessions. Off by default so one stolen QR login cannot fan out.
	AllowQRApprover bool
}

// NewRouter creates a router. keys are the public keys of credentials this
// service issues; verifier checks the bearer tokens of callers.
func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Sessions,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:            http.NewServeMux(),
		keys:           keys,
		verifier:       verifier,
		buildVersion:   buildVersion,
		startTime:      time.Now(),
		store:          st,
		logger:         logger,
		PayloadBaseURL: DefaultPayloadBaseURL,
		WatchInterval:  DefaultWatchInterval,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger, "/livez", "/readyz", "/metrics"),
		httpx.Recover(),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerQR()
	r.registerWellKnown()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			OmniPDF QR Login API
//	@version		0.1.0
//	@description	Cross-device login: a signed-in device approves a QR code shown by a device that wants to sign in.
//	@description
//	@description				Credentials handed out by /v1/qr/consume are EdDSA JWTs verifiable through the JWKS endpoint.
//
//	@contact.name				OmniPDF Team
//	@contact.url				https://github.com/omnipdf/qrauth
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerQR() {
	createHandler := &QRCreateHandler{
		QRService:      r.QRService,
		PayloadBaseURL: r.PayloadBaseURL,
	}
	authenticateHandler := &QRAuthenticateHandler{QRService: r.QRService}
	verifyHandler := &QRVerifyHandler{QRService: r.QRService}
	consumeHandler := &QRConsumeHandler{QRService: r.QRService}
	cancelHandler := &QRCancelHandler{QRService: r.QRService}
	watchHandler := &QRWatchHandler{
		QRService:      r.QRService,
		Interval:       r.WatchInterval,
		OriginPatterns: r.WatchOrigins,
	}
	if r.Metrics != nil {
		watchHandler.Metrics = r.Metrics
	}

	// POST /create - moderate rate limit by user
	r.Mux.Handle("POST /v1/qr/create",
		httpx.Chain(createHandler,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// POST /authenticate - strict rate limit by user (guessing tokens is the attack)
	approve := []httpx.Middleware{httpx.AuthnMiddleware(r.verifier)}
	if !r.AllowQRApprover {
		approve = append(approve, httpx.RejectAMR(jwtx.AMRQR))
	}
	approve = append(approve, httpx.RateLimitByUser(httpx.StrictLimit))
	r.Mux.Handle("POST /v1/qr/authenticate", httpx.Chain(authenticateHandler, approve...))

	// GET /verify - anonymous, polled by the displaying device
	r.Mux.Handle("GET /v1/qr/verify",
		httpx.Chain(verifyHandler,
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("POST /v1/qr/consume",
		httpx.Chain(consumeHandler,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/qr/cancel",
		httpx.Chain(cancelHandler,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		),
	)

	// GET /watch - one socket per displaying device, public limit
	r.Mux.Handle("GET /v1/qr/watch",
		httpx.Chain(watchHandler,
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerWellKnown() {
	// GET /jwks.json - public endpoint with high limit
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics.Handler())
	}
}
