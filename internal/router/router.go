package router

import (
	"fmt"
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"memtest-go/internal/config"
	"memtest-go/internal/handlers"
	"memtest-go/internal/models"
	"memtest-go/internal/session"
)

// Deps is everything the routes are served from.
type Deps struct {
	Config        *config.Config
	Manager       *session.Manager
	Questionnaire *models.QuestionnaireDef
	// Results is optional; without it the results chart has no cohort series
	// and the admin routes answer 503.
	Results interface {
		handlers.ResultSource
		handlers.AverageSource
	}
	// Checks are pinged by /healthz.
	Checks map[string]handlers.Pinger
	// IntakeLimit is the number of intake submissions allowed per client and
	// minute. Zero means 5.
	IntakeLimit uint
}

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.String(http.StatusTooManyRequests, "Too many requests. Try again in %s.", time.Until(info.ResetTime).Round(time.Second))
}

func Setup(log *zap.Logger, deps Deps) *gin.Engine {
	cfg := deps.Config
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log.Named("http")))

	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   cfg.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(cfg.Store.TTL / time.Second),
	})
	router.Use(sessions.Sessions("memtest", store))

	router.Use(NonceMiddleware())
	router.Use(CSRFProtection())

	router.Use(func(c *gin.Context) {
		if c.GetHeader("HX-Request") != "true" {
			nonce, _ := c.Get(CspNonceContextKey)
			csp := fmt.Sprintf(
				"default-src 'self'; script-src 'self' https://unpkg.com https://cdn.jsdelivr.net 'nonce-%s'; style-src 'self' 'unsafe-inline'; img-src 'self' data:",
				nonce,
			)
			c.Header("Content-Security-Policy", csp)
		}
		c.Next()
	})

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "same-origin",
	})
	router.Use(func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
		c.Next()
	})

	var (
		results  handlers.ResultSource
		averages handlers.AverageSource
	)
	if deps.Results != nil {
		results, averages = deps.Results, deps.Results
	}

	resultsHandler := handlers.NewResultsHandler(log, averages)
	assessmentHandler := handlers.NewAssessmentHandler(log, deps.Manager, deps.Questionnaire, resultsHandler)
	metricsHandler := handlers.NewMetricsHandler(log, deps.Manager, deps.Checks)
	authHandler := handlers.NewAuthHandlerFunc(log, func() (string, string) {
		admin := cfg.Admin
		if current := config.Current(); current != nil {
			admin = current.Admin
		}
		return admin.Username, admin.PasswordHash
	})

	limit := deps.IntakeLimit
	if limit == 0 {
		limit = 5
	}
	rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: limit,
	})
	limiter := ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	router.GET("/healthz", metricsHandler.Health)

	admin := router.Group("/admin")
	admin.Use(authHandler.AdminRequired())
	{
		if results != nil {
			adminHandler := handlers.NewAdminHandler(log, results, deps.Manager.Now)
			admin.GET("/export", adminHandler.Export)
			admin.GET("/status", adminHandler.Status)
		} else {
			unavailable := func(c *gin.Context) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "results database not configured"})
			}
			admin.GET("/export", unavailable)
			admin.GET("/status", unavailable)
		}
	}

	test := router.Group("/")
	test.Use(SessionLoader(log, deps.Manager))
	{
		test.GET("/", assessmentHandler.Show)
		test.GET("/state", metricsHandler.State)
		test.POST("/intake", limiter, assessmentHandler.Intake)
		test.POST("/begin", assessmentHandler.Begin)
		test.POST("/memorize/done", assessmentHandler.FinishMemorize)
		test.POST("/recall/select", assessmentHandler.Select)
		test.POST("/recall/clear", assessmentHandler.ClearSelection)
		test.POST("/recall/skip", assessmentHandler.Skip)
		test.POST("/abort", assessmentHandler.Abort)
		test.POST("/questionnaire/next", assessmentHandler.NextPage)
		test.POST("/questionnaire/back", assessmentHandler.PreviousPage)
		test.POST("/questionnaire/submit", assessmentHandler.Submit)
		test.POST("/reset", assessmentHandler.Reset)
	}

	return router
}
