// api/router.go
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"datahub/internal/auth"
	"datahub/internal/catalog"
	"datahub/internal/tree"
)

type Services struct {
	Tree    *tree.Service
	Catalog *catalog.Service
	Auth    *auth.Service
}

type Options struct {
	BasePath       string
	CORSOrigins    []string
	LoginPerMinute int
	RequestTimeout time.Duration
	Logger         *slog.Logger
	// Reseed вызывается из POST /admin/seed; nil отключает маршрут.
	Reseed func(ctx context.Context) error
}

func NewRouter(svc Services, opt Options) *gin.Engine {
	log := opt.Logger
	if log == nil {
		log = slog.Default()
	}

	r := gin.New()
	r.Use(RequestID(), AccessLog(log), Recovery(), CORS(opt.CORSOrigins), Timeout(opt.RequestTimeout))

	base := opt.BasePath
	if base == "" {
		base = "/api"
	}
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})

	root := r.Group(base)
	root.GET("/meta/enums", MetaEnumsHandler())

	authn := Authenticate(svc.Auth)

	// auth: всё публичное, кроме /me
	a := root.Group("/auth")
	{
		a.POST("/login", RateLimit(opt.LoginPerMinute), LoginHandler(svc.Auth))
		a.POST("/register", RegisterHandler(svc.Auth))
		a.POST("/refresh", RefreshHandler(svc.Auth))
		a.GET("/validate", ValidateTokenHandler(svc.Auth))
		a.GET("/check-username", CheckUsernameHandler(svc.Auth))
		a.GET("/check-email", CheckEmailHandler(svc.Auth))
		a.GET("/me", authn, MeHandler(svc.Auth))
	}

	org := root.Group("/organization", authn)
	{
		// статические маршруты рядом с :id
		org.GET("/tree", TreeHandler(svc.Tree))
		org.GET("/node-types", NodeTypesHandler(svc.Tree))
		org.GET("/search", SearchNodesHandler(svc.Tree))

		org.GET("/nodes", ChildrenHandler(svc.Tree))
		org.POST("/nodes", CreateNodeHandler(svc.Tree))
		org.GET("/nodes/:id", GetNodeHandler(svc.Tree))
		org.PUT("/nodes/:id", UpdateNodeHandler(svc.Tree))
		org.DELETE("/nodes/:id", DeleteNodeHandler(svc.Tree))
		org.PUT("/nodes/:id/move", MoveNodeHandler(svc.Tree))
		org.GET("/nodes/:id/stats", NodeStatsHandler(svc.Tree))
	}

	files := root.Group("/data-files", authn)
	{
		files.POST("/query", QueryFilesHandler(svc.Catalog))
		files.GET("/accessible", AccessibleFilesHandler(svc.Catalog))
		files.GET("/search", SearchFilesHandler(svc.Catalog))
		files.GET("/recent", RecentFilesHandler(svc.Catalog))
		files.GET("/statistics", FileStatisticsHandler(svc.Catalog))
		files.GET("/data-types", DataTypesHandler(svc.Catalog))
		files.GET("/organization/:anchorId", FilesByAnchorHandler(svc.Catalog))
		files.GET("/owner/:ownerId", FilesByOwnerHandler(svc.Catalog))
		files.GET("/data-type/:dataType", FilesByDataTypeHandler(svc.Catalog))

		files.POST("", CreateFileHandler(svc.Catalog))
		files.GET("/:id", GetFileHandler(svc.Catalog))
		files.PUT("/:id", UpdateFileHandler(svc.Catalog))
		files.DELETE("/:id", DeleteFileHandler(svc.Catalog))
	}

	if opt.Reseed != nil {
		root.POST("/admin/seed", authn, RequireAdmin(), AdminReseedHandler(opt.Reseed))
	}
	return r
}

// RunServer слушает addr до отмены ctx, затем мягко гасит сервер.
func RunServer(ctx context.Context, addr string, h http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
