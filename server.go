package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/kitchen_backend/config"
	"bitbucket.org/mmdatafocus/kitchen_backend/models"
	"bitbucket.org/mmdatafocus/kitchen_backend/models/reports"
	"bitbucket.org/mmdatafocus/kitchen_backend/utils"
	"bitbucket.org/mmdatafocus/kitchen_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

const defaultPort = "8080"

// Define a struct to represent the rate limiter.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func getRedisClient(redisAddress string) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddress,
	})
	return client
}

// httpStatusForError maps the engine's typed errors onto HTTP statuses so
// clients can distinguish a bad request from a stock conflict.
func httpStatusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidQuantity), errors.Is(err, models.ErrUndefined):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnknownIngredient), errors.Is(err, utils.ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientStock), errors.Is(err, models.ErrStaleCostData),
		errors.Is(err, models.ErrDuplicatePosting):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
	c.JSON(httpStatusForError(err), gin.H{
		"error":          err.Error(),
		"correlation_id": cid,
	})
}

// businessContextMiddleware builds the request context from headers. Every
// route below the readiness gate requires x-business-id; x-user-id is
// attached when present for ledger attribution.
func businessContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId := strings.TrimSpace(c.GetHeader("x-business-id"))
		if businessId == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "x-business-id header is required"})
			return
		}
		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		if v := strings.TrimSpace(c.GetHeader("x-user-id")); v != "" {
			if userId, err := strconv.Atoi(v); err == nil {
				ctx = utils.SetUserIdInContext(ctx, userId)
			}
		}
		if v := strings.TrimSpace(c.GetHeader("x-user-name")); v != "" {
			ctx = utils.SetUserNameInContext(ctx, v)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func recordPurchaseHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input workflow.PurchaseInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": utils.ProcessValidationErrors(err)})
			return
		}
		entry, err := workflow.RecordPurchase(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

func recordSaleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input workflow.SaleInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": utils.ProcessValidationErrors(err)})
			return
		}
		result, err := workflow.RecordSale(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func recordAdjustmentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input workflow.AdjustmentInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": utils.ProcessValidationErrors(err)})
			return
		}
		entry, err := workflow.RecordAdjustment(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

func recordWasteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input workflow.WasteInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": utils.ProcessValidationErrors(err)})
			return
		}
		entry, err := workflow.RecordWaste(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

func createIngredientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewIngredient
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": utils.ProcessValidationErrors(err)})
			return
		}
		ingredient, err := models.CreateIngredient(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, ingredient)
	}
}

func createMenuHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewMenu
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": utils.ProcessValidationErrors(err)})
			return
		}
		menu, err := models.CreateMenu(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, menu)
	}
}

func createBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewProductionBatch
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": utils.ProcessValidationErrors(err)})
			return
		}
		batch, err := models.CreateProductionBatch(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, batch)
	}
}

func addBatchCostLineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		batchId, err := strconv.Atoi(c.Param("id"))
		if err != nil || batchId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch id"})
			return
		}
		var input models.NewBatchCostLine
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": utils.ProcessValidationErrors(err)})
			return
		}
		batch, err := workflow.AddBatchCostLineAndRecompute(c.Request.Context(), batchId, &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, batch)
	}
}

func upsertRecipeLineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		menuId, err := strconv.Atoi(c.Param("id"))
		if err != nil || menuId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid menu id"})
			return
		}
		var input models.NewRecipeLine
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": utils.ProcessValidationErrors(err)})
			return
		}
		result, err := workflow.UpsertMenuRecipeLine(c.Request.Context(), menuId, &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func removeRecipeLineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		menuId, err := strconv.Atoi(c.Param("id"))
		if err != nil || menuId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid menu id"})
			return
		}
		ingredientId, err := strconv.Atoi(c.Param("ingredient_id"))
		if err != nil || ingredientId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ingredient id"})
			return
		}
		result, err := workflow.RemoveMenuRecipeLine(c.Request.Context(), menuId, ingredientId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// Ledger correction: compensating entry, never an edit.
func reverseEntryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input workflow.ReversalInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": utils.ProcessValidationErrors(err)})
			return
		}
		entry, err := workflow.ReverseLedgerEntry(c.Request.Context(), &input)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

func listIngredientsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		ingredients, err := utils.FetchAllModels[models.Ingredient](c.Request.Context(), businessId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ingredients": ingredients})
	}
}

// Audit view: the raw ledger of one ingredient, optionally narrowed to a
// single transaction type.
func ledgerEntriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ingredientId, err := strconv.Atoi(c.Param("id"))
		if err != nil || ingredientId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ingredient id"})
			return
		}
		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		db := config.GetDB().WithContext(c.Request.Context())

		var entries []*models.StockHistory
		if v := c.Query("type"); v != "" {
			transactionType, err := models.ParseStockTransactionType(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			entries, err = models.LedgerEntriesByType(db, businessId, ingredientId, transactionType)
			if err != nil {
				abortWithError(c, err)
				return
			}
		} else {
			entries, err = models.LedgerEntriesForIngredient(db, businessId, ingredientId)
			if err != nil {
				abortWithError(c, err)
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries})
	}
}

func currentStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ingredientId, err := strconv.Atoi(c.Param("id"))
		if err != nil || ingredientId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ingredient id"})
			return
		}
		ingredient, err := models.GetIngredient(c.Request.Context(), ingredientId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"ingredient_id":       ingredient.ID,
			"name":                ingredient.Name,
			"unit":                ingredient.Unit,
			"current_stock":       ingredient.CurrentStock,
			"cost_per_unit":       ingredient.CostPerUnit,
			"cost_review_flagged": utils.DereferencePtr(ingredient.CostReviewFlagged),
		})
	}
}

func menuCostHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		menuId, err := strconv.Atoi(c.Param("id"))
		if err != nil || menuId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid menu id"})
			return
		}
		result, err := workflow.MenuCost(c.Request.Context(), menuId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func lowStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ingredients, err := models.LowStockList(c.Request.Context())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ingredients": ingredients})
	}
}

func writeXlsx(c *gin.Context, f *excelize.File, filename string) {
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := f.Write(c.Writer); err != nil {
		config.LogError(config.GetLogger(), "server.go", "writeXlsx", "Failed to stream report", filename, err)
	}
}

func expiredLotsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		asOf := time.Now().UTC()
		if v := c.Query("as_of"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "as_of must be YYYY-MM-DD"})
				return
			}
			asOf = parsed
		}
		rows, err := models.ExpiredLots(c.Request.Context(), asOf)
		if err != nil {
			abortWithError(c, err)
			return
		}
		// min_value keeps only lots whose estimated waste value is worth acting on.
		if v := c.Query("min_value"); v != "" {
			minValue, err := utils.ParseDecimal(v)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "min_value must be a decimal"})
				return
			}
			filtered := rows[:0]
			for _, row := range rows {
				if row.EstimatedWasteValue.GreaterThanOrEqual(minValue) {
					filtered = append(filtered, row)
				}
			}
			rows = filtered
		}
		if c.Query("format") == "xlsx" {
			f, err := reports.ExpiredLotsXlsx(rows, asOf)
			if err != nil {
				abortWithError(c, err)
				return
			}
			writeXlsx(c, f, fmt.Sprintf("expired-lots-%s.xlsx", asOf.Format("2006-01-02")))
			return
		}
		c.JSON(http.StatusOK, gin.H{"as_of": asOf, "lots": rows})
	}
}

func cogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		from, err := time.Parse("2006-01-02", c.Query("from"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be YYYY-MM-DD"})
			return
		}
		to, err := time.Parse("2006-01-02", c.Query("to"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be YYYY-MM-DD"})
			return
		}
		if !to.After(from) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be after from"})
			return
		}
		summary, err := models.CogsForPeriod(c.Request.Context(), from, to)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if c.Query("format") == "xlsx" {
			f, err := reports.CogsSummaryXlsx(summary, from, to)
			if err != nil {
				abortWithError(c, err)
				return
			}
			writeXlsx(c, f, fmt.Sprintf("cogs-%s-%s.xlsx", from.Format("2006-01-02"), to.Format("2006-01-02")))
			return
		}
		c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "summary": summary})
	}
}

func saleCogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		referenceId, err := strconv.Atoi(c.Param("reference_id"))
		if err != nil || referenceId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sale reference id"})
			return
		}
		allocations, err := models.CogsForSale(c.Request.Context(), referenceId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"allocations": allocations})
	}
}

// Ops tooling: refold every ledger and repair projection drift.
func rebuildStockHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		results, err := workflow.RebuildAllIngredientStock(c.Request.Context(), businessId)
		if err != nil {
			abortWithError(c, err)
			return
		}
		drifted := 0
		for _, r := range results {
			if r.Drifted {
				drifted++
			}
		}
		c.JSON(http.StatusOK, gin.H{"checked": len(results), "repaired": drifted, "results": results})
	}
}

func sweepExpiredLotsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
		marked, err := workflow.SweepExpiredLots(c.Request.Context(), businessId, time.Now().UTC())
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"marked_expired": marked})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// Shutdown coordination.
	// Cloud Run sends SIGTERM on revision shutdown; handle it for graceful drain.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP so Cloud Run considers the revision healthy.
	// Until DB/Redis are ready, we return 503 for app endpoints.
	r := gin.New()
	// Correlation IDs: generate once per request and attach to context.
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		// Always allow Cloud Run startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		// Gate critical endpoints on dependency readiness.
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all (developer convenience).
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// Safer default: deny all if not configured in production.
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", "x-business-id", "x-user-id", "x-user-name", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))

	// Optional rate limiting (recommended for production).
	// Env:
	// - RATE_LIMIT_ENABLED=true
	// - RATE_LIMIT_WINDOW_SECONDS=60
	// - RATE_LIMIT_MAX_REQUESTS=600
	if strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		client := getRedisClient(os.Getenv("REDIS_ADDRESS"))
		limit := int64(600)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_MAX_REQUESTS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				limit = n
			}
		}
		windowSec := int64(60)
		if v := strings.TrimSpace(os.Getenv("RATE_LIMIT_WINDOW_SECONDS")); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				windowSec = n
			}
		}
		rateLimiter := NewRateLimiter(client, limit, time.Duration(windowSec)*time.Second)
		r.Use(rateLimiter.RateLimitMiddleware)
	}

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())
	r.Use(businessContextMiddleware())

	// Postings.
	r.POST("/purchases", recordPurchaseHandler())
	r.POST("/sales", recordSaleHandler())
	r.POST("/adjustments", recordAdjustmentHandler())
	r.POST("/wastes", recordWasteHandler())

	// Catalog.
	r.POST("/ingredients", createIngredientHandler())
	r.POST("/menus", createMenuHandler())
	r.POST("/batches", createBatchHandler())
	r.POST("/batches/:id/cost-lines", addBatchCostLineHandler())
	r.PUT("/menus/:id/recipe-lines", upsertRecipeLineHandler())
	r.DELETE("/menus/:id/recipe-lines/:ingredient_id", removeRecipeLineHandler())

	// Read views.
	r.GET("/ingredients", listIngredientsHandler())
	r.GET("/ingredients/:id/stock", currentStockHandler())
	r.GET("/ingredients/:id/ledger", ledgerEntriesHandler())
	r.GET("/menus/:id/cost", menuCostHandler())
	r.GET("/sales/:reference_id/cogs", saleCogsHandler())
	r.GET("/reports/low-stock", lowStockHandler())
	r.GET("/reports/expired-lots", expiredLotsHandler())
	r.GET("/reports/cogs", cogsHandler())

	// Ops tooling.
	r.POST("/internal/ops/rebuild-stock", rebuildStockHandler())
	r.POST("/internal/ops/sweep-expired-lots", sweepExpiredLotsHandler())
	r.POST("/internal/ops/reverse-entry", reverseEntryHandler())

	r.NoRoute(customNotFoundHandler)

	// Start listening immediately (Cloud Run startup probe is TCP based).
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()

	// Connect dependencies after the port is open.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	// Now DB is ready; run migrations.
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// IMPORTANT: AutoMigrate can run DDL that blocks tables and causes 504/502 timeouts.
	// Allow disabling migrations on startup (run them as a separate job instead).
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	// Set the session isolation level to READ COMMITTED
	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("inventory ledger API listening on port ", port)
	log.Println("Server started successfully")

	// Block until shutdown or server error.
	select {
	case <-sigCtx.Done():
		// graceful shutdown below
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Drain HTTP requests.
	shutdownTimeout := 30 * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	// Close Redis (best-effort).
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only log when there are errors
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

// Initialize a new RateLimiter instance.
func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Middleware function to check rate limits.
func (rl *RateLimiter) RateLimitMiddleware(c *gin.Context) {
	// Get the IP address or user identifier from the request.
	key := c.ClientIP() // Assuming IP-based rate limiting

	// Check if the key exists in Redis.
	exists, err := rl.client.Exists(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the key doesn't exist, create it and set expiry.
	if exists == 0 {
		err := rl.client.Set(c.Request.Context(), key, 1, rl.window).Err()
		if err != nil {
			c.AbortWithError(http.StatusInternalServerError, err)
			return
		}
		c.Next()
		return
	}

	// If the key exists, get the current count.
	count, err := rl.client.Incr(c.Request.Context(), key).Result()
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	// If the count exceeds the limit, return an error response.
	if count > rl.limit {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
		})
		return
	}

	c.Next()
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
