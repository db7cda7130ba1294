package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/minedudata/nexus_backend/config"
	"bitbucket.org/minedudata/nexus_backend/models"
	"bitbucket.org/minedudata/nexus_backend/utils"
	"bitbucket.org/minedudata/nexus_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	// SIGTERM handling for graceful drain on managed platforms.
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server ASAP; until DB/Redis are ready we return 503 for
	// app endpoints.
	r := gin.New()
	r.Use(gin.Recovery())

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
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production, require explicit allowlist via CORS_ALLOWED_ORIGINS
	// (comma-separated); otherwise allow all for developer convenience.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	registerRoutes(r)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()
	log.Printf("listening on :%s", port)

	// Connect deps after the server is accepting connections.
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	if strings.EqualFold(strings.TrimSpace(os.Getenv("AUTO_MIGRATE")), "true") {
		models.MigrateTable()
		log.Printf("schema migrated")
	}

	<-sigCtx.Done()
	log.Printf("shutdown signal received; draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		config.LogError(logger, "server.go", "main", "shutdown", nil, err)
	}
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func registerRoutes(r *gin.Engine) {
	api := r.Group("/api")

	api.GET("/modalities", listHandler(models.ListModalities))
	api.POST("/modalities", createHandler(models.CreateModality))
	api.PUT("/modalities/:id", updateHandler(models.UpdateModality))
	api.DELETE("/modalities/:id", deleteHandler(models.DeleteModality))

	api.GET("/levels", listHandler(models.ListLevels))
	api.POST("/levels", createHandler(models.CreateLevel))
	api.PUT("/levels/:id", updateHandler(models.UpdateLevel))
	api.DELETE("/levels/:id", deleteHandler(models.DeleteLevel))

	api.GET("/curricular-areas", listHandler(models.ListCurricularAreas))
	api.POST("/curricular-areas", createHandler(models.CreateCurricularArea))
	api.PUT("/curricular-areas/:id", updateHandler(models.UpdateCurricularArea))
	api.DELETE("/curricular-areas/:id", deleteHandler(models.DeleteCurricularArea))

	api.GET("/prelation-orders", listHandler(models.ListPrelationOrders))
	api.POST("/prelation-orders", createHandler(models.CreatePrelationOrder))
	api.DELETE("/prelation-orders/:id", deleteHandler(models.DeletePrelationOrder))

	api.GET("/prelations", listHandler(models.ListPrelations))
	api.GET("/prelations/:id", getHandler(models.GetPrelation))
	api.POST("/prelations", createHandler(models.CreatePrelation))
	api.DELETE("/prelations/:id", deleteHandler(models.DeletePrelation))
	api.POST("/prelations/:id/evaluate", evaluatePrelationHandler)
	api.POST("/prelations/:id/requirements", addRequirementHandler)
	api.DELETE("/prelation-requirements/:id", deleteHandler(models.DeletePrelationRequirement))

	api.GET("/phases", listHandler(models.ListPhases))
	api.GET("/phases/:id", getHandler(models.GetPhase))
	api.POST("/phases", createPhaseHandler)
	api.PATCH("/phases/:id/stages/:stageId", updateStageHandler)
	api.POST("/phases/:id/assignments", addAssignmentHandler)
	api.POST("/phases/:id/deactivate", deactivatePhaseHandler)

	api.GET("/institutions", listHandler(models.ListEducationalInstitutions))
	api.GET("/institutions/:id", getHandler(models.GetEducationalInstitution))
	api.GET("/vacancies", listVacanciesHandler)
	api.GET("/vacancies/:id", getHandler(models.GetVacancy))
	api.POST("/vacancies", createHandler(models.CreateVacancy))
	api.POST("/vacancies/preview", vacancyPreviewHandler)
	api.POST("/vacancies/bulk-upload", vacancyBulkUploadHandler)
	api.GET("/vacancies/export-template", vacancyTemplateHandler)
}

// respondError maps the error taxonomy onto HTTP statuses: validation 400,
// conflict 409, not-found 404, anything else 500.
func respondError(c *gin.Context, err error) {
	var ve *utils.ValidationError
	if errors.As(err, &ve) {
		body := gin.H{"error": ve.Message}
		if len(ve.Fields) > 0 {
			body["fields"] = ve.Fields
		}
		c.JSON(http.StatusBadRequest, body)
		return
	}
	var ce *utils.ConflictError
	if errors.As(err, &ce) {
		body := gin.H{"error": ce.Message}
		if len(ce.Conflicting) > 0 {
			body["conflicting"] = ce.Conflicting
		}
		c.JSON(http.StatusConflict, body)
		return
	}
	if errors.Is(err, utils.ErrorRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no encontrado"})
		return
	}
	var bindingErrors validator.ValidationErrors
	if errors.As(err, &bindingErrors) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return
	}
	logger := config.GetLogger()
	config.LogError(logger, "server.go", "respondError", c.FullPath(), nil, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id inválido"})
		return 0, false
	}
	return id, true
}

/* generic handlers for the lookup-table CRUD surface */

func getHandler[T any](get func(context.Context, int) (*T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		result, err := get(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func listHandler[T any](list func(context.Context) ([]*T, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		results, err := list(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, results)
	}
}

func createHandler[In any, Out any](create func(context.Context, *In) (*Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input In
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
		result, err := create(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func updateHandler[In any, Out any](update func(context.Context, int, *In) (*Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		var input In
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
		result, err := update(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func deleteHandler[Out any](del func(context.Context, int) (*Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c, "id")
		if !ok {
			return
		}
		if _, err := del(c.Request.Context(), id); err != nil {
			respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

/* prelations */

func evaluatePrelationHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input struct {
		SatisfiedRequirementIds []int `json:"satisfied_requirement_ids"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	satisfied, err := models.EvaluatePrelation(c.Request.Context(), id, input.SatisfiedRequirementIds)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"satisfied": satisfied})
}

func addRequirementHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.NewPrelationRequirement
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	requirement, err := models.AddPrelationRequirement(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, requirement)
}

/* phases */

func createPhaseHandler(c *gin.Context) {
	var input models.NewPhase
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	phase, err := workflow.CreatePhase(c.Request.Context(), &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, phase)
}

func updateStageHandler(c *gin.Context) {
	phaseId, ok := pathId(c, "id")
	if !ok {
		return
	}
	stageId, ok := pathId(c, "stageId")
	if !ok {
		return
	}
	var input models.UpdatePhaseStageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	stage, err := models.UpdatePhaseStage(c.Request.Context(), phaseId, stageId, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stage)
}

func addAssignmentHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var input models.NewPhaseAssignment
	if err := c.ShouldBindJSON(&input); err != nil {
		respondError(c, err)
		return
	}
	assignment, err := models.AddPhaseAssignment(c.Request.Context(), id, &input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, assignment)
}

func deactivatePhaseHandler(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	phase, err := models.DeactivatePhase(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, phase)
}

/* vacancies */

func listVacanciesHandler(c *gin.Context) {
	phaseId := 0
	if v := c.Query("phase"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "parámetro phase inválido"})
			return
		}
		phaseId = n
	}
	vacancies, err := models.ListVacancies(c.Request.Context(), phaseId)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, vacancies)
}

// openUploadedWorkbook parses the multipart "file" + "phase_id" fields shared
// by the preview and bulk-upload endpoints.
func openUploadedWorkbook(c *gin.Context) (rows []models.VacancyRow, phaseId int, ok bool) {
	phaseIdRaw := c.PostForm("phase_id")
	if phaseIdRaw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no se proporcionó el ID de la fase"})
		return nil, 0, false
	}
	phaseId, err := strconv.Atoi(phaseIdRaw)
	if err != nil || phaseId <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID de fase inválido"})
		return nil, 0, false
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no se proporcionó ningún archivo"})
		return nil, 0, false
	}
	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "solo se permiten archivos .xlsx"})
		return nil, 0, false
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, err)
		return nil, 0, false
	}
	defer file.Close()

	workbook, err := excelize.OpenReader(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no se pudo leer el archivo: " + err.Error()})
		return nil, 0, false
	}
	defer workbook.Close()

	rows, err = models.ParseVacancyRows(workbook)
	if err != nil {
		respondError(c, err)
		return nil, 0, false
	}
	return rows, phaseId, true
}

func vacancyPreviewHandler(c *gin.Context) {
	rows, phaseId, ok := openUploadedWorkbook(c)
	if !ok {
		return
	}
	preview, err := models.PreviewVacancyImport(c.Request.Context(), phaseId, rows)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func vacancyBulkUploadHandler(c *gin.Context) {
	rows, phaseId, ok := openUploadedWorkbook(c)
	if !ok {
		return
	}
	result, err := models.ReconcileVacancies(c.Request.Context(), phaseId, rows)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":       "importación procesada",
		"created_count": result.CreatedCount,
		"error_count":   result.ErrorCount,
		"errors":        result.Errors,
	})
}

func vacancyTemplateHandler(c *gin.Context) {
	f, err := models.ExportVacancyTemplate()
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=plantilla_vacantes.xlsx")
	if err := f.Write(c.Writer); err != nil {
		respondError(c, err)
	}
}
