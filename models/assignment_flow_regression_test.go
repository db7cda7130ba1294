package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/minedudata/nexus_backend/config"
	"bitbucket.org/minedudata/nexus_backend/models"
	"bitbucket.org/minedudata/nexus_backend/utils"
	"bitbucket.org/minedudata/nexus_backend/workflow"
)

// setupIntegrationEnv starts throwaway MySQL + Redis containers, points the
// config connectors at them and migrates a fresh schema.
func setupIntegrationEnv(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "nexus_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUsernameInContext(ctx, "test@local")
	return ctx
}

type catalogIds struct {
	modalityEBR int
	levelSec    int
	levelPrim   int
	areaMath    int
	orders      []int // ids of Primera..Tercera, ascending rank
}

func seedCatalog(t *testing.T, ctx context.Context) catalogIds {
	t.Helper()

	abbr := "EBR"
	modality, err := models.CreateModality(ctx, &models.NewModality{Name: "Educación Básica Regular", Abbreviature: &abbr})
	if err != nil {
		t.Fatalf("CreateModality: %v", err)
	}
	sec, err := models.CreateLevel(ctx, &models.NewLevel{Name: "Secundaria"})
	if err != nil {
		t.Fatalf("CreateLevel: %v", err)
	}
	prim, err := models.CreateLevel(ctx, &models.NewLevel{Name: "Primaria"})
	if err != nil {
		t.Fatalf("CreateLevel: %v", err)
	}
	area, err := models.CreateCurricularArea(ctx, &models.NewCurricularArea{Name: "Matemática"})
	if err != nil {
		t.Fatalf("CreateCurricularArea: %v", err)
	}

	ids := catalogIds{modalityEBR: modality.ID, levelSec: sec.ID, levelPrim: prim.ID, areaMath: area.ID}
	for _, name := range []string{"Primera Prelación", "Segunda Prelación", "Tercera Prelación"} {
		order, err := models.CreatePrelationOrder(ctx, &models.NewPrelationOrder{Name: name})
		if err != nil {
			t.Fatalf("CreatePrelationOrder(%q): %v", name, err)
		}
		ids.orders = append(ids.orders, order.ID)
	}
	return ids
}

func TestPrelationDeleteIsTailOnly(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	ids := seedCatalog(t, ctx)

	var created []*models.Prelation
	for i, orderId := range ids.orders {
		p, err := models.CreatePrelation(ctx, &models.NewPrelation{
			ModalityId:       ids.modalityEBR,
			CurricularAreaId: &ids.areaMath,
			OrderId:          orderId,
			Description:      fmt.Sprintf("tier %d", i+1),
			LevelIds:         []int{ids.levelSec},
			Requirements: []models.NewPrelationRequirement{
				{Text: "Título pedagógico", LogicType: models.PrelationLogicAnd, Group: 1},
			},
		})
		if err != nil {
			t.Fatalf("CreatePrelation(order %d): %v", orderId, err)
		}
		created = append(created, p)
	}

	// Deleting the head while later tiers exist must fail and mutate nothing.
	_, err := models.DeletePrelation(ctx, created[0].ID)
	if err == nil {
		t.Fatalf("expected conflict deleting the first tier while later tiers exist")
	}
	if !utils.IsConflictError(err) {
		t.Fatalf("expected ConflictError, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "posteriores") {
		t.Fatalf("expected the error to mention posterior tiers, got %q", err.Error())
	}

	remaining, err := models.ListPrelations(ctx)
	if err != nil {
		t.Fatalf("ListPrelations: %v", err)
	}
	if len(remaining) != 3 {
		t.Fatalf("failed delete must not mutate the group: expected 3 tiers, got %d", len(remaining))
	}

	// Tail deletions in reverse order must all succeed.
	for i := len(created) - 1; i >= 0; i-- {
		if _, err := models.DeletePrelation(ctx, created[i].ID); err != nil {
			t.Fatalf("DeletePrelation(tail %d): %v", created[i].ID, err)
		}
	}
	remaining, err = models.ListPrelations(ctx)
	if err != nil {
		t.Fatalf("ListPrelations: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected empty group after reverse-order deletion, got %d", len(remaining))
	}
}

func TestPrelationGroupsAreIndependent(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	ids := seedCatalog(t, ctx)

	// Same modality, one tier with an area and one without: different groups.
	withArea, err := models.CreatePrelation(ctx, &models.NewPrelation{
		ModalityId:       ids.modalityEBR,
		CurricularAreaId: &ids.areaMath,
		OrderId:          ids.orders[0],
		LevelIds:         []int{ids.levelSec},
	})
	if err != nil {
		t.Fatalf("CreatePrelation(with area): %v", err)
	}
	_, err = models.CreatePrelation(ctx, &models.NewPrelation{
		ModalityId: ids.modalityEBR,
		OrderId:    ids.orders[1],
		LevelIds:   []int{ids.levelPrim},
	})
	if err != nil {
		t.Fatalf("CreatePrelation(no area): %v", err)
	}

	// The arealess tier at order 2 must not block deleting the math tier at
	// order 1: they live in different groups.
	if _, err := models.DeletePrelation(ctx, withArea.ID); err != nil {
		t.Fatalf("DeletePrelation across groups: %v", err)
	}
}

func fullStageSet(start time.Time) []models.NewPhaseStage {
	stages := make([]models.NewPhaseStage, 0, len(models.CanonicalStageTypes))
	for i, st := range models.CanonicalStageTypes {
		s := start.Add(time.Duration(i*48) * time.Hour)
		e := s.Add(24 * time.Hour)
		stages = append(stages, models.NewPhaseStage{StageType: st, StartDate: &s, EndDate: &e})
	}
	return stages
}

func TestPhaseCreationGuards(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	ids := seedCatalog(t, ctx)

	assignment := models.NewPhaseAssignment{
		AssignmentDateTime: time.Now().Add(24 * time.Hour),
		ModalityId:         ids.modalityEBR,
		LevelId:            ids.levelSec,
	}

	// Incomplete stage sets are rejected up front, naming every missing type.
	_, err := workflow.CreatePhase(ctx, &models.NewPhase{
		Name: "Fase incompleta",
		Year: 2026,
		Stages: []models.NewPhaseStage{
			{StageType: models.StageTypePublication},
		},
		Assignments: []models.NewPhaseAssignment{assignment},
	})
	if err == nil || !utils.IsValidationError(err) {
		t.Fatalf("expected ValidationError for missing stages, got %v", err)
	}

	first, err := workflow.CreatePhase(ctx, &models.NewPhase{
		Name:        "Primera Convocatoria 2026",
		Year:        2026,
		Stages:      fullStageSet(time.Now().Add(24 * time.Hour)),
		Assignments: []models.NewPhaseAssignment{assignment},
	})
	if err != nil {
		t.Fatalf("CreatePhase: %v", err)
	}
	if first.IsActive == nil || !*first.IsActive {
		t.Fatalf("created phase must be active")
	}
	if len(first.Stages) != len(models.CanonicalStageTypes) {
		t.Fatalf("expected %d stages, got %d", len(models.CanonicalStageTypes), len(first.Stages))
	}

	// Active-phase singleton: a second creation must conflict and persist
	// nothing.
	_, err = workflow.CreatePhase(ctx, &models.NewPhase{
		Name:        "Segunda Convocatoria 2026",
		Year:        2026,
		Stages:      fullStageSet(time.Now().Add(90 * 24 * time.Hour)),
		Assignments: []models.NewPhaseAssignment{assignment},
	})
	if err == nil || !utils.IsConflictError(err) {
		t.Fatalf("expected ConflictError while a phase is active, got %v", err)
	}
	phases, err := models.ListPhases(ctx)
	if err != nil {
		t.Fatalf("ListPhases: %v", err)
	}
	if len(phases) != 1 {
		t.Fatalf("rejected creation must persist nothing: expected 1 phase, got %d", len(phases))
	}

	// After deactivation, a schedule overlapping the first phase's future
	// window is still rejected.
	if _, err := models.DeactivatePhase(ctx, first.ID); err != nil {
		t.Fatalf("DeactivatePhase: %v", err)
	}
	_, err = workflow.CreatePhase(ctx, &models.NewPhase{
		Name:        "Fase superpuesta",
		Year:        2026,
		Stages:      fullStageSet(time.Now().Add(48 * time.Hour)),
		Assignments: []models.NewPhaseAssignment{assignment},
	})
	if err == nil || !utils.IsConflictError(err) {
		t.Fatalf("expected schedule-overlap conflict, got %v", err)
	}

	// A phase scheduled after the first one fully ends is fine.
	later, err := workflow.CreatePhase(ctx, &models.NewPhase{
		Name:        "Segunda Convocatoria 2026",
		Year:        2026,
		Stages:      fullStageSet(time.Now().Add(60 * 24 * time.Hour)),
		Assignments: []models.NewPhaseAssignment{assignment},
	})
	if err != nil {
		t.Fatalf("CreatePhase(later window): %v", err)
	}
	if later.IsActive == nil || !*later.IsActive {
		t.Fatalf("later phase must be active after creation")
	}
}

func TestVacancyReconciliationPartialSuccess(t *testing.T) {
	ctx := setupIntegrationEnv(t)
	ids := seedCatalog(t, ctx)

	phase, err := workflow.CreatePhase(ctx, &models.NewPhase{
		Name: "Convocatoria Vacantes",
		Year: 2026,
		Stages: func() []models.NewPhaseStage {
			var stages []models.NewPhaseStage
			for _, st := range models.CanonicalStageTypes {
				stages = append(stages, models.NewPhaseStage{StageType: st})
			}
			return stages
		}(),
		Assignments: []models.NewPhaseAssignment{{
			AssignmentDateTime: time.Now().Add(24 * time.Hour),
			ModalityId:         ids.modalityEBR,
			LevelId:            ids.levelSec,
		}},
	})
	if err != nil {
		t.Fatalf("CreatePhase: %v", err)
	}

	rows := []models.VacancyRow{
		{Row: 2, IeCode: "0123456", IeName: "I.E. San Martín", Modality: "EBR", Level: "Secundaria",
			NexusCode: "NEX001", Position: "docente", VacancyType: "organica", VacancyReason: "licencia", CurricularArea: "Matemática"},
		{Row: 3, IeName: "I.E. San Martín", Modality: "XXX", Level: "Secundaria",
			NexusCode: "NEX002", Position: "DOCENTE", VacancyType: "ORGANICA", VacancyReason: "LICENCIA"},
		{Row: 4, IeCode: "0123456", IeName: "I.E. San Martín", Modality: "EBR", Level: "Secundaria",
			NexusCode: "NEX003", Position: "AUXILIAR", VacancyType: "EVENTUAL", VacancyReason: "DESTAQUE"},
	}

	// Preview flags the bad row without writing anything.
	preview, err := models.PreviewVacancyImport(ctx, phase.ID, rows)
	if err != nil {
		t.Fatalf("PreviewVacancyImport: %v", err)
	}
	if preview.ValidCount != 2 || preview.InvalidCount != 1 {
		t.Fatalf("preview counts: valid=%d invalid=%d", preview.ValidCount, preview.InvalidCount)
	}
	if vacancies, err := models.ListVacancies(ctx, phase.ID); err != nil || len(vacancies) != 0 {
		t.Fatalf("preview must not write vacancies (err=%v, n=%d)", err, len(vacancies))
	}

	result, err := models.ReconcileVacancies(ctx, phase.ID, rows)
	if err != nil {
		t.Fatalf("ReconcileVacancies: %v", err)
	}
	if result.CreatedCount != 2 || result.ErrorCount != 1 {
		t.Fatalf("expected 2 created and 1 errored, got %d/%d", result.CreatedCount, result.ErrorCount)
	}
	if len(result.Errors) != 1 || result.Errors[0].Row != 3 {
		t.Fatalf("expected the error pinned to spreadsheet row 3, got %+v", result.Errors)
	}
	if got := result.Errors[0].Errors[0]; got != "Modalidad 'XXX' no encontrada" {
		t.Fatalf("unexpected row error message: %q", got)
	}

	vacancies, err := models.ListVacancies(ctx, phase.ID)
	if err != nil {
		t.Fatalf("ListVacancies: %v", err)
	}
	if len(vacancies) != 2 {
		t.Fatalf("expected 2 vacancies, got %d", len(vacancies))
	}
	for _, v := range vacancies {
		if v.NexusCode == "NEX001" {
			// Source row used lowercase "docente"; storage is normalized.
			if v.Position != models.VacancyPositionDocente || v.VacancyType != models.VacancyTypeOrganica || v.VacancyReason != models.VacancyReasonLicencia {
				t.Fatalf("expected uppercased enums for NEX001, got %q/%q/%q", v.Position, v.VacancyType, v.VacancyReason)
			}
			if v.CurricularAreaId == nil {
				t.Fatalf("expected curricular area resolved for NEX001")
			}
		}
	}

	// Both good rows share the same institution code: exactly one institution.
	institutions, err := models.ListEducationalInstitutions(ctx)
	if err != nil {
		t.Fatalf("ListEducationalInstitutions: %v", err)
	}
	if len(institutions) != 1 {
		t.Fatalf("expected a single institution for a shared code, got %d", len(institutions))
	}

	// Re-running the batch: every nexus code now already exists, nothing new
	// is written and no institution is duplicated.
	rerun, err := models.ReconcileVacancies(ctx, phase.ID, rows)
	if err != nil {
		t.Fatalf("ReconcileVacancies(rerun): %v", err)
	}
	if rerun.CreatedCount != 0 || rerun.ErrorCount != 3 {
		t.Fatalf("rerun: expected 0 created and 3 errored, got %d/%d", rerun.CreatedCount, rerun.ErrorCount)
	}
	found := false
	for _, rowErr := range rerun.Errors {
		for _, msg := range rowErr.Errors {
			if msg == "Código Nexus 'NEX001' ya existe" {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected duplicate nexus-code error in rerun, got %+v", rerun.Errors)
	}
	institutions, err = models.ListEducationalInstitutions(ctx)
	if err != nil {
		t.Fatalf("ListEducationalInstitutions: %v", err)
	}
	if len(institutions) != 1 {
		t.Fatalf("rerun duplicated institutions: got %d", len(institutions))
	}

	if vacancies, err = models.ListVacancies(ctx, phase.ID); err != nil || len(vacancies) != 2 {
		t.Fatalf("rerun must not create vacancies (err=%v, n=%d)", err, len(vacancies))
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("nexus-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("nexus-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=nexus_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
