// seed-catalog loads the baseline reference data for a fresh environment:
// modalities, levels, curricular areas, the four prelation orders and two
// example prelations with their requirement groups.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-catalog
//
// Rerunning is safe: every record is looked up by name before insertion.
package main

import (
	"context"
	"fmt"
	"os"

	"bitbucket.org/minedudata/nexus_backend/config"
	"bitbucket.org/minedudata/nexus_backend/models"
	"bitbucket.org/minedudata/nexus_backend/utils"
	"gorm.io/gorm"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	models.MigrateTable()

	modalities := map[string]string{
		"Educación Básica Regular":     "EBR",
		"Educación Básica Alternativa": "EBA",
		"Educación Básica Especial":    "EBE",
	}
	modalityIds := map[string]int{}
	for name, abbr := range modalities {
		m := models.Modality{Name: name, Abbreviature: &abbr, IsActive: utils.NewTrue()}
		if err := db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&m).Error; err != nil {
			fatal("modality %q: %v", name, err)
		}
		modalityIds[abbr] = m.ID
	}

	levelIds := map[string]int{}
	for _, name := range []string{"Inicial", "Primaria", "Secundaria"} {
		l := models.Level{Name: name, IsActive: utils.NewTrue()}
		if err := db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&l).Error; err != nil {
			fatal("level %q: %v", name, err)
		}
		levelIds[name] = l.ID
	}

	areas := []string{
		"Matemática",
		"Comunicación",
		"Ciencia y Tecnología",
		"Ciencias Sociales",
		"Inglés",
		"Educación Física",
		"Arte y Cultura",
		"Educación Religiosa",
		"Educación para el Trabajo",
	}
	areaIds := map[string]int{}
	for _, name := range areas {
		a := models.CurricularArea{Name: name, IsActive: utils.NewTrue()}
		if err := db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&a).Error; err != nil {
			fatal("curricular area %q: %v", name, err)
		}
		areaIds[name] = a.ID
	}

	orderIds := map[string]int{}
	for _, name := range []string{"Primera Prelación", "Segunda Prelación", "Tercera Prelación", "Cuarta Prelación"} {
		o := models.PrelationOrder{Name: name}
		if err := db.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&o).Error; err != nil {
			fatal("prelation order %q: %v", name, err)
		}
		orderIds[name] = o.ID
	}

	// Two sample prelations mirroring a typical first convocation.
	mathArea := areaIds["Matemática"]
	seedPrelation(ctx, db, models.Prelation{
		ModalityId:       modalityIds["EBR"],
		CurricularAreaId: &mathArea,
		OrderId:          orderIds["Primera Prelación"],
		Description:      "Titulados en la especialidad con estudios concluidos",
		IsActive:         utils.NewTrue(),
		Requirements: []models.PrelationRequirement{
			{Text: "Título de profesor en Matemática", LogicType: models.PrelationLogicOr, Group: 1, IsActive: utils.NewTrue()},
			{Text: "Título de licenciado en Educación Matemática", LogicType: models.PrelationLogicOr, Group: 1, IsActive: utils.NewTrue()},
			{Text: "DNI vigente", LogicType: models.PrelationLogicAnd, Group: 2, IsActive: utils.NewTrue()},
		},
	}, []int{levelIds["Secundaria"]})

	seedPrelation(ctx, db, models.Prelation{
		ModalityId:  modalityIds["EBR"],
		OrderId:     orderIds["Primera Prelación"],
		Description: "Titulados en educación inicial o primaria",
		IsActive:    utils.NewTrue(),
		Requirements: []models.PrelationRequirement{
			{Text: "Título de profesor de Educación Inicial", LogicType: models.PrelationLogicOr, Group: 1, IsActive: utils.NewTrue()},
			{Text: "Título de profesor de Educación Primaria", LogicType: models.PrelationLogicOr, Group: 1, IsActive: utils.NewTrue()},
			{Text: "DNI vigente", LogicType: models.PrelationLogicAnd, Group: 2, IsActive: utils.NewTrue()},
		},
	}, []int{levelIds["Inicial"], levelIds["Primaria"]})

	fmt.Println("catalog seeded")
}

func seedPrelation(ctx context.Context, db *gorm.DB, p models.Prelation, levelIds []int) {
	var count int64
	query := db.WithContext(ctx).Model(&models.Prelation{}).
		Where("modality_id = ? AND order_id = ? AND curricular_area_id <=> ?", p.ModalityId, p.OrderId, p.CurricularAreaId)
	if err := query.Count(&count).Error; err != nil {
		fatal("prelation lookup: %v", err)
	}
	if count > 0 {
		return
	}
	if err := db.WithContext(ctx).Create(&p).Error; err != nil {
		fatal("prelation %q: %v", p.Description, err)
	}
	levels := make([]models.Level, 0, len(levelIds))
	for _, id := range levelIds {
		levels = append(levels, models.Level{ID: id})
	}
	if err := db.WithContext(ctx).Model(&p).Association("Levels").Append(&levels); err != nil {
		fatal("prelation %q levels: %v", p.Description, err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
