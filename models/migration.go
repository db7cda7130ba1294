package models

import (
	"log"

	"bitbucket.org/minedudata/nexus_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Modality{}, &Level{}, &CurricularArea{}, &PrelationOrder{},
		&Prelation{}, &PrelationRequirement{},
		&Phase{}, &PhaseStage{}, &PhaseAssignment{},
		&EducationalInstitution{}, &Vacancy{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
