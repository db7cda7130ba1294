package models

import "errors"

type PrelationLogicType string

const (
	PrelationLogicAnd PrelationLogicType = "AND"
	PrelationLogicOr  PrelationLogicType = "OR"
)

func (t PrelationLogicType) Validate() error {
	switch t {
	case PrelationLogicAnd, PrelationLogicOr:
		return nil
	}
	return errors.New("invalid prelation logic type")
}

type StageType string

const (
	StageTypePublication        StageType = "PUBLICATION"
	StageTypeAccreditation      StageType = "ACCREDITATION"
	StageTypeTieEvaluation      StageType = "TIE_EVALUATION"
	StageTypePreliminaryResults StageType = "PRELIMINARY_RESULTS"
	StageTypeClaims             StageType = "CLAIMS"
	StageTypeClaimResolution    StageType = "CLAIM_RESOLUTION"
	StageTypeFinalResults       StageType = "FINAL_RESULTS"
)

// CanonicalStageTypes is the full stage set every phase must carry,
// in process order.
var CanonicalStageTypes = []StageType{
	StageTypePublication,
	StageTypeAccreditation,
	StageTypeTieEvaluation,
	StageTypePreliminaryResults,
	StageTypeClaims,
	StageTypeClaimResolution,
	StageTypeFinalResults,
}

var stageTypeDisplay = map[StageType]string{
	StageTypePublication:        "Publicación de las vacantes",
	StageTypeAccreditation:      "Presentación de acreditación de requisitos",
	StageTypeTieEvaluation:      "Evaluación de expedientes en caso de empate",
	StageTypePreliminaryResults: "Publicación de resultados preliminares",
	StageTypeClaims:             "Presentación de reclamos",
	StageTypeClaimResolution:    "Absolución de reclamos",
	StageTypeFinalResults:       "Publicación de cuadro de mérito final",
}

func (t StageType) Display() string {
	return stageTypeDisplay[t]
}

func (t StageType) Validate() error {
	if _, ok := stageTypeDisplay[t]; !ok {
		return errors.New("invalid stage type")
	}
	return nil
}

type VacancyPosition string

const (
	VacancyPositionDocente  VacancyPosition = "DOCENTE"
	VacancyPositionAuxiliar VacancyPosition = "AUXILIAR"
)

var vacancyPositionDisplay = map[VacancyPosition]string{
	VacancyPositionDocente:  "Docente",
	VacancyPositionAuxiliar: "Auxiliar de Educación",
}

func (p VacancyPosition) Display() string {
	return vacancyPositionDisplay[p]
}

type VacancyType string

const (
	VacancyTypeOrganica VacancyType = "ORGANICA"
	VacancyTypeEventual VacancyType = "EVENTUAL"
)

var vacancyTypeDisplay = map[VacancyType]string{
	VacancyTypeOrganica: "Orgánica",
	VacancyTypeEventual: "Eventual",
}

func (t VacancyType) Display() string {
	return vacancyTypeDisplay[t]
}

type VacancyReason string

const (
	VacancyReasonLicencia     VacancyReason = "LICENCIA"
	VacancyReasonDestaque     VacancyReason = "DESTAQUE"
	VacancyReasonEncargatura  VacancyReason = "ENCARGATURA"
	VacancyReasonNuevaPlaza   VacancyReason = "NUEVA_PLAZA"
	VacancyReasonReasignacion VacancyReason = "REASIGNACION"
	VacancyReasonOtro         VacancyReason = "OTRO"
)

var vacancyReasonDisplay = map[VacancyReason]string{
	VacancyReasonLicencia:     "Licencia",
	VacancyReasonDestaque:     "Destaque",
	VacancyReasonEncargatura:  "Encargatura",
	VacancyReasonNuevaPlaza:   "Nueva Plaza",
	VacancyReasonReasignacion: "Reasignación",
	VacancyReasonOtro:         "Otro",
}

func (r VacancyReason) Display() string {
	return vacancyReasonDisplay[r]
}
