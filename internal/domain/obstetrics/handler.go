package obstetrics

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ceres/prenatal/internal/platform/auth"
	"github.com/ceres/prenatal/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/assess", h.Assess)

	// Patient endpoints act on the caller's own profile.
	me := api.Group("/profile", auth.RequireRole("patient"))
	me.POST("", h.Onboard)
	me.GET("", h.GetProfile)
	me.DELETE("", h.Logout)
	me.PUT("/biometrics", h.UpdateBiometrics)
	me.PUT("/edd", h.UpdateEDD)
	me.PUT("/blood-type", h.SetBloodType)
	me.GET("/risk", h.GetRisk)
	me.POST("/risk-factors/:category/:flag/toggle", h.ToggleRiskFactor)
	me.GET("/exams", h.ListExams)
	me.POST("/exams/:category/:exam/toggle", h.ToggleExamStatus)
	me.PUT("/exams/:category/:exam/result", h.RecordExamResult)
	me.GET("/care-tracks", h.ListCareTracks)
	me.POST("/care-tracks/:track/toggle", h.ToggleTrackFlag)
	me.POST("/care-tracks/:track/document", h.SendDocument)
	me.GET("/dashboard", h.GetDashboard)
	me.GET("/exercise", h.GetExercise)
	me.POST("/exercise/screening", h.ScreenExercise)

	clinician := api.Group("", auth.RequireRole("clinician"))
	clinician.GET("/profiles", h.ListProfiles)
}

// httpError maps domain errors onto HTTP statuses.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrProfileNotFound),
		errors.Is(err, ErrUnknownExam),
		errors.Is(err, ErrUnknownTrack):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyOnboarded),
		errors.Is(err, ErrDispatchInFlight):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrDispatchFailed):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.Is(err, ErrStaleDurableCopy):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, ErrInvalidProfile),
		errors.Is(err, ErrUnknownCategory),
		errors.Is(err, ErrUnknownFlag),
		errors.Is(err, ErrDerivedFlag),
		errors.Is(err, ErrInvalidExamStatus),
		errors.Is(err, ErrInvalidTrackFlag),
		errors.Is(err, ErrInvalidBloodType):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func patientID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "token subject is not a patient id")
	}
	return id, nil
}

func (h *Handler) session(c echo.Context) (*Tracker, error) {
	id, err := patientID(c)
	if err != nil {
		return nil, err
	}
	t, err := h.svc.Session(c.Request().Context(), id)
	if err != nil {
		return nil, httpError(err)
	}
	return t, nil
}

// -- Profile --

type profileResponse struct {
	Profile *Profile       `json:"profile"`
	Risk    RiskAssessment `json:"risk"`
}

func (h *Handler) Onboard(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	var req OnboardingRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, risk, err := h.svc.Onboard(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, profileResponse{Profile: p, Risk: risk})
}

func (h *Handler) GetProfile(c echo.Context) error {
	t, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, profileResponse{Profile: t.Snapshot(), Risk: t.Risk()})
}

func (h *Handler) Logout(c echo.Context) error {
	id, err := patientID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Logout(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type biometricsRequest struct {
	Height float64 `json:"height"`
	Weight float64 `json:"weight"`
}

func (h *Handler) UpdateBiometrics(c echo.Context) error {
	t, err := h.session(c)
	if err != nil {
		return err
	}
	var req biometricsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	b, err := t.UpdateBiometrics(c.Request().Context(), req.Height, req.Weight)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, b)
}

type eddRequest struct {
	EDD *string `json:"edd"`
}

func (h *Handler) UpdateEDD(c echo.Context) error {
	t, err := h.session(c)
	if err != nil {
		return err
	}
	var req eddRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var edd *time.Time
	if req.EDD != nil && *req.EDD != "" {
		d, err := ParseDate(*req.EDD)
		if err != nil {
			return httpError(err)
		}
		edd = &d
	}
	weeks, err := t.UpdateEDD(c.Request().Context(), edd)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"edd":             req.EDD,
		"gestation_weeks": weeks,
		"trimester":       Trimester(weeks),
	})
}

type bloodTypeRequest struct {
	BloodType string `json:"blood_type"`
}

func (h *Handler) SetBloodType(c echo.Context) error {
	t, err := h.session(c)
	if err != nil {
		return err
	}
	var req bloodTypeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	bt, err := ParseBloodType(strings.ToUpper(strings.TrimSpace(req.BloodType)))
	if err != nil {
		return httpError(err)
	}
	if err := t.SetBloodType(c.Request().Context(), bt); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, bloodTypeRequest{BloodType: string(bt)})
}

// -- Risk --

func (h *Handler) GetRisk(c echo.Context) error {
	t, err := h.session(c)
	if err != nil {
		return err
	}
	p := t.Snapshot()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"risk":         t.Risk(),
		"risk_factors": p.RiskFactors,
	})
}

func (h *Handler) ToggleRiskFactor(c echo.Context) error {
	t, err := h.session(c)
	if err != nil {
		return err
	}
	cat, err := ParseCategory(c.Param("category"))
	if err != nil {
		return httpError(err)
	}
	flag, err := ParseFlag(cat, c.Param("flag"))
	if err != nil {
		return httpError(err)
	}
	set, risk, err := t.ToggleRiskFactor(c.Request().Context(), cat, flag)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"risk":         risk,
		"risk_factors": set,
	})
}

type assessRequest struct {
	Age         int            `json:"age"`
	RiskFactors *RiskFactorSet `json:"risk_factors"`
}

func (h *Handler) Assess(c echo.Context) error {
	var req assessRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	factors := NewRiskFactorSet()
	if req.RiskFactors != nil {
		if err := req.RiskFactors.Validate(); err != nil {
			return httpError(err)
		}
		factors = req.RiskFactors.Clone()
	}
	return c.JSON(http.StatusOK, h.svc.Assess(req.Age, factors))
}

// -- Exams --

func (h *Handler) ListExams(c echo.Context) error {
	t, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, t.Snapshot().ExamSchedule)
}

type examStatusRequest struct {
	Status ExamStatus `json:"status"`
}

func (h *Handler) ToggleExamStatus(c echo.Context) error {
	t, err := h.session(c)
	if err != nil {
		return err
	}
	var req examStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	e, err := t.ToggleExamStatus(c.Request().Context(), c.Param("category"), c.Param("exam"), req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

type examResultRequest struct {
	Value string `json:"value"`
}

func (h *Handler) RecordExamResult(c echo.Context) error {
	t, err := h.session(c)
	if err != nil {
		return err
	}
	var req examResultRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Value) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "value is required")
	}
	e, err := t.RecordExamResult(c.Request().Context(), c.Param("category"), c.Param("exam"), req.Value)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, e)
}

// -- Care tracks --

type careTrackView struct {
	CareTrack
	Completed   bool `json:"completed"`
	Dispatching bool `json:"dispatching"`
}

func (h *Handler) ListCareTracks(c echo.Context) error {
	t, err := h.session(c)
	if err != nil {
		return err
	}
	tracks := t.Snapshot().CareTracks
	out := make([]careTrackView, len(tracks))
	for i, tr := range tracks {
		out[i] = careTrackView{CareTrack: tr, Completed: tr.Completed(), Dispatching: t.Dispatching(tr.ID)}
	}
	return c.JSON(http.StatusOK, out)
}

type trackFlagRequest struct {
	Flag string `json:"flag"`
}

func (h *Handler) ToggleTrackFlag(c echo.Context) error {
	t, err := h.session(c)
	if err != nil {
		return err
	}
	var req trackFlagRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	flag, err := ParseTrackFlag(req.Flag)
	if err != nil {
		return httpError(err)
	}
	tr, err := t.ToggleTrackFlag(c.Request().Context(), c.Param("track"), flag)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, careTrackView{CareTrack: tr, Completed: tr.Completed()})
}

// SendDocument starts the dispatch and answers 202 right away; the outcome
// is visible on the care track once it lands.
func (h *Handler) SendDocument(c echo.Context) error {
	t, err := h.session(c)
	if err != nil {
		return err
	}
	trackID := c.Param("track")
	done, err := t.SendDocument(c.Request().Context(), trackID)
	if err != nil {
		return httpError(err)
	}
	if c.QueryParam("wait") == "true" {
		if err := <-done; err != nil {
			return httpError(err)
		}
		return c.JSON(http.StatusOK, map[string]interface{}{"track_id": trackID, "status": "delivered"})
	}
	return c.JSON(http.StatusAccepted, map[string]interface{}{"track_id": trackID, "status": "dispatching"})
}

// -- Dashboard and exercise --

func (h *Handler) GetDashboard(c echo.Context) error {
	t, err := h.session(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BuildDashboard(t.Snapshot()))
}

func (h *Handler) GetExercise(c echo.Context) error {
	t, err := h.session(c)
	if err != nil {
		return err
	}
	activity, err := ParseActivityLevel(c.QueryParam("activity"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"target_heart_rate": TargetHeartRate(t.Snapshot().Age, activity),
		"questions":         ContraindicationQuestions,
	})
}

type screeningRequest struct {
	Answers map[string]bool `json:"answers"`
}

func (h *Handler) ScreenExercise(c echo.Context) error {
	var req screeningRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := ScreenContraindications(req.Answers)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, s)
}

// -- Clinician --

func (h *Handler) ListProfiles(c echo.Context) error {
	pg := pagination.FromContext(c)
	var filter ProfileFilter
	if lvl := c.QueryParam("risk_level"); lvl != "" {
		level, err := ParseRiskLevel(lvl)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		filter.RiskLevel = level
	}
	items, total, err := h.svc.ListProfiles(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
