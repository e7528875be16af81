package server

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/matsen/firstrecord/internal/analysis"
	"github.com/matsen/firstrecord/internal/app"
	"github.com/matsen/firstrecord/internal/apperr"
	"github.com/matsen/firstrecord/internal/intake"
	"github.com/matsen/firstrecord/internal/llm"
)

type fetchRequest struct {
	URL  string `json:"url" validate:"required,url"`
	Name string `json:"name"`
}

type analyzeRequest struct {
	Provider     llm.ProviderID `json:"provider" validate:"required"`
	Model        string         `json:"model"`
	Species      string         `json:"species" validate:"required"`
	Synonyms     []string       `json:"synonyms" validate:"dive,required"`
	ForceExtract bool           `json:"forceExtract"`
}

func (r analyzeRequest) toAnalysis() analysis.Request {
	return analysis.Request{
		Provider:     r.Provider,
		Model:        r.Model,
		Species:      r.Species,
		Synonyms:     r.Synonyms,
		ForceExtract: r.ForceExtract,
	}
}

type batchRequest struct {
	analyzeRequest
	FallbackProvider llm.ProviderID `json:"fallbackProvider"`
	FallbackModel    string         `json:"fallbackModel"`
}

// bind decodes and validates the request body into v.
func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return fmt.Errorf("%w: malformed request body", apperr.ErrValidation)
	}
	return c.Validate(v)
}

func (s *Server) collect(c echo.Context) error {
	var req app.CollectRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: malformed request body", apperr.ErrValidation)
	}
	res, err := s.app.Collect(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) getCollection(c echo.Context) error {
	res, err := s.app.Store.GetCollection(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) resolve(c echo.Context) error {
	name := c.QueryParam("name")
	if name == "" {
		return fmt.Errorf("%w: name is required", apperr.ErrValidation)
	}
	res, err := s.app.Resolver.Resolve(c.Request().Context(), name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: multipart field \"file\" is required", apperr.ErrValidation)
	}
	// Reject on the declared size before the part is opened.
	if fh.Size > s.app.Intake.MaxBytes() {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", intake.ErrTooLarge, fh.Size, s.app.Intake.MaxBytes())
	}
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("%w: opening upload: %v", apperr.ErrInternal, err)
	}
	defer f.Close()

	asset, err := s.app.Upload(c.Request().Context(), intake.Upload{
		FileName: fh.Filename,
		Size:     fh.Size,
		Body:     f,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, asset)
}

func (s *Server) fetch(c echo.Context) error {
	var req fetchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	asset, err := s.app.Fetch(c.Request().Context(), req.URL, req.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, asset)
}

func (s *Server) listPDFs(c echo.Context) error {
	assets, err := s.app.Store.ListAssets(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, assets)
}

func (s *Server) analyze(c echo.Context) error {
	var req analyzeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	rec, err := s.app.Analysis.TriggerAnalysis(c.Request().Context(), c.Param("id"), req.toAnalysis())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) getAnalysis(c echo.Context) error {
	rec, err := s.app.Store.GetRecord(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) analyzeAll(c echo.Context) error {
	var req batchRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	summary, err := s.app.Analysis.AnalyzeAll(c.Request().Context(), analysis.BatchRequest{
		Request:          req.toAnalysis(),
		FallbackProvider: req.FallbackProvider,
		FallbackModel:    req.FallbackModel,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) quotaStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.app.QuotaStatuses())
}

func (s *Server) resetQuota(c echo.Context) error {
	provider := c.QueryParam("provider")
	if provider == "" {
		provider = string(llm.ProviderGemini)
	}
	st, err := s.app.ResetQuota(provider)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}
