package tournament

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/vreid/arena/internal/pkg/common"
)

func (s *TournamentService) Routes(e *echo.Echo) {
	tournamentGroup := e.Group("/api/tournaments")

	tournamentGroup.GET("", s.GetTournaments)
	tournamentGroup.POST("", s.PostTournament)
	tournamentGroup.GET("/:id", s.GetTournamentByID)
	tournamentGroup.GET("/:id/audit", s.GetAudit)
	tournamentGroup.POST("/:id/register", s.PostRegister)
	tournamentGroup.POST("/:id/finalize", s.PostFinalize)
	tournamentGroup.POST("/:id/claim", s.PostClaim)
}

func HTTPError(err error) *echo.HTTPError {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPayoutNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrAlreadyRegistered),
		errors.Is(err, ErrTournamentFinalized),
		errors.Is(err, ErrTournamentNotFinalized),
		errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrPayoutAlreadyClaimed):
		status = http.StatusConflict
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInsufficientEscrowBalance),
		errors.Is(err, ErrPoolOverflow):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal error").SetInternal(err)
	}

	return echo.NewHTTPError(status, err.Error())
}

// tournamentID returns the decoded id. echo routes on RawPath when the request
// carries one, and only then is the param still escaped.
func tournamentID(c echo.Context) (string, error) {
	if len(c.Request().URL.RawPath) == 0 {
		return c.Param("id"), nil
	}

	id, err := url.PathUnescape(c.Param("id"))
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid tournament id")
	}

	return id, nil
}

func (s *TournamentService) GetTournaments(c echo.Context) error {
	tournaments, err := s.ListTournaments()
	if err != nil {
		return HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, tournaments)
}

func (s *TournamentService) PostTournament(c echo.Context) error {
	var request CreateRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	tournament, err := s.CreateTournament(common.Caller(c), request.TournamentID, request.EntryFee)
	if err != nil {
		return HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusCreated, tournament)
}

func (s *TournamentService) GetTournamentByID(c echo.Context) error {
	id, err := tournamentID(c)
	if err != nil {
		return err
	}

	tournament, err := s.GetTournament(id)
	if err != nil {
		return HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, tournament)
}

func (s *TournamentService) GetAudit(c echo.Context) error {
	id, err := tournamentID(c)
	if err != nil {
		return err
	}

	audit, err := s.AuditEscrow(id)
	if err != nil {
		return HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, audit)
}

func (s *TournamentService) PostRegister(c echo.Context) error {
	id, err := tournamentID(c)
	if err != nil {
		return err
	}

	registered, err := s.RegisterForTournament(common.Caller(c), id)
	if err != nil {
		return HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, registered)
}

func (s *TournamentService) PostFinalize(c echo.Context) error {
	id, err := tournamentID(c)
	if err != nil {
		return err
	}

	var request FinalizeRequest

	err = c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	finalized, err := s.FinalizeTournament(common.Caller(c), id,
		request.FirstPlace, request.SecondPlace, request.ThirdPlace)
	if err != nil {
		return HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, finalized)
}

func (s *TournamentService) PostClaim(c echo.Context) error {
	id, err := tournamentID(c)
	if err != nil {
		return err
	}

	var request ClaimRequest

	err = c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	claimed, err := s.ClaimPrize(common.Caller(c), id, request.PayoutAmount)
	if err != nil {
		return HTTPError(err)
	}

	//nolint:wrapcheck
	return c.JSON(http.StatusOK, claimed)
}
